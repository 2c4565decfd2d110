package model

import (
	"time"

	"gorm.io/gorm"
)

// ApprovalRequest 审批单，内容实体走完审批链的载体
// Stage 与 Comment 归审批单独占，不会在审批单之间共享
type ApprovalRequest struct {
	gorm.Model
	// ContentID is an opaque reference into the external content store;
	// the engine never dereferences it. Title is cached for list views.
	ContentID    string `gorm:"type:varchar(64);not null;index;comment:内容ID(外部系统引用)"`
	ContentTitle string `gorm:"type:varchar(256);not null;comment:内容标题(冗余缓存)"`

	TemplateID uint             `gorm:"not null;index;comment:流程模板ID"`
	Template   WorkflowTemplate `gorm:"foreignKey:TemplateID"`

	Status         RequestStatus `gorm:"type:varchar(32);not null;default:Pending;comment:审批单状态"`
	CurrentStageID *uint         `gorm:"comment:当前环节ID，终态时为空"`

	CreatorID uint `gorm:"not null;index;comment:创建者ID"`
	Creator   User `gorm:"foreignKey:CreatorID"`

	Stages   []Stage   `gorm:"foreignKey:RequestID"`
	Comments []Comment `gorm:"foreignKey:RequestID"`
}

// CurrentStage returns the stage pointed to by CurrentStageID, or nil.
func (r *ApprovalRequest) CurrentStage() *Stage {
	if r.CurrentStageID == nil {
		return nil
	}
	for i := range r.Stages {
		if r.Stages[i].ID == *r.CurrentStageID {
			return &r.Stages[i]
		}
	}
	return nil
}

// StageByID looks up a stage owned by this request.
func (r *ApprovalRequest) StageByID(id uint) *Stage {
	for i := range r.Stages {
		if r.Stages[i].ID == id {
			return &r.Stages[i]
		}
	}
	return nil
}

// Progress returns (completed, total) over the request's stages.
// Completed counts Approved and Skipped stages. O(len(stages)).
func (r *ApprovalRequest) Progress() (completed, total int) {
	for i := range r.Stages {
		if r.Stages[i].Status.Done() {
			completed++
		}
	}
	return completed, len(r.Stages)
}

// Stage 审批单中的一个环节实例，创建时从模板深拷贝而来
type Stage struct {
	gorm.Model
	RequestID uint       `gorm:"not null;index;comment:所属审批单ID"`
	Name      string     `gorm:"type:varchar(128);not null;comment:环节名称"`
	Role      ReviewRole `gorm:"type:varchar(32);not null;comment:处理该环节所需的审批角色"`
	Required  bool       `gorm:"not null;default:true;comment:是否必需"`
	Order     int        `gorm:"column:stage_order;not null;comment:环节顺序"`

	Status StageStatus `gorm:"type:varchar(32);not null;default:Pending;comment:环节状态"`

	AssignedToID  *uint      `gorm:"comment:当前指派的处理人ID"`
	AssignedTo    *User      `gorm:"foreignKey:AssignedToID"`
	CompletedByID *uint      `gorm:"comment:实际处理人ID(越级审批时与指派人不同)"`
	CompletedBy   *User      `gorm:"foreignKey:CompletedByID"`
	CompletedAt   *time.Time `gorm:"comment:处理时间"`
}

// Comment 审批单上的一条审计记录，每个非 submit 动作都必须附带非空评论
type Comment struct {
	gorm.Model
	RequestID uint  `gorm:"not null;index;comment:所属审批单ID"`
	StageID   *uint `gorm:"index;comment:关联环节ID，审批单级动作为空"`

	AuthorID   uint       `gorm:"not null;comment:作者ID"`
	Author     User       `gorm:"foreignKey:AuthorID"`
	AuthorRole ReviewRole `gorm:"type:varchar(32);comment:作者动作时的审批角色"`

	Action Action `gorm:"type:smallint;not null;comment:动作类型"`
	Body   string `gorm:"type:text;comment:评论内容"`
}
