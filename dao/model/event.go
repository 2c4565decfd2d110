package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventKind 审批事件类型，供通知服务和仪表盘动态流消费
type EventKind string

const (
	EventApprovalCreated     EventKind = "ApprovalCreated"
	EventApprovalAdvanced    EventKind = "ApprovalAdvanced"
	EventApprovalApproved    EventKind = "ApprovalApproved"
	EventApprovalRejected    EventKind = "ApprovalRejected"
	EventChangesRequested    EventKind = "ChangesRequested"
	EventApprovalResubmitted EventKind = "ApprovalResubmitted"
	EventApprovalCanceled    EventKind = "ApprovalCanceled"
)

// EventPayload 事件内容
type EventPayload struct {
	Action       string        `json:"action"`
	FromStatus   RequestStatus `json:"fromStatus"`
	ToStatus     RequestStatus `json:"toStatus"`
	StageName    string        `json:"stageName,omitempty"`
	NextStageID  uint          `json:"nextStageID,omitempty"`
	ContentTitle string        `json:"contentTitle,omitempty"`
}

// ApprovalEvent 审批单状态变更事件，随变更事务一同写入
type ApprovalEvent struct {
	gorm.Model
	UID       string    `gorm:"type:varchar(36);uniqueIndex;not null;comment:事件UUID"`
	Kind      EventKind `gorm:"type:varchar(32);not null;index;comment:事件类型"`
	RequestID uint      `gorm:"not null;index;comment:审批单ID"`
	StageID   *uint     `gorm:"comment:环节ID"`

	ActorID  uint      `gorm:"not null;comment:触发者ID"`
	Actor    User      `gorm:"foreignKey:ActorID"`
	Occurred time.Time `gorm:"not null;index;comment:发生时间"`

	Payload datatypes.JSONType[EventPayload] `gorm:"comment:事件内容"`
}
