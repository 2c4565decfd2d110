package model

import (
	"fmt"

	"gorm.io/gorm"
)

// WorkflowTemplate 审批流程模板，由管理员在配置期创建
// 一旦被审批单引用即锁定，不允许修改进行中的流程定义
type WorkflowTemplate struct {
	gorm.Model
	Name        string `gorm:"uniqueIndex;type:varchar(128);not null;comment:模板名称"`
	Description string `gorm:"type:varchar(512);comment:模板描述"`
	Locked      bool   `gorm:"not null;default:false;comment:被审批单引用后锁定，不可再修改"`

	Stages []StageTemplate `gorm:"foreignKey:TemplateID"`
}

// StageTemplate 模板中的一个审批环节定义
type StageTemplate struct {
	gorm.Model
	TemplateID uint       `gorm:"not null;uniqueIndex:idx_template_stage_order;comment:所属模板ID"`
	Name       string     `gorm:"type:varchar(128);not null;comment:环节名称"`
	Role       ReviewRole `gorm:"type:varchar(32);not null;comment:处理该环节所需的审批角色"`
	Required   bool       `gorm:"not null;default:true;comment:是否必需，非必需环节可被跳过"`
	// Order is 1-based and must be contiguous within a template.
	Order int `gorm:"column:stage_order;not null;uniqueIndex:idx_template_stage_order;comment:环节顺序，从1开始连续递增"`
}

// ValidateStages checks the template invariant: stage orders are unique,
// strictly increasing and contiguous from 1..N.
func (t *WorkflowTemplate) ValidateStages() error {
	if len(t.Stages) == 0 {
		return fmt.Errorf("template %q has no stages", t.Name)
	}
	for i := range t.Stages {
		if t.Stages[i].Order != i+1 {
			return fmt.Errorf("template %q: stage %d has order %d, want %d",
				t.Name, i, t.Stages[i].Order, i+1)
		}
	}
	return nil
}
