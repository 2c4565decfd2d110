// 定义与数据库表字段对应的常量
// 由于 Gin 框架在进行参数校验时，如果给了 required 标签，则不能传入零值
// 所以在定义常量时，最好将零值排除在外，请使用 iota + 1 定义第一个常量
package model

import "fmt"

// User role in platform (admin gates the template/user management APIs)
type Role uint8

const (
	RoleGuest Role = iota + 1
	RoleUser
	RoleAdmin
)

// User status
type Status uint8

const (
	StatusPending  Status = iota + 1 // Pending status, not yet activated
	StatusActive                     // Active status
	StatusInactive                   // Inactive status
)

// ReviewRole 审批角色，决定用户可以处理哪些审批环节
type ReviewRole string

const (
	ReviewRoleContentReviewer ReviewRole = "content_reviewer" // 内容审核
	ReviewRoleLegalReviewer   ReviewRole = "legal_reviewer"   // 法务审核
	ReviewRoleManager         ReviewRole = "manager"          // 经理审批
	ReviewRoleExecutive       ReviewRole = "executive"        // 高管审批
	ReviewRoleCMO             ReviewRole = "cmo"              // 首席营销官，通常持有越级审批能力
)

// Valid returns true if the role is one of the defined review roles.
func (r ReviewRole) Valid() bool {
	switch r {
	case ReviewRoleContentReviewer, ReviewRoleLegalReviewer, ReviewRoleManager, ReviewRoleExecutive, ReviewRoleCMO:
		return true
	default:
		return false
	}
}

// RequestStatus 审批单整体状态
type RequestStatus string

const (
	RequestStatusPending          RequestStatus = "Pending"          // 已创建，尚未进入审批
	RequestStatusInProgress       RequestStatus = "InProgress"       // 审批中
	RequestStatusApproved         RequestStatus = "Approved"         // 已批准
	RequestStatusRejected         RequestStatus = "Rejected"         // 已拒绝
	RequestStatusChangesRequested RequestStatus = "ChangesRequested" // 已退回修改，等待重新提交
	RequestStatusCanceled         RequestStatus = "Canceled"         // 已取消
)

// Terminal returns true if no further action may be taken on the request.
// ChangesRequested is not terminal: the creator may resubmit.
func (s RequestStatus) Terminal() bool {
	switch s {
	case RequestStatusApproved, RequestStatusRejected, RequestStatusCanceled:
		return true
	default:
		return false
	}
}

// StageStatus 审批环节状态
type StageStatus string

const (
	StageStatusPending          StageStatus = "Pending"          // 等待前序环节完成
	StageStatusInProgress       StageStatus = "InProgress"       // 当前环节，等待处理
	StageStatusApproved         StageStatus = "Approved"         // 已通过
	StageStatusRejected         StageStatus = "Rejected"         // 已拒绝
	StageStatusChangesRequested StageStatus = "ChangesRequested" // 已要求修改
	StageStatusSkipped          StageStatus = "Skipped"          // 已跳过（仅限非必需环节）
)

// Done returns true if the stage counts towards approval progress.
func (s StageStatus) Done() bool {
	return s == StageStatusApproved || s == StageStatusSkipped
}

// Action 审批动作，闭合枚举，所有状态迁移都由它驱动
type Action uint8

const (
	ActionSubmit Action = iota + 1 // 创建审批单（系统记录，无需评论）
	ActionApprove
	ActionReject
	ActionRequestChanges
	ActionSkip
	ActionResubmit // 退回修改后重新提交（系统记录，无需评论）
	ActionCancel
)

var actionNames = map[Action]string{
	ActionSubmit:         "submit",
	ActionApprove:        "approve",
	ActionReject:         "reject",
	ActionRequestChanges: "request_changes",
	ActionSkip:           "skip",
	ActionResubmit:       "resubmit",
	ActionCancel:         "cancel",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Valid returns true if the action is one of the defined constants.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// NeedsComment returns true if the action must carry a non-empty comment.
// Review decisions always need a rationale; lifecycle bookkeeping does not.
func (a Action) NeedsComment() bool {
	switch a {
	case ActionApprove, ActionReject, ActionRequestChanges, ActionSkip, ActionCancel:
		return true
	default:
		return false
	}
}

// ParseStageAction parses an action string received at the API boundary.
// Only stage-level review actions are accepted here; submit/resubmit/cancel
// have dedicated endpoints.
func ParseStageAction(s string) (Action, error) {
	switch s {
	case "approve":
		return ActionApprove, nil
	case "reject":
		return ActionReject, nil
	case "request_changes":
		return ActionRequestChanges, nil
	case "skip":
		return ActionSkip, nil
	default:
		return 0, fmt.Errorf("unknown action %q", s)
	}
}
