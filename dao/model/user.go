package model

import (
	"gorm.io/gorm"
)

// User is the basic entity of the system
type User struct {
	gorm.Model
	Name     string  `gorm:"uniqueIndex;type:varchar(32);not null;comment:用户名"`
	Nickname *string `gorm:"type:varchar(32);comment:昵称"`
	Password *string `gorm:"type:varchar(128);comment:密码"`
	Email    *string `gorm:"type:varchar(128);comment:邮箱，用于审批提醒"`
	Role     Role    `gorm:"type:smallint;not null;default:2;comment:平台角色 (guest, user, admin)"`
	Status   Status  `gorm:"type:smallint;not null;default:2;comment:用户状态 (pending, active, inactive)"`

	// ReviewRole decides which approval stages the user may act on.
	// CanOverride models escalation authority explicitly instead of a
	// hardcoded role-name comparison: an override user may act on any
	// stage, and the action is still recorded against the real stage.
	ReviewRole  ReviewRole `gorm:"type:varchar(32);index;comment:审批角色"`
	CanOverride bool       `gorm:"not null;default:false;comment:是否持有越级审批能力"`
}

// UserInfo is the minimal user payload embedded in responses.
type UserInfo struct {
	ID       uint       `json:"id"`
	Username string     `json:"username"`
	Nickname string     `json:"nickname"`
	Role     ReviewRole `json:"reviewRole,omitempty"`
}

// Info converts a User into its response payload.
func (u *User) Info() UserInfo {
	info := UserInfo{
		ID:       u.ID,
		Username: u.Name,
		Role:     u.ReviewRole,
	}
	if u.Nickname != nil {
		info.Nickname = *u.Nickname
	}
	return info
}
