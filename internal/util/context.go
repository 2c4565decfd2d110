package util

import (
	"github.com/gin-gonic/gin"

	"github.com/aimd-lab/director/dao/model"
)

const (
	UserIDKey   = "x-user-id"
	UsernameKey = "x-user-name"

	RoleKey        = "x-role"
	ReviewRoleKey  = "x-review-role"
	CanOverrideKey = "x-can-override"
)

func SetJWTContext(
	c *gin.Context,
	msg JWTMessage,
) {
	c.Set(UserIDKey, msg.UserID)
	c.Set(UsernameKey, msg.Username)

	c.Set(RoleKey, msg.Role)
	c.Set(ReviewRoleKey, msg.ReviewRole)
	c.Set(CanOverrideKey, msg.CanOverride)
}

func GetToken(ctx *gin.Context) JWTMessage {
	var msg JWTMessage
	msg.UserID = ctx.GetUint(UserIDKey)
	msg.Username = ctx.GetString(UsernameKey)
	msg.CanOverride = ctx.GetBool(CanOverrideKey)

	role, _ := ctx.Get(RoleKey)
	msg.Role, _ = role.(model.Role)

	reviewRole, _ := ctx.Get(ReviewRoleKey)
	msg.ReviewRole, _ = reviewRole.(model.ReviewRole)
	return msg
}

// ActorFromToken builds the engine's actor identity out of the verified
// JWT claims, avoiding an extra user lookup per action.
func ActorFromToken(msg JWTMessage) *model.User {
	user := model.User{
		Name:        msg.Username,
		Role:        msg.Role,
		ReviewRole:  msg.ReviewRole,
		CanOverride: msg.CanOverride,
	}
	user.ID = msg.UserID
	return &user
}
