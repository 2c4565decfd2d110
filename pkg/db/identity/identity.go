// Package identity resolves review roles to concrete users. It fronts the
// user table; a real deployment could swap in an external identity
// provider behind the same workflow.Assigner interface.
package identity

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/workflow"
)

type assigner struct {
	db *gorm.DB
}

func NewAssigner(db *gorm.DB) workflow.Assigner {
	return &assigner{db: db}
}

// AssigneeForRole returns the active user holding the role. Picking the
// lowest id keeps assignment deterministic when several users share a role.
func (a *assigner) AssigneeForRole(ctx context.Context, role model.ReviewRole) (*model.User, error) {
	var user model.User
	err := a.db.WithContext(ctx).
		Where("review_role = ?", role).
		Where("status = ?", model.StatusActive).
		Order("id ASC").
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &workflow.NotFoundError{Resource: "assignee for role " + string(role), ID: 0}
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
