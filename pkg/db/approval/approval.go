// Package approval is the GORM-backed workflow.Store. All mutating calls
// run in a single transaction so the engine's invariants survive crashes:
// stage statuses, the request row, the audit comment and the event row
// commit together or not at all.
package approval

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/workflow"
)

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) workflow.Store {
	return &store{db: db}
}

func (s *store) TemplateByID(ctx context.Context, id uint) (*model.WorkflowTemplate, error) {
	var tmpl model.WorkflowTemplate
	err := s.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB {
			return db.Order("stage_order ASC")
		}).
		First(&tmpl, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &workflow.NotFoundError{Resource: "workflow template", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &tmpl, nil
}

func (s *store) CreateRequest(ctx context.Context, req *model.ApprovalRequest, event *model.ApprovalEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Omit Template so the association create does not try to upsert
		// the shared, read-only template row.
		if err := tx.Omit("Template", "Creator").Create(req).Error; err != nil {
			return err
		}

		req.CurrentStageID = &req.Stages[0].ID
		if err := tx.Model(req).Update("current_stage_id", req.CurrentStageID).Error; err != nil {
			return err
		}

		// Referenced templates are immutable from now on.
		if err := tx.Model(&model.WorkflowTemplate{}).
			Where("id = ?", req.TemplateID).
			Update("locked", true).Error; err != nil {
			return err
		}

		event.RequestID = req.ID
		return tx.Omit("Actor").Create(event).Error
	})
}

func (s *store) RequestByID(ctx context.Context, id uint) (*model.ApprovalRequest, error) {
	var req model.ApprovalRequest
	err := s.db.WithContext(ctx).
		Preload("Stages", func(db *gorm.DB) *gorm.DB {
			return db.Order("stage_order ASC")
		}).
		Preload("Stages.AssignedTo").
		Preload("Stages.CompletedBy").
		Preload("Comments", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at ASC, id ASC")
		}).
		Preload("Comments.Author").
		Preload("Creator").
		First(&req, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &workflow.NotFoundError{Resource: "approval request", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *store) SaveRequest(ctx context.Context, req *model.ApprovalRequest, comment *model.Comment, event *model.ApprovalEvent) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(req).
			Select("status", "current_stage_id").
			Updates(map[string]any{
				"status":           req.Status,
				"current_stage_id": req.CurrentStageID,
			}).Error; err != nil {
			return err
		}

		for i := range req.Stages {
			st := &req.Stages[i]
			if err := tx.Model(st).
				Select("status", "assigned_to_id", "completed_by_id", "completed_at").
				Updates(map[string]any{
					"status":          st.Status,
					"assigned_to_id":  st.AssignedToID,
					"completed_by_id": st.CompletedByID,
					"completed_at":    st.CompletedAt,
				}).Error; err != nil {
				return err
			}
		}

		if comment != nil {
			comment.RequestID = req.ID
			if err := tx.Omit("Author").Create(comment).Error; err != nil {
				return err
			}
		}
		if event != nil {
			event.RequestID = req.ID
			if err := tx.Omit("Actor").Create(event).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *store) ListRequests(ctx context.Context, f workflow.Filter) ([]*model.ApprovalRequest, error) {
	q := s.db.WithContext(ctx).Model(&model.ApprovalRequest{}).
		Preload("Stages", func(db *gorm.DB) *gorm.DB {
			return db.Order("stage_order ASC")
		}).
		Preload("Creator")

	switch f.Kind {
	case workflow.FilterPendingFor:
		q = q.Where("status = ?", model.RequestStatusInProgress).
			Where("current_stage_id IN (?)",
				s.db.Model(&model.Stage{}).Select("id").Where("assigned_to_id = ?", f.ActorID))
	case workflow.FilterSubmittedBy:
		q = q.Where("creator_id = ?", f.ActorID)
	}

	var out []*model.ApprovalRequest
	err := q.Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

func (s *store) EventsByRequest(ctx context.Context, requestID uint) ([]*model.ApprovalEvent, error) {
	var out []*model.ApprovalEvent
	err := s.db.WithContext(ctx).
		Where("request_id = ?", requestID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
