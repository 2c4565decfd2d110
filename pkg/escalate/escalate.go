// Package escalate runs a scheduled sweep over in-progress approval
// stages: assignees of stages waiting too long get a reminder, and
// optional stages stuck past a second cutoff are skipped on behalf of an
// override account. Skips go through the ordinary engine API, so the
// audit trail records them like any other action.
package escalate

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/config"
	"github.com/aimd-lab/director/pkg/metrics"
	"github.com/aimd-lab/director/pkg/notify"
	"github.com/aimd-lab/director/pkg/workflow"
)

type Manager struct {
	db       *gorm.DB
	engine   *workflow.Engine
	notifier *notify.Notifier
	cron     *cron.Cron

	remindAfter   time.Duration
	autoSkipAfter time.Duration // 0 disables auto-skip
}

func NewManager(db *gorm.DB, engine *workflow.Engine, notifier *notify.Notifier) *Manager {
	conf := config.GetConfig().Escalation
	return &Manager{
		db:            db,
		engine:        engine,
		notifier:      notifier,
		cron:          cron.New(),
		remindAfter:   time.Duration(conf.RemindAfterHours) * time.Hour,
		autoSkipAfter: time.Duration(conf.AutoSkipAfterHours) * time.Hour,
	}
}

// Start schedules the sweep and runs it until ctx is canceled.
func (m *Manager) Start(ctx context.Context) error {
	conf := config.GetConfig().Escalation
	if !conf.Enable {
		klog.Info("escalation is disabled")
		return nil
	}

	if _, err := m.cron.AddFunc(conf.Spec, func() {
		if err := m.sweep(ctx); err != nil {
			klog.Errorf("escalation sweep: %v", err)
		}
	}); err != nil {
		return err
	}
	m.cron.Start()

	go func() {
		<-ctx.Done()
		m.cron.Stop()
	}()
	return nil
}

// sweep finds stages that entered InProgress before the reminder cutoff
// and nags their assignees. Optional stages past the auto-skip cutoff are
// skipped instead.
func (m *Manager) sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-m.remindAfter)

	var stages []*model.Stage
	if err := m.db.WithContext(ctx).
		Preload("AssignedTo").
		Where("status = ? AND updated_at < ?", model.StageStatusInProgress, cutoff).
		Find(&stages).Error; err != nil {
		return err
	}

	for _, stage := range stages {
		var req model.ApprovalRequest
		if err := m.db.WithContext(ctx).First(&req, stage.RequestID).Error; err != nil {
			klog.Errorf("escalation: load request %d: %v", stage.RequestID, err)
			continue
		}
		if req.Status != model.RequestStatusInProgress {
			continue
		}

		if m.shouldAutoSkip(stage) {
			if err := m.autoSkip(ctx, &req, stage); err != nil {
				klog.Errorf("escalation: auto-skip stage %d: %v", stage.ID, err)
			}
			continue
		}

		if err := m.notifier.RemindStage(ctx, &req, stage); err != nil {
			klog.Errorf("escalation: remind stage %d: %v", stage.ID, err)
			continue
		}
		metrics.EscalationReminders.Inc()
		klog.Infof("escalation reminder sent for request %d stage %q", req.ID, stage.Name)
	}
	return nil
}

func (m *Manager) shouldAutoSkip(stage *model.Stage) bool {
	if m.autoSkipAfter <= 0 || stage.Required {
		return false
	}
	return stage.UpdatedAt.Before(time.Now().Add(-m.autoSkipAfter))
}

func (m *Manager) autoSkip(ctx context.Context, req *model.ApprovalRequest, stage *model.Stage) error {
	actor, err := m.overrideActor(ctx)
	if err != nil {
		return err
	}
	_, err = m.engine.SubmitAction(ctx, req.ID, stage.ID, model.ActionSkip, actor,
		"skipped automatically after escalation timeout")
	if err != nil {
		return err
	}
	metrics.StageActions.WithLabelValues(model.ActionSkip.String(), "ok").Inc()
	klog.Infof("escalation auto-skipped optional stage %q of request %d", stage.Name, req.ID)
	return nil
}

// overrideActor picks the first active account with escalation authority.
func (m *Manager) overrideActor(ctx context.Context) (*model.User, error) {
	var user model.User
	err := m.db.WithContext(ctx).
		Where("can_override = ? AND status = ?", true, model.StatusActive).
		Order("id ASC").
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}
