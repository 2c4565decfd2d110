package notify

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/config"
	"github.com/aimd-lab/director/pkg/workflow"
)

// Notifier 审批通知组件，覆盖以下场景：
//  1. 新环节进入待处理，提醒被指派的审批人
//  2. 审批单进入终态（批准/拒绝/取消），提醒创建者
//  3. 审批单被退回修改，提醒创建者
//  4. 环节长时间无人处理的升级提醒（由 escalate 包触发）
type Notifier struct {
	db       *gorm.DB
	handlers []notifyHandlerInterface
}

func NewNotifier(db *gorm.DB) *Notifier {
	conf := config.GetConfig()
	n := &Notifier{db: db}
	if conf.SMTP.Enable {
		n.handlers = append(n.handlers, newSMTPNotifier())
	}
	if conf.Webhook.Enable {
		n.handlers = append(n.handlers, newWebhookNotifier())
	}
	return n
}

// Run consumes the event stream until ctx is canceled. It is meant to be
// started once alongside the HTTP server.
func (n *Notifier) Run(ctx context.Context, fanout *workflow.Fanout) {
	events, cancel := fanout.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := n.dispatch(ctx, evt); err != nil {
				klog.Errorf("notify: event %s: %v", evt.UID, err)
			}
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, evt *model.ApprovalEvent) error {
	var req model.ApprovalRequest
	if err := n.db.WithContext(ctx).
		Preload("Creator").
		Preload("Stages.AssignedTo").
		First(&req, evt.RequestID).Error; err != nil {
		return err
	}
	payload := evt.Payload.Data()

	switch evt.Kind {
	case model.EventApprovalCreated, model.EventApprovalAdvanced, model.EventApprovalResubmitted:
		cur := req.CurrentStage()
		if cur == nil || cur.AssignedTo == nil {
			return nil
		}
		subject := "待处理的审批环节"
		body := fmt.Sprintf("用户 %s 您好：内容 %q 的审批环节 %q 正在等待您处理。",
			cur.AssignedTo.Name, req.ContentTitle, cur.Name)
		return n.send(ctx, cur.AssignedTo, subject, body)

	case model.EventApprovalApproved:
		subject := "审批通过通知"
		body := fmt.Sprintf("用户 %s 您好：您提交的内容 %q 已通过全部审批环节。",
			req.Creator.Name, req.ContentTitle)
		return n.send(ctx, &req.Creator, subject, body)

	case model.EventApprovalRejected:
		subject := "审批拒绝通知"
		body := fmt.Sprintf("用户 %s 您好：您提交的内容 %q 在环节 %q 被拒绝。",
			req.Creator.Name, req.ContentTitle, payload.StageName)
		return n.send(ctx, &req.Creator, subject, body)

	case model.EventChangesRequested:
		subject := "审批退回通知"
		body := fmt.Sprintf("用户 %s 您好：您提交的内容 %q 在环节 %q 被退回修改，请修改后重新提交。",
			req.Creator.Name, req.ContentTitle, payload.StageName)
		return n.send(ctx, &req.Creator, subject, body)

	case model.EventApprovalCanceled:
		// Canceled by the creator themselves, nothing to announce.
		return nil
	}
	return nil
}

// RemindStage sends an escalation reminder for a stage that has been
// waiting too long. Called by the escalation cron job.
func (n *Notifier) RemindStage(ctx context.Context, req *model.ApprovalRequest, stage *model.Stage) error {
	if stage.AssignedTo == nil {
		return nil
	}
	subject := "审批超时提醒"
	body := fmt.Sprintf("用户 %s 您好：内容 %q 的审批环节 %q 已等待处理超时，请尽快处理。",
		stage.AssignedTo.Name, req.ContentTitle, stage.Name)
	return n.send(ctx, stage.AssignedTo, subject, body)
}

func (n *Notifier) send(ctx context.Context, receiver *model.User, subject, body string) error {
	for _, h := range n.handlers {
		if err := h.SendMessageTo(ctx, receiver, subject, body); err != nil {
			return err
		}
	}
	return nil
}
