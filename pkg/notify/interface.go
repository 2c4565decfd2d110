// Package notify delivers approval reminders and decisions to the people
// who need to act on them. It subscribes to the engine's event fanout and
// never sits on the request path: a failed delivery is logged, not retried
// into the state machine.
package notify

import (
	"context"

	"github.com/aimd-lab/director/dao/model"
)

// notifyHandlerInterface 是具体的通知组件对外部提供的接口，
// SMTP 邮件通知和 Webhook 通知都应该实现这个接口
type notifyHandlerInterface interface {
	SendMessageTo(ctx context.Context, receiver *model.User, subject, body string) error
}
