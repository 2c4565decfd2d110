package notify

import (
	"context"
	"fmt"

	imrocreq "github.com/imroc/req/v3"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/config"
)

// webhookNotifier 将审批动态推送到外部仪表盘的 Webhook 地址
type webhookNotifier struct {
	client *imrocreq.Client
	url    string
}

type webhookMessage struct {
	Msgtype string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

func newWebhookNotifier() notifyHandlerInterface {
	webhookConfig := config.GetConfig().Webhook
	client := imrocreq.C()
	if webhookConfig.Token != "" {
		client.SetCommonBearerAuthToken(webhookConfig.Token)
	}
	return &webhookNotifier{
		client: client,
		url:    webhookConfig.URL,
	}
}

func (w *webhookNotifier) SendMessageTo(ctx context.Context, _ *model.User, _, body string) error {
	msg := webhookMessage{Msgtype: "text"}
	msg.Text.Content = body

	resp, err := w.client.R().
		SetContext(ctx).
		SetBodyJsonMarshal(msg).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	if resp.IsErrorState() {
		return fmt.Errorf("webhook returned status %s", resp.Status)
	}
	return nil
}
