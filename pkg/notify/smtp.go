package notify

import (
	"context"

	gomail "gopkg.in/gomail.v2"

	"github.com/aimd-lab/director/dao/model"
	"github.com/aimd-lab/director/pkg/config"
	"github.com/aimd-lab/director/pkg/logutils"
)

type smtpNotifier struct {
	dialer *gomail.Dialer
	from   string
}

func newSMTPNotifier() notifyHandlerInterface {
	smtpConfig := config.GetConfig().SMTP
	return &smtpNotifier{
		dialer: gomail.NewDialer(smtpConfig.Host, smtpConfig.Port, smtpConfig.User, smtpConfig.Password),
		from:   smtpConfig.From,
	}
}

func (s *smtpNotifier) SendMessageTo(_ context.Context, receiver *model.User, subject, body string) error {
	if receiver.Email == nil {
		logutils.Log.Warnf("%s does not have an email address", receiver.Name)
		return nil
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", *receiver.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		logutils.Log.Errorf("Failed to send email to %s: %v", *receiver.Email, err)
		return err
	}
	logutils.Log.Infof("Sent email to %s", *receiver.Email)
	return nil
}
