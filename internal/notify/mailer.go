// Package notify доставляет уведомления: письма пользователям
// и оповещения администраторам в Telegram.
package notify

import (
	"context"

	log "github.com/sirupsen/logrus"
)

// LogMailer пишет письма в лог вместо отправки.
// SMTP-доставка делается внешним сервисом, в разработке ссылку берут из лога.
type LogMailer struct{}

// SendVerification логирует ссылку подтверждения email.
func (LogMailer) SendVerification(_ context.Context, to, link string) error {
	log.WithFields(log.Fields{
		"to":   to,
		"link": link,
		"kind": "verification",
	}).Info("Письмо подтверждения")
	return nil
}

// SendPasswordReset логирует ссылку сброса пароля.
func (LogMailer) SendPasswordReset(_ context.Context, to, link string) error {
	log.WithFields(log.Fields{
		"to":   to,
		"link": link,
		"kind": "password_reset",
	}).Info("Письмо сброса пароля")
	return nil
}
