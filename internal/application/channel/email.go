package channel

import (
	"context"

	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/domain"
)

type mailer interface {
	SendEmail(to, subject, body string) error
}

// Email delivers to the address in the "email" property.
type Email struct {
	mailer  mailer
	enabled bool
	log     *zap.Logger
}

func NewEmail(m mailer, enabled bool, log *zap.Logger) *Email {
	return &Email{mailer: m, enabled: enabled, log: log}
}

func (e *Email) Kind() domain.Channel { return domain.ChannelEmail }

func (e *Email) IsEnabled() bool { return e.enabled && e.mailer != nil }

func (e *Email) Send(_ context.Context, msg Message) bool {
	to := msg.prop(PropEmail)
	if to == "" {
		e.log.Warn("email notification has no address",
			zap.String("notification_id", msg.NotificationID),
			zap.String("recipient_id", msg.RecipientID))
		return false
	}
	if err := e.mailer.SendEmail(to, msg.Title, msg.Body); err != nil {
		e.log.Warn("email send failed",
			zap.String("notification_id", msg.NotificationID),
			zap.Error(err))
		return false
	}
	return true
}
