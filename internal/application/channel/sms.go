package channel

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/domain"
)

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// SMS delivers to the number in the "phone" property.
type SMS struct {
	sender  smsSender
	enabled bool
	log     *zap.Logger
}

func NewSMS(s smsSender, enabled bool, log *zap.Logger) *SMS {
	return &SMS{sender: s, enabled: enabled, log: log}
}

func (s *SMS) Kind() domain.Channel { return domain.ChannelSMS }

func (s *SMS) IsEnabled() bool { return s.enabled && s.sender != nil }

func (s *SMS) Send(ctx context.Context, msg Message) bool {
	to := msg.prop(PropPhone)
	if to == "" {
		s.log.Warn("sms notification has no phone number",
			zap.String("notification_id", msg.NotificationID),
			zap.String("recipient_id", msg.RecipientID))
		return false
	}
	if err := s.sender.SendSMS(ctx, to, smsText(msg)); err != nil {
		s.log.Warn("sms send failed",
			zap.String("notification_id", msg.NotificationID),
			zap.Error(err))
		return false
	}
	return true
}

func smsText(msg Message) string {
	parts := make([]string, 0, 2)
	if t := strings.TrimSpace(msg.Title); t != "" {
		parts = append(parts, t)
	}
	if b := strings.TrimSpace(msg.Body); b != "" {
		parts = append(parts, b)
	}
	return strings.Join(parts, "\n")
}
