package channel

import (
	"context"

	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/infrastructure/fcm"
)

type pushSender interface {
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) (fcm.Result, error)
}

type deviceStore interface {
	ListByRecipient(ctx context.Context, recipientID string) ([]domain.Device, error)
	Disable(ctx context.Context, deviceID string) error
}

// Push delivers to an explicit "push_token" property or, without one, to
// every enabled device registered for the recipient.
type Push struct {
	sender  pushSender
	devices deviceStore
	enabled bool
	log     *zap.Logger
}

func NewPush(s pushSender, devices deviceStore, enabled bool, log *zap.Logger) *Push {
	return &Push{sender: s, devices: devices, enabled: enabled, log: log}
}

func (p *Push) Kind() domain.Channel { return domain.ChannelPush }

func (p *Push) IsEnabled() bool { return p.enabled && p.sender != nil }

func (p *Push) Send(ctx context.Context, msg Message) bool {
	tokens, byToken, err := p.tokens(ctx, msg)
	if err != nil {
		p.log.Warn("push device lookup failed",
			zap.String("recipient_id", msg.RecipientID), zap.Error(err))
		return false
	}
	if len(tokens) == 0 {
		p.log.Warn("push notification has no device",
			zap.String("notification_id", msg.NotificationID),
			zap.String("recipient_id", msg.RecipientID))
		return false
	}

	data := map[string]string{
		"notificationId": msg.NotificationID,
		"eventId":        msg.EventID,
	}
	res, err := p.sender.Send(ctx, tokens, msg.Title, msg.Body, data)
	if err != nil {
		p.log.Warn("push send failed",
			zap.String("notification_id", msg.NotificationID), zap.Error(err))
		return false
	}
	for _, tok := range res.Unregistered {
		if id, ok := byToken[tok]; ok {
			if err := p.devices.Disable(ctx, id); err != nil {
				p.log.Warn("disable device failed", zap.String("device_id", id), zap.Error(err))
			}
		}
	}
	return res.Sent > 0
}

func (p *Push) tokens(ctx context.Context, msg Message) ([]string, map[string]string, error) {
	if tok := msg.prop(PropPushToken); tok != "" {
		return []string{tok}, nil, nil
	}
	if p.devices == nil {
		return nil, nil, nil
	}
	devices, err := p.devices.ListByRecipient(ctx, msg.RecipientID)
	if err != nil {
		return nil, nil, err
	}
	tokens := make([]string, 0, len(devices))
	byToken := make(map[string]string, len(devices))
	for _, d := range devices {
		if d.Token == "" || !d.Enable {
			continue
		}
		if _, dup := byToken[d.Token]; dup {
			continue
		}
		byToken[d.Token] = d.DeviceID
		tokens = append(tokens, d.Token)
	}
	return tokens, byToken, nil
}
