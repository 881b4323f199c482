package channel

import (
	"context"
	"errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/config"
)

var errSendFailed = errors.New("send failed")

type breakerChannel struct {
	Channel
	cb  *gobreaker.CircuitBreaker
	log *zap.Logger
}

// WithBreaker trips after cfg.MaxFailures consecutive failed sends. While
// open, the channel reports itself disabled and Send returns false without
// calling the provider.
func WithBreaker(ch Channel, cfg config.Breaker, log *zap.Logger) Channel {
	name := string(ch.Kind())
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info("circuit breaker state", zap.String("channel", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	}
	return &breakerChannel{Channel: ch, cb: gobreaker.NewCircuitBreaker(st), log: log}
}

func (b *breakerChannel) IsEnabled() bool {
	return b.Channel.IsEnabled() && b.cb.State() != gobreaker.StateOpen
}

func (b *breakerChannel) Send(ctx context.Context, msg Message) bool {
	_, err := b.cb.Execute(func() (interface{}, error) {
		if b.Channel.Send(ctx, msg) {
			return nil, nil
		}
		return nil, errSendFailed
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.log.Debug("circuit open, send skipped",
			zap.String("channel", string(b.Kind())),
			zap.String("notification_id", msg.NotificationID))
	}
	return err == nil
}
