package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/config"
	"github.com/go-notify-nosql/internal/domain"
)

// Handler processes one producer event.
type Handler interface {
	HandleEvent(ctx context.Context, raw []byte) error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// maxBackoff caps the wait between retries of a failing event.
const maxBackoff = 30 * time.Second

// Consumer feeds producer events from a Kafka topic into the notification
// service. Messages are handled in partition order and committed only once
// handled or rejected as invalid. A transient failure is retried in place, so
// the offset never moves past an event that was not stored. Replays after a
// crash are absorbed by event id dedup.
type Consumer struct {
	reader  reader
	handler Handler
	log     *zap.Logger
	backoff time.Duration
}

func NewConsumer(cfg config.Kafka, handler Handler, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return &Consumer{reader: r, handler: handler, log: log, backoff: time.Second}
}

// Start blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.backoff):
			}
			continue
		}

		if err := c.handle(ctx, m); err != nil {
			return err
		}
		if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			c.log.Warn("kafka commit failed", zap.Int64("offset", m.Offset), zap.Error(err))
		}
	}
}

// handle retries m until it is stored or found invalid. It only returns an
// error when ctx is done, and then m must not be committed.
func (c *Consumer) handle(ctx context.Context, m kafka.Message) error {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := c.handler.HandleEvent(ctx, m.Value)
		if err == nil {
			return nil
		}
		fields := []zap.Field{
			zap.String("topic", m.Topic),
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
			zap.Error(err),
		}
		if errors.Is(err, domain.ErrValidation) {
			c.log.Warn("dropping invalid event", fields...)
			return nil
		}
		c.log.Error("event handling failed, retrying", append(fields, zap.Int("attempt", attempt), zap.Duration("backoff", wait))...)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait = min(wait*2, maxBackoff)
	}
}

func (c *Consumer) Close() error { return c.reader.Close() }
