package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/go-notify-nosql/internal/config"
)

// NewClient connects to Redis and verifies the connection.
func NewClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Publisher fans realtime payloads out over Redis pub/sub. Socket gateways
// subscribe to {prefix}{destination} and forward to connected clients.
type Publisher struct {
	client *redis.Client
	prefix string
}

func NewPublisher(client *redis.Client, prefix string) *Publisher {
	return &Publisher{client: client, prefix: prefix}
}

// Channel returns the Redis channel a destination is published on.
func (p *Publisher) Channel(destination string) string { return p.prefix + destination }

// Publish sends payload to destination. It does not report whether anyone
// was subscribed.
func (p *Publisher) Publish(ctx context.Context, destination string, payload []byte) error {
	if err := p.client.Publish(ctx, p.Channel(destination), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", destination, err)
	}
	return nil
}
