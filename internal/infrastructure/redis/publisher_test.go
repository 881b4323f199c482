package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-notify-nosql/internal/config"
)

func TestPublisher_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p := NewPublisher(client, "notify:")
	sub := client.Subscribe(ctx, p.Channel("restaurant-staff/u1/notifications"))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, p.Publish(ctx, "restaurant-staff/u1/notifications", []byte(`{"eventId":"e1"}`)))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, "notify:restaurant-staff/u1/notifications", msg.Channel)
	assert.JSONEq(t, `{"eventId":"e1"}`, msg.Payload)
}

func TestPublisher_PublishFailsWhenServerGone(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	err := NewPublisher(client, "notify:").Publish(context.Background(), "admin/a1/notifications", []byte("{}"))
	assert.Error(t, err)
}

func TestNewClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), config.Redis{Addr: mr.Addr()})
	require.NoError(t, err)
	client.Close()
}
