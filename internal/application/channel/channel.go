package channel

import (
	"context"

	"github.com/go-notify-nosql/internal/domain"
)

// Property keys read by the polled channels.
const (
	PropEmail     = "email"
	PropPhone     = "phone"
	PropPushToken = "push_token"
)

// Message is what a channel needs to deliver one notification row.
type Message struct {
	NotificationID string
	EventID        string
	Title          string
	Body           string
	RecipientID    string
	Category       domain.Category
	Properties     map[string]string
}

// FromNotification builds the delivery message for a stored row.
func FromNotification(n *domain.Notification) Message {
	return Message{
		NotificationID: n.NotificationID,
		EventID:        n.EventID,
		Title:          n.Title,
		Body:           n.Body,
		RecipientID:    n.RecipientID,
		Category:       n.Category,
		Properties:     n.Properties,
	}
}

func (m Message) prop(key string) string {
	if m.Properties == nil {
		return ""
	}
	return m.Properties[key]
}

// Channel is a delivery medium. Send reports success as a bool: false means
// the row stays PENDING and is retried on a later cycle. Implementations log
// their own failures and must be safe for concurrent use.
type Channel interface {
	Kind() domain.Channel
	IsEnabled() bool
	Send(ctx context.Context, msg Message) bool
}

// Registry resolves the implementation for a channel kind.
type Registry struct {
	channels map[domain.Channel]Channel
}

func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[domain.Channel]Channel, len(channels))}
	for _, ch := range channels {
		if ch != nil {
			r.channels[ch.Kind()] = ch
		}
	}
	return r
}

// Get returns the channel for kind, or false when none is registered.
func (r *Registry) Get(kind domain.Channel) (Channel, bool) {
	ch, ok := r.channels[kind]
	return ch, ok
}
