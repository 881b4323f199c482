package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/pkg/metrics"
)

// Feed names, used as the last destination segment and as metric labels.
const (
	FeedNotifications = "notifications"
	FeedReservations  = "reservations"
)

// Payload types.
const (
	TypeNotification      = "NOTIFICATION"
	TypeReservationUpdate = "RESERVATION_UPDATE"
)

type publisher interface {
	Publish(ctx context.Context, destination string, payload []byte) error
}

// Payload is the realtime wire message. Clients dedup on eventId.
type Payload struct {
	NotificationID    string            `json:"notificationId,omitempty"`
	EventID           string            `json:"eventId,omitempty"`
	Title             string            `json:"title,omitempty"`
	Body              string            `json:"body,omitempty"`
	RecipientID       string            `json:"recipientId"`
	RecipientCategory domain.Category   `json:"recipientCategory"`
	Timestamp         int64             `json:"timestamp"`
	Properties        map[string]string `json:"properties,omitempty"`
	Type              string            `json:"type"`
}

// ReservationUpdate is a status change pushed to a recipient's reservation
// feed. It is never persisted.
type ReservationUpdate struct {
	RecipientID   string            `json:"recipient_id" validate:"required"`
	Category      domain.Category   `json:"category" validate:"required,category"`
	ReservationID string            `json:"reservation_id" validate:"required"`
	Status        string            `json:"status" validate:"required"`
	Title         string            `json:"title"`
	Body          string            `json:"body"`
	Properties    map[string]string `json:"properties"`
}

// Dispatcher publishes realtime notifications exactly once, synchronously and
// without retry. A failed publish is logged, counted and reported as false.
type Dispatcher struct {
	pub     publisher
	metrics *metrics.Metrics
	log     *zap.Logger
	now     func() time.Time
}

func NewDispatcher(pub publisher, m *metrics.Metrics, log *zap.Logger) *Dispatcher {
	return &Dispatcher{pub: pub, metrics: m, log: log, now: time.Now}
}

// Destination is the personal topic of a recipient for a feed.
func Destination(category domain.Category, recipientID, feed string) string {
	return fmt.Sprintf("%s/%s/%s", category, recipientID, feed)
}

// NotificationDestination honours a "destination" property verbatim and falls
// back to the recipient's personal notifications topic.
func NotificationDestination(n *domain.Notification) string {
	if d := n.Property(domain.PropDestination); d != "" {
		return d
	}
	return Destination(n.Category, n.RecipientID, FeedNotifications)
}

// Dispatch publishes a stored realtime row.
func (d *Dispatcher) Dispatch(ctx context.Context, n *domain.Notification) bool {
	return d.publish(ctx, FeedNotifications, NotificationDestination(n), Payload{
		NotificationID:    n.NotificationID,
		EventID:           n.EventID,
		Title:             n.Title,
		Body:              n.Body,
		RecipientID:       n.RecipientID,
		RecipientCategory: n.Category,
		Timestamp:         d.now().UnixMilli(),
		Properties:        n.Properties,
		Type:              TypeNotification,
	})
}

// DispatchReservationUpdate publishes u to the recipient's reservation feed.
func (d *Dispatcher) DispatchReservationUpdate(ctx context.Context, u ReservationUpdate) bool {
	props := make(map[string]string, len(u.Properties)+2)
	for k, v := range u.Properties {
		props[k] = v
	}
	props["reservationId"] = u.ReservationID
	props["status"] = u.Status
	return d.publish(ctx, FeedReservations, Destination(u.Category, u.RecipientID, FeedReservations), Payload{
		Title:             u.Title,
		Body:              u.Body,
		RecipientID:       u.RecipientID,
		RecipientCategory: u.Category,
		Timestamp:         d.now().UnixMilli(),
		Properties:        props,
		Type:              TypeReservationUpdate,
	})
}

func (d *Dispatcher) publish(ctx context.Context, feed, destination string, p Payload) bool {
	body, err := json.Marshal(p)
	if err == nil {
		err = d.pub.Publish(ctx, destination, body)
	}
	if err != nil {
		d.metrics.RealtimeDropped.WithLabelValues(feed).Inc()
		d.log.Warn("realtime send dropped",
			zap.String("destination", destination),
			zap.String("notification_id", p.NotificationID),
			zap.String("event_id", p.EventID),
			zap.Error(err))
		return false
	}
	return true
}
