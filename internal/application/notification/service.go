package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/application/realtime"
	"github.com/go-notify-nosql/internal/application/sharedread"
	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/pkg/id"
	"github.com/go-notify-nosql/internal/pkg/metrics"
	"github.com/go-notify-nosql/internal/pkg/validate"
)

// DefaultUnreadLimit caps ListUnread.
const DefaultUnreadLimit = 100

// Property keys copied from a recipient onto its rows.
const (
	propEmail     = "email"
	propPhone     = "phone"
	propPushToken = "push_token"
	propEventType = "event_type"
)

// Recipient is one addressee of a published event, with the contact details
// the polled channels need.
type Recipient struct {
	ID        string `json:"id" validate:"required"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,e164"`
	PushToken string `json:"push_token,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	HubID     string `json:"hub_id,omitempty"`
}

// PublishRequest is one logical event addressed to many recipients.
type PublishRequest struct {
	EventID    string            `json:"event_id" validate:"omitempty,max=128,nohash"`
	EventType  string            `json:"event_type"`
	Category   domain.Category   `json:"category" validate:"required,category"`
	Channels   []domain.Channel  `json:"channels" validate:"required,min=1,dive,channel"`
	Recipients []Recipient       `json:"recipients" validate:"required,min=1,dive"`
	Title      string            `json:"title" validate:"required"`
	Body       string            `json:"body"`
	Priority   int               `json:"priority" validate:"min=0,max=99"`
	SharedRead bool              `json:"shared_read"`
	Properties map[string]string `json:"properties"`
}

// PublishResult reports what a publish did per row.
type PublishResult struct {
	EventID         string   `json:"event_id"`
	Created         int      `json:"created"`
	Skipped         int      `json:"skipped"`
	Dispatched      int      `json:"dispatched"`
	Dropped         int      `json:"dropped"`
	NotificationIDs []string `json:"notification_ids"`
}

type Service interface {
	// Publish disaggregates req into one row per recipient and channel.
	// Rows whose event id already exists are skipped, so replays are safe.
	Publish(ctx context.Context, req PublishRequest) (*PublishResult, error)
	PublishReservationUpdate(ctx context.Context, u realtime.ReservationUpdate) (bool, error)
	ListUnread(ctx context.Context, category domain.Category, recipientID string) ([]domain.Notification, error)
	MarkAsRead(ctx context.Context, category string, p sharedread.Params) (int, error)
	MarkMultipleAsRead(ctx context.Context, category string, list []sharedread.Params) (int, error)
	// HandleEvent decodes a producer message and publishes it.
	HandleEvent(ctx context.Context, raw []byte) error
}

type notificationStore interface {
	Insert(ctx context.Context, n *domain.Notification) error
	ListUnread(ctx context.Context, category domain.Category, recipientID string, limit int) ([]domain.Notification, error)
}

type dispatcher interface {
	Dispatch(ctx context.Context, n *domain.Notification) bool
	DispatchReservationUpdate(ctx context.Context, u realtime.ReservationUpdate) bool
}

type strategies interface {
	Get(name string) sharedread.Strategy
}

type service struct {
	store      notificationStore
	dispatcher dispatcher
	strategies strategies
	metrics    *metrics.Metrics
	log        *zap.Logger
	now        func() time.Time
}

func NewService(store notificationStore, d dispatcher, f strategies, m *metrics.Metrics, log *zap.Logger) Service {
	return &service{
		store:      store,
		dispatcher: d,
		strategies: f,
		metrics:    m,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *service) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	base := req.EventID
	if base == "" {
		base = id.EventBase()
	}
	res := &PublishResult{EventID: base, NotificationIDs: []string{}}
	now := s.now()

	for _, r := range req.Recipients {
		for _, ch := range uniqueChannels(req.Channels) {
			n := s.row(req, r, base, ch, now)
			err := s.store.Insert(ctx, n)
			if errors.Is(err, domain.ErrConflict) {
				res.Skipped++
				s.metrics.Skipped.Inc()
				s.log.Debug("duplicate event skipped", zap.String("event_id", n.EventID))
				continue
			}
			if err != nil {
				return res, fmt.Errorf("insert notification for %s: %w", r.ID, err)
			}
			res.Created++
			res.NotificationIDs = append(res.NotificationIDs, n.NotificationID)

			if ch == domain.ChannelRealtime {
				if s.dispatcher.Dispatch(ctx, n) {
					res.Dispatched++
				} else {
					res.Dropped++
				}
			}
		}
	}

	s.log.Info("event published",
		zap.String("event_id", base),
		zap.String("category", string(req.Category)),
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Int("dropped", res.Dropped))
	return res, nil
}

func (s *service) row(req PublishRequest, r Recipient, base string, ch domain.Channel, now time.Time) *domain.Notification {
	props := make(map[string]string, len(req.Properties)+4)
	for k, v := range req.Properties {
		props[k] = v
	}
	setIf(props, propEmail, r.Email)
	setIf(props, propPhone, r.Phone)
	setIf(props, propPushToken, r.PushToken)
	setIf(props, propEventType, req.EventType)

	n := &domain.Notification{
		NotificationID: id.New(),
		EventID:        domain.RecipientEventID(base, r.ID, ch),
		RecipientID:    r.ID,
		Category:       req.Category,
		Channel:        ch,
		Title:          req.Title,
		Body:           req.Body,
		Properties:     props,
		Priority:       req.Priority,
		ReadStatus:     domain.ReadUnread,
		SharedRead:     req.SharedRead,
		GroupID:        r.GroupID,
		HubID:          r.HubID,
		CreatedAt:      now,
	}
	if ch.Polled() {
		n.DeliveryStatus = domain.DeliveryPending
	}
	return n
}

func setIf(m map[string]string, k, v string) {
	if v != "" {
		m[k] = v
	}
}

func uniqueChannels(in []domain.Channel) []domain.Channel {
	seen := make(map[domain.Channel]bool, len(in))
	out := make([]domain.Channel, 0, len(in))
	for _, ch := range in {
		if !seen[ch] {
			seen[ch] = true
			out = append(out, ch)
		}
	}
	return out
}

func (s *service) PublishReservationUpdate(ctx context.Context, u realtime.ReservationUpdate) (bool, error) {
	if err := validate.Struct(u); err != nil {
		return false, err
	}
	return s.dispatcher.DispatchReservationUpdate(ctx, u), nil
}

func (s *service) ListUnread(ctx context.Context, category domain.Category, recipientID string) ([]domain.Notification, error) {
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", category, domain.ErrValidation)
	}
	return s.store.ListUnread(ctx, category, recipientID, DefaultUnreadLimit)
}

func (s *service) MarkAsRead(ctx context.Context, category string, p sharedread.Params) (int, error) {
	return s.strategies.Get(category).MarkAsRead(ctx, p)
}

func (s *service) MarkMultipleAsRead(ctx context.Context, category string, list []sharedread.Params) (int, error) {
	return s.strategies.Get(category).MarkMultipleAsRead(ctx, list)
}

func (s *service) HandleEvent(ctx context.Context, raw []byte) error {
	var req PublishRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("decode event: %v: %w", err, domain.ErrValidation)
	}
	_, err := s.Publish(ctx, req)
	return err
}
