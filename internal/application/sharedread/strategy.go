package sharedread

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/pkg/validate"
)

// Strategy marks notifications read for one recipient-category family.
type Strategy interface {
	// MarkAsRead returns how many rows moved to READ. Zero is a valid result.
	MarkAsRead(ctx context.Context, p Params) (int, error)
	// MarkMultipleAsRead applies MarkAsRead to each element in order. Elements
	// are independent: failures are joined and successes are kept.
	MarkMultipleAsRead(ctx context.Context, list []Params) (int, error)
	SupportedScopes() []domain.Scope
	Category() domain.Category
}

type readStore interface {
	Get(ctx context.Context, category domain.Category, notificationID string) (*domain.Notification, error)
	MarkRead(ctx context.Context, category domain.Category, notificationID, recipientID string, mark domain.ReadMark) (int, error)
	MarkReadByScope(ctx context.Context, category domain.Category, sel domain.ReadSelector, mark domain.ReadMark) (int, error)
}

type strategy struct {
	family   string
	category domain.Category
	scopes   []domain.Scope
	store    readStore
	log      *zap.Logger
}

// NewGroupStrategy serves families whose members share notifications through
// groups and hubs. Every scope is supported.
func NewGroupStrategy(family string, category domain.Category, store readStore, log *zap.Logger) Strategy {
	return &strategy{family: family, category: category, scopes: domain.AllScopes, store: store, log: log}
}

// NewIndividualStrategy serves families whose notifications are personal.
// Only NONE is supported.
func NewIndividualStrategy(family string, category domain.Category, store readStore, log *zap.Logger) Strategy {
	return &strategy{family: family, category: category, scopes: []domain.Scope{domain.ScopeNone}, store: store, log: log}
}

func (s *strategy) Category() domain.Category { return s.category }

func (s *strategy) SupportedScopes() []domain.Scope {
	out := make([]domain.Scope, len(s.scopes))
	copy(out, s.scopes)
	return out
}

func (s *strategy) supports(scope domain.Scope) bool {
	for _, sc := range s.scopes {
		if sc == scope {
			return true
		}
	}
	return false
}

func (s *strategy) MarkAsRead(ctx context.Context, p Params) (int, error) {
	scope, err := domain.ParseScope(string(p.Scope))
	if err != nil {
		return 0, err
	}
	p.Scope = scope
	if p.ReadByUserID == "" {
		p.ReadByUserID = p.RecipientID
	}
	if err := validate.Struct(p); err != nil {
		return 0, err
	}
	if !s.supports(scope) {
		return 0, fmt.Errorf("%s notifications do not support scope %s: %w", s.family, scope, domain.ErrUnsupportedScope)
	}

	mark := domain.ReadMark{ByUserID: p.ReadByUserID, At: p.ReadAt.UTC()}
	switch scope {
	case domain.ScopeNone:
		return s.store.MarkRead(ctx, s.category, p.NotificationID, p.RecipientID, mark)
	case domain.ScopeHubBroadcast:
		n, err := s.store.MarkReadByScope(ctx, s.category, domain.ReadSelector{Scope: scope, HubID: p.HubID}, mark)
		if err == nil {
			s.log.Info("hub broadcast read",
				zap.String("category", string(s.category)),
				zap.String("hub_id", p.HubID),
				zap.String("notification_id", p.NotificationID),
				zap.String("read_by", p.ReadByUserID),
				zap.Int("updated", n))
		}
		return n, err
	}
	return s.markShared(ctx, p, mark)
}

// markShared flips the caller's own row, then every sibling of the same
// logical event in the group or hub. The event prefix always comes from the
// stored row, which must belong to the caller. Both updates only touch UNREAD
// rows, so the caller's row is never counted twice.
func (s *strategy) markShared(ctx context.Context, p Params, mark domain.ReadMark) (int, error) {
	n, err := s.store.Get(ctx, s.category, p.NotificationID)
	if err != nil {
		return 0, err
	}
	if n.RecipientID != p.RecipientID {
		return 0, fmt.Errorf("notification %s belongs to another recipient: %w", p.NotificationID, domain.ErrForbidden)
	}
	eventID := n.EventID

	own, err := s.store.MarkRead(ctx, s.category, p.NotificationID, p.RecipientID, mark)
	if err != nil {
		return 0, err
	}
	sel := domain.ReadSelector{
		Scope:       p.Scope,
		EventPrefix: domain.EventPrefix(eventID),
		GroupID:     p.GroupID,
		HubID:       p.HubID,
	}
	siblings, err := s.store.MarkReadByScope(ctx, s.category, sel, mark)
	if err != nil {
		return own, err
	}
	s.log.Debug("shared read propagated",
		zap.String("category", string(s.category)),
		zap.String("scope", string(p.Scope)),
		zap.String("event_prefix", sel.EventPrefix),
		zap.Int("updated", own+siblings))
	return own + siblings, nil
}

func (s *strategy) MarkMultipleAsRead(ctx context.Context, list []Params) (int, error) {
	total := 0
	var errs []error
	for i, p := range list {
		n, err := s.MarkAsRead(ctx, p)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("item %d (%s): %w", i, p.NotificationID, err))
		}
	}
	return total, errors.Join(errs...)
}
