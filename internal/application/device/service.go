package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-notify-nosql/internal/domain"
	"github.com/go-notify-nosql/internal/pkg/id"
	"github.com/go-notify-nosql/internal/pkg/validate"
)

type Service interface {
	// Register binds a push token to the recipient. A token already on record
	// is moved to the new owner and re-enabled.
	Register(ctx context.Context, recipientID string, category domain.Category, req domain.RegisterDeviceRequest) (*domain.Device, error)
	List(ctx context.Context, recipientID string) ([]domain.Device, error)
	Delete(ctx context.Context, recipientID, deviceID string) error
}

type deviceStore interface {
	Put(ctx context.Context, d *domain.Device) error
	Get(ctx context.Context, deviceID string) (*domain.Device, error)
	GetByToken(ctx context.Context, token string) (*domain.Device, error)
	ListByRecipient(ctx context.Context, recipientID string) ([]domain.Device, error)
	Disable(ctx context.Context, deviceID string) error
}

type service struct {
	repo deviceStore
	now  func() time.Time
}

func NewService(repo deviceStore) Service {
	return &service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) Register(ctx context.Context, recipientID string, category domain.Category, req domain.RegisterDeviceRequest) (*domain.Device, error) {
	if err := validate.Struct(req); err != nil {
		return nil, err
	}
	if !category.Valid() {
		return nil, fmt.Errorf("unknown category %q: %w", category, domain.ErrValidation)
	}
	now := s.now()

	d, err := s.repo.GetByToken(ctx, req.Token)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		d = &domain.Device{DeviceID: id.New(), Token: req.Token, CreatedAt: now}
	case err != nil:
		return nil, err
	}
	d.RecipientID = recipientID
	d.Category = category
	d.Platform = req.Platform
	d.Enable = true
	d.UpdatedAt = now
	if err := s.repo.Put(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *service) List(ctx context.Context, recipientID string) ([]domain.Device, error) {
	return s.repo.ListByRecipient(ctx, recipientID)
}

func (s *service) Delete(ctx context.Context, recipientID, deviceID string) error {
	d, err := s.repo.Get(ctx, deviceID)
	if err != nil {
		return err
	}
	if d.RecipientID != recipientID {
		return domain.ErrForbidden
	}
	return s.repo.Disable(ctx, deviceID)
}
