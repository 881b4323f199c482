package sharedread

import (
	"time"

	"github.com/go-notify-nosql/internal/domain"
)

// Params is one read request. Scope is normalised before validation, so the
// conditional rules below see the canonical value. A hub broadcast is not
// anchored on a row, so NotificationID is only required for the other scopes.
type Params struct {
	NotificationID string       `json:"notification_id" validate:"required_unless=Scope HUB_BROADCAST"`
	RecipientID    string       `json:"recipient_id" validate:"required"`
	ReadByUserID   string       `json:"read_by_user_id"`
	ReadAt         time.Time    `json:"read_at" validate:"required"`
	Scope          domain.Scope `json:"scope"`
	GroupID        string       `json:"group_id" validate:"required_if=Scope GROUP"`
	HubID          string       `json:"hub_id" validate:"required_if=Scope HUB,required_if=Scope HUB_BROADCAST"`
}
