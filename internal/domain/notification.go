package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel is the delivery medium of a notification row.
type Channel string

const (
	ChannelRealtime Channel = "REALTIME"
	ChannelEmail    Channel = "EMAIL"
	ChannelPush     Channel = "PUSH"
	ChannelSMS      Channel = "SMS"
)

// PolledChannels are the channels driven by the delivery poller. Realtime is
// dispatched synchronously and never appears here.
var PolledChannels = []Channel{ChannelPush, ChannelEmail, ChannelSMS}

func (c Channel) Valid() bool {
	switch c {
	case ChannelRealtime, ChannelEmail, ChannelPush, ChannelSMS:
		return true
	}
	return false
}

// Polled reports whether rows on this channel go through the PENDING state machine.
func (c Channel) Polled() bool { return c.Valid() && c != ChannelRealtime }

// ParseChannel accepts any casing and surrounding whitespace.
func ParseChannel(s string) (Channel, error) {
	c := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown channel %q: %w", s, ErrValidation)
	}
	return c, nil
}

// Category partitions recipients; each category has its own table.
type Category string

const (
	CategoryRestaurant Category = "restaurant-staff"
	CategoryCustomer   Category = "customer"
	CategoryAgency     Category = "agency-staff"
	CategoryAdmin      Category = "admin"
)

// Categories lists every recipient partition in poller order.
var Categories = []Category{CategoryRestaurant, CategoryCustomer, CategoryAgency, CategoryAdmin}

func (c Category) Valid() bool {
	switch c {
	case CategoryRestaurant, CategoryCustomer, CategoryAgency, CategoryAdmin:
		return true
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "PENDING"
	DeliveryDelivered DeliveryStatus = "DELIVERED"
	DeliveryFailed    DeliveryStatus = "FAILED"
)

type ReadStatus string

const (
	ReadUnread ReadStatus = "UNREAD"
	ReadRead   ReadStatus = "READ"
)

// Priority levels. Higher values are fetched first by the poller.
const (
	PriorityLow    = 0
	PriorityNormal = 1
	PriorityHigh   = 2
	PriorityUrgent = 3
)

// PropDestination overrides the personal realtime destination when present.
const PropDestination = "destination"

// Notification is one (event, recipient) row. Rows from all categories share
// this shape, so delivery code never branches on the recipient partition.
type Notification struct {
	NotificationID string            `json:"id" dynamodbav:"notification_id"`
	EventID        string            `json:"event_id" dynamodbav:"event_id"`
	RecipientID    string            `json:"recipient_id" dynamodbav:"recipient_id"`
	Category       Category          `json:"category" dynamodbav:"category"`
	Channel        Channel           `json:"channel" dynamodbav:"channel"`
	Title          string            `json:"title" dynamodbav:"title"`
	Body           string            `json:"body" dynamodbav:"body"`
	Properties     map[string]string `json:"properties,omitempty" dynamodbav:"properties,omitempty"`
	Priority       int               `json:"priority" dynamodbav:"priority"`
	DeliveryStatus DeliveryStatus    `json:"delivery_status,omitempty" dynamodbav:"delivery_status,omitempty"`
	RetryCount     int               `json:"retry_count" dynamodbav:"retry_count"`
	ReadStatus     ReadStatus        `json:"read_status" dynamodbav:"read_status"`
	ReadAt         *time.Time        `json:"read_at,omitempty" dynamodbav:"read_at,omitempty"`
	ReadByUserID   string            `json:"read_by_user_id,omitempty" dynamodbav:"read_by_user_id,omitempty"`
	SharedRead     bool              `json:"shared_read" dynamodbav:"shared_read"`
	GroupID        string            `json:"group_id,omitempty" dynamodbav:"group_id,omitempty"`
	HubID          string            `json:"hub_id,omitempty" dynamodbav:"hub_id,omitempty"`
	CreatedAt      time.Time         `json:"created" dynamodbav:"created_at"`
	DeliveredAt    *time.Time        `json:"delivered_at,omitempty" dynamodbav:"delivered_at,omitempty"`
}

// Property returns a property value or "" when unset.
func (n *Notification) Property(key string) string {
	if n.Properties == nil {
		return ""
	}
	return n.Properties[key]
}

// IsRead reports whether the row has been read.
func (n *Notification) IsRead() bool { return n.ReadStatus == ReadRead }

// EventIDSeparator joins the shared event base with per-recipient suffixes.
// Event bases must not contain it.
const EventIDSeparator = "#"

// RecipientEventID builds the per-row event id for one recipient of a logical event.
func RecipientEventID(base, recipientID string, ch Channel) string {
	return base + EventIDSeparator + recipientID + EventIDSeparator + string(ch)
}

// EventPrefix returns the prefix shared by every row disaggregated from the
// same logical event, separator included, so "evt1" never matches "evt10".
func EventPrefix(eventID string) string {
	if i := strings.Index(eventID, EventIDSeparator); i >= 0 {
		return eventID[:i+1]
	}
	return eventID + EventIDSeparator
}

// ReadSelector describes a scoped batch read update.
type ReadSelector struct {
	Scope       Scope
	EventPrefix string
	GroupID     string
	HubID       string
}

// ReadMark is the read stamp applied by every read update.
type ReadMark struct {
	ByUserID string
	At       time.Time
}
