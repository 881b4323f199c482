package validate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/go-notify-nosql/internal/domain"
)

type sample struct {
	Category  string `json:"category" validate:"required,category"`
	Channel   string `json:"channel" validate:"required,channel"`
	EventBase string `json:"event_id" validate:"omitempty,nohash"`
}

func TestStruct_Valid(t *testing.T) {
	err := Struct(sample{Category: "customer", Channel: "PUSH", EventBase: "evt1"})
	assert.NoError(t, err)
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	err := Struct(sample{Category: "nobody", Channel: "FAX", EventBase: "a#b"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Contains(t, err.Error(), "field 'category' failed 'category'")
	assert.Contains(t, err.Error(), "field 'channel' failed 'channel'")
	assert.Contains(t, err.Error(), "field 'event_id' failed 'nohash'")
}
