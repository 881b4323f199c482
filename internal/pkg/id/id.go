package id

import (
	"crypto/rand"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs are lexicographically sortable
// by creation time and safe for use as DynamoDB partition keys.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

// EventBase generates the shared base of a logical event when the producer
// does not supply one. The result never contains the event id separator.
func EventBase() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
