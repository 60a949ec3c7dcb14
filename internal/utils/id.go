package utils

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyLock sync.Mutex
	entropy     = ulid.Monotonic(rand.Reader, 0)
)

// NewID returns a random identifier for a connection.
func NewID() string {
	return uuid.NewString()
}

// NewRecordID returns a ULID for a persisted record. IDs generated for
// increasing times sort in the same order.
func NewRecordID(at time.Time) string {
	entropyLock.Lock()
	defer entropyLock.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy).String()
}

// PlaceholderName returns a display name for clients that did not pick one.
func PlaceholderName() string {
	return "User-" + uuid.NewString()[:8]
}
