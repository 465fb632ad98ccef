package chat

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// Message ids must sort in persist order even within one millisecond, because
// history queries tiebreak equal timestamps by id. A plain random entropy
// source breaks that, so mints share one monotonic reader behind a lock.
var (
	msgEntropyMu sync.Mutex
	msgEntropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewMessageID returns a ULID used as message id.
// IDs minted within the same millisecond are strictly increasing.
func NewMessageID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	msgEntropyMu.Lock()
	defer msgEntropyMu.Unlock()

	id, err := ulid.New(ulid.Timestamp(now), msgEntropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewEnvelopeID returns a ULID used as envelope id, for tracing in logs.
// Envelope ids are never compared, so plain random entropy is fine here.
func NewEnvelopeID(now time.Time) string {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return ""
	}
	return id.String()
}

// NewSessionID returns a random id for a websocket session.
func NewSessionID() string {
	return uuid.NewString()
}
