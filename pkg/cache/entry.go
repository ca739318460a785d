package cache

import (
	"time"
)

// Entry represents a cached, pre-serialized response payload.
type Entry struct {
	// Value is the serialized payload (usually a JSON response body)
	Value []byte `json:"value"`

	// ExpiresAt is the absolute time after which the entry is stale
	ExpiresAt time.Time `json:"expires_at"`

	// CachedAt is when the entry was stored
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired reports whether the entry is stale at the given instant.
// An entry is still valid at exactly ExpiresAt.
func (e *Entry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
