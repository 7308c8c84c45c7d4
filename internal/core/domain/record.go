package domain

import (
	"encoding/json"
	"time"
)

// PersistedRecord is the envelope every stored value is wrapped in.
// The store layer owns this shape exclusively; no other component
// writes the storage medium directly.
type PersistedRecord struct {
	Payload   json.RawMessage `json:"payload"`
	SavedAt   int64           `json:"savedAt"`             // epoch ms
	ExpiresAt int64           `json:"expiresAt,omitempty"` // epoch ms, 0 = no expiry
	Version   uint64          `json:"version,omitempty"`   // monotonic per key
}

// Expired reports whether the record's expiry has passed at t.
// A record observed expired is deleted by the reader (lazy expiry).
func (r PersistedRecord) Expired(t time.Time) bool {
	return r.ExpiresAt != 0 && t.UnixMilli() >= r.ExpiresAt
}
