package models

import (
	"encoding/json"
	"time"
)

// CacheEntry is a provider response stored under a lookup key. Entries are
// never actively evicted; callers decide freshness from StoredAt.
type CacheEntry struct {
	Key      string          `json:"key" db:"key"`
	Value    json.RawMessage `json:"value" db:"data"`
	StoredAt time.Time       `json:"stored_at" db:"created_at"`
}

// Age reports how long ago the entry was written.
func (e CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.StoredAt)
}
