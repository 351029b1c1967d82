package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"secops-dashboard/internal/models"
)

// Store is a keyed TTL cache backend. Get reports found=false when nothing is
// stored under key; freshness is decided by the caller. Put is an
// unconditional upsert that resets the entry's StoredAt.
type Store interface {
	Get(ctx context.Context, key string) (models.CacheEntry, bool, error)
	Put(ctx context.Context, key string, value []byte) error
}

// Pruner is implemented by stores that support housekeeping of entries
// written before a cutoff. Pruning is independent of provider TTLs.
type Pruner interface {
	Prune(ctx context.Context, before time.Time) (int, error)
}

var ErrCorruptEntry = errors.New("cache entry is corrupt")

// Key joins a lookup prefix and its input, e.g. Key("ip", "8.8.8.8") is "ip_8.8.8.8".
func Key(prefix, input string) string {
	return prefix + "_" + input
}

type envelope struct {
	StoredAt time.Time       `json:"stored_at"`
	Value    json.RawMessage `json:"value"`
}

// EncodeEnvelope wraps a value with its write time for backends that only
// store opaque bytes.
func EncodeEnvelope(storedAt time.Time, value []byte) ([]byte, error) {
	if !json.Valid(value) {
		return nil, fmt.Errorf("encode cache envelope: %w", ErrCorruptEntry)
	}
	return json.Marshal(envelope{StoredAt: storedAt.UTC(), Value: value})
}

func DecodeEnvelope(key string, data []byte) (models.CacheEntry, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return models.CacheEntry{}, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	return models.CacheEntry{Key: key, Value: env.Value, StoredAt: env.StoredAt}, nil
}
