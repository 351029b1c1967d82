package redis

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/spaolacci/murmur3"
	"go.uber.org/zap"

	"secops-dashboard/internal/cache"
	"secops-dashboard/internal/client"
	"secops-dashboard/internal/models"
	"secops-dashboard/internal/util"
)

const lookupCachePrefix = "lookup_cache:"

// CacheStore keeps lookup results under a per-provider namespace. Entries
// carry their write time in a JSON envelope; the Redis expiry is only a
// retention bound and is independent of provider TTLs.
type CacheStore struct {
	client    *client.RedisClient
	namespace string
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

var _ cache.Store = (*CacheStore)(nil)

func NewCacheStore(c *client.RedisClient, namespace string, retention time.Duration, logger *zap.Logger) *CacheStore {
	return &CacheStore{
		client:    c,
		namespace: namespace,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}
}

// redisKey hashes the lookup key so long URLs and file names stay bounded.
func (s *CacheStore) redisKey(key string) string {
	h := murmur3.New128()
	_, _ = h.Write([]byte(key))
	return lookupCachePrefix + s.namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

func (s *CacheStore) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	data, err := s.client.GetBytes(ctx, s.redisKey(key))
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, fmt.Errorf("redis cache get: %w", err)
	}
	entry, err := cache.DecodeEnvelope(key, data)
	if err != nil {
		return models.CacheEntry{}, false, err
	}
	return entry, true, nil
}

func (s *CacheStore) Put(ctx context.Context, key string, value []byte) error {
	data, err := cache.EncodeEnvelope(s.now(), value)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.redisKey(key), data, s.retention); err != nil {
		s.logger.Warn("redis cache put failed",
			util.String("namespace", s.namespace),
			util.String("key", key),
			util.ErrorField(err))
		return fmt.Errorf("redis cache put: %w", err)
	}
	return nil
}
