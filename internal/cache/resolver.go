package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"secops-dashboard/internal/metrics"
	"secops-dashboard/internal/util"
)

// Resolver fronts one cache namespace. Store failures never fail a lookup:
// they are logged and the value is fetched (and returned) without caching.
type Resolver struct {
	store     Store
	namespace string
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewResolver(store Store, namespace string, logger *zap.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:     store,
		namespace: namespace,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// WithClock replaces the clock used for freshness checks.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

func (r *Resolver) Namespace() string {
	return r.namespace
}

func (r *Resolver) Store() Store {
	return r.store
}

// Resolve returns the cached value for key when it is younger than ttl and
// otherwise calls fetch, caching a successful result. A fetch error is
// returned unchanged and nothing is written.
func Resolve[T any](ctx context.Context, r *Resolver, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	v, _, err := ResolveHit(ctx, r, key, ttl, fetch)
	return v, err
}

// ResolveHit is Resolve that also reports whether the value came from cache.
func ResolveHit[T any](ctx context.Context, r *Resolver, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, bool, error) {
	if r == nil || r.store == nil {
		v, err := fetch(ctx)
		return v, false, err
	}

	if v, ok := cached[T](ctx, r, key, ttl); ok {
		return v, true, nil
	}

	v, err := fetch(ctx)
	if err != nil {
		return v, false, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Warn("Cache encode failed",
			util.String("namespace", r.namespace),
			util.String("key", key),
			util.ErrorField(err),
		)
		r.metrics.CacheError(r.namespace, "encode")
		return v, false, nil
	}
	if err := r.store.Put(ctx, key, data); err != nil {
		r.logger.Warn("Cache write failed",
			util.String("namespace", r.namespace),
			util.String("key", key),
			util.ErrorField(err),
		)
		r.metrics.CacheError(r.namespace, "put")
	}
	return v, false, nil
}

// cached decodes a fresh entry. Anything other than a fresh, decodable
// entry is treated as a miss.
func cached[T any](ctx context.Context, r *Resolver, key string, ttl time.Duration) (T, bool) {
	var v T
	entry, found, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("Cache read failed",
			util.String("namespace", r.namespace),
			util.String("key", key),
			util.ErrorField(err),
		)
		r.metrics.CacheError(r.namespace, "get")
		return v, false
	}
	if !found {
		r.metrics.CacheResult(r.namespace, "miss")
		return v, false
	}
	if entry.Age(r.now()) >= ttl {
		r.metrics.CacheResult(r.namespace, "expired")
		return v, false
	}
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		r.logger.Debug("Cached value undecodable, refetching",
			util.String("namespace", r.namespace),
			util.String("key", key),
			util.ErrorField(err),
		)
		r.metrics.CacheError(r.namespace, "decode")
		var zero T
		return zero, false
	}
	r.metrics.CacheResult(r.namespace, "hit")
	return v, true
}
