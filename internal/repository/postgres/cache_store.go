package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"secops-dashboard/internal/cache"
	"secops-dashboard/internal/models"
)

// CacheStore keeps one provider's lookups in its {namespace}_cache table.
type CacheStore struct {
	pool  *pgxpool.Pool
	table string
	now   func() time.Time
}

var (
	_ cache.Store  = (*CacheStore)(nil)
	_ cache.Pruner = (*CacheStore)(nil)
)

func NewCacheStore(pool *pgxpool.Pool, namespace string) *CacheStore {
	return &CacheStore{
		pool:  pool,
		table: pgx.Identifier{namespace + "_cache"}.Sanitize(),
		now:   time.Now,
	}
}

func (s *CacheStore) Get(ctx context.Context, key string) (models.CacheEntry, bool, error) {
	query := `SELECT data, created_at FROM ` + s.table + ` WHERE key = $1`
	var (
		data     []byte
		storedAt time.Time
	)
	if err := s.pool.QueryRow(ctx, query, key).Scan(&data, &storedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.CacheEntry{}, false, nil
		}
		return models.CacheEntry{}, false, fmt.Errorf("cache get %s: %w", s.table, err)
	}
	return models.CacheEntry{Key: key, Value: data, StoredAt: storedAt}, true, nil
}

// Put upserts the entry and resets its write time.
func (s *CacheStore) Put(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO ` + s.table + ` (key, data, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, created_at = EXCLUDED.created_at`
	if _, err := s.pool.Exec(ctx, query, key, value, s.now().UTC()); err != nil {
		return fmt.Errorf("cache put %s: %w", s.table, err)
	}
	return nil
}

func (s *CacheStore) Prune(ctx context.Context, before time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM `+s.table+` WHERE created_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cache prune %s: %w", s.table, err)
	}
	return int(tag.RowsAffected()), nil
}
