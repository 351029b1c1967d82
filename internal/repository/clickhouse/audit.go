// Package clickhouse keeps the provider lookup audit trail in ClickHouse.
package clickhouse

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"secops-dashboard/internal/models"
	"secops-dashboard/internal/repository"
	"secops-dashboard/internal/util"
)

const auditTable = "lookup_audit"

const createAuditTable = `CREATE TABLE IF NOT EXISTS ` + auditTable + ` (
	id           String,
	provider     LowCardinality(String),
	kind         LowCardinality(String),
	indicator    String,
	score        Float64,
	known        Bool,
	alerted      Bool,
	cache_hit    Bool,
	error        String,
	duration_ms  Int64,
	looked_up_at DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (provider, looked_up_at)
TTL toDateTime(looked_up_at) + INTERVAL 90 DAY`

const insertAudit = `INSERT INTO ` + auditTable + ` (id, provider, kind, indicator, score, known, alerted, cache_hit, error, duration_ms, looked_up_at)`

// Conn is the part of the ClickHouse client the recorder needs.
type Conn interface {
	Exec(ctx context.Context, query string, args ...interface{}) error
	BatchInsert(ctx context.Context, query string, data [][]interface{}) error
}

// AuditRecorder buffers lookup records and writes them in batches, either
// when BatchSize records are pending or every FlushEvery.
type AuditRecorder struct {
	conn       Conn
	batchSize  int
	flushEvery time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	pending []models.LookupRecord
}

var _ repository.LookupRecorder = (*AuditRecorder)(nil)

func NewAuditRecorder(conn Conn, batchSize int, flushEvery time.Duration, logger *zap.Logger) *AuditRecorder {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushEvery <= 0 {
		flushEvery = 10 * time.Second
	}
	return &AuditRecorder{
		conn:       conn,
		batchSize:  batchSize,
		flushEvery: flushEvery,
		logger:     logger,
	}
}

func (r *AuditRecorder) EnsureSchema(ctx context.Context) error {
	if err := r.conn.Exec(ctx, createAuditTable); err != nil {
		return fmt.Errorf("create %s: %w", auditTable, err)
	}
	return nil
}

// RecordLookup queues rec and flushes synchronously once the batch is full.
func (r *AuditRecorder) RecordLookup(ctx context.Context, rec models.LookupRecord) error {
	r.mu.Lock()
	r.pending = append(r.pending, rec)
	full := len(r.pending) >= r.batchSize
	r.mu.Unlock()

	if full {
		return r.Flush(ctx)
	}
	return nil
}

// Pending reports how many records are waiting for the next flush.
func (r *AuditRecorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Flush writes all pending records. A failed batch is dropped and logged.
func (r *AuditRecorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(batch))
	for _, rec := range batch {
		rows = append(rows, []interface{}{
			rec.ID,
			rec.Provider,
			rec.Kind,
			rec.Indicator,
			rec.Score,
			rec.Known,
			rec.Alerted,
			rec.CacheHit,
			rec.Error,
			rec.DurationMS,
			rec.LookedUpAt.UTC(),
		})
	}

	if err := r.conn.BatchInsert(ctx, insertAudit, rows); err != nil {
		r.logger.Error("lookup audit flush failed",
			util.Int("dropped", len(rows)),
			util.ErrorField(err))
		return fmt.Errorf("flush lookup audit: %w", err)
	}
	r.logger.Debug("lookup audit flushed", util.Int("records", len(rows)))
	return nil
}

// Run flushes on every tick until ctx is done, then flushes once more.
func (r *AuditRecorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = r.Flush(shutdownCtx)
			cancel()
			return
		case <-ticker.C:
			_ = r.Flush(ctx)
		}
	}
}
