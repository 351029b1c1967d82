package client

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"secops-dashboard/internal/config"
	"secops-dashboard/internal/util"
)

type PostgresClient struct {
	Pool   *pgxpool.Pool
	config *config.PostgresConfig
	logger *zap.Logger
}

func NewPostgresClient(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*PostgresClient, error) {
	pgConfig := cfg.Postgres

	poolConfig, err := pgxpool.ParseConfig(pgConfig.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if pgConfig.MaxConns > 0 {
		poolConfig.MaxConns = int32(pgConfig.MaxConns)
	}
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	logger.Info("Postgres client initialized",
		util.String("host", poolConfig.ConnConfig.Host),
		util.String("database", poolConfig.ConnConfig.Database),
		util.Int("max_conns", int(poolConfig.MaxConns)),
	)

	return &PostgresClient{
		Pool:   pool,
		config: &pgConfig,
		logger: logger,
	}, nil
}

// URL returns the DSN the pool was built from, for goose.
func (p *PostgresClient) URL() string {
	return p.config.URL
}

func (p *PostgresClient) HealthCheck(ctx context.Context) error {
	if err := p.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() {
	if p.Pool == nil {
		return
	}
	p.Pool.Close()
	p.logger.Info("Postgres pool closed")
}
