// Package postgres implements the live DataSource, the lookup cache tables
// and the LISTEN/NOTIFY change-event source on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"secops-dashboard/internal/config"
	"secops-dashboard/internal/models"
	"secops-dashboard/internal/repository"
)

const (
	alertColumns   = `id::text AS id, type, severity, source_ip, destination_ip, description, timestamp, created_at`
	trafficColumns = `id::text AS id, timestamp, source_ip, dest_ip, protocol, port, bytes, anomaly_score`
	statusColumns  = `id::text AS id, status, uptime, last_check, firewall_load, ids_ips_load, siem_load,
		email_load, endpoint_load, network_monitoring_load`
)

// Repository implements repository.DataSource on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

var _ repository.DataSource = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Mode() string {
	return config.DataModeLive
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// ListAlerts returns up to limit alerts, newest first.
func (r *Repository) ListAlerts(ctx context.Context, limit int) ([]models.AlertRow, error) {
	query := `SELECT ` + alertColumns + ` FROM threat_alerts ORDER BY timestamp DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.AlertRow])
	if err != nil {
		return nil, fmt.Errorf("scan alerts: %w", err)
	}
	return out, nil
}

// AlertsSince returns alerts created at or after since.
func (r *Repository) AlertsSince(ctx context.Context, since time.Time) ([]models.AlertRow, error) {
	query := `SELECT ` + alertColumns + ` FROM threat_alerts WHERE created_at >= $1 ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("alerts since: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.AlertRow])
	if err != nil {
		return nil, fmt.Errorf("scan alerts: %w", err)
	}
	return out, nil
}

// InsertAlert stores a new alert. The notify trigger announces it to listeners.
func (r *Repository) InsertAlert(ctx context.Context, alert models.NewAlert) (models.AlertRow, error) {
	query := `INSERT INTO threat_alerts (type, severity, source_ip, destination_ip, description)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING ` + alertColumns
	rows, err := r.pool.Query(ctx, query,
		alert.Type,
		string(alert.Severity),
		nullable(alert.SourceIP),
		nullable(alert.Destination),
		nullable(alert.Description),
	)
	if err != nil {
		return models.AlertRow{}, fmt.Errorf("insert alert: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.AlertRow])
	if err != nil {
		return models.AlertRow{}, fmt.Errorf("insert alert: %w", err)
	}
	return row, nil
}

// ListTraffic returns up to limit traffic records, newest first.
func (r *Repository) ListTraffic(ctx context.Context, limit int) ([]models.TrafficRow, error) {
	query := `SELECT ` + trafficColumns + ` FROM network_traffic ORDER BY timestamp DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list traffic: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.TrafficRow])
	if err != nil {
		return nil, fmt.Errorf("scan traffic: %w", err)
	}
	return out, nil
}

// ListAnomalies returns the newest limit samples in ascending order.
func (r *Repository) ListAnomalies(ctx context.Context, limit int) ([]models.AnomalyRow, error) {
	const query = `SELECT id, timestamp, value FROM (
			SELECT id::text AS id, timestamp, value FROM anomaly_logs ORDER BY timestamp DESC LIMIT $1
		) newest ORDER BY timestamp ASC`
	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.AnomalyRow])
	if err != nil {
		return nil, fmt.Errorf("scan anomalies: %w", err)
	}
	return out, nil
}

// LatestSystemStatus returns repository.ErrNoData when the table is empty.
func (r *Repository) LatestSystemStatus(ctx context.Context) (models.SystemStatusRow, error) {
	query := `SELECT ` + statusColumns + ` FROM system_status ORDER BY last_check DESC LIMIT 1`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return models.SystemStatusRow{}, fmt.Errorf("latest system status: %w", err)
	}
	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[models.SystemStatusRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.SystemStatusRow{}, fmt.Errorf("system_status: %w", repository.ErrNoData)
		}
		return models.SystemStatusRow{}, fmt.Errorf("scan system status: %w", err)
	}
	return row, nil
}

// InsertProcessedLog stores a log analysis and fills in its ID and upload time.
func (r *Repository) InsertProcessedLog(ctx context.Context, log *models.ProcessedLog) error {
	if log == nil {
		return fmt.Errorf("insert processed log: nil log")
	}
	entries := log.SuspiciousEntries
	if entries == nil {
		entries = []string{}
	}
	const query = `INSERT INTO processed_logs (file_name, suspicious_entries)
		VALUES ($1, $2)
		RETURNING id::text, uploaded_at`
	if err := r.pool.QueryRow(ctx, query, log.FileName, entries).Scan(&log.ID, &log.UploadedAt); err != nil {
		return fmt.Errorf("insert processed log: %w", err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
