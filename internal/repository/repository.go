package repository

import (
	"context"
	"time"

	"secops-dashboard/internal/models"
)

// DataSource backs the dashboard's read services. The implementation is
// chosen once at startup: Postgres in live mode, static fixtures otherwise.
type DataSource interface {
	Mode() string
	// ListAlerts returns up to limit alerts, newest first.
	ListAlerts(ctx context.Context, limit int) ([]models.AlertRow, error)
	InsertAlert(ctx context.Context, alert models.NewAlert) (models.AlertRow, error)
	AlertsSince(ctx context.Context, since time.Time) ([]models.AlertRow, error)
	// ListTraffic returns up to limit records, newest first.
	ListTraffic(ctx context.Context, limit int) ([]models.TrafficRow, error)
	// ListAnomalies returns the newest limit samples in ascending order.
	ListAnomalies(ctx context.Context, limit int) ([]models.AnomalyRow, error)
	// LatestSystemStatus returns ErrNoData when no status row exists.
	LatestSystemStatus(ctx context.Context) (models.SystemStatusRow, error)
	InsertProcessedLog(ctx context.Context, log *models.ProcessedLog) error
	HealthCheck(ctx context.Context) error
}

// AlertIndexer keeps a searchable copy of alerts.
type AlertIndexer interface {
	IndexAlert(ctx context.Context, alert models.ThreatAlert) error
	SearchAlerts(ctx context.Context, query string, limit int) ([]models.ThreatAlert, error)
}

// AlertPublisher announces new alerts to downstream consumers.
type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert models.ThreatAlert) error
}

// LookupRecorder keeps an audit trail of provider lookups.
type LookupRecorder interface {
	RecordLookup(ctx context.Context, record models.LookupRecord) error
}
