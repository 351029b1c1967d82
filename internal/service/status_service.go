package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"secops-dashboard/internal/models"
	"secops-dashboard/internal/repository"
)

const (
	// SystemsMonitored is the number of gauges reported by SystemHealth.
	SystemsMonitored = 6
	alertWindow      = 24 * time.Hour
)

type StatusService struct {
	source repository.DataSource
	logger *zap.Logger
	now    func() time.Time
}

func NewStatusService(source repository.DataSource, logger *zap.Logger) *StatusService {
	return &StatusService{source: source, logger: logger, now: time.Now}
}

// SystemStatus combines the latest status row with alert counts for the
// last 24 hours.
func (s *StatusService) SystemStatus(ctx context.Context) (models.SystemStatus, error) {
	var (
		row    models.SystemStatusRow
		recent []models.AlertRow
	)
	now := s.now().UTC()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		row, err = s.source.LatestSystemStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		recent, err = s.source.AlertsSince(gctx, now.Add(-alertWindow))
		return err
	})
	if err := g.Wait(); err != nil {
		return models.SystemStatus{}, fmt.Errorf("system status: %w", err)
	}

	critical := 0
	for _, a := range recent {
		if models.Severity(a.Severity) == models.SeverityCritical {
			critical++
		}
	}

	status := models.SystemStatus{
		Status:           row.Status,
		Uptime:           row.Uptime,
		LastCheck:        row.LastCheck.UTC(),
		ActiveThreats:    len(recent),
		SystemsMonitored: SystemsMonitored,
		AlertsToday:      len(recent),
		CriticalAlerts:   critical,
	}
	if status.Status == "" {
		status.Status = "online"
	}
	if row.LastCheck.IsZero() {
		status.LastCheck = now
	}
	return status, nil
}

func (s *StatusService) SystemHealth(ctx context.Context) ([]models.SystemHealth, error) {
	row, err := s.source.LatestSystemStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("system health: %w", err)
	}
	return row.Health(), nil
}

// Mode reports whether the service reads live or fixture data.
func (s *StatusService) Mode() string {
	return s.source.Mode()
}
