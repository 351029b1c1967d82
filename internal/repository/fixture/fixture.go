// Package fixture is the DataSource used when no backend is configured. Its
// data is deterministic for a given clock.
package fixture

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"secops-dashboard/internal/config"
	"secops-dashboard/internal/models"
	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/repository"
)

// maxRows bounds the traffic and anomaly history kept in memory.
const maxRows = 500

// Source serves fixture rows and publishes inserts to an in-process event
// source so the realtime feeds behave as in live mode.
type Source struct {
	mu        sync.RWMutex
	now       func() time.Time
	events    *realtime.MemorySource
	alerts    []models.AlertRow
	traffic   []models.TrafficRow
	anomalies []models.AnomalyRow
	status    models.SystemStatusRow
	logs      []models.ProcessedLog
}

var _ repository.DataSource = (*Source)(nil)

// New seeds a fixture source relative to now. events may be nil.
func New(events *realtime.MemorySource, now func() time.Time) *Source {
	if now == nil {
		now = time.Now
	}
	ref := now().UTC()
	return &Source{
		now:       now,
		events:    events,
		alerts:    seedAlerts(ref),
		traffic:   seedTraffic(),
		anomalies: seedAnomalies(ref),
		status:    seedStatus(ref),
	}
}

func (s *Source) Mode() string {
	return config.DataModeFixture
}

func (s *Source) HealthCheck(context.Context) error {
	return nil
}

func (s *Source) ListAlerts(_ context.Context, limit int) ([]models.AlertRow, error) {
	s.mu.RLock()
	out := append([]models.AlertRow(nil), s.alerts...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return head(out, limit), nil
}

func (s *Source) AlertsSince(_ context.Context, since time.Time) ([]models.AlertRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.AlertRow
	for _, a := range s.alerts {
		if !a.CreatedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Source) InsertAlert(ctx context.Context, alert models.NewAlert) (models.AlertRow, error) {
	ts := s.now().UTC()
	row := models.AlertRow{
		ID:            uuid.NewString(),
		Type:          alert.Type,
		Severity:      string(alert.Severity),
		SourceIP:      optional(alert.SourceIP),
		DestinationIP: optional(alert.Destination),
		Description:   optional(alert.Description),
		Timestamp:     ts,
		CreatedAt:     ts,
	}
	s.mu.Lock()
	s.alerts = append(s.alerts, row)
	s.mu.Unlock()

	s.publish(ctx, realtime.TableAlerts, row)
	return row, nil
}

// InsertTraffic appends a traffic record and publishes the insert.
func (s *Source) InsertTraffic(ctx context.Context, row models.TrafficRow) models.TrafficRow {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = s.now().UTC()
	}
	s.mu.Lock()
	s.traffic = trimHead(append(s.traffic, row), maxRows)
	s.mu.Unlock()

	s.publish(ctx, realtime.TableTraffic, row)
	return row
}

// InsertAnomaly appends an anomaly sample and publishes the insert.
func (s *Source) InsertAnomaly(ctx context.Context, value float64) models.AnomalyRow {
	row := models.AnomalyRow{ID: uuid.NewString(), Timestamp: s.now().UTC(), Value: value}
	s.mu.Lock()
	s.anomalies = trimHead(append(s.anomalies, row), maxRows)
	s.mu.Unlock()

	s.publish(ctx, realtime.TableAnomalies, row)
	return row
}

func (s *Source) ListTraffic(_ context.Context, limit int) ([]models.TrafficRow, error) {
	s.mu.RLock()
	out := append([]models.TrafficRow(nil), s.traffic...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return head(out, limit), nil
}

func (s *Source) ListAnomalies(_ context.Context, limit int) ([]models.AnomalyRow, error) {
	s.mu.RLock()
	out := append([]models.AnomalyRow(nil), s.anomalies...)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *Source) LatestSystemStatus(context.Context) (models.SystemStatusRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.status
	row.LastCheck = s.now().UTC()
	return row, nil
}

func (s *Source) InsertProcessedLog(_ context.Context, log *models.ProcessedLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.UploadedAt.IsZero() {
		log.UploadedAt = s.now().UTC()
	}
	s.mu.Lock()
	s.logs = append(s.logs, *log)
	s.mu.Unlock()
	return nil
}

// ProcessedLogs returns the stored log analyses.
func (s *Source) ProcessedLogs() []models.ProcessedLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.ProcessedLog(nil), s.logs...)
}

func (s *Source) publish(ctx context.Context, table string, row any) {
	if s.events == nil {
		return
	}
	record, err := json.Marshal(row)
	if err != nil {
		panic(fmt.Sprintf("fixture: marshal %s row: %v", table, err))
	}
	s.events.Publish(ctx, realtime.ChangeEvent{
		Table:      table,
		Type:       realtime.EventInsert,
		Record:     record,
		CommitTime: s.now().UTC(),
	})
}

func head[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

// trimHead drops the oldest rows beyond limit.
func trimHead[T any](rows []T, limit int) []T {
	if len(rows) > limit {
		return append([]T(nil), rows[len(rows)-limit:]...)
	}
	return rows
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
