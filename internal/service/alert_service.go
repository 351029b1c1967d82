package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"secops-dashboard/internal/models"
	"secops-dashboard/internal/repository"
	"secops-dashboard/internal/scoring"
	"secops-dashboard/internal/util"
)

const ActiveAlertLimit = 20

// Field limits keep a full alert row well inside the 8000 byte pg_notify
// payload the change trigger sends.
const (
	MaxAlertTypeLength        = 128
	MaxAlertEndpointLength    = 512
	MaxAlertDescriptionLength = 2048
)

// AlertService reads and creates threat alerts. The search index and the
// alert publisher are optional; their failures never fail an insert.
type AlertService struct {
	source    repository.DataSource
	indexer   repository.AlertIndexer
	publisher repository.AlertPublisher
	logger    *zap.Logger
}

type AnalyzedAlert struct {
	Alert    models.ThreatAlert   `json:"alert"`
	Analysis models.AlertAnalysis `json:"analysis"`
}

func NewAlertService(source repository.DataSource, indexer repository.AlertIndexer, publisher repository.AlertPublisher, logger *zap.Logger) *AlertService {
	return &AlertService{
		source:    source,
		indexer:   indexer,
		publisher: publisher,
		logger:    logger,
	}
}

// ListActive returns the newest alerts, optionally only those of one severity.
func (s *AlertService) ListActive(ctx context.Context, severity string) ([]models.ThreatAlert, error) {
	var want models.Severity
	if severity = strings.TrimSpace(severity); severity != "" && !strings.EqualFold(severity, "all") {
		sev, ok := models.ParseSeverity(severity)
		if !ok {
			return nil, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, severity)
		}
		want = sev
	}

	rows, err := s.source.ListAlerts(ctx, ActiveAlertLimit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	alerts := make([]models.ThreatAlert, 0, len(rows))
	for _, row := range rows {
		alert := row.ToAlert()
		if want != "" && alert.Severity != want {
			continue
		}
		alerts = append(alerts, alert)
	}
	return alerts, nil
}

// Create validates and stores an alert, then indexes and publishes it.
func (s *AlertService) Create(ctx context.Context, in models.NewAlert) (models.ThreatAlert, error) {
	in.Type = strings.TrimSpace(in.Type)
	if in.Type == "" {
		return models.ThreatAlert{}, fmt.Errorf("%w: alert type is required", ErrInvalidInput)
	}
	sev, ok := models.ParseSeverity(string(in.Severity))
	if !ok {
		return models.ThreatAlert{}, fmt.Errorf("%w: unknown severity %q", ErrInvalidInput, in.Severity)
	}
	in.Severity = sev
	for _, f := range []struct {
		name  string
		value string
		max   int
	}{
		{"type", in.Type, MaxAlertTypeLength},
		{"sourceIp", in.SourceIP, MaxAlertEndpointLength},
		{"destination", in.Destination, MaxAlertEndpointLength},
		{"description", in.Description, MaxAlertDescriptionLength},
	} {
		if len(f.value) > f.max {
			return models.ThreatAlert{}, fmt.Errorf("%w: %s longer than %d bytes", ErrInvalidInput, f.name, f.max)
		}
	}

	row, err := s.source.InsertAlert(ctx, in)
	if err != nil {
		return models.ThreatAlert{}, fmt.Errorf("insert alert: %w", err)
	}
	alert := row.ToAlert()

	if s.indexer != nil {
		if err := s.indexer.IndexAlert(ctx, alert); err != nil {
			s.logger.Warn("failed to index alert", util.String("alert_id", alert.ID), util.ErrorField(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishAlert(ctx, alert); err != nil {
			s.logger.Warn("failed to publish alert", util.String("alert_id", alert.ID), util.ErrorField(err))
		}
	}

	s.logger.Info("Threat alert created",
		util.String("alert_id", alert.ID),
		util.String("type", alert.Type),
		util.String("severity", string(alert.Severity)),
	)
	return alert, nil
}

// Analyze stores the alert and attaches a score derived from its severity.
func (s *AlertService) Analyze(ctx context.Context, in models.NewAlert) (AnalyzedAlert, error) {
	alert, err := s.Create(ctx, in)
	if err != nil {
		return AnalyzedAlert{}, err
	}
	score := scoring.SimulatedScore(alert.Severity)
	return AnalyzedAlert{
		Alert: alert,
		Analysis: models.AlertAnalysis{
			Score:          score,
			Classification: scoring.Classify(score),
		},
	}, nil
}

func (s *AlertService) Search(ctx context.Context, query string, limit int) ([]models.ThreatAlert, error) {
	if s.indexer == nil {
		return nil, ErrSearchUnavailable
	}
	return s.indexer.SearchAlerts(ctx, query, limit)
}
