package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"secops-dashboard/internal/models"
	"secops-dashboard/internal/repository"
)

const (
	TrafficLimit = 15
	AnomalyLimit = 50
)

type TrafficService struct {
	source repository.DataSource
	logger *zap.Logger
}

func NewTrafficService(source repository.DataSource, logger *zap.Logger) *TrafficService {
	return &TrafficService{source: source, logger: logger}
}

var trafficLess = map[string]func(a, b models.TrafficRecord) bool{
	"timestamp":    func(a, b models.TrafficRecord) bool { return a.Timestamp.Before(b.Timestamp) },
	"sourceip":     func(a, b models.TrafficRecord) bool { return a.SourceIP < b.SourceIP },
	"destip":       func(a, b models.TrafficRecord) bool { return a.DestIP < b.DestIP },
	"protocol":     func(a, b models.TrafficRecord) bool { return a.Protocol < b.Protocol },
	"port":         func(a, b models.TrafficRecord) bool { return a.Port < b.Port },
	"bytes":        func(a, b models.TrafficRecord) bool { return a.Bytes < b.Bytes },
	"anomalyscore": func(a, b models.TrafficRecord) bool { return a.AnomalyScore < b.AnomalyScore },
}

// ListTraffic returns the newest traffic records. Without a sort field they
// stay newest first; order is "asc" or "desc" (the default).
func (s *TrafficService) ListTraffic(ctx context.Context, sortField, order string) ([]models.TrafficRecord, error) {
	var less func(a, b models.TrafficRecord) bool
	if sortField = strings.TrimSpace(sortField); sortField != "" {
		key := strings.ToLower(strings.ReplaceAll(sortField, "_", ""))
		var ok bool
		if less, ok = trafficLess[key]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedSort, sortField)
		}
	}
	desc := true
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "desc":
	case "asc":
		desc = false
	default:
		return nil, fmt.Errorf("%w: order must be asc or desc", ErrInvalidInput)
	}

	rows, err := s.source.ListTraffic(ctx, TrafficLimit)
	if err != nil {
		return nil, fmt.Errorf("list traffic: %w", err)
	}
	records := make([]models.TrafficRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.ToRecord())
	}

	if less != nil {
		sort.SliceStable(records, func(i, j int) bool {
			if desc {
				return less(records[j], records[i])
			}
			return less(records[i], records[j])
		})
	} else if !desc {
		for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
			records[i], records[j] = records[j], records[i]
		}
	}
	return records, nil
}

// ListAnomalies returns the newest samples in ascending time order.
func (s *TrafficService) ListAnomalies(ctx context.Context) ([]models.AnomalySample, error) {
	rows, err := s.source.ListAnomalies(ctx, AnomalyLimit)
	if err != nil {
		return nil, fmt.Errorf("list anomalies: %w", err)
	}
	samples := make([]models.AnomalySample, 0, len(rows))
	for _, row := range rows {
		samples = append(samples, row.ToSample())
	}
	return samples, nil
}
