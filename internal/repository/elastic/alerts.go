// Package elastic keeps a searchable copy of threat alerts in Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"secops-dashboard/internal/client"
	"secops-dashboard/internal/models"
	"secops-dashboard/internal/repository"
)

const defaultSearchLimit = 20

var alertMapping = map[string]interface{}{
	"mappings": map[string]interface{}{
		"properties": map[string]interface{}{
			"id":          map[string]string{"type": "keyword"},
			"type":        map[string]string{"type": "text"},
			"severity":    map[string]string{"type": "keyword"},
			"source_ip":   map[string]string{"type": "keyword"},
			"destination": map[string]string{"type": "keyword"},
			"description": map[string]string{"type": "text"},
			"timestamp":   map[string]string{"type": "date"},
		},
	},
}

type AlertIndex struct {
	es    *client.ESClient
	index string
}

var _ repository.AlertIndexer = (*AlertIndex)(nil)

func NewAlertIndex(es *client.ESClient, index string) *AlertIndex {
	return &AlertIndex{es: es, index: index}
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (a *AlertIndex) EnsureIndex(ctx context.Context) error {
	es := a.es.Client
	res, err := es.Indices.Exists([]string{a.index}, es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index %s: %w", a.index, err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	body, err := json.Marshal(alertMapping)
	if err != nil {
		return err
	}
	res, err = es.Indices.Create(a.index,
		es.Indices.Create.WithContext(ctx),
		es.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return fmt.Errorf("create index %s: %w", a.index, err)
	}
	if err := a.es.ParseResponse(res, nil); err != nil && !strings.Contains(err.Error(), "resource_already_exists_exception") {
		return fmt.Errorf("create index %s: %w", a.index, err)
	}
	return nil
}

func (a *AlertIndex) IndexAlert(ctx context.Context, alert models.ThreatAlert) error {
	res, err := a.es.IndexDocument(ctx, a.index, alert.ID, alert)
	if err != nil {
		return err
	}
	if err := a.es.ParseResponse(res, nil); err != nil {
		return fmt.Errorf("index alert %s: %w", alert.ID, err)
	}
	return nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.ThreatAlert `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchAlerts runs a full-text query over alert type, description and
// addresses, newest first.
func (a *AlertIndex) SearchAlerts(ctx context.Context, query string, limit int) ([]models.ThreatAlert, error) {
	res, err := a.es.Search(ctx, a.index, searchQuery(query, limit))
	if err != nil {
		return nil, err
	}
	var body searchResponse
	if err := a.es.ParseResponse(res, &body); err != nil {
		return nil, fmt.Errorf("search alerts: %w", err)
	}
	out := make([]models.ThreatAlert, 0, len(body.Hits.Hits))
	for _, hit := range body.Hits.Hits {
		out = append(out, hit.Source)
	}
	return out, nil
}

func searchQuery(query string, limit int) map[string]interface{} {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	match := map[string]interface{}{"match_all": map[string]interface{}{}}
	if q := strings.TrimSpace(query); q != "" {
		match = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":   q,
				"fields":  []string{"type^2", "description", "source_ip", "destination", "severity"},
				"lenient": true,
			},
		}
	}
	return map[string]interface{}{
		"size":  limit,
		"query": match,
		"sort": []interface{}{
			map[string]interface{}{"timestamp": map[string]string{"order": "desc"}},
		},
	}
}
