package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.CacheResult("virustotal", "hit")
	m.CacheError("virustotal", "get")
	m.ProviderRequest("otx", 200, time.Millisecond)
	m.HTTPRequest("GET", "/health", 200, time.Millisecond)
	m.SubscriptionOpened()
	m.SubscriptionClosed()
}

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := New(reg)
	second := New(reg)

	first.CacheResult("otx", "hit")
	second.CacheResult("otx", "hit")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "secops_cache_lookups_total" {
			continue
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 2 {
			t.Fatalf("expected shared counter value 2, got %v", got)
		}
		return
	}
	t.Fatal("cache counter not registered")
}
