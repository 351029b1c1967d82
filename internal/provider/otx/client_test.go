package otx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"secops-dashboard/internal/cache"
	"secops-dashboard/internal/provider"
)

const pulsesBody = `{"count":3,"results":[
	{"id":"p1","name":"APT infra","targeted_countries":["United States","Germany"]},
	{"id":"p2","name":"Botnet","targeted_countries":["United States"]},
	{"id":"p3","name":"Phishing","targeted_countries":[]}
]}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:  srv.URL,
		APIKey:   "otx-key",
		Resolver: cache.NewResolver(cache.NewMemoryStore(), Name, nil, nil),
	})
}

func TestIPInfo(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/indicators/IPv4/1.2.3.4/general" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-OTX-API-KEY") != "otx-key" {
			t.Errorf("missing api key header")
		}
		_, _ = io.WriteString(w, `{"indicator":"1.2.3.4","country_code":"RU","pulse_info":{"count":12,"pulses":[]}}`)
	})

	ctx := context.Background()
	info, hit, err := c.IPInfo(ctx, "1.2.3.4")
	if err != nil || hit {
		t.Fatalf("first lookup: hit=%v err=%v", hit, err)
	}
	if info.PulseInfo.Count != 12 || info.CountryCode != "RU" {
		t.Fatalf("unexpected response %+v", info)
	}
	if _, hit, _ = c.IPInfo(ctx, "1.2.3.4"); !hit {
		t.Fatal("second lookup must be cached")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", calls)
	}
}

func TestPulsesCacheKeyIncludesLimit(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/pulses/subscribed" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = io.WriteString(w, pulsesBody)
	})

	ctx := context.Background()
	for _, limit := range []int{10, 10, 20} {
		if _, _, err := c.Pulses(ctx, limit); err != nil {
			t.Fatalf("pulses: %v", err)
		}
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected one call per distinct limit, got %d", calls)
	}
}

func TestGlobalThreatMap(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("expected limit=50, got %s", got)
		}
		_, _ = io.WriteString(w, pulsesBody)
	})

	m, _, err := c.GlobalThreatMap(context.Background())
	if err != nil {
		t.Fatalf("threat map: %v", err)
	}
	if len(m.Regions) != 2 {
		t.Fatalf("expected 2 regions, got %+v", m.Regions)
	}
	if m.Regions[0].ID != "United States" || m.Regions[0].Count != 2 {
		t.Fatalf("expected United States first with 2, got %+v", m.Regions[0])
	}
}

func TestMissingKey(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:0"})
	if _, _, err := c.FileInfo(context.Background(), "abc"); !errors.Is(err, provider.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, _, err := c.GlobalThreatMap(context.Background()); !errors.Is(err, provider.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestBuildThreatMapEmpty(t *testing.T) {
	if m := BuildThreatMap(nil); len(m.Regions) != 0 {
		t.Fatalf("expected no regions, got %+v", m.Regions)
	}
}
