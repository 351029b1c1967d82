package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"secops-dashboard/internal/cache"
	"secops-dashboard/internal/config"
	"secops-dashboard/internal/models"
	"secops-dashboard/internal/provider"
	"secops-dashboard/internal/provider/otx"
	"secops-dashboard/internal/provider/virustotal"
	"secops-dashboard/internal/realtime"
	"secops-dashboard/internal/repository"
	"secops-dashboard/internal/repository/fixture"
	"secops-dashboard/internal/service"
	"secops-dashboard/internal/ws"
)

const googleDNS = `{"data":{"id":"8.8.8.8","type":"ip_address","attributes":{"last_analysis_stats":{"malicious":2,"suspicious":1,"harmless":57,"undetected":10,"timeout":0}}}}`

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Meta    *Meta           `json:"meta"`
}

type denyLimiter struct{ err error }

func (d denyLimiter) Allow(context.Context, string) (bool, int, error) {
	return false, 31, d.err
}

type staticHealth map[string]error

func (s staticHealth) HealthCheck(context.Context) map[string]error { return s }

type testServer struct {
	router http.Handler
	hub    *ws.Hub
	feeds  *realtime.Feeds
}

func newTestServer(t *testing.T, limiter RateLimiter, health HealthChecker) *testServer {
	t.Helper()
	logger := zap.NewNop()

	vtSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ip_addresses/8.8.8.8":
			io.WriteString(w, googleDNS)
		case "/ip_addresses/192.0.2.1":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(vtSrv.Close)

	source := fixture.New(nil, nil)
	factory := service.NewServiceFactory(service.Dependencies{
		Source: source,
		VirusTotal: virustotal.NewClient(virustotal.Options{
			BaseURL:  vtSrv.URL,
			Resolver: cache.NewResolver(cache.NewMemoryStore(), virustotal.Name, nil, nil),
		}),
		OTX: otx.NewClient(otx.Options{
			BaseURL:  vtSrv.URL,
			Resolver: cache.NewResolver(cache.NewMemoryStore(), otx.Name, nil, nil),
		}),
	}, logger)

	hub := ws.NewHub(logger, nil)
	t.Cleanup(hub.Close)
	feeds := realtime.NewFeeds(nil, hub, logger)

	cfg := &config.Config{Server: config.ServerConfig{AllowedOrigins: []string{"*"}}}
	router := NewRouter(RouterOptions{
		Config: cfg,
		Dashboard: NewDashboardHandler(factory.AlertService(), factory.TrafficService(),
			factory.StatusService(), factory.LogAnalysisService(), logger),
		Intel:    NewIntelHandler(factory.LookupService(), RateLimit(limiter, nil, logger), logger),
		Realtime: NewRealtimeHandler(hub, feeds, cfg.Server.AllowedOrigins, logger),
		Health:   health,
		Logger:   logger,
	})
	return &testServer{router: router, hub: hub, feeds: feeds}
}

func (s *testServer) do(t *testing.T, method, target string, body io.Reader, contentType string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: decode body %q: %v", method, target, rec.Body.String(), err)
		}
	}
	return rec.Code, env
}

func TestListAlertsEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)

	code, env := s.do(t, http.MethodGet, "/api/v1/alerts?severity=critical", nil, "")
	if code != http.StatusOK || !env.Success {
		t.Fatalf("expected 200, got %d %+v", code, env)
	}
	var alerts []models.ThreatAlert
	if err := json.Unmarshal(env.Data, &alerts); err != nil {
		t.Fatalf("decode alerts: %v", err)
	}
	if len(alerts) != 3 || env.Meta == nil || env.Meta.Mode != config.DataModeFixture {
		t.Fatalf("unexpected alerts %d meta %+v", len(alerts), env.Meta)
	}

	code, env = s.do(t, http.MethodGet, "/api/v1/alerts?severity=severe", nil, "")
	if code != http.StatusBadRequest || env.Success {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestDashboardEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)

	cases := []struct {
		method, target string
		body           string
		want           int
	}{
		{http.MethodGet, "/api/v1/traffic?sort=bytes&order=asc", "", http.StatusOK},
		{http.MethodGet, "/api/v1/traffic?sort=color", "", http.StatusBadRequest},
		{http.MethodGet, "/api/v1/anomalies", "", http.StatusOK},
		{http.MethodGet, "/api/v1/status", "", http.StatusOK},
		{http.MethodGet, "/api/v1/systems/health", "", http.StatusOK},
		{http.MethodGet, "/api/v1/alerts/search?q=brute", "", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/alerts/analyze", `{"type":"Port Scan","severity":"critical","source_ip":"10.1.1.1"}`, http.StatusCreated},
		{http.MethodPost, "/api/v1/alerts/analyze", `{"type":"Port Scan","severity":"urgent"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/alerts/analyze", `not json`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/alerts/analyze", `{"type":"Port Scan","severity":"info","description":"` + strings.Repeat("a", 3000) + `"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/alerts/analyze", `{"type":"Port Scan","severity":"info","description":"` + strings.Repeat("a", 20<<10) + `"}`, http.StatusBadRequest},
		{http.MethodPost, "/api/v1/alerts/analyze", `{"type":"Phishing Attempt","severity":"info","source_ip":"Email Gateway","destination":"Multiple Recipients"}`, http.StatusCreated},
		{http.MethodGet, "/api/v1/nowhere", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		var body io.Reader
		if tc.body != "" {
			body = strings.NewReader(tc.body)
		}
		code, env := s.do(t, tc.method, tc.target, body, "application/json")
		if code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d (%s)", tc.method, tc.target, tc.want, code, env.Error)
		}
	}
}

func multipartBody(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	io.WriteString(part, content)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestAnalyzeLogEndpoint(t *testing.T) {
	s := newTestServer(t, nil, nil)

	body, ct := multipartBody(t, "file", "auth.log", "login ok\nlogin failed for admin\naccess denied\n")
	code, env := s.do(t, http.MethodPost, "/api/v1/logs/analyze", body, ct)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", code, env.Error)
	}
	var result models.LogAnalysisResult
	if err := json.Unmarshal(env.Data, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.SuspiciousEntries) != 2 || result.ThreatDetected {
		t.Fatalf("unexpected result %+v", result)
	}

	body, ct = multipartBody(t, "other", "auth.log", "x")
	if code, _ := s.do(t, http.MethodPost, "/api/v1/logs/analyze", body, ct); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file field, got %d", code)
	}

	body, ct = multipartBody(t, "file", "empty.log", "")
	if code, _ := s.do(t, http.MethodPost, "/api/v1/logs/analyze", body, ct); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty log, got %d", code)
	}
}

func TestVirusTotalEndpoints(t *testing.T) {
	s := newTestServer(t, nil, nil)

	if code, _ := s.do(t, http.MethodGet, "/api/v1/virustotal/ip/8.8.8.8", nil, ""); code != http.StatusPreconditionFailed {
		t.Fatalf("expected 412 without key, got %d", code)
	}

	code, env := s.do(t, http.MethodPut, "/api/v1/virustotal/key", strings.NewReader(`{"apiKey":"k"}`), "application/json")
	if code != http.StatusOK {
		t.Fatalf("set key: %d %s", code, env.Error)
	}
	var keys service.KeyStatus
	if err := json.Unmarshal(env.Data, &keys); err != nil || !keys.VirusTotal || keys.OTX {
		t.Fatalf("unexpected key status %+v %v", keys, err)
	}

	code, env = s.do(t, http.MethodGet, "/api/v1/virustotal/ip/8.8.8.8", nil, "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", code, env.Error)
	}
	var report service.VTReport
	if err := json.Unmarshal(env.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Alerted || report.ThreatScore <= 0 || report.ThreatScore >= 0.3 {
		t.Fatalf("unexpected report %+v", report)
	}

	if code, _ := s.do(t, http.MethodGet, "/api/v1/virustotal/domain/unknown.example", nil, ""); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	code, env = s.do(t, http.MethodGet, "/api/v1/virustotal/ip/192.0.2.1", nil, "")
	if code != http.StatusBadGateway || strings.Contains(env.Error, "boom") {
		t.Fatalf("expected generic 502, got %d %q", code, env.Error)
	}
	if code, _ := s.do(t, http.MethodGet, "/api/v1/virustotal/file/not-a-hash", nil, ""); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestLookupRoutesAreRateLimited(t *testing.T) {
	s := newTestServer(t, denyLimiter{}, nil)

	if code, _ := s.do(t, http.MethodGet, "/api/v1/otx/ip/8.8.8.8", nil, ""); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", code)
	}
	// key management is not limited
	if code, _ := s.do(t, http.MethodPut, "/api/v1/otx/key", strings.NewReader(`{"apiKey":"k"}`), "application/json"); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	failing := newTestServer(t, denyLimiter{err: errors.New("redis down")}, nil)
	if code, _ := failing.do(t, http.MethodGet, "/api/v1/otx/ip/8.8.8.8", nil, ""); code != http.StatusPreconditionFailed {
		t.Fatalf("limiter failure must let the request through, got %d", code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	healthy := newTestServer(t, nil, staticHealth{"postgres": nil})
	if code, _ := healthy.do(t, http.MethodGet, "/health", nil, ""); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}

	degraded := newTestServer(t, nil, staticHealth{"postgres": nil, "redis": errors.New("timeout")})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	degraded.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var report healthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.Status != "degraded" || report.Components["redis"] != "timeout" || report.Components["postgres"] != "ok" {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestGetStatusCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("virustotal: %w", provider.ErrMissingCredential), http.StatusPreconditionFailed},
		{&provider.APIError{Provider: "otx", StatusCode: 404}, http.StatusNotFound},
		{&provider.APIError{Provider: "otx", StatusCode: 429}, http.StatusBadGateway},
		{fmt.Errorf("otx: GET /x: %w: %w", provider.ErrUpstream, errors.New("dial")), http.StatusBadGateway},
		{fmt.Errorf("system status: %w", repository.ErrNoData), http.StatusServiceUnavailable},
		{service.ErrSearchUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: bad", service.ErrInvalidInput), http.StatusBadRequest},
		{service.ErrUnsupportedSort, http.StatusBadRequest},
		{service.ErrEmptyLogFile, http.StatusBadRequest},
		{service.ErrLogFileTooLarge, http.StatusRequestEntityTooLarge},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := getStatusCode(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:5173", "https://*"}
	cases := map[string]bool{
		"":                      true,
		"http://localhost:5173": true,
		"https://soc.example":   true,
		"http://evil.example":   false,
	}
	for origin, want := range cases {
		if got := originAllowed(origin, allowed); got != want {
			t.Fatalf("%q: expected %v, got %v", origin, want, got)
		}
	}
}

func TestWebSocketSnapshotAndBroadcast(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.feeds.Alerts.Add(models.ThreatAlert{ID: "a1", Type: "Port Scan", Severity: models.SeverityWarning})

	srv := httptest.NewServer(s.router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snapshot struct {
		Topic string                `json:"topic"`
		Data  realtime.FeedSnapshot `json:"data"`
	}
	if err := conn.ReadJSON(&snapshot); err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if snapshot.Topic != "snapshot" || len(snapshot.Data.Alerts) != 1 || snapshot.Data.Alerts[0].ID != "a1" {
		t.Fatalf("unexpected snapshot %+v", snapshot)
	}

	// the client is registered before its snapshot is written
	if n := s.hub.Clients(); n != 1 {
		t.Fatalf("expected the client to be registered once the snapshot arrives, got %d", n)
	}

	s.hub.Broadcast(realtime.TableAlerts, "insert", models.ThreatAlert{ID: "a2"})
	var frame ws.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Topic != realtime.TableAlerts || frame.Type != "insert" {
		t.Fatalf("unexpected frame %+v", frame)
	}
}
