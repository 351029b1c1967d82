package virustotal

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"secops-dashboard/internal/cache"
	"secops-dashboard/internal/provider"
	"secops-dashboard/internal/scoring"
)

const googleDNS = `{"data":{"id":"8.8.8.8","type":"ip_address","attributes":{"country":"US","as_owner":"GOOGLE","last_analysis_stats":{"malicious":2,"suspicious":1,"harmless":57,"undetected":10,"timeout":0}}}}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *cache.MemoryStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	store := cache.NewMemoryStore()
	return NewClient(Options{
		BaseURL:  srv.URL,
		APIKey:   "test-key",
		Resolver: cache.NewResolver(store, Name, nil, nil),
	}), store
}

func TestLookupIPCachesReport(t *testing.T) {
	var calls int32
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/ip_addresses/8.8.8.8" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-apikey") != "test-key" {
			t.Errorf("missing api key header")
		}
		_, _ = io.WriteString(w, googleDNS)
	})

	ctx := context.Background()
	obj, hit, err := c.LookupIP(ctx, "8.8.8.8")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if hit {
		t.Fatal("first lookup must miss")
	}
	score := scoring.Score(obj.DetectionStats())
	if math.Abs(score-0.0357) > 1e-4 {
		t.Fatalf("expected score ~0.0357, got %v", score)
	}

	if _, hit, err = c.LookupIP(ctx, "8.8.8.8"); err != nil || !hit {
		t.Fatalf("second lookup must be served from cache, hit=%v err=%v", hit, err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected one upstream call, got %d", calls)
	}
	if _, found, _ := store.Get(ctx, "ip_8.8.8.8"); !found {
		t.Fatal("expected entry under ip_8.8.8.8")
	}
}

func TestMissingKeyShortCircuits(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()
	c := NewClient(Options{BaseURL: srv.URL})

	if _, _, err := c.LookupDomain(context.Background(), "example.com"); !errors.Is(err, provider.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if _, err := c.SubmitURL(context.Background(), "https://example.com"); !errors.Is(err, provider.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Fatalf("expected no upstream calls, got %d", calls)
	}

	c.SetAPIKey("k")
	if !c.HasAPIKey() {
		t.Fatal("expected key to be set")
	}
}

func TestSubmitURLIsNotCached(t *testing.T) {
	var calls int32
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Method != http.MethodPost || r.URL.Path != "/urls" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil || r.PostForm.Get("url") != "https://example.com" {
			t.Errorf("unexpected form %v %v", r.PostForm, err)
		}
		_, _ = io.WriteString(w, `{"data":{"id":"u-abc-123","type":"analysis"}}`)
	})

	for i := 0; i < 2; i++ {
		id, err := c.SubmitURL(context.Background(), "https://example.com")
		if err != nil || id != "u-abc-123" {
			t.Fatalf("submit: id=%q err=%v", id, err)
		}
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected every submission to reach upstream, got %d", calls)
	}
	if store.Len() != 0 {
		t.Fatalf("submissions must not be cached, got %d entries", store.Len())
	}
}

func TestUploadFileAndAnalysisReport(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/files":
			f, hdr, err := r.FormFile("file")
			if err != nil {
				t.Errorf("form file: %v", err)
				return
			}
			body, _ := io.ReadAll(f)
			if hdr.Filename != "sample.bin" || string(body) != "MZ" {
				t.Errorf("unexpected upload %s %q", hdr.Filename, body)
			}
			_, _ = io.WriteString(w, `{"data":{"id":"an-1","type":"analysis"}}`)
		case r.URL.Path == "/analyses/an-1":
			_, _ = io.WriteString(w, `{"data":{"id":"an-1","type":"analysis","attributes":{"status":"completed","stats":{"malicious":10,"suspicious":0,"harmless":0,"undetected":0,"timeout":0}}}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	ctx := context.Background()
	id, err := c.UploadFile(ctx, "sample.bin", strings.NewReader("MZ"))
	if err != nil || id != "an-1" {
		t.Fatalf("upload: id=%q err=%v", id, err)
	}
	obj, _, err := c.GetAnalysisReport(ctx, id)
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	if scoring.Score(obj.DetectionStats()) != 1 {
		t.Fatalf("expected analysis stats to be scored, got %+v", obj.Attributes)
	}
}

func TestUpstreamErrorIsNotCached(t *testing.T) {
	var calls int32
	c, store := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, _, err := c.LookupFile(context.Background(), "44d88612fea8a8f36de82e1278abb02f")
	var apiErr *provider.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 APIError, got %v", err)
	}
	if store.Len() != 0 {
		t.Fatal("errors must not be cached")
	}
}
