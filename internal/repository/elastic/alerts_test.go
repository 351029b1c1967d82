package elastic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"

	"secops-dashboard/internal/client"
)

func newTestIndex(t *testing.T, handler http.HandlerFunc) *AlertIndex {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return NewAlertIndex(&client.ESClient{Client: es}, "threat-alerts")
}

func TestSearchQueryDefaults(t *testing.T) {
	q := searchQuery("  ", 0)
	if q["size"] != defaultSearchLimit {
		t.Fatalf("expected default size, got %v", q["size"])
	}
	if _, ok := q["query"].(map[string]interface{})["match_all"]; !ok {
		t.Fatalf("blank query should match all, got %v", q["query"])
	}

	q = searchQuery("ransomware", 5)
	mm, ok := q["query"].(map[string]interface{})["multi_match"].(map[string]interface{})
	if !ok || mm["query"] != "ransomware" {
		t.Fatalf("expected multi_match on ransomware, got %v", q["query"])
	}
}

func TestSearchAlertsDecodesHits(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/threat-alerts/_search") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var q map[string]interface{}
		if err := json.Unmarshal(body, &q); err != nil {
			t.Errorf("bad query body: %v", err)
		}
		io.WriteString(w, `{"hits":{"hits":[
			{"_source":{"id":"a1","type":"Port Scan","severity":"warning","source_ip":"10.0.0.5","description":"scan","timestamp":"2024-05-01T10:00:00Z"}},
			{"_source":{"id":"a2","type":"Malware","severity":"critical","description":"dropper","timestamp":"2024-05-01T09:00:00Z"}}
		]}}`)
	})

	alerts, err := idx.SearchAlerts(testContext(t), "scan", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(alerts) != 2 || alerts[0].ID != "a1" || alerts[1].Severity != "critical" {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
}

func TestSearchAlertsReportsClusterError(t *testing.T) {
	idx := newTestIndex(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		io.WriteString(w, `{"error":{"type":"index_not_found_exception","reason":"no such index"},"status":404}`)
	})

	_, err := idx.SearchAlerts(testContext(t), "", 0)
	if err == nil || !strings.Contains(err.Error(), "index_not_found_exception") {
		t.Fatalf("expected index error, got %v", err)
	}
}

// testContext stands in for testing.T.Context (Go 1.24+): a context that is
// cancelled when the test finishes.
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
