package realtime

import (
	"sync"
	"testing"
	"time"

	"secops-dashboard/internal/models"
)

type recordingNotifier struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recordingNotifier) Notify(n Notification) {
	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.mu.Unlock()
}

func (r *recordingNotifier) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	topics []string
}

func (r *recordingBroadcaster) Broadcast(topic, kind string, data any) {
	r.mu.Lock()
	r.topics = append(r.topics, topic)
	r.mu.Unlock()
}

func TestFeedsAlertInsert(t *testing.T) {
	notes := &recordingNotifier{}
	bc := &recordingBroadcaster{}
	feeds := NewFeeds(notes, bc, nil)

	feeds.OnAlertInsert(ChangeEvent{
		Table:  TableAlerts,
		Type:   EventInsert,
		Record: []byte(`{"id":"a1","type":"Brute Force Attack","severity":"critical","source_ip":"192.168.1.105","timestamp":"2024-05-01T10:00:00Z"}`),
	})

	alerts := feeds.Alerts.Snapshot()
	if len(alerts) != 1 || alerts[0].ID != "a1" {
		t.Fatalf("unexpected alerts %+v", alerts)
	}
	got := notes.all()
	if len(got) != 1 || got[0].Title != "New Threat Detected" || got[0].Variant != VariantDestructive {
		t.Fatalf("unexpected notifications %+v", got)
	}
	if got[0].Description != "Brute Force Attack from 192.168.1.105" {
		t.Fatalf("unexpected description %q", got[0].Description)
	}
	if len(bc.topics) != 1 || bc.topics[0] != TableAlerts {
		t.Fatalf("expected one alerts frame, got %v", bc.topics)
	}
}

func TestFeedsTrafficNotifiesAboveThreshold(t *testing.T) {
	notes := &recordingNotifier{}
	feeds := NewFeeds(notes, nil, nil)

	feeds.OnTrafficInsert(ChangeEvent{Table: TableTraffic, Type: EventInsert,
		Record: []byte(`{"id":"t1","source_ip":"10.0.0.42","anomaly_score":0.8}`)})
	feeds.OnTrafficInsert(ChangeEvent{Table: TableTraffic, Type: EventInsert,
		Record: []byte(`{"id":"t2","source_ip":"10.0.0.42","anomaly_score":0.91}`)})

	if feeds.Traffic.Len() != 2 {
		t.Fatalf("expected 2 traffic records, got %d", feeds.Traffic.Len())
	}
	if feeds.Traffic.Snapshot()[0].ID != "t2" {
		t.Fatal("expected newest traffic first")
	}
	got := notes.all()
	if len(got) != 1 || got[0].Description != "High anomaly score (0.91) from 10.0.0.42" {
		t.Fatalf("expected one suspicious traffic notification, got %+v", got)
	}
}

func TestFeedsAnomalyScaledAndAppended(t *testing.T) {
	feeds := NewFeeds(nil, nil, nil)
	commit := time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC)
	for i := 0; i < AnomalyFeedSize+5; i++ {
		feeds.OnAnomalyInsert(ChangeEvent{Table: TableAnomalies, Type: EventInsert, CommitTime: commit.Add(time.Duration(i) * time.Minute),
			Record: []byte(`{"id":"x","value":0.25}`)})
	}
	samples := feeds.Anomalies.Snapshot()
	if len(samples) != AnomalyFeedSize {
		t.Fatalf("expected %d samples, got %d", AnomalyFeedSize, len(samples))
	}
	if samples[0].Score != 25 {
		t.Fatalf("expected score 25, got %v", samples[0].Score)
	}
	if !samples[0].Timestamp.Before(samples[len(samples)-1].Timestamp) {
		t.Fatal("expected ascending order")
	}
	if samples[0].Time != "08:35:00" {
		t.Fatalf("expected oldest five samples evicted, first is %s", samples[0].Time)
	}
}

func TestFeedsDropUndecodable(t *testing.T) {
	feeds := NewFeeds(nil, nil, nil)
	feeds.OnAlertInsert(ChangeEvent{Table: TableAlerts, Record: []byte(`not json`)})
	if feeds.Alerts.Len() != 0 {
		t.Fatal("undecodable event must be dropped")
	}
}

func TestFeedsStartFollowsSource(t *testing.T) {
	src := NewMemorySource()
	bridge := NewBridge(src, nil, nil)
	defer bridge.Close()

	feeds := NewFeeds(nil, nil, nil)
	feeds.Start(bridge)
	defer feeds.Stop()

	publishInsert(t, src, TableAlerts, models.AlertRow{ID: "live-1", Type: "Port Scanning", Severity: "warning", Timestamp: time.Now()})

	deadline := time.Now().Add(2 * time.Second)
	for feeds.Alerts.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("alert never reached the feed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	feeds.Stop()
	if src.Subscribers() != 0 {
		t.Fatalf("expected all streams released, got %d", src.Subscribers())
	}
}
