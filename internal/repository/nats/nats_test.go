package nats

import (
	"testing"

	"secops-dashboard/internal/realtime"
)

func TestDecodeMessageDefaults(t *testing.T) {
	ev, err := decodeMessage([]byte(`{"record":{"id":"1","value":0.4}}`), realtime.TableAnomalies)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Table != realtime.TableAnomalies || ev.Type != realtime.EventInsert {
		t.Fatalf("unexpected defaults %+v", ev)
	}
	if ev.CommitTime.IsZero() {
		t.Fatalf("expected commit time default")
	}
}

func TestDecodeMessageKeepsExplicitType(t *testing.T) {
	ev, err := decodeMessage([]byte(`{"table":"threat_alerts","type":"DELETE"}`), realtime.TableAnomalies)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Table != realtime.TableAlerts || ev.Type != realtime.EventDelete {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestSubject(t *testing.T) {
	src := NewChangeSource(nil, "secops.changes", nil)
	if got := src.Subject(realtime.TableAlerts); got != "secops.changes.threat_alerts" {
		t.Fatalf("unexpected subject %q", got)
	}
}
