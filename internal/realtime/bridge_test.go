package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func publishInsert(t *testing.T, src *MemorySource, table string, record any) int {
	t.Helper()
	raw, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return src.Publish(ctx, ChangeEvent{Table: table, Type: EventInsert, Record: raw, CommitTime: time.Now()})
}

func waitFor(t *testing.T, ch <-chan ChangeEvent) ChangeEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return ChangeEvent{}
}

func TestBridgeDeliversInserts(t *testing.T) {
	src := NewMemorySource()
	bridge := NewBridge(src, nil, nil)
	defer bridge.Close()

	got := make(chan ChangeEvent, 1)
	unsub := bridge.Subscribe(TableAlerts, func(ev ChangeEvent) { got <- ev })
	defer unsub()

	if n := publishInsert(t, src, TableAlerts, map[string]string{"id": "a1"}); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if ev := waitFor(t, got); ev.Table != TableAlerts {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestBridgeIgnoresNonInserts(t *testing.T) {
	src := NewMemorySource()
	bridge := NewBridge(src, nil, nil)
	defer bridge.Close()

	got := make(chan ChangeEvent, 2)
	bridge.Subscribe(TableTraffic, func(ev ChangeEvent) { got <- ev })

	ctx := context.Background()
	src.Publish(ctx, ChangeEvent{Table: TableTraffic, Type: EventUpdate})
	src.Publish(ctx, ChangeEvent{Table: TableAnomalies, Type: EventInsert})
	select {
	case ev := <-got:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDoubleUnsubscribeIsNoop(t *testing.T) {
	src := NewMemorySource()
	bridge := NewBridge(src, nil, nil)
	defer bridge.Close()

	first := make(chan ChangeEvent, 1)
	second := make(chan ChangeEvent, 1)
	unsubFirst := bridge.Subscribe(TableAlerts, func(ev ChangeEvent) { first <- ev })
	bridge.Subscribe(TableAlerts, func(ev ChangeEvent) { second <- ev })
	if bridge.Len() != 2 {
		t.Fatalf("expected two independent subscriptions, got %d", bridge.Len())
	}

	unsubFirst()
	unsubFirst()

	if bridge.Len() != 1 || src.Subscribers() != 1 {
		t.Fatalf("expected one remaining subscription, bridge=%d source=%d", bridge.Len(), src.Subscribers())
	}
	if n := publishInsert(t, src, TableAlerts, map[string]string{"id": "a2"}); n != 1 {
		t.Fatalf("expected delivery to the remaining subscriber only, got %d", n)
	}
	waitFor(t, second)
	select {
	case <-first:
		t.Fatal("released subscription received an event")
	default:
	}
}

func TestUnsubscribeAll(t *testing.T) {
	src := NewMemorySource()
	bridge := NewBridge(src, nil, nil)
	defer bridge.Close()

	unsub := bridge.Subscribe(TableAlerts, func(ChangeEvent) {})
	bridge.Subscribe(TableTraffic, func(ChangeEvent) {})
	bridge.UnsubscribeAll()

	if bridge.Len() != 0 || src.Subscribers() != 0 {
		t.Fatalf("expected no subscriptions, bridge=%d source=%d", bridge.Len(), src.Subscribers())
	}
	unsub()
}

type failingSource struct{}

func (failingSource) Subscribe(context.Context, Filter) (Stream, error) {
	return nil, errors.New("connection refused")
}

func TestSubscribeFailureReturnsNoopHandle(t *testing.T) {
	for name, bridge := range map[string]*Bridge{
		"failing source": NewBridge(failingSource{}, nil, nil),
		"nil source":     NewBridge(nil, nil, nil),
	} {
		t.Run(name, func(t *testing.T) {
			unsub := bridge.Subscribe(TableAlerts, func(ChangeEvent) {
				t.Error("handler must not run")
			})
			if unsub == nil {
				t.Fatal("expected a handle")
			}
			unsub()
			unsub()
			if bridge.Len() != 0 {
				t.Fatalf("expected no registered subscription, got %d", bridge.Len())
			}
		})
	}
}

func TestHandlerPanicDoesNotStopSubscription(t *testing.T) {
	src := NewMemorySource()
	bridge := NewBridge(src, nil, nil)
	defer bridge.Close()

	var mu sync.Mutex
	calls := 0
	done := make(chan ChangeEvent, 1)
	bridge.Subscribe(TableAlerts, func(ev ChangeEvent) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			panic("bad payload")
		}
		done <- ev
	})

	publishInsert(t, src, TableAlerts, map[string]string{"id": "1"})
	publishInsert(t, src, TableAlerts, map[string]string{"id": "2"})
	waitFor(t, done)
}

func TestClosedSourceRejectsSubscribe(t *testing.T) {
	src := NewMemorySource()
	_ = src.Close()
	if _, err := src.Subscribe(context.Background(), Filter{Table: TableAlerts}); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("expected ErrSourceClosed, got %v", err)
	}
}
