package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"secops-dashboard/internal/cache"
)

func TestRefresherPruneRemovesExpiredEntries(t *testing.T) {
	ctx := context.Background()
	stale := cache.NewMemoryStore().WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) })
	fresh := cache.NewMemoryStore()
	if err := stale.Put(ctx, "otx:pulses:10", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}
	if err := fresh.Put(ctx, "virustotal:ip:8.8.8.8", []byte(`{}`)); err != nil {
		t.Fatal(err)
	}

	r := NewRefresher(nil, "", time.Hour, zap.NewNop())
	r.AddPruner("otx", stale)
	r.AddPruner("virustotal", fresh)
	r.AddPruner("ignored", nil)
	r.Prune()

	if stale.Len() != 0 {
		t.Errorf("stale entries = %d, want 0", stale.Len())
	}
	if fresh.Len() != 1 {
		t.Errorf("fresh entries = %d, want 1", fresh.Len())
	}
}

func TestRefresherRejectsBadSchedule(t *testing.T) {
	r := NewRefresher(nil, "not a schedule", time.Hour, zap.NewNop())
	if err := r.Start(); err == nil {
		t.Fatal("expected schedule error")
	}
}

func TestRefresherStartStop(t *testing.T) {
	lf := newLookupFixture(t, "", "")
	r := NewRefresher(lf.svc, "@every 1h", time.Hour, zap.NewNop())
	r.AddPruner("otx", cache.NewMemoryStore())
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := len(r.cron.Entries()); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}

	// without an OTX key the refresh is skipped
	r.RefreshPulses()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

type countingSimulator struct {
	ticks atomic.Int32
}

func (c *countingSimulator) Tick(context.Context) { c.ticks.Add(1) }

func TestRefresherSchedulesSimulator(t *testing.T) {
	sim := &countingSimulator{}
	r := NewRefresher(nil, "", 0, zap.NewNop())
	r.SetSimulator("@every 1s", sim)
	if err := r.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := len(r.cron.Entries()); got != 1 {
		t.Errorf("entries = %d, want 1", got)
	}
	r.Simulate()
	if sim.ticks.Load() < 1 {
		t.Fatal("expected the simulator to tick")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	bad := NewRefresher(nil, "", 0, zap.NewNop())
	bad.SetSimulator("whenever", sim)
	if err := bad.Start(); err == nil {
		t.Fatal("expected simulation schedule error")
	}
}
