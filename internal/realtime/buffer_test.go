package realtime

import (
	"testing"
	"time"

	"secops-dashboard/internal/models"
)

func TestTrafficBufferKeepsNewest(t *testing.T) {
	buf := NewBuffer[models.TrafficRecord](TrafficFeedSize, NewestFirst)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		buf.Add(models.TrafficRecord{Port: i, Timestamp: base.Add(time.Duration(i) * time.Second)})
	}

	got := buf.Snapshot()
	if len(got) != 15 {
		t.Fatalf("expected 15 records, got %d", len(got))
	}
	for i, rec := range got {
		if want := 99 - i; rec.Port != want {
			t.Fatalf("position %d: expected record %d, got %d", i, want, rec.Port)
		}
		if i > 0 && !rec.Timestamp.Before(got[i-1].Timestamp) {
			t.Fatalf("records not in descending timestamp order at %d", i)
		}
	}
}

func TestOldestFirstBufferTrimsHead(t *testing.T) {
	buf := NewBuffer[int](3, OldestFirst)
	for i := 1; i <= 5; i++ {
		buf.Add(i)
	}
	got := buf.Snapshot()
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestBufferReset(t *testing.T) {
	newest := NewBuffer[int](2, NewestFirst)
	newest.Reset([]int{9, 8, 7})
	if got := newest.Snapshot(); len(got) != 2 || got[0] != 9 || got[1] != 8 {
		t.Fatalf("expected [9 8], got %v", got)
	}

	oldest := NewBuffer[int](2, OldestFirst)
	oldest.Reset([]int{1, 2, 3})
	if got := oldest.Snapshot(); len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Fatalf("expected [2 3], got %v", got)
	}

	snap := oldest.Snapshot()
	snap[0] = 100
	if oldest.Snapshot()[0] == 100 {
		t.Fatal("snapshot must be a copy")
	}
}
