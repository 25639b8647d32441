package intent

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestStatsAggregates(t *testing.T) {
	s := NewStats(nil)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Record(Classification{UserIntent: IntentCost, Confidence: 0.8})
	s.Record(Classification{UserIntent: IntentCost, Confidence: 0.6})
	s.Record(Classification{UserIntent: IntentChoose, Confidence: 0.3})

	snap := s.Snapshot()
	cost := snap["cost"]
	if cost.Count != 2 {
		t.Fatalf("cost count = %d, want 2", cost.Count)
	}
	if math.Abs(cost.AvgConfidence-0.7) > 1e-9 {
		t.Fatalf("cost avg confidence = %v, want 0.7", cost.AvgConfidence)
	}
	if !cost.LastSeen.Equal(now) {
		t.Fatalf("cost last seen = %v, want %v", cost.LastSeen, now)
	}
	if snap["choose"].Count != 1 {
		t.Fatalf("choose count = %d, want 1", snap["choose"].Count)
	}
	if _, ok := snap["fitment"]; ok {
		t.Fatal("unseen intent present in snapshot")
	}
}

func TestStatsSnapshotIsolated(t *testing.T) {
	s := NewStats(nil)
	s.Record(Classification{UserIntent: IntentDo, Confidence: 0.8})
	snap := s.Snapshot()
	snap["do"] = IntentStat{Count: 99}
	if got := s.Snapshot()["do"].Count; got != 1 {
		t.Fatalf("mutating a snapshot leaked into the aggregate: count = %d", got)
	}
}

func TestStatsConcurrentRecord(t *testing.T) {
	s := NewStats(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Record(Classification{UserIntent: IntentFitment, Confidence: 0.9})
		}()
	}
	wg.Wait()
	if got := s.Snapshot()["fitment"].Count; got != 50 {
		t.Fatalf("count = %d, want 50", got)
	}
}
