package intent

import (
	"sync"
	"time"

	"github.com/mecaparts/knowledge-gateway/pkg/metrics"
)

// IntentStat is the rolling aggregate for one intent.
type IntentStat struct {
	Count         int64     `json:"count"`
	AvgConfidence float64   `json:"avgConfidence"`
	LastSeen      time.Time `json:"lastSeen"`
}

// Stats aggregates classifications in memory. It is injected into the
// query path rather than kept as package state so tests get isolated
// instances.
type Stats struct {
	mu      sync.Mutex
	counts  map[UserIntent]int64
	confSum map[UserIntent]float64
	last    map[UserIntent]time.Time
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewStats creates an empty aggregate. metrics may be nil.
func NewStats(m *metrics.Metrics) *Stats {
	return &Stats{
		counts:  make(map[UserIntent]int64),
		confSum: make(map[UserIntent]float64),
		last:    make(map[UserIntent]time.Time),
		metrics: m,
		now:     time.Now,
	}
}

// Record folds one classification into the aggregate.
func (s *Stats) Record(c Classification) {
	s.mu.Lock()
	s.counts[c.UserIntent]++
	s.confSum[c.UserIntent] += c.Confidence
	s.last[c.UserIntent] = s.now().UTC()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.IntentsTotal.WithLabelValues(string(c.UserIntent)).Inc()
	}
}

// Snapshot returns a copy of the per-intent aggregates keyed by intent name.
func (s *Stats) Snapshot() map[string]IntentStat {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]IntentStat, len(s.counts))
	for intent, count := range s.counts {
		stat := IntentStat{Count: count, LastSeen: s.last[intent]}
		if count > 0 {
			stat.AvgConfidence = s.confSum[intent] / float64(count)
		}
		out[string(intent)] = stat
	}
	return out
}
