package fixture

import (
	"context"
	"math/rand"
	"sync"

	"secops-dashboard/internal/models"
)

// Simulator feeds the fixture source with traffic and anomaly inserts so the
// live feeds keep moving without a backend. Each tick replays a random seed
// connection with a jittered anomaly score and walks the anomaly series.
type Simulator struct {
	source *Source

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(source *Source, seed int64) *Simulator {
	return &Simulator{source: source, rng: rand.New(rand.NewSource(seed))}
}

// Tick inserts one traffic record and one anomaly sample.
func (s *Simulator) Tick(ctx context.Context) {
	s.source.mu.RLock()
	templates := append([]models.TrafficRow(nil), s.source.traffic...)
	last := 0.5
	if n := len(s.source.anomalies); n > 0 {
		last = s.source.anomalies[n-1].Value
	}
	s.source.mu.RUnlock()

	s.mu.Lock()
	var row models.TrafficRow
	if len(templates) > 0 {
		row = templates[s.rng.Intn(len(templates))]
	}
	row.ID = ""
	row.AnomalyScore = clamp(row.AnomalyScore+s.rng.Float64()*0.2-0.1, 0, 1)
	row.Bytes += int64(s.rng.Intn(512))
	value := clamp(last+s.rng.Float64()*0.1-0.05, 0, 1)
	s.mu.Unlock()

	row.Timestamp = s.source.now().UTC()
	s.source.InsertTraffic(ctx, row)
	s.source.InsertAnomaly(ctx, value)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}
