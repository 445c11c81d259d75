// Package cadence tracks the inter-arrival time of feed frames.
package cadence

import (
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/DataDog/sketches-go/ddsketch/mapping"
	"github.com/DataDog/sketches-go/ddsketch/store"
)

// Stats summarises inter-arrival gaps in milliseconds.
type Stats struct {
	Count int64   `json:"count"`
	P50   float64 `json:"p50_ms"`
	P90   float64 `json:"p90_ms"`
	P99   float64 `json:"p99_ms"`
	Max   float64 `json:"max_ms"`
}

// Tracker accumulates gaps between consecutive arrivals on one connection.
// A new connection must call Reset so the reconnect pause is not counted.
type Tracker struct {
	mu     sync.Mutex
	sketch *ddsketch.DDSketch
	alpha  float64
	last   time.Time
	count  int64
	max    float64
}

// New creates a tracker with relative accuracy alpha (e.g. 0.01).
func New(alpha float64) *Tracker {
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.01
	}
	return &Tracker{sketch: newSketch(alpha), alpha: alpha}
}

func newSketch(alpha float64) *ddsketch.DDSketch {
	m, _ := mapping.NewLogarithmicMapping(alpha)
	return ddsketch.NewDDSketch(m, store.NewDenseStore(), store.NewDenseStore())
}

// Observe records an arrival at t.
func (t *Tracker) Observe(at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.last.IsZero() {
		gap := float64(at.Sub(t.last)) / float64(time.Millisecond)
		if gap >= 0 {
			_ = t.sketch.Add(gap)
			t.count++
			if gap > t.max {
				t.max = gap
			}
		}
	}
	t.last = at
}

// Reset forgets the previous arrival without discarding accumulated gaps.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.last = time.Time{}
	t.mu.Unlock()
}

// Stats returns the current quantiles.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		Count: t.count,
		P50:   quantile(t.sketch, 0.50),
		P90:   quantile(t.sketch, 0.90),
		P99:   quantile(t.sketch, 0.99),
		Max:   t.max,
	}
}

func quantile(s *ddsketch.DDSketch, q float64) float64 {
	if s.GetCount() == 0 {
		return 0
	}
	v, err := s.GetValueAtQuantile(q)
	if err != nil {
		return 0
	}
	return v
}
