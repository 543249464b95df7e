package monitoring

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Latency design budget for engine calls: average under 50ms, hard ceiling
// under 100ms. These are advisory — Summary flags violations, nothing
// asserts them at runtime.
const (
	AvgBudget     = 50 * time.Millisecond
	CeilingBudget = 100 * time.Millisecond
)

// PerfRecorder accumulates call latencies for one operation (e.g. haptic
// play, progress update) and summarises them against the design budget. It
// only observes; it never participates in engine or tracker decisions.
type PerfRecorder struct {
	mu      sync.Mutex
	name    string
	samples []float64 // milliseconds
}

// NewPerfRecorder creates a recorder for the named operation.
func NewPerfRecorder(name string) *PerfRecorder {
	return &PerfRecorder{name: name}
}

// Observe records one call latency.
func (r *PerfRecorder) Observe(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, float64(d)/float64(time.Millisecond))
}

// Count returns the number of recorded samples.
func (r *PerfRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Reset discards all recorded samples.
func (r *PerfRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
}

// PerfSummary is a snapshot of the recorded latency distribution.
type PerfSummary struct {
	Name        string  `json:"name"`
	Count       int     `json:"count"`
	MeanMs      float64 `json:"mean_ms"`
	P95Ms       float64 `json:"p95_ms"`
	MaxMs       float64 `json:"max_ms"`
	OverAvg     bool    `json:"over_avg_budget"`
	OverCeiling bool    `json:"over_ceiling_budget"`
}

// Summary computes the current distribution summary.
func (r *PerfRecorder) Summary() PerfSummary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := PerfSummary{Name: r.name, Count: len(r.samples)}
	if len(r.samples) == 0 {
		return s
	}

	sorted := append([]float64(nil), r.samples...)
	sort.Float64s(sorted)

	s.MeanMs = stat.Mean(sorted, nil)
	s.P95Ms = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	s.MaxMs = sorted[len(sorted)-1]
	s.OverAvg = s.MeanMs > float64(AvgBudget)/float64(time.Millisecond)
	s.OverCeiling = s.MaxMs > float64(CeilingBudget)/float64(time.Millisecond)
	return s
}
