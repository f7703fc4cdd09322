// latency.go provides a default MetricsFactory built on a streaming
// histogram, the way go-kit's generic metrics package wraps
// VividCortex/gohistogram to get cheap, dynamically-computed quantiles
// without retaining every observation.
package metrics

import (
	"sync"
	"time"

	"github.com/VividCortex/gohistogram"
)

// Latency is a per-endpoint streaming histogram of round-trip times, in
// milliseconds.
type Latency struct {
	h gohistogram.Histogram
}

func newLatency(buckets int) *Latency {
	return &Latency{h: gohistogram.NewHistogram(buckets)}
}

// Observe records one round-trip duration.
func (l *Latency) Observe(d time.Duration) {
	l.h.Add(float64(d.Milliseconds()))
}

// Quantile returns the q-th quantile (0 < q < 1) of recorded latencies.
func (l *Latency) Quantile(q float64) time.Duration {
	return time.Duration(l.h.Quantile(q)) * time.Millisecond
}

// LatencyFactory is a Factory[C, *Latency] that a caller feeds via
// Record — e.g. wrapping a Connector round trip — and that the load
// balancer's metrics subscription reads the latest histogram handle
// from.
type LatencyFactory[C comparable] struct {
	buckets int

	mu      sync.Mutex
	entries map[C]*latencyEntry
}

type latencyEntry struct {
	metric *Latency
	ch     chan *Latency
}

// NewLatencyFactory creates a latency-histogram MetricsFactory. buckets
// controls the histogram's resolution/memory tradeoff; 50 is a
// reasonable default per go-kit's own NewHistogram doc comment.
func NewLatencyFactory[C comparable](buckets int) *LatencyFactory[C] {
	if buckets <= 0 {
		buckets = 50
	}
	return &LatencyFactory[C]{
		buckets: buckets,
		entries: make(map[C]*latencyEntry),
	}
}

func (f *LatencyFactory[C]) Snapshots(endpoint C) <-chan *Latency {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.entryLocked(endpoint)
	return e.ch
}

// Record observes a duration for endpoint and republishes the (mutated
// in place) histogram handle to any active subscription.
func (f *LatencyFactory[C]) Record(endpoint C, d time.Duration) {
	f.mu.Lock()
	e := f.entryLocked(endpoint)
	f.mu.Unlock()

	e.metric.Observe(d)
	select {
	case e.ch <- e.metric:
	default:
	}
}

func (f *LatencyFactory[C]) entryLocked(endpoint C) *latencyEntry {
	e, ok := f.entries[endpoint]
	if !ok {
		e = &latencyEntry{
			metric: newLatency(f.buckets),
			ch:     make(chan *Latency, 1),
		}
		f.entries[endpoint] = e
	}
	return e
}
