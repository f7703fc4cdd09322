package selection

import (
	"context"
	"sync/atomic"
)

// RoundRobin is a SelectionStrategy that cycles through the given
// endpoints in order, ignoring weights — the same lock-free
// atomic-counter approach as the teacher's
// loadbalance.RoundRobinBalancer.
type RoundRobin[C comparable] struct {
	counter int64
}

// NewRoundRobin creates a fresh round-robin cursor.
func NewRoundRobin[C comparable]() *RoundRobin[C] {
	return &RoundRobin[C]{}
}

func (r *RoundRobin[C]) Select(ctx context.Context, endpoints []C, weights []float64) (C, error) {
	if len(endpoints) == 0 {
		return emptyErr[C]()
	}
	idx := atomic.AddInt64(&r.counter, 1) % int64(len(endpoints))
	return endpoints[idx], nil
}
