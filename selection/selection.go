// Package selection implements SelectionStrategy: a pure(-ish; may hold
// internal cursor/reservoir state) function that picks one endpoint
// given parallel endpoint/weight slices produced by a WeightingStrategy.
package selection

import (
	"clientlb/lberrors"
	"context"
)

// Strategy picks one endpoint from the weighted pair. It may be
// stateful internally (e.g. a round-robin cursor) but must be safe for
// concurrent use, since Choose may be called from many goroutines.
type Strategy[C comparable] interface {
	Select(ctx context.Context, endpoints []C, weights []float64) (C, error)
}

// Func adapts a plain function to the Strategy interface.
type Func[C comparable] func(ctx context.Context, endpoints []C, weights []float64) (C, error)

func (f Func[C]) Select(ctx context.Context, endpoints []C, weights []float64) (C, error) {
	return f(ctx, endpoints, weights)
}

func emptyErr[C comparable]() (C, error) {
	var zero C
	return zero, lberrors.ErrNoEndpointsAvailable
}
