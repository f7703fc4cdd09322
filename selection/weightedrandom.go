package selection

import (
	"context"
	"math/rand"
)

// WeightedRandom picks an endpoint with probability proportional to its
// weight, generalizing the teacher's WeightedRandomBalancer (which
// worked over integer registry.ServiceInstance.Weight) to the float64
// weights a WeightingStrategy produces here.
type WeightedRandom[C comparable] struct{}

// NewWeightedRandom creates a WeightedRandom selection strategy.
func NewWeightedRandom[C comparable]() *WeightedRandom[C] {
	return &WeightedRandom[C]{}
}

func (WeightedRandom[C]) Select(ctx context.Context, endpoints []C, weights []float64) (C, error) {
	if len(endpoints) == 0 {
		return emptyErr[C]()
	}

	var total float64
	for _, w := range weights {
		if w > 0 {
			total += w
		}
	}
	if total <= 0 {
		// No endpoint carries positive weight: fall back to uniform
		// choice rather than surfacing an error for a merely
		// unweighted snapshot.
		return endpoints[rand.Intn(len(endpoints))], nil
	}

	r := rand.Float64() * total
	for i, w := range weights {
		if w <= 0 {
			continue
		}
		r -= w
		if r < 0 {
			return endpoints[i], nil
		}
	}
	return endpoints[len(endpoints)-1], nil
}
