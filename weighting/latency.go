package weighting

import (
	"clientlb/metrics"
)

// Latency weights each endpoint inversely to its median observed
// round-trip latency, so that faster endpoints receive proportionally
// more traffic. Endpoints with no observations yet (nil metrics, or a
// zero quantile) fall back to weight 1 so a freshly connected endpoint
// isn't starved before its histogram warms up.
func Latency[C comparable]() Strategy[C, *metrics.Latency] {
	return func(snapshot []Snapshot[C, *metrics.Latency]) ([]C, []float64) {
		endpoints := make([]C, len(snapshot))
		weights := make([]float64, len(snapshot))
		for i, s := range snapshot {
			endpoints[i] = s.Endpoint
			weights[i] = 1
			if s.Metrics == nil {
				continue
			}
			if ms := s.Metrics.Quantile(0.5).Seconds() * 1000; ms > 0 {
				weights[i] = 1000 / ms
			}
		}
		return endpoints, weights
	}
}
