// Package metrics defines the external MetricsFactory collaborator:
// given an endpoint, it yields an asynchronous stream of metrics
// snapshots. The load balancer keeps only the latest value per
// endpoint.
package metrics

// Factory produces a stream of metrics snapshots of type M for an
// endpoint of type C. The factory is called once per endpoint; the
// returned channel may emit any number of times over the endpoint's
// lifetime.
type Factory[C comparable, M any] interface {
	Snapshots(endpoint C) <-chan M
}

// Func adapts a plain function to the Factory interface.
type Func[C comparable, M any] func(endpoint C) <-chan M

func (f Func[C, M]) Snapshots(endpoint C) <-chan M { return f(endpoint) }

// Static is a MetricsFactory that immediately emits one fixed value and
// never updates it — useful when C and M are effectively the same type,
// matching the builder doc's note that a factory can simply
// Observable.just(client) when no separate metric is tracked.
func Static[C comparable, M any](value M) Factory[C, M] {
	return Func[C, M](func(endpoint C) <-chan M {
		ch := make(chan M, 1)
		ch <- value
		return ch
	})
}
