// Package failuresource defines the external FailureSource collaborator:
// given an endpoint, it yields an asynchronous stream of failures. Each
// emission counts as one failure; the stream never completes under
// normal operation.
package failuresource

// Source is the collaborator the load balancer subscribes to per
// endpoint. Source must be safe to invoke once per endpoint and keep
// emitting on the returned channel for the lifetime of that endpoint.
type Source[C comparable] interface {
	// Failures returns the channel of failure errors for endpoint. The
	// load balancer reads from this channel until the endpoint is
	// removed, at which point it stops reading (the channel need not be
	// closed by the implementation).
	Failures(endpoint C) <-chan error
}

// EndpointCloser is implemented by FailureSources that hold per-endpoint
// resources (e.g. TCPProbe's background dial loop) that must be
// released once an endpoint leaves the load balancer. The load balancer
// checks for this interface on REMOVED cleanup; a Source that doesn't
// need it simply doesn't implement it.
type EndpointCloser[C comparable] interface {
	StopProbing(endpoint C)
}

// Func adapts a plain function to the Source interface.
type Func[C comparable] func(endpoint C) <-chan error

func (f Func[C]) Failures(endpoint C) <-chan error { return f(endpoint) }

// Never is a FailureSource that never emits a failure.
func Never[C comparable]() Source[C] {
	return Func[C](func(endpoint C) <-chan error {
		return make(chan error) // never written to, never closed
	})
}
