package membership

// Static is a membership Source that announces a fixed list of
// endpoints once, then never changes. Useful for tests and for static
// deployments where endpoints are known at process start (mirrors the
// StaticTargetProvider shape used to seed health monitors in simpler
// client-go load balancer prototypes).
type Static[C comparable] struct {
	ch chan Event[C]
}

// NewStatic creates a Source that emits one ADD event per endpoint and
// then stays open forever (matching the contract that stream completion
// is not how shutdown is signaled).
func NewStatic[C comparable](endpoints ...C) *Static[C] {
	ch := make(chan Event[C], len(endpoints))
	for _, e := range endpoints {
		ch <- Event[C]{Type: ADD, Endpoint: e}
	}
	return &Static[C]{ch: ch}
}

func (s *Static[C]) Events() <-chan Event[C] { return s.ch }

func (s *Static[C]) Close() error { return nil }
