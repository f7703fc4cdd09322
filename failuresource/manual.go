package failuresource

import "sync"

// Manual is a FailureSource a test drives by hand, injecting failures
// for a specific endpoint on demand — the Go analogue of
// ManualFailureDetector from the original Java implementation, which
// exposed a PublishSubject per client for the test to push onto.
type Manual[C comparable] struct {
	mu   sync.Mutex
	subs map[C]chan error
}

// NewManual creates an empty Manual failure source.
func NewManual[C comparable]() *Manual[C] {
	return &Manual[C]{subs: make(map[C]chan error)}
}

func (m *Manual[C]) Failures(endpoint C) <-chan error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.subs[endpoint]
	if !ok {
		ch = make(chan error, 16)
		m.subs[endpoint] = ch
	}
	return ch
}

// Fail injects one failure for endpoint. If nothing has subscribed to
// endpoint yet, the failure is buffered on a newly created channel and
// delivered once Failures(endpoint) is called.
func (m *Manual[C]) Fail(endpoint C, err error) {
	m.mu.Lock()
	ch, ok := m.subs[endpoint]
	if !ok {
		ch = make(chan error, 16)
		m.subs[endpoint] = ch
	}
	m.mu.Unlock()
	ch <- err
}
