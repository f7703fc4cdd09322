package connector

import (
	"context"
	"errors"
	"sync"
)

// ErrManualConnectFailed is returned by Manual when an endpoint is set
// to the down state.
var ErrManualConnectFailed = errors.New("connector: manual endpoint is down")

// Manual is a Connector a test can flip between succeeding and failing
// per endpoint, or suspend indefinitely (connect never returns until ctx
// is canceled) — the Go analogue of MutableInstance's up/down toggle
// from the original Java implementation, extended with a "hang" mode to
// deterministically exercise removal-during-connect.
type Manual[C comparable] struct {
	mu       sync.Mutex
	down     map[C]bool
	suspend  map[C]bool
	attempts map[C]int
}

// NewManual creates a Manual connector where every endpoint defaults to
// "up" (connects succeed immediately) until configured otherwise.
func NewManual[C comparable]() *Manual[C] {
	return &Manual[C]{
		down:     make(map[C]bool),
		suspend:  make(map[C]bool),
		attempts: make(map[C]int),
	}
}

// SetUp marks endpoint as succeeding on the next connect attempts.
func (m *Manual[C]) SetUp(endpoint C) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down[endpoint] = false
	m.suspend[endpoint] = false
}

// SetDown marks endpoint as failing on the next connect attempts.
func (m *Manual[C]) SetDown(endpoint C) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down[endpoint] = true
	m.suspend[endpoint] = false
}

// Suspend marks endpoint as hanging indefinitely: Connect blocks until
// ctx is canceled.
func (m *Manual[C]) Suspend(endpoint C) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspend[endpoint] = true
}

// Attempts returns how many times Connect has been called for endpoint.
func (m *Manual[C]) Attempts(endpoint C) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts[endpoint]
}

func (m *Manual[C]) Connect(ctx context.Context, endpoint C) error {
	m.mu.Lock()
	m.attempts[endpoint]++
	suspended := m.suspend[endpoint]
	down := m.down[endpoint]
	m.mu.Unlock()

	if suspended {
		<-ctx.Done()
		return ctx.Err()
	}
	if down {
		return ErrManualConnectFailed
	}
	return nil
}
