// Package connector defines the external Connector collaborator: given
// an endpoint, it yields an eventual "ready" signal or error. The load
// balancer core may invoke a Connector multiple times for the same
// endpoint across reconnects, so implementations must be idempotent
// with respect to repeated calls.
package connector

import "context"

// Connector attempts to ready an endpoint for use. Connect should
// respect ctx cancellation: the caller cancels ctx to abandon an
// in-flight attempt (e.g. because the endpoint was removed).
type Connector[C comparable] interface {
	Connect(ctx context.Context, endpoint C) error
}

// Func adapts a plain function to the Connector interface.
type Func[C comparable] func(ctx context.Context, endpoint C) error

func (f Func[C]) Connect(ctx context.Context, endpoint C) error { return f(ctx, endpoint) }

// Immediate is a Connector where every attempt succeeds without delay.
func Immediate[C comparable]() Connector[C] {
	return Func[C](func(ctx context.Context, endpoint C) error { return nil })
}

// AlwaysError is a Connector every attempt of which fails with err.
// Mirrors Executors.error in the original Java implementation.
func AlwaysError[C comparable](err error) Connector[C] {
	return Func[C](func(ctx context.Context, endpoint C) error { return err })
}
