// Package lberrors defines the error values the load balancer surfaces to
// callers. Internal failures (connect errors, failure-source signals,
// illegal state transitions, metrics errors) never reach this package —
// they are logged where they occur and folded into state machine events.
package lberrors

import "errors"

// ErrNoEndpointsAvailable is returned by Choose when the active set is empty.
var ErrNoEndpointsAvailable = errors.New("clientlb: no endpoints available")

// ErrShutDown is returned by Choose, ListAllClients and
// ListActiveClients once Shutdown has been called. A repeated Shutdown
// returns nil.
var ErrShutDown = errors.New("clientlb: load balancer is shut down")
