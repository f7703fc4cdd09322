package lb

import (
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"clientlb/activecount"
	"clientlb/backoff"
	"clientlb/connector"
	"clientlb/failuresource"
	"clientlb/fsm"
	"clientlb/membership"
	"clientlb/metrics"
	"clientlb/queue"
)

// controller owns the clients map, the idle/acquired/active bookkeeping
// collections, the pluggable collaborators, and the state graph every
// holder's machine runs against. A LoadBalancer embeds exactly one
// controller.
type controller[C comparable, M any] struct {
	name   string
	logger *zap.Logger

	mu      sync.Mutex
	clients map[C]*holder[C, M]

	idleClients *queue.RandomizedQueue[*holder[C, M]]
	acquired    *holderSet[C, M]
	active      *activeList[C, M]

	policy         activecount.Policy
	backoffPolicy  backoff.Policy
	connector      connector.Connector[C]
	failureSource  failuresource.Source[C]
	metricsFactory metrics.Factory[C, M]
	connectLimiter *rate.Limiter

	stateDefs map[state]*fsm.StateDef[*holder[C, M], state, event]
}

func (c *controller[C, M]) clientsLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clients)
}

func (c *controller[C, M]) get(endpoint C) (*holder[C, M], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.clients[endpoint]
	return h, ok
}

func (c *controller[C, M]) deleteClient(endpoint C) {
	c.mu.Lock()
	delete(c.clients, endpoint)
	c.mu.Unlock()
}

func (c *controller[C, M]) snapshotAllEndpoints() []C {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]C, 0, len(c.clients))
	for ep := range c.clients {
		out = append(out, ep)
	}
	return out
}

// maybeAcquireMore consults the active-count policy and, if fewer
// endpoints are acquired (CONNECTING or CONNECTED) than desired, pulls
// one holder at random out of the idle pool and submits CONNECT to it.
// Called from IDLE's onEnter and right after a new endpoint is added.
//
// The chosen holder is marked acquired here, synchronously, rather than
// waiting for its CONNECTING onEnter to run on its own goroutine: the
// membership consumer processes events one at a time, and a second ADD
// handled right after this one must see the policy's decision already
// reflected, not a stale acquired count from a CONNECT that has merely
// been submitted but not yet dispatched.
func (c *controller[C, M]) maybeAcquireMore() {
	total := c.clientsLen()
	desired := c.policy(total)
	if desired <= c.acquired.Len() {
		return
	}
	next, ok := c.idleClients.PollRandom()
	if !ok {
		return
	}
	c.acquired.Add(next)
	next.sm.Submit(evConnect)
}

// handleMembership applies one membership.Event to the clients map
// under a check-and-insert lock: a previously unknown endpoint gets a
// fresh holder constructed in IDLE and, only if it wins the race to be
// inserted, initialized; losing the race silently discards the
// duplicate without ever starting it. A REMOVE for a known endpoint is
// forwarded to its holder's machine; a REMOVE for an unknown endpoint
// is a no-op. An ADD for an already-known endpoint is likewise a no-op
// (membership sources are expected to report ADD only once per logical
// join).
func (c *controller[C, M]) handleMembership(ev membership.Event[C]) {
	c.mu.Lock()
	_, known := c.clients[ev.Endpoint]
	if known {
		c.mu.Unlock()
		if ev.Type == membership.REMOVE {
			c.submitRemove(ev.Endpoint)
		}
		return
	}
	if ev.Type != membership.ADD {
		c.mu.Unlock()
		return
	}
	h := newHolder[C, M](c, ev.Endpoint)
	c.clients[ev.Endpoint] = h
	c.mu.Unlock()

	h.initialize()
	c.maybeAcquireMore()
}

func (c *controller[C, M]) submitRemove(endpoint C) {
	c.mu.Lock()
	h, known := c.clients[endpoint]
	c.mu.Unlock()
	if known {
		h.sm.Submit(evRemove)
	}
}

// shutdownAll submits REMOVE to every currently known Holder, driving
// each through its own REMOVED onEnter cleanup (subscription teardown,
// connect-task cancellation, map deletion).
func (c *controller[C, M]) shutdownAll() {
	c.mu.Lock()
	holders := make([]*holder[C, M], 0, len(c.clients))
	for _, h := range c.clients {
		holders = append(holders, h)
	}
	c.mu.Unlock()

	for _, h := range holders {
		h.sm.Submit(evRemove)
	}
}
