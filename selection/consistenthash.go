package selection

import (
	"context"
	"fmt"
	"hash/crc32"
	"sort"
)

// affinityKeyCtxKey is the context key used to pass a session-affinity
// key into Select for ConsistentHash. Set it with WithAffinityKey.
type affinityKeyCtxKey struct{}

// WithAffinityKey attaches a session-affinity key (e.g. a user or
// session id) to ctx for ConsistentHash to hash on. Callers using other
// selection strategies can ignore this.
func WithAffinityKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, affinityKeyCtxKey{}, key)
}

// ConsistentHash is a SelectionStrategy for stateful callers that want a
// given key to keep landing on the same endpoint as the active set
// changes. A selection strategy is otherwise pure over endpoints and
// weights, so session affinity needs a per-call key, which this
// strategy reads from ctx via WithAffinityKey. It generalizes the
// teacher's ConsistentHashBalancer from a fixed registry of instances to
// whatever active set the selection pipeline hands it on each call.
//
// Unlike the teacher's balancer, the ring here is rebuilt from the
// endpoints slice on every Select call rather than maintained
// incrementally — the active set is already snapshotted upstream, so
// this trades a little CPU for not needing an Add/Remove lifecycle of
// its own.
type ConsistentHash[C comparable] struct {
	replicas int
	toKey    func(C) string
}

// NewConsistentHash creates a ConsistentHash strategy with 100 virtual
// nodes per endpoint (the teacher's chosen replica count). toKey
// converts an endpoint value into the string hashed onto the ring.
func NewConsistentHash[C comparable](toKey func(C) string) *ConsistentHash[C] {
	return &ConsistentHash[C]{replicas: 100, toKey: toKey}
}

func (c *ConsistentHash[C]) Select(ctx context.Context, endpoints []C, weights []float64) (C, error) {
	if len(endpoints) == 0 {
		return emptyErr[C]()
	}

	key, _ := ctx.Value(affinityKeyCtxKey{}).(string)
	if key == "" {
		return endpoints[0], nil
	}

	type node struct {
		hash uint32
		ep   C
	}
	ring := make([]node, 0, len(endpoints)*c.replicas)
	for _, ep := range endpoints {
		base := c.toKey(ep)
		for i := 0; i < c.replicas; i++ {
			h := crc32.ChecksumIEEE([]byte(fmt.Sprintf("%s#%d", base, i)))
			ring = append(ring, node{hash: h, ep: ep})
		}
	}
	sort.Slice(ring, func(i, j int) bool { return ring[i].hash < ring[j].hash })

	target := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(ring), func(i int) bool { return ring[i].hash >= target })
	if idx == len(ring) {
		idx = 0
	}
	return ring[idx].ep, nil
}
