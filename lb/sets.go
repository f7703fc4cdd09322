package lb

import "sync"

// holderSet tracks every holder currently in CONNECTING or CONNECTED,
// consulted by the active-count governor. A plain mutex-guarded map;
// membership changes are rare relative to Choose() calls, which never
// touch it.
type holderSet[C comparable, M any] struct {
	mu sync.Mutex
	m  map[*holder[C, M]]struct{}
}

func newHolderSet[C comparable, M any]() *holderSet[C, M] {
	return &holderSet[C, M]{m: make(map[*holder[C, M]]struct{})}
}

func (s *holderSet[C, M]) Add(h *holder[C, M]) {
	s.mu.Lock()
	s.m[h] = struct{}{}
	s.mu.Unlock()
}

func (s *holderSet[C, M]) Remove(h *holder[C, M]) {
	s.mu.Lock()
	delete(s.m, h)
	s.mu.Unlock()
}

func (s *holderSet[C, M]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// activeList is the ordered sequence of CONNECTED holders that the
// weighting/selection pipeline reads from on every Choose() call.
type activeList[C comparable, M any] struct {
	mu    sync.Mutex
	items []*holder[C, M]
}

func newActiveList[C comparable, M any]() *activeList[C, M] {
	return &activeList[C, M]{}
}

func (a *activeList[C, M]) Append(h *holder[C, M]) {
	a.mu.Lock()
	a.items = append(a.items, h)
	a.mu.Unlock()
}

func (a *activeList[C, M]) Remove(h *holder[C, M]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i, x := range a.items {
		if x == h {
			a.items = append(a.items[:i], a.items[i+1:]...)
			return
		}
	}
}

// Snapshot returns a defensive copy so callers never observe a slice
// that mutates out from under them mid-read.
func (a *activeList[C, M]) Snapshot() []*holder[C, M] {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*holder[C, M], len(a.items))
	copy(out, a.items)
	return out
}

func (a *activeList[C, M]) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}
