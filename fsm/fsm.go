// Package fsm implements a generic, per-instance finite state machine
// driver: states declare optional enter/exit actions and a static
// (event -> next state) transition table plus a set of events that are
// legal but cause no transition ("ignored").
//
// Events submitted to one Machine are serialized: the machine finishes
// processing one event (including its exit/enter actions) before it
// accepts the next, regardless of which goroutine called Submit. No
// ordering is implied across different Machine instances.
package fsm

import (
	"sync"

	"go.uber.org/zap"
)

// StateDef describes one state's behavior.
//
// OnEnter and OnExit, if non-nil, are invoked with the machine's context
// and may return a channel of follow-up events. For OnEnter, the first
// value received off that channel (if any) is submitted back to the
// machine, after anything already queued. For OnExit, emitted values are
// read and discarded — exit actions are for cleanup, not re-injection.
type StateDef[Ctx any, S comparable, E comparable] struct {
	OnEnter     func(ctx Ctx) <-chan E
	OnExit      func(ctx Ctx) <-chan E
	Transitions map[E]S
	Ignore      map[E]struct{}
}

// Machine drives a single instance through its declared states.
type Machine[Ctx any, S comparable, E comparable] struct {
	ctx    Ctx
	name   string
	logger *zap.Logger
	states map[S]*StateDef[Ctx, S, E]

	curMu   sync.Mutex
	current S

	queueMu sync.Mutex
	queue   []E
	notify  chan struct{}
	stopCh  chan struct{}
	started bool
}

// New creates a Machine bound to ctx, beginning in state initial. Start
// must be called to run the initial state's onEnter action and begin
// processing submitted events.
func New[Ctx any, S comparable, E comparable](
	ctx Ctx,
	name string,
	initial S,
	states map[S]*StateDef[Ctx, S, E],
	logger *zap.Logger,
) *Machine[Ctx, S, E] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine[Ctx, S, E]{
		ctx:     ctx,
		name:    name,
		logger:  logger,
		states:  states,
		current: initial,
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Current returns the machine's current state.
func (m *Machine[Ctx, S, E]) Current() S {
	m.curMu.Lock()
	defer m.curMu.Unlock()
	return m.current
}

// Start runs the initial state's onEnter action and begins the
// serialized event loop in a new goroutine. Only the first call has an
// effect; later calls return without doing anything.
func (m *Machine[Ctx, S, E]) Start() {
	m.queueMu.Lock()
	if m.started {
		m.queueMu.Unlock()
		return
	}
	m.started = true
	m.queueMu.Unlock()

	m.enter(m.current)
	go m.run()
}

// Submit enqueues an event for serialized processing. Safe to call from
// any goroutine, including from within a StateDef action callback.
func (m *Machine[Ctx, S, E]) Submit(e E) {
	m.queueMu.Lock()
	m.queue = append(m.queue, e)
	m.queueMu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Stop terminates the event loop goroutine. It does not run any state's
// onExit action; callers that need teardown semantics should transition
// to a terminal state first.
func (m *Machine[Ctx, S, E]) Stop() {
	close(m.stopCh)
}

func (m *Machine[Ctx, S, E]) run() {
	for {
		m.queueMu.Lock()
		if len(m.queue) == 0 {
			m.queueMu.Unlock()
			select {
			case <-m.notify:
				continue
			case <-m.stopCh:
				return
			}
		}
		e := m.queue[0]
		m.queue = m.queue[1:]
		m.queueMu.Unlock()

		select {
		case <-m.stopCh:
			return
		default:
		}
		m.dispatch(e)
	}
}

// dispatch processes one event against the current state. It is only
// ever called from the single run() goroutine, which is what gives the
// machine its per-instance serialization.
func (m *Machine[Ctx, S, E]) dispatch(e E) {
	m.curMu.Lock()
	current := m.current
	def := m.states[current]
	m.curMu.Unlock()

	if def == nil {
		m.logger.Warn("fsm: event dispatched against undeclared state",
			zap.String("machine", m.name))
		return
	}

	target, hasTransition := def.Transitions[e]
	if !hasTransition {
		if _, ignored := def.Ignore[e]; ignored {
			return
		}
		m.logger.Warn("fsm: illegal transition, dropped",
			zap.String("machine", m.name))
		return
	}

	m.curMu.Lock()
	m.current = target
	m.curMu.Unlock()

	if def.OnExit != nil {
		drain(def.OnExit(m.ctx))
	}
	m.enter(target)
}

// enter runs the target state's onEnter action and, if it emits a first
// event, submits that event back to the machine.
func (m *Machine[Ctx, S, E]) enter(target S) {
	def := m.states[target]
	if def == nil || def.OnEnter == nil {
		return
	}
	ch := def.OnEnter(m.ctx)
	if ch == nil {
		return
	}
	go func() {
		if first, ok := <-ch; ok {
			m.Submit(first)
		}
	}()
}

// drain reads and discards all values from an exit action's event
// channel, without blocking the caller beyond the values already
// in flight for a synchronous (e.g. already-closed or nil) channel.
func drain[E any](ch <-chan E) {
	if ch == nil {
		return
	}
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}
