package lb

import (
	"fmt"

	"go.uber.org/zap"

	"clientlb/fsm"
)

// buildStateDefs constructs the state graph shared by every holder of a
// given controller instance. It is built once per LoadBalancer, not
// once per holder: the table is static, only the closed-over *holder
// context varies per machine instance.
func buildStateDefs[C comparable, M any]() map[state]*fsm.StateDef[*holder[C, M], state, event] {
	return map[state]*fsm.StateDef[*holder[C, M], state, event]{
		stateIdle: {
			OnEnter: func(h *holder[C, M]) <-chan event {
				c := h.ctrl
				c.idleClients.Offer(h)
				c.logger.Debug("endpoint idle", zap.String("endpoint", fmt.Sprintf("%v", h.endpoint)))
				c.maybeAcquireMore()
				return nil
			},
			Transitions: map[event]state{
				evConnect:   stateConnecting,
				evFailed:    stateQuarantined,
				evConnected: stateConnected,
				// An endpoint can be removed while still idle; without
				// this transition it would get stuck as a permanent
				// IDLE zombie instead of being forgotten. See DESIGN.md.
				evRemove: stateRemoved,
			},
		},
		stateConnecting: {
			OnEnter: func(h *holder[C, M]) <-chan event {
				h.ctrl.acquired.Add(h)
				h.ctrl.idleClients.Remove(h)
				h.connect()
				return nil
			},
			Transitions: map[event]state{
				evConnected: stateConnected,
				evFailed:    stateQuarantined,
				evRemove:    stateRemoved,
			},
		},
		stateConnected: {
			OnEnter: func(h *holder[C, M]) <-chan event {
				h.ctrl.acquired.Add(h)
				h.ctrl.idleClients.Remove(h)
				h.ctrl.active.Append(h)
				h.ctrl.logger.Debug("endpoint connected", zap.String("endpoint", fmt.Sprintf("%v", h.endpoint)))
				return nil
			},
			OnExit: func(h *holder[C, M]) <-chan event {
				h.ctrl.active.Remove(h)
				return nil
			},
			Ignore: map[event]struct{}{
				evConnected: {},
				evConnect:   {},
			},
			Transitions: map[event]state{
				evFailed: stateQuarantined,
				evRemove: stateRemoved,
				evStop:   stateIdle,
			},
		},
		stateQuarantined: {
			OnEnter: func(h *holder[C, M]) <-chan event {
				c := h.ctrl
				c.acquired.Remove(h)
				count := h.quarantineCountSnapshot()
				d := c.backoffPolicy(count)
				c.logger.Debug("endpoint quarantined",
					zap.String("endpoint", fmt.Sprintf("%v", h.endpoint)),
					zap.Int("quarantineCount", count),
					zap.Duration("backoff", d))
				return h.startQuarantineTimer(d)
			},
			Ignore: map[event]struct{}{
				// A second failure signal arriving while already
				// quarantined does not extend the backoff. See
				// DESIGN.md.
				evFailed: {},
			},
			Transitions: map[event]state{
				evUnquarantine: stateIdle,
				evRemove:       stateRemoved,
				evConnected:    stateConnected,
			},
		},
		stateRemoved: {
			OnEnter: func(h *holder[C, M]) <-chan event {
				c := h.ctrl
				c.active.Remove(h)
				c.idleClients.Remove(h)
				c.acquired.Remove(h)
				c.deleteClient(h.endpoint)
				c.logger.Debug("endpoint removed", zap.String("endpoint", fmt.Sprintf("%v", h.endpoint)))
				h.release()
				return nil
			},
			Transitions: map[event]state{},
		},
	}
}
