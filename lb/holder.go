package lb

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"clientlb/failuresource"
	"clientlb/fsm"
)

// holder is the per-endpoint bookkeeping record: endpoint identity,
// last-known metrics snapshot, quarantine counter, the single in-flight
// connect task (if any), and the state machine that drives it through
// IDLE/CONNECTING/CONNECTED/QUARANTINED/REMOVED. It is the Ctx type
// parameter of its own fsm.Machine, closing over its own state the way
// an inner class would close over its enclosing instance.
type holder[C comparable, M any] struct {
	endpoint C
	ctrl     *controller[C, M]

	mu         sync.Mutex
	metrics    M
	hasMetrics bool

	quarantineMu    sync.Mutex
	quarantineCount int
	quarantineTimer *time.Timer
	quarantineCh    chan event

	connectMu     sync.Mutex
	connectCancel context.CancelFunc

	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc

	sm *fsm.Machine[*holder[C, M], state, event]
}

func newHolder[C comparable, M any](ctrl *controller[C, M], endpoint C) *holder[C, M] {
	h := &holder[C, M]{endpoint: endpoint, ctrl: ctrl}
	h.lifecycleCtx, h.lifecycleCancel = context.WithCancel(context.Background())
	h.sm = fsm.New[*holder[C, M], state, event](h, fmt.Sprintf("%v", endpoint), stateIdle, ctrl.stateDefs, ctrl.logger)
	return h
}

// initialize starts the state machine and the metrics/failure
// subscriptions. Called exactly once, after the holder has won its
// check-and-insert race into controller.clients.
func (h *holder[C, M]) initialize() {
	h.sm.Start()
	h.subscribeMetrics()
	h.subscribeFailures()
}

func (h *holder[C, M]) subscribeMetrics() {
	ch := h.ctrl.metricsFactory.Snapshots(h.endpoint)
	go func() {
		for {
			select {
			case <-h.lifecycleCtx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				h.mu.Lock()
				h.metrics = v
				h.hasMetrics = true
				h.mu.Unlock()
			}
		}
	}()
}

func (h *holder[C, M]) subscribeFailures() {
	ch := h.ctrl.failureSource.Failures(h.endpoint)
	go func() {
		for {
			select {
			case <-h.lifecycleCtx.Done():
				return
			case err, ok := <-ch:
				if !ok {
					return
				}
				h.ctrl.logger.Debug("endpoint failure signal",
					zap.String("endpoint", fmt.Sprintf("%v", h.endpoint)),
					zap.Error(err))
				h.incrementQuarantine()
				h.sm.Submit(evFailed)
			}
		}
	}()
}

// connect runs the Connector against this Holder's endpoint on its own
// goroutine and feeds the result back into the state machine as
// CONNECTED or FAILED. A connect attempt started by a prior entry into
// CONNECTING (there should be at most one) is cancelled first.
func (h *holder[C, M]) connect() {
	ctx, cancel := context.WithCancel(h.lifecycleCtx)

	h.connectMu.Lock()
	if h.connectCancel != nil {
		h.connectCancel()
	}
	h.connectCancel = cancel
	h.connectMu.Unlock()

	go func() {
		if lim := h.ctrl.connectLimiter; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				h.incrementQuarantine()
				h.sm.Submit(evFailed)
				return
			}
		}
		err := h.ctrl.connector.Connect(ctx, h.endpoint)
		if err != nil {
			h.ctrl.logger.Debug("connect failed",
				zap.String("endpoint", fmt.Sprintf("%v", h.endpoint)),
				zap.Error(err))
			h.incrementQuarantine()
			h.sm.Submit(evFailed)
			return
		}
		h.resetQuarantine()
		h.sm.Submit(evConnected)
	}()
}

// startQuarantineTimer arms the backoff timer for a QUARANTINED entry,
// returning the channel its UNQUARANTINE event will arrive on.
func (h *holder[C, M]) startQuarantineTimer(d time.Duration) <-chan event {
	h.quarantineMu.Lock()
	defer h.quarantineMu.Unlock()

	ch := make(chan event, 1)
	h.quarantineCh = ch
	h.quarantineTimer = time.AfterFunc(d, func() {
		h.quarantineMu.Lock()
		defer h.quarantineMu.Unlock()
		if h.quarantineCh == ch {
			ch <- evUnquarantine
			close(ch)
			h.quarantineCh = nil
			h.quarantineTimer = nil
		}
	})
	return ch
}

// cancelQuarantineTimer stops a pending backoff timer, if any, and
// unblocks anything waiting on its channel so no goroutine leaks.
func (h *holder[C, M]) cancelQuarantineTimer() {
	h.quarantineMu.Lock()
	defer h.quarantineMu.Unlock()
	if h.quarantineTimer != nil {
		h.quarantineTimer.Stop()
		h.quarantineTimer = nil
	}
	if h.quarantineCh != nil {
		close(h.quarantineCh)
		h.quarantineCh = nil
	}
}

// release cancels the in-flight connect task (if any), stops the
// backoff timer, tears down the metrics/failure subscriptions and stops
// the state machine's consumer goroutine. Called once, from REMOVED's
// onEnter.
func (h *holder[C, M]) release() {
	h.lifecycleCancel()

	h.connectMu.Lock()
	if h.connectCancel != nil {
		h.connectCancel()
		h.connectCancel = nil
	}
	h.connectMu.Unlock()

	h.cancelQuarantineTimer()
	if closer, ok := h.ctrl.failureSource.(failuresource.EndpointCloser[C]); ok {
		closer.StopProbing(h.endpoint)
	}
	h.sm.Stop()
}

func (h *holder[C, M]) incrementQuarantine() {
	h.quarantineMu.Lock()
	h.quarantineCount++
	h.quarantineMu.Unlock()
}

func (h *holder[C, M]) resetQuarantine() {
	h.quarantineMu.Lock()
	h.quarantineCount = 0
	h.quarantineMu.Unlock()
}

func (h *holder[C, M]) quarantineCountSnapshot() int {
	h.quarantineMu.Lock()
	defer h.quarantineMu.Unlock()
	return h.quarantineCount
}

func (h *holder[C, M]) metricsSnapshot() M {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.metrics
}
