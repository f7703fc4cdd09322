package failuresource

import (
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// TCPProbe is a FailureSource that periodically dials each subscribed
// endpoint and emits a failure after a configurable number of
// consecutive probe failures — the same consecutive-threshold shape as
// the teacher pack's healthMonitor.healthCheckSingleTarget /
// unhealthyProbesThreshold, adapted from an active-pull health check
// into a push-style failure stream.
type TCPProbe[C comparable] struct {
	toAddr               func(C) string
	interval             time.Duration
	timeout              time.Duration
	unhealthyThreshold   int
	logger               *zap.Logger
	dialer               net.Dialer

	mu     sync.Mutex
	probes map[C]*probeState
}

type probeState struct {
	ch             chan error
	stop           chan struct{}
	consecutiveErr int
}

// NewTCPProbe creates a TCP-dial based failure source. toAddr converts
// an endpoint value into a dialable "host:port" string.
func NewTCPProbe[C comparable](toAddr func(C) string, interval, timeout time.Duration, unhealthyThreshold int, logger *zap.Logger) *TCPProbe[C] {
	if logger == nil {
		logger = zap.NewNop()
	}
	if unhealthyThreshold < 1 {
		unhealthyThreshold = 1
	}
	return &TCPProbe[C]{
		toAddr:             toAddr,
		interval:           interval,
		timeout:            timeout,
		unhealthyThreshold: unhealthyThreshold,
		logger:             logger,
		dialer:             net.Dialer{Timeout: timeout},
		probes:             make(map[C]*probeState),
	}
}

func (p *TCPProbe[C]) Failures(endpoint C) <-chan error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if st, ok := p.probes[endpoint]; ok {
		return st.ch
	}
	st := &probeState{
		ch:   make(chan error, 4),
		stop: make(chan struct{}),
	}
	p.probes[endpoint] = st
	go p.run(endpoint, st)
	return st.ch
}

// StopProbing halts the background probe goroutine for endpoint. Call
// this when the endpoint is removed to avoid leaking goroutines.
func (p *TCPProbe[C]) StopProbing(endpoint C) {
	p.mu.Lock()
	st, ok := p.probes[endpoint]
	if ok {
		delete(p.probes, endpoint)
	}
	p.mu.Unlock()
	if ok {
		close(st.stop)
	}
}

func (p *TCPProbe[C]) run(endpoint C, st *probeState) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	addr := p.toAddr(endpoint)

	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			conn, err := p.dialer.Dial("tcp", addr)
			if err != nil {
				st.consecutiveErr++
				if st.consecutiveErr >= p.unhealthyThreshold {
					p.logger.Warn("failuresource: tcp probe unhealthy", zap.String("addr", addr), zap.Error(err))
					select {
					case st.ch <- err:
					default:
					}
					st.consecutiveErr = 0
				}
				continue
			}
			conn.Close()
			st.consecutiveErr = 0
		}
	}
}
