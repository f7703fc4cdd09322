// Package lb implements the client-side load balancer core: per-endpoint
// lifecycle management driven by a membership source, pluggable
// Connector/FailureSource/MetricsFactory collaborators, quarantine
// backoff, an active-count governor, and a weighting+selection pipeline
// for Choose(). It deliberately stops at endpoint lifecycle and
// selection — request routing, retries, connection multiplexing and
// serialization of the chosen endpoint's actual traffic are the
// caller's concern.
package lb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"clientlb/activecount"
	"clientlb/backoff"
	"clientlb/connector"
	"clientlb/failuresource"
	"clientlb/lberrors"
	"clientlb/membership"
	"clientlb/metrics"
	"clientlb/queue"
	"clientlb/selection"
	"clientlb/weighting"
)

// config collects every build-time parameter an Option can set, on top
// of the two mandatory collaborators New takes directly.
type config[C comparable, M any] struct {
	name              string
	weighting         weighting.Strategy[C, M]
	activeCountPolicy activecount.Policy
	backoffPolicy     backoff.Policy
	selection         selection.Strategy[C]
	failureSource     failuresource.Source[C]
	connector         connector.Connector[C]
	connectLimiter    *rate.Limiter
	logger            *zap.Logger
}

func defaultConfig[C comparable, M any]() *config[C, M] {
	return &config[C, M]{
		name:              "clientlb",
		weighting:         weighting.Equal[C, M](),
		activeCountPolicy: activecount.Identity(),
		backoffPolicy:     backoff.Constant(10 * time.Second),
		selection:         selection.NewRoundRobin[C](),
		failureSource:     failuresource.Never[C](),
		connector:         connector.Immediate[C](),
		logger:            zap.NewNop(),
	}
}

// Option configures a LoadBalancer at construction time. All of them are
// optional: the membership source and metrics factory are not options
// because a load balancer cannot run without them.
type Option[C comparable, M any] func(*config[C, M])

// WithName sets a label used in log lines; defaults to "clientlb".
func WithName[C comparable, M any](name string) Option[C, M] {
	return func(cfg *config[C, M]) { cfg.name = name }
}

// WithLogger sets the zap.Logger used for internal lifecycle logging.
// Defaults to a no-op logger.
func WithLogger[C comparable, M any](logger *zap.Logger) Option[C, M] {
	return func(cfg *config[C, M]) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithWeightingStrategy overrides the default equal-weight strategy.
func WithWeightingStrategy[C comparable, M any](s weighting.Strategy[C, M]) Option[C, M] {
	return func(cfg *config[C, M]) { cfg.weighting = s }
}

// WithSelectionStrategy overrides the default round-robin strategy.
func WithSelectionStrategy[C comparable, M any](s selection.Strategy[C]) Option[C, M] {
	return func(cfg *config[C, M]) { cfg.selection = s }
}

// WithActiveCountPolicy overrides the default identity policy (acquire
// every known endpoint).
func WithActiveCountPolicy[C comparable, M any](p activecount.Policy) Option[C, M] {
	return func(cfg *config[C, M]) { cfg.activeCountPolicy = p }
}

// WithBackoffPolicy overrides the default constant 10s backoff.
func WithBackoffPolicy[C comparable, M any](p backoff.Policy) Option[C, M] {
	return func(cfg *config[C, M]) { cfg.backoffPolicy = p }
}

// WithConnector overrides the default always-succeeds connector.
func WithConnector[C comparable, M any](conn connector.Connector[C]) Option[C, M] {
	return func(cfg *config[C, M]) { cfg.connector = conn }
}

// WithFailureSource overrides the default source that never signals a
// failure.
func WithFailureSource[C comparable, M any](s failuresource.Source[C]) Option[C, M] {
	return func(cfg *config[C, M]) { cfg.failureSource = s }
}

// WithConnectRateLimiter gates how often Connector.Connect may be
// invoked across all of this LoadBalancer's endpoints combined,
// smoothing a thundering herd of simultaneous reconnects (e.g. after a
// membership source reconnects and replays a large ADD burst).
func WithConnectRateLimiter[C comparable, M any](limiter *rate.Limiter) Option[C, M] {
	return func(cfg *config[C, M]) { cfg.connectLimiter = limiter }
}

// LoadBalancer is the public facade: it owns a membership subscription,
// a controller, and the weighting+selection pipeline, and exposes
// Choose/ListAllClients/ListActiveClients/Shutdown.
type LoadBalancer[C comparable, M any] struct {
	name   string
	logger *zap.Logger

	membershipSource membership.Source[C]
	ctrl             *controller[C, M]

	weighting weighting.Strategy[C, M]
	selection selection.Strategy[C]

	shutdownOnce sync.Once
	shutdown     atomic.Bool
	doneCh       chan struct{}
}

// New builds a LoadBalancer over source (the membership feed) and mf
// (the per-endpoint metrics factory), applying any Options on top of
// the package defaults. Both source and mf are mandatory; everything
// else has a working default.
func New[C comparable, M any](source membership.Source[C], mf metrics.Factory[C, M], opts ...Option[C, M]) (*LoadBalancer[C, M], error) {
	if source == nil {
		return nil, fmt.Errorf("clientlb: membership source is required")
	}
	if mf == nil {
		return nil, fmt.Errorf("clientlb: metrics factory is required")
	}

	cfg := defaultConfig[C, M]()
	for _, o := range opts {
		o(cfg)
	}

	ctrl := &controller[C, M]{
		name:           cfg.name,
		logger:         cfg.logger,
		clients:        make(map[C]*holder[C, M]),
		idleClients:    queue.New[*holder[C, M]](),
		acquired:       newHolderSet[C, M](),
		active:         newActiveList[C, M](),
		policy:         cfg.activeCountPolicy,
		backoffPolicy:  cfg.backoffPolicy,
		connector:      cfg.connector,
		failureSource:  cfg.failureSource,
		metricsFactory: mf,
		connectLimiter: cfg.connectLimiter,
	}
	ctrl.stateDefs = buildStateDefs[C, M]()

	lb := &LoadBalancer[C, M]{
		name:             cfg.name,
		logger:           cfg.logger,
		membershipSource: source,
		ctrl:             ctrl,
		weighting:        cfg.weighting,
		selection:        cfg.selection,
		doneCh:           make(chan struct{}),
	}
	go lb.consumeMembership()
	return lb, nil
}

func (lb *LoadBalancer[C, M]) consumeMembership() {
	ch := lb.membershipSource.Events()
	for {
		select {
		case <-lb.doneCh:
			return
		case ev, ok := <-ch:
			if !ok {
				// The membership source has no more events to
				// deliver; the balancer keeps serving from whatever
				// endpoints it already knows about rather than
				// tearing itself down.
				return
			}
			lb.ctrl.handleMembership(ev)
		}
	}
}

// Choose runs the selection pipeline: snapshot the currently CONNECTED
// endpoints with their latest metrics, reduce that snapshot to
// endpoints+weights via the WeightingStrategy, then pick one via the
// SelectionStrategy. Both strategies are caller-supplied; a panic from
// either is recovered and surfaced as an error rather than crashing the
// caller's goroutine.
func (lb *LoadBalancer[C, M]) Choose(ctx context.Context) (ep C, err error) {
	var zero C
	if lb.shutdown.Load() {
		return zero, lberrors.ErrShutDown
	}

	snapshot := lb.ctrl.active.Snapshot()
	if len(snapshot) == 0 {
		return zero, lberrors.ErrNoEndpointsAvailable
	}
	weighted := make([]weighting.Snapshot[C, M], len(snapshot))
	for i, h := range snapshot {
		weighted[i] = weighting.Snapshot[C, M]{Endpoint: h.endpoint, Metrics: h.metricsSnapshot()}
	}

	defer func() {
		if r := recover(); r != nil {
			ep = zero
			err = fmt.Errorf("clientlb: weighting or selection strategy panicked: %v", r)
		}
	}()

	endpoints, weights := lb.weighting(weighted)
	if len(endpoints) == 0 {
		return zero, lberrors.ErrNoEndpointsAvailable
	}

	return lb.selection.Select(ctx, endpoints, weights)
}

// ListAllClients returns every endpoint currently known, regardless of
// lifecycle state.
func (lb *LoadBalancer[C, M]) ListAllClients() ([]C, error) {
	if lb.shutdown.Load() {
		return nil, lberrors.ErrShutDown
	}
	return lb.ctrl.snapshotAllEndpoints(), nil
}

// ListActiveClients returns every endpoint currently in CONNECTED.
func (lb *LoadBalancer[C, M]) ListActiveClients() ([]C, error) {
	if lb.shutdown.Load() {
		return nil, lberrors.ErrShutDown
	}
	holders := lb.ctrl.active.Snapshot()
	out := make([]C, len(holders))
	for i, h := range holders {
		out[i] = h.endpoint
	}
	return out, nil
}

// Shutdown stops the membership subscription, closes it, and removes
// every known endpoint, releasing their connect tasks and
// subscriptions. Safe to call more than once; only the first call has
// effect.
func (lb *LoadBalancer[C, M]) Shutdown() error {
	var err error
	lb.shutdownOnce.Do(func() {
		lb.shutdown.Store(true)
		close(lb.doneCh)
		err = lb.membershipSource.Close()
		lb.ctrl.shutdownAll()
	})
	return err
}

func (lb *LoadBalancer[C, M]) String() string {
	return fmt.Sprintf("LoadBalancer(%s)", lb.name)
}
