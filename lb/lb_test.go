package lb

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"clientlb/activecount"
	"clientlb/backoff"
	"clientlb/connector"
	"clientlb/failuresource"
	"clientlb/lberrors"
	"clientlb/membership"
	"clientlb/metrics"
	"clientlb/selection"
	"clientlb/weighting"
)

func waitForT(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestNewRequiresMembershipSourceAndMetricsFactory(t *testing.T) {
	mf := metrics.Static[string, int](0)
	if _, err := New[string, int](nil, mf); err == nil {
		t.Fatal("expect error for nil membership source")
	}

	src := membership.NewManual[string]()
	defer src.Close()
	if _, err := New[string, int](src, nil); err == nil {
		t.Fatal("expect error for nil metrics factory")
	}
}

// An added endpoint connects and becomes choosable.
func TestLifecycleConnectAndBecomeActive(t *testing.T) {
	src := membership.NewManual[string]()
	defer src.Close()
	mf := metrics.Static[string, int](0)

	balancer, err := New[string, int](src, mf, WithConnector[string, int](connector.Immediate[string]()))
	if err != nil {
		t.Fatal(err)
	}
	defer balancer.Shutdown()

	src.Add("a")
	waitForT(t, func() bool {
		active, _ := balancer.ListActiveClients()
		return len(active) == 1 && active[0] == "a"
	})

	ep, err := balancer.Choose(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if ep != "a" {
		t.Fatalf("expect a, got %s", ep)
	}
}

// A failed connect quarantines the endpoint; once the connector is
// fixed and the backoff elapses, it reconnects and becomes active again.
func TestQuarantineThenRecover(t *testing.T) {
	src := membership.NewManual[string]()
	defer src.Close()
	conn := connector.NewManual[string]()
	conn.SetDown("a")
	mf := metrics.Static[string, int](0)

	balancer, err := New[string, int](src, mf,
		WithConnector[string, int](conn),
		WithBackoffPolicy[string, int](backoff.Constant(30*time.Millisecond)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer balancer.Shutdown()

	src.Add("a")
	waitForT(t, func() bool {
		h, ok := balancer.ctrl.get("a")
		return ok && h.sm.Current() == stateQuarantined
	})

	conn.SetUp("a")
	waitForT(t, func() bool {
		active, _ := balancer.ListActiveClients()
		return len(active) == 1
	})
}

// An endpoint that is already active and then starts failing is
// excluded from the active set within one backoff interval, and
// reappears in ListActiveClients once it reconnects.
func TestActiveEndpointFailsThenRecovers(t *testing.T) {
	src := membership.NewManual[string]()
	defer src.Close()
	conn := connector.NewManual[string]()
	failSrc := failuresource.NewManual[string]()
	mf := metrics.Static[string, int](0)

	balancer, err := New[string, int](src, mf,
		WithConnector[string, int](conn),
		WithFailureSource[string, int](failSrc),
		WithBackoffPolicy[string, int](backoff.Constant(30*time.Millisecond)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer balancer.Shutdown()

	src.Add("a")
	waitForT(t, func() bool {
		active, _ := balancer.ListActiveClients()
		return len(active) == 1 && active[0] == "a"
	})

	failSrc.Fail("a", errors.New("connection reset"))
	waitForT(t, func() bool {
		active, _ := balancer.ListActiveClients()
		return len(active) == 0
	})
	h, ok := balancer.ctrl.get("a")
	if !ok || h.sm.Current() != stateQuarantined {
		t.Fatalf("expect endpoint to be quarantined after failure, got %+v", h)
	}

	waitForT(t, func() bool {
		active, _ := balancer.ListActiveClients()
		return len(active) == 1 && active[0] == "a"
	})
}

// A second failure signal arriving while already quarantined does
// not re-run the backoff policy or reset the timer.
func TestSecondFailureWhileQuarantinedIsIgnored(t *testing.T) {
	src := membership.NewManual[string]()
	defer src.Close()
	conn := connector.NewManual[string]()
	conn.SetDown("a")
	failSrc := failuresource.NewManual[string]()
	mf := metrics.Static[string, int](0)

	var backoffCalls int32
	policy := backoff.Policy(func(int) time.Duration {
		atomic.AddInt32(&backoffCalls, 1)
		return 300 * time.Millisecond
	})

	balancer, err := New[string, int](src, mf,
		WithConnector[string, int](conn),
		WithFailureSource[string, int](failSrc),
		WithBackoffPolicy[string, int](policy),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer balancer.Shutdown()

	src.Add("a")
	waitForT(t, func() bool {
		h, ok := balancer.ctrl.get("a")
		return ok && h.sm.Current() == stateQuarantined
	})

	failSrc.Fail("a", errors.New("still down"))
	time.Sleep(50 * time.Millisecond)

	h, ok := balancer.ctrl.get("a")
	if !ok || h.sm.Current() != stateQuarantined {
		t.Fatalf("expect endpoint to remain quarantined, got %+v", h)
	}
	if got := atomic.LoadInt32(&backoffCalls); got != 1 {
		t.Fatalf("expect backoff policy invoked exactly once, got %d", got)
	}
}

// Removing an endpoint while its connect attempt is in flight
// cancels that attempt and removes it from the known set promptly,
// regardless of how the now-abandoned Connect call eventually resolves.
func TestRemovalDuringConnectCancelsAttempt(t *testing.T) {
	src := membership.NewManual[string]()
	defer src.Close()
	manual := connector.NewManual[string]()
	manual.Suspend("a")
	returned := make(chan error, 1)
	conn := connector.Func[string](func(ctx context.Context, endpoint string) error {
		err := manual.Connect(ctx, endpoint)
		returned <- err
		return err
	})
	mf := metrics.Static[string, int](0)

	balancer, err := New[string, int](src, mf, WithConnector[string, int](conn))
	if err != nil {
		t.Fatal(err)
	}
	defer balancer.Shutdown()

	src.Add("a")
	waitForT(t, func() bool {
		h, ok := balancer.ctrl.get("a")
		return ok && h.sm.Current() == stateConnecting
	})

	src.Remove("a")
	waitForT(t, func() bool {
		_, ok := balancer.ctrl.get("a")
		return !ok
	})

	all, err := balancer.ListAllClients()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expect removed endpoint gone from clients, got %v", all)
	}

	select {
	case err := <-returned:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expect in-flight connect to end with context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("expect in-flight connect attempt to be cancelled on removal")
	}
}

// The active-count governor caps how many of several known
// endpoints are ever acquired concurrently.
func TestActiveCountGovernorCapsAcquired(t *testing.T) {
	src := membership.NewManual[string]()
	defer src.Close()
	mf := metrics.Static[string, int](0)

	balancer, err := New[string, int](src, mf,
		WithConnector[string, int](connector.Immediate[string]()),
		WithActiveCountPolicy[string, int](activecount.Fixed(1)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer balancer.Shutdown()

	src.Add("a")
	src.Add("b")
	src.Add("c")

	waitForT(t, func() bool {
		all, _ := balancer.ListAllClients()
		return len(all) == 3
	})
	time.Sleep(50 * time.Millisecond)

	active, err := balancer.ListActiveClients()
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 {
		t.Fatalf("expect exactly 1 active endpoint under Fixed(1) policy, got %d: %v", len(active), active)
	}
}

// An endpoint removed while still IDLE (never acquired) is still
// fully forgotten within finite time.
func TestRemovalCompletenessWhileIdle(t *testing.T) {
	src := membership.NewManual[string]()
	defer src.Close()
	mf := metrics.Static[string, int](0)

	balancer, err := New[string, int](src, mf,
		WithActiveCountPolicy[string, int](activecount.Fixed(0)),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer balancer.Shutdown()

	src.Add("a")
	waitForT(t, func() bool {
		h, ok := balancer.ctrl.get("a")
		return ok && h.sm.Current() == stateIdle
	})

	src.Remove("a")
	waitForT(t, func() bool {
		_, ok := balancer.ctrl.get("a")
		return !ok
	})
}

func TestShutdownRejectsFurtherOperations(t *testing.T) {
	src := membership.NewManual[string]()
	mf := metrics.Static[string, int](0)

	balancer, err := New[string, int](src, mf)
	if err != nil {
		t.Fatal(err)
	}

	src.Add("a")
	waitForT(t, func() bool {
		active, _ := balancer.ListActiveClients()
		return len(active) == 1
	})

	if err := balancer.Shutdown(); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
	if err := balancer.Shutdown(); err != nil {
		t.Fatalf("expect idempotent shutdown, got %v", err)
	}

	if _, err := balancer.Choose(context.Background()); !errors.Is(err, lberrors.ErrShutDown) {
		t.Fatalf("expect ErrShutDown from Choose, got %v", err)
	}
	if _, err := balancer.ListAllClients(); !errors.Is(err, lberrors.ErrShutDown) {
		t.Fatalf("expect ErrShutDown from ListAllClients, got %v", err)
	}
}

// fakeEndpointCloserSource is a FailureSource that also implements
// failuresource.EndpointCloser, so removal cleanup can be observed.
type fakeEndpointCloserSource struct {
	stopped chan string
}

func (f *fakeEndpointCloserSource) Failures(endpoint string) <-chan error {
	return make(chan error)
}

func (f *fakeEndpointCloserSource) StopProbing(endpoint string) {
	f.stopped <- endpoint
}

func TestRemovalStopsEndpointCloserFailureSource(t *testing.T) {
	src := membership.NewManual[string]()
	defer src.Close()
	mf := metrics.Static[string, int](0)
	fakeSrc := &fakeEndpointCloserSource{stopped: make(chan string, 1)}

	balancer, err := New[string, int](src, mf, WithFailureSource[string, int](fakeSrc))
	if err != nil {
		t.Fatal(err)
	}
	defer balancer.Shutdown()

	src.Add("a")
	waitForT(t, func() bool {
		_, ok := balancer.ctrl.get("a")
		return ok
	})

	src.Remove("a")
	select {
	case ep := <-fakeSrc.stopped:
		if ep != "a" {
			t.Fatalf("expect StopProbing(a), got %s", ep)
		}
	case <-time.After(time.Second):
		t.Fatal("expect StopProbing to be called on removal")
	}
}

func TestChooseWithNoEndpointsReturnsError(t *testing.T) {
	src := membership.NewManual[string]()
	defer src.Close()
	mf := metrics.Static[string, int](0)

	balancer, err := New[string, int](src, mf)
	if err != nil {
		t.Fatal(err)
	}
	defer balancer.Shutdown()

	if _, err := balancer.Choose(context.Background()); !errors.Is(err, lberrors.ErrNoEndpointsAvailable) {
		t.Fatalf("expect ErrNoEndpointsAvailable, got %v", err)
	}
}

// A panic from a caller-supplied WeightingStrategy or SelectionStrategy
// must come back from Choose as an error, not crash the caller.
func TestChoosePanicsFromStrategyReturnError(t *testing.T) {
	panicWeighting := func(snapshot []weighting.Snapshot[string, int]) ([]string, []float64) {
		panic("boom")
	}
	panicSelection := selection.Func[string](func(ctx context.Context, endpoints []string, weights []float64) (string, error) {
		panic("boom")
	})

	t.Run("weighting", func(t *testing.T) {
		src := membership.NewManual[string]()
		defer src.Close()
		mf := metrics.Static[string, int](0)

		balancer, err := New[string, int](src, mf,
			WithConnector[string, int](connector.Immediate[string]()),
			WithWeightingStrategy[string, int](panicWeighting),
		)
		if err != nil {
			t.Fatal(err)
		}
		defer balancer.Shutdown()

		src.Add("a")
		waitForT(t, func() bool {
			active, _ := balancer.ListActiveClients()
			return len(active) == 1
		})

		if _, err := balancer.Choose(context.Background()); err == nil {
			t.Fatal("expect an error from a panicking weighting strategy")
		}
	})

	t.Run("selection", func(t *testing.T) {
		src := membership.NewManual[string]()
		defer src.Close()
		mf := metrics.Static[string, int](0)

		balancer, err := New[string, int](src, mf,
			WithConnector[string, int](connector.Immediate[string]()),
			WithSelectionStrategy[string, int](panicSelection),
		)
		if err != nil {
			t.Fatal(err)
		}
		defer balancer.Shutdown()

		src.Add("a")
		waitForT(t, func() bool {
			active, _ := balancer.ListActiveClients()
			return len(active) == 1
		})

		if _, err := balancer.Choose(context.Background()); err == nil {
			t.Fatal("expect an error from a panicking selection strategy")
		}
	})
}
