package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/kera/lister"
	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/types"
)

func newFastLister(maxRetries int) *lister.Lister {
	return lister.New(lister.Options{
		MaxRetries: maxRetries,
		BaseDelay:  time.Microsecond,
		MaxDelay:   time.Millisecond,
	})
}

func awsTarget(label string) types.Target {
	return types.Target{Backend: types.BackendAWS, Label: label}
}

func staticType(kind string, ids ...string) providers.ResourceType {
	return providers.ResourceType{
		Kind:      kind,
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch: func(_ context.Context, _ types.Target, _ string) (providers.Page, error) {
			records := make([]providers.RawRecord, len(ids))
			for i, id := range ids {
				records[i] = id
			}
			return providers.Page{Records: records}, nil
		},
		Map: mapString(kind),
	}
}

func mapString(kind string) providers.MapFunc {
	return func(target types.Target, raw providers.RawRecord) (types.Resource, error) {
		id, ok := raw.(string)
		if !ok {
			return types.Resource{}, fmt.Errorf("bad record %v", raw)
		}
		return types.Resource{Kind: kind, Target: target.Label, ID: id}, nil
	}
}

func fastEngine(opts Options) *Engine {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	return New(opts)
}

func TestBuildUnits_MatchesBackends(t *testing.T) {
	targets := []types.Target{
		awsTarget("prod/us-east-1"),
		{Backend: types.BackendKubernetes, Label: "staging"},
	}
	rtypes := []providers.ResourceType{
		staticType("aws/thing", "a"),
		{Kind: "k8s/pod", Backend: types.BackendKubernetes},
	}

	units := BuildUnits(targets, rtypes)
	require.Len(t, units, 2)
	assert.Equal(t, "aws/thing", units[0].Type.Kind)
	assert.Equal(t, "prod/us-east-1", units[0].Target.Label)
	assert.Equal(t, "k8s/pod", units[1].Type.Kind)
}

func TestCollect_AllUnitsTerminal(t *testing.T) {
	// Every dispatched unit must land in exactly one terminal outcome.
	targets := make([]types.Target, 6)
	for i := range targets {
		targets[i] = awsTarget(fmt.Sprintf("acct/region-%d", i))
	}
	rtypes := []providers.ResourceType{
		staticType("aws/thing", "a", "b"),
		staticType("aws/other", "c"),
	}

	units := BuildUnits(targets, rtypes)
	outcomes := fastEngine(Options{GlobalConcurrency: 3, PerBackendConcurrency: 2}).
		Collect(context.Background(), units)

	require.Len(t, outcomes, len(units))
	succeeded := 0
	for _, o := range outcomes {
		assert.Nil(t, o.Failure)
		assert.Equal(t, "Complete", o.Status())
		succeeded++
	}
	assert.Equal(t, len(units), succeeded)
}

func TestCollect_RespectsGlobalConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	rt := providers.ResourceType{
		Kind:      "aws/slowish",
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch: func(_ context.Context, _ types.Target, _ string) (providers.Page, error) {
			cur := inFlight.Add(1)
			for {
				old := peak.Load()
				if cur <= old || peak.CompareAndSwap(old, cur) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return providers.Page{Records: []providers.RawRecord{"x"}}, nil
		},
		Map: mapString("aws/slowish"),
	}

	targets := make([]types.Target, 8)
	for i := range targets {
		targets[i] = awsTarget(fmt.Sprintf("acct/region-%d", i))
	}
	units := BuildUnits(targets, []providers.ResourceType{rt})

	fastEngine(Options{GlobalConcurrency: 2, PerBackendConcurrency: 2}).
		Collect(context.Background(), units)
	assert.LessOrEqual(t, peak.Load(), int64(2))
}

func TestCollect_BackendsDispatchIndependently(t *testing.T) {
	// One backend's cap being full of slow units must not delay dispatch
	// for the other backend while its own slots are free.
	start := time.Now()
	var kubeStarted atomic.Int64

	awsSlow := providers.ResourceType{
		Kind:      "aws/slow",
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch: func(_ context.Context, _ types.Target, _ string) (providers.Page, error) {
			time.Sleep(500 * time.Millisecond)
			return providers.Page{Records: []providers.RawRecord{"a"}}, nil
		},
		Map: mapString("aws/slow"),
	}
	kubeFast := providers.ResourceType{
		Kind:      "kubernetes/pod",
		Backend:   types.BackendKubernetes,
		Paginated: true,
		Fetch: func(_ context.Context, _ types.Target, _ string) (providers.Page, error) {
			kubeStarted.Store(int64(time.Since(start)))
			return providers.Page{Records: []providers.RawRecord{"p"}}, nil
		},
		Map: mapString("kubernetes/pod"),
	}

	units := BuildUnits([]types.Target{
		awsTarget("acct/us-east-1"),
		awsTarget("acct/us-west-2"),
		awsTarget("acct/eu-west-1"),
		{Backend: types.BackendKubernetes, Label: "prod-cluster"},
	}, []providers.ResourceType{awsSlow, kubeFast})

	outcomes := fastEngine(Options{GlobalConcurrency: 8, PerBackendConcurrency: 2}).
		Collect(context.Background(), units)

	require.Len(t, outcomes, 4)
	for _, o := range outcomes {
		assert.Equal(t, "Complete", o.Status())
	}
	// The kube unit must run while the AWS slots are still busy sleeping,
	// not after one of them frees up.
	assert.Less(t, time.Duration(kubeStarted.Load()), 250*time.Millisecond)
}

func TestCollect_TwoSucceedOneDenied(t *testing.T) {
	rt := providers.ResourceType{
		Kind:      "aws/thing",
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch: func(_ context.Context, target types.Target, _ string) (providers.Page, error) {
			if target.Label == "locked/us-east-1" {
				return providers.Page{}, &providers.BackendError{
					Kind: providers.ErrNonRetryable,
					Err:  errors.New("AccessDenied"),
				}
			}
			return providers.Page{Records: []providers.RawRecord{target.Label + "-res"}}, nil
		},
		Map: mapString("aws/thing"),
	}

	units := BuildUnits([]types.Target{
		awsTarget("prod/us-east-1"),
		awsTarget("staging/us-east-1"),
		awsTarget("locked/us-east-1"),
	}, []providers.ResourceType{rt})

	outcomes := fastEngine(Options{}).Collect(context.Background(), units)
	require.Len(t, outcomes, 3)

	statuses := map[string]string{}
	total := 0
	for _, o := range outcomes {
		statuses[o.Target.Label] = o.Status()
		total += len(o.Resources)
	}
	assert.Equal(t, "Complete", statuses["prod/us-east-1"])
	assert.Equal(t, "Complete", statuses["staging/us-east-1"])
	assert.Equal(t, "Failed:NonRetryable", statuses["locked/us-east-1"])
	assert.Equal(t, 2, total)
}

func TestCollect_RetryBudgetExhaustedOutcome(t *testing.T) {
	var calls atomic.Int64
	rt := providers.ResourceType{
		Kind:      "aws/broken",
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch: func(_ context.Context, _ types.Target, _ string) (providers.Page, error) {
			calls.Add(1)
			return providers.Page{}, &providers.BackendError{
				Kind: providers.ErrTransient,
				Err:  errors.New("backend down"),
			}
		},
		Map: mapString("aws/broken"),
	}

	units := BuildUnits([]types.Target{awsTarget("prod/us-east-1")}, []providers.ResourceType{rt})
	engine := New(Options{MaxRetries: 3, PerUnitTimeout: 30 * time.Second})
	// Shrink the backoff so the test does not sleep for real.
	engine.lister = newFastLister(3)

	outcomes := engine.Collect(context.Background(), units)
	require.Len(t, outcomes, 1)
	require.NotNil(t, outcomes[0].Failure)
	assert.Equal(t, FailNonRetryable, outcomes[0].Failure.Kind)
	assert.True(t, outcomes[0].Failure.RetriesExhausted)
	assert.Equal(t, "Failed:NonRetryable", outcomes[0].Status())
	assert.Equal(t, int64(3), calls.Load())
}

func TestCollect_HungFetchTimesOutWithoutBlockingOthers(t *testing.T) {
	hang := providers.ResourceType{
		Kind:      "aws/hung",
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch: func(_ context.Context, _ types.Target, _ string) (providers.Page, error) {
			select {} // never returns, ignores ctx
		},
		Map: mapString("aws/hung"),
	}
	healthy := staticType("aws/thing", "a")

	units := BuildUnits([]types.Target{awsTarget("prod/us-east-1")},
		[]providers.ResourceType{hang, healthy})

	start := time.Now()
	outcomes := fastEngine(Options{PerUnitTimeout: 50 * time.Millisecond}).
		Collect(context.Background(), units)
	require.Len(t, outcomes, 2)
	assert.Less(t, time.Since(start), 5*time.Second)

	byKind := map[string]Outcome{}
	for _, o := range outcomes {
		byKind[o.Kind] = o
	}
	assert.Equal(t, "Timeout", byKind["aws/hung"].Status())
	assert.Equal(t, "Complete", byKind["aws/thing"].Status())
}

func TestCollect_CancellationMarksUndispatchedUnits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var once sync.Once
	firstRunning := make(chan struct{})
	rt := providers.ResourceType{
		Kind:      "aws/thing",
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch: func(_ context.Context, _ types.Target, _ string) (providers.Page, error) {
			once.Do(func() { close(firstRunning) })
			time.Sleep(50 * time.Millisecond)
			return providers.Page{Records: []providers.RawRecord{"x"}}, nil
		},
		Map: mapString("aws/thing"),
	}

	targets := make([]types.Target, 4)
	for i := range targets {
		targets[i] = awsTarget(fmt.Sprintf("acct/region-%d", i))
	}
	units := BuildUnits(targets, []providers.ResourceType{rt})

	go func() {
		<-firstRunning
		cancel()
	}()

	// Concurrency of 1 admits a single unit, so cancellation lands while
	// the other units are still queued on the semaphores.
	outcomes := fastEngine(Options{GlobalConcurrency: 1, PerBackendConcurrency: 1}).
		Collect(ctx, units)
	require.Len(t, outcomes, 4)

	cancelled := 0
	completed := 0
	for _, o := range outcomes {
		switch o.Status() {
		case "Cancelled":
			cancelled++
		case "Complete":
			completed++
		}
	}
	// The in-flight unit finishes naturally; the rest never dispatch.
	assert.Equal(t, 1, completed)
	assert.Equal(t, 3, cancelled)
}

func TestCollect_PartialPaginationStatus(t *testing.T) {
	rt := providers.ResourceType{
		Kind:      "aws/endless",
		Backend:   types.BackendAWS,
		Paginated: true,
		Fetch: func(_ context.Context, _ types.Target, cursor string) (providers.Page, error) {
			return providers.Page{Records: []providers.RawRecord{"x" + cursor}, NextCursor: "more"}, nil
		},
		Map: mapString("aws/endless"),
	}

	units := BuildUnits([]types.Target{awsTarget("prod/us-east-1")}, []providers.ResourceType{rt})
	outcomes := fastEngine(Options{MaxPages: 3}).Collect(context.Background(), units)

	require.Len(t, outcomes, 1)
	assert.Nil(t, outcomes[0].Failure)
	assert.Equal(t, "PartialPagination", outcomes[0].Status())
	assert.Equal(t, 3, outcomes[0].Pages)
}
