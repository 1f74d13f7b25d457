// Package engine fans out work units across the target × resource-type
// matrix under bounded concurrency and collects their terminal outcomes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/yairfalse/kera/lister"
	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/telemetry"
	"github.com/yairfalse/kera/types"
)

const (
	DefaultGlobalConcurrency     = 8
	DefaultPerBackendConcurrency = 4
	DefaultPerUnitTimeout        = 2 * time.Minute
)

// Options configures one collection run.
type Options struct {
	// GlobalConcurrency caps in-flight units across all backends.
	GlobalConcurrency int
	// PerBackendConcurrency caps in-flight units per backend kind, so one
	// slow backend cannot monopolize the global budget.
	PerBackendConcurrency int
	// PerUnitTimeout bounds each unit end to end, including retries.
	PerUnitTimeout time.Duration

	// Passed through to the lister.
	MaxRetries int
	MaxPages   int
	Limiters   map[types.BackendKind]*rate.Limiter
}

func (o Options) withDefaults() Options {
	if o.GlobalConcurrency <= 0 {
		o.GlobalConcurrency = DefaultGlobalConcurrency
	}
	if o.PerBackendConcurrency <= 0 {
		o.PerBackendConcurrency = DefaultPerBackendConcurrency
	}
	if o.PerUnitTimeout <= 0 {
		o.PerUnitTimeout = DefaultPerUnitTimeout
	}
	return o
}

// Engine owns the lifecycle of work units and their outcomes.
type Engine struct {
	opts   Options
	lister *lister.Lister
	logger *telemetry.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	opts = opts.withDefaults()
	return &Engine{
		opts: opts,
		lister: lister.New(lister.Options{
			MaxRetries: opts.MaxRetries,
			MaxPages:   opts.MaxPages,
			Limiters:   opts.Limiters,
		}),
		logger: telemetry.NewLogger("engine"),
	}
}

// BuildUnits pairs every target with the resource types of its backend.
// Target and type order is preserved.
func BuildUnits(targets []types.Target, rtypes []providers.ResourceType) []WorkUnit {
	var units []WorkUnit
	for _, target := range targets {
		for _, rt := range rtypes {
			if rt.Backend != target.Backend {
				continue
			}
			units = append(units, WorkUnit{Target: target, Type: rt})
		}
	}
	return units
}

// Collect dispatches all units and blocks until every one reaches a terminal
// outcome. Unit failures are reported in the outcomes, never as an error:
// a run where every unit failed still yields a full outcome slice.
//
// Cancelling ctx stops dispatch; units already in flight run to their own
// completion or timeout, and units still waiting for a slot come back as
// Cancelled.
func (e *Engine) Collect(ctx context.Context, units []WorkUnit) []Outcome {
	e.logger.WithContext(ctx).Info().
		Int("units", len(units)).
		Int("global_concurrency", e.opts.GlobalConcurrency).
		Int("per_backend_concurrency", e.opts.PerBackendConcurrency).
		Dur("per_unit_timeout", e.opts.PerUnitTimeout).
		Msg("dispatching work units")

	global := semaphore.NewWeighted(int64(e.opts.GlobalConcurrency))
	perBackend := make(map[types.BackendKind]*semaphore.Weighted)
	for _, unit := range units {
		if _, ok := perBackend[unit.Target.Backend]; !ok {
			perBackend[unit.Target.Backend] = semaphore.NewWeighted(int64(e.opts.PerBackendConcurrency))
		}
	}

	results := make(chan Outcome, len(units))
	var wg sync.WaitGroup

	for _, unit := range units {
		wg.Add(1)
		go func(unit WorkUnit) {
			defer wg.Done()
			results <- e.dispatch(ctx, unit, global, perBackend[unit.Target.Backend])
		}(unit)
	}

	wg.Wait()
	close(results)

	outcomes := make([]Outcome, 0, len(units))
	for outcome := range results {
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// dispatch waits for the unit's backend and global slots, then runs it.
// Every unit queues on its own backend's semaphore, so a backend whose cap
// is full of slow units never delays dispatch for the other backend. The
// backend slot is taken first: holding a global token while blocked on a
// full backend would let one backend starve the other out of the global
// budget.
func (e *Engine) dispatch(ctx context.Context, unit WorkUnit, global, backend *semaphore.Weighted) Outcome {
	if err := backend.Acquire(ctx, 1); err != nil {
		return cancelledOutcome(unit)
	}
	defer backend.Release(1)

	if err := global.Acquire(ctx, 1); err != nil {
		return cancelledOutcome(unit)
	}
	defer global.Release(1)

	return e.runUnit(ctx, unit)
}

func cancelledOutcome(unit WorkUnit) Outcome {
	return Outcome{
		Target: unit.Target,
		Kind:   unit.Type.Kind,
		Failure: &Failure{
			Kind:    FailCancelled,
			Message: "run cancelled before dispatch",
		},
	}
}

// runUnit executes one unit under its own deadline. The unit context is
// detached from the run context: cancelling the run never aborts a unit
// that is already in flight.
func (e *Engine) runUnit(ctx context.Context, unit WorkUnit) Outcome {
	unitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.opts.PerUnitTimeout)
	defer cancel()

	start := time.Now()

	type listReturn struct {
		result lister.Result
		err    error
	}
	done := make(chan listReturn, 1)
	go func() {
		result, err := e.lister.List(unitCtx, unit.Target, unit.Type)
		done <- listReturn{result, err}
	}()

	select {
	case ret := <-done:
		return e.buildOutcome(ctx, unit, ret.result, ret.err, time.Since(start))
	case <-unitCtx.Done():
		// A fetch that never returns must not block the rest of the run;
		// the listing goroutine is abandoned to the leaked call.
		outcome := Outcome{
			Target:   unit.Target,
			Kind:     unit.Type.Kind,
			Duration: time.Since(start),
			Failure: &Failure{
				Kind:    FailTimeout,
				Message: fmt.Sprintf("unit exceeded %s deadline", e.opts.PerUnitTimeout),
			},
		}
		e.logUnit(ctx, outcome)
		return outcome
	}
}

func (e *Engine) buildOutcome(ctx context.Context, unit WorkUnit, result lister.Result, err error, elapsed time.Duration) Outcome {
	outcome := Outcome{
		Target:             unit.Target,
		Kind:               unit.Type.Kind,
		Resources:          result.Resources,
		Pages:              result.Pages,
		PaginationComplete: result.PaginationComplete,
		MappingWarnings:    result.MappingWarnings,
		Attempts:           result.Attempts,
		Duration:           elapsed,
	}
	if err != nil {
		outcome.Resources = nil
		outcome.Failure = classifyFailure(err)
	}
	e.logUnit(ctx, outcome)
	return outcome
}

func classifyFailure(err error) *Failure {
	var exhausted *lister.RetriesExhaustedError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Failure{Kind: FailTimeout, Message: err.Error()}
	case errors.Is(err, context.Canceled):
		return &Failure{Kind: FailCancelled, Message: err.Error()}
	case errors.As(err, &exhausted):
		return &Failure{
			Kind:             FailNonRetryable,
			Message:          err.Error(),
			RetriesExhausted: true,
		}
	default:
		return &Failure{Kind: FailNonRetryable, Message: err.Error()}
	}
}

func (e *Engine) logUnit(ctx context.Context, outcome Outcome) {
	event := e.logger.WithContext(ctx).Info()
	if outcome.Failure != nil {
		event = e.logger.WithContext(ctx).Warn().
			Str("failure", string(outcome.Failure.Kind)).
			Str("reason", outcome.Failure.Message)
	}
	event.
		Str("target", outcome.Target.Label).
		Str("backend", string(outcome.Target.Backend)).
		Str("kind", outcome.Kind).
		Str("status", outcome.Status()).
		Int("resources", len(outcome.Resources)).
		Int("pages", outcome.Pages).
		Int("mapping_warnings", outcome.MappingWarnings).
		Dur("duration", outcome.Duration).
		Msg("work unit finished")
}
