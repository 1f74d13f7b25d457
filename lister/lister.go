// Package lister executes one work unit: paginated listing of a single
// resource type against a single target, with retries for transient
// failures and normalization of every fetched record.
package lister

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"golang.org/x/time/rate"

	"github.com/yairfalse/kera/providers"
	"github.com/yairfalse/kera/telemetry"
	"github.com/yairfalse/kera/types"
)

// Defaults for the per-page retry policy and the pagination guard.
const (
	DefaultMaxRetries = 3
	DefaultMaxPages   = 50
	DefaultBaseDelay  = 200 * time.Millisecond
	DefaultMaxDelay   = 10 * time.Second
)

// Options configures one Lister.
type Options struct {
	// MaxRetries is the total fetch attempts allowed per page before the
	// unit fails with retries exhausted.
	MaxRetries int

	// MaxPages caps the pagination loop. Hitting the cap is a completeness
	// policy, not an error: the result reports PaginationComplete=false.
	MaxPages int

	BaseDelay time.Duration
	MaxDelay  time.Duration

	// Limiters paces page fetches per backend kind. Nil or a missing entry
	// means unpaced.
	Limiters map[types.BackendKind]*rate.Limiter
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	return o
}

// Result is the successful outcome of one listing, possibly with dropped
// records and incomplete pagination.
type Result struct {
	Resources          []types.Resource
	Pages              int
	PaginationComplete bool
	MappingWarnings    int
	Attempts           int
}

// RetriesExhaustedError marks a transient failure that consumed the whole
// retry budget for one page fetch.
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retry budget exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// Lister lists one resource type per call. Listers are stateless and safe
// for concurrent use; all mutable state lives in the per-call Result.
type Lister struct {
	opts   Options
	logger *telemetry.Logger
}

// New creates a Lister.
func New(opts Options) *Lister {
	return &Lister{
		opts:   opts.withDefaults(),
		logger: telemetry.NewLogger("lister"),
	}
}

// List runs the pagination loop for one (target, resource type) pair.
// A non-nil error is terminal for the unit: non-retryable backend failure,
// exhausted retry budget, or context cancellation/timeout. Partial
// pagination and per-record mapping failures are reported in the Result,
// not as errors.
func (l *Lister) List(ctx context.Context, target types.Target, rt providers.ResourceType) (Result, error) {
	var res Result
	cursor := ""

	for page := 0; page < l.opts.MaxPages; page++ {
		pg, attempts, err := l.fetchPage(ctx, target, rt, cursor)
		res.Attempts += attempts
		if err != nil {
			return res, err
		}
		res.Pages++

		now := time.Now().UTC()
		for _, raw := range pg.Records {
			r, err := rt.Map(target, raw)
			if err != nil {
				res.MappingWarnings++
				l.logger.LogMappingWarning(ctx, target.Label, rt.Kind, err)
				continue
			}
			if r.DiscoveredAt.IsZero() {
				r.DiscoveredAt = now
			}
			res.Resources = append(res.Resources, r)
		}

		if !rt.Paginated || pg.NextCursor == "" {
			res.PaginationComplete = true
			return res, nil
		}
		cursor = pg.NextCursor
	}

	// Page cap reached with a live cursor: report incompleteness.
	l.logger.WithContext(ctx).Warn().
		Str("target", target.Label).
		Str("resource_type", rt.Kind).
		Int("max_pages", l.opts.MaxPages).
		Msg("page cap reached before pagination finished")
	return res, nil
}

// fetchPage performs one page fetch with the per-page retry budget.
// Cancellation is checked before every attempt and during every backoff
// sleep, never mid-flight inside a call.
func (l *Lister) fetchPage(ctx context.Context, target types.Target, rt providers.ResourceType, cursor string) (providers.Page, int, error) {
	delay := l.opts.BaseDelay

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return providers.Page{}, attempt - 1, err
		}
		if lim := l.opts.Limiters[target.Backend]; lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return providers.Page{}, attempt - 1, err
			}
		}

		pg, err := rt.Fetch(ctx, target, cursor)
		if err == nil {
			return pg, attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The fetch lost the race against cancellation or timeout.
			return providers.Page{}, attempt, ctxErr
		}

		kind := providers.KindOf(err)
		if kind == providers.ErrNonRetryable {
			return providers.Page{}, attempt, err
		}
		if attempt >= l.opts.MaxRetries {
			return providers.Page{}, attempt, &RetriesExhaustedError{Attempts: attempt, Err: err}
		}

		if kind == providers.ErrThrottled {
			// Explicit throttling resets the delay upward.
			delay = minDuration(delay*2, l.opts.MaxDelay)
		}

		l.logger.WithContext(ctx).Debug().
			Err(err).
			Str("target", target.Label).
			Str("resource_type", rt.Kind).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("retrying page fetch")

		if err := sleepCtx(ctx, jitter(delay)); err != nil {
			return providers.Page{}, attempt, err
		}
		delay = minDuration(delay*2, l.opts.MaxDelay)
	}
}

// jitter spreads a backoff delay over [delay/2, delay] so concurrent units
// retrying against the same backend do not synchronize.
func jitter(delay time.Duration) time.Duration {
	if delay <= 1 {
		return delay
	}
	half := delay / 2
	return half + time.Duration(rand.Int64N(int64(half)+1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
