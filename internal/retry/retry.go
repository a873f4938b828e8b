// Package retry implements the bounded retry loop: invoke an operation,
// classify failures, and retry with backoff until it succeeds, is deemed
// non-retryable, or the attempt budget is exhausted.
package retry

import (
	"context"
	"errors"

	"github.com/1mb-dev/resiliencekit/errs"
	"github.com/1mb-dev/resiliencekit/internal/backoff"
	"github.com/1mb-dev/resiliencekit/internal/classifier"
	"github.com/1mb-dev/resiliencekit/internal/clock"
)

// Config configures an Engine. MaxAttempts bounds how many times Run may
// call the operation; the backoff fields parameterize the delay between
// attempts.
type Config struct {
	MaxAttempts int
	Backoff     backoff.Config

	// RetryableTags names the errs.Tag values that warrant a retry.
	// Everything else — including every tag the runtime itself raises —
	// is surfaced on first occurrence.
	RetryableTags []errs.Tag

	Clock clock.Clock
}

// Validate checks the invariants spec.md §6 requires of RetryConfig.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return errors.New("retry: MaxAttempts must be >= 1")
	}
	return c.Backoff.Validate()
}

// Engine runs an operation with classification-gated retries.
type Engine struct {
	cfg        Config
	classifier *classifier.Classifier
	clock      clock.Clock
	rnd        func() float64
}

// New builds an Engine from cfg. Panics if cfg fails Validate, mirroring
// the construction-time validation the spec requires of all configs.
func New(cfg Config) *Engine {
	if err := cfg.Validate(); err != nil {
		panic("retry: " + err.Error())
	}

	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}

	return &Engine{
		cfg:        cfg,
		classifier: classifier.New(cfg.RetryableTags...),
		clock:      c,
		rnd:        backoff.DefaultRand,
	}
}

// Op is the caller-supplied operation: nullary, returning a result and an
// error classified via the configured retryable tag set.
type Op func(ctx context.Context) (interface{}, error)

// Run invokes op at most cfg.MaxAttempts times, and at least once unless ctx
// is already cancelled when Run is called. Between
// attempts it sleeps for a backoff delay, cancellable via ctx. A context
// cancellation — before the first attempt, during a sleep, or observed
// after op returns — surfaces as a Cancelled error rather than being
// treated as a retryable operation failure.
func (e *Engine) Run(ctx context.Context, op Op) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.New(errs.Cancelled, "retry", err)
	}

	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errs.New(errs.Cancelled, "retry", ctxErr)
		}

		lastErr = err

		// NonRetryable errors are surfaced on first occurrence (spec.md
		// §7(d)), verbatim -- only a Retryable error that survives every
		// attempt becomes RetryExhausted below.
		if e.classifier.Classify(err) != classifier.Retryable {
			return nil, err
		}
		if attempt == e.cfg.MaxAttempts {
			break
		}

		delay := backoff.Delay(e.cfg.Backoff, attempt, e.rnd)
		timer := e.clock.After(delay)
		select {
		case <-timer.C():
		case <-ctx.Done():
			timer.Stop()
			return nil, errs.New(errs.Cancelled, "retry", ctx.Err())
		}
	}

	// spec.md §7(c): a Retryable error that survived MaxAttempts attempts
	// is surfaced as RetryExhausted, with the original error reachable via
	// errors.Unwrap rather than discarded.
	return nil, errs.New(errs.RetryExhausted, "retry", lastErr)
}
