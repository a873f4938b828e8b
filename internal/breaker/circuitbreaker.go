package breaker

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/1mb-dev/resiliencekit/internal/clock"
)

// CircuitBreaker implements the three-state circuit breaker (spec §4.2).
//
// CircuitBreaker protects a downstream dependency from cascading failures by
// temporarily blocking requests to it once it looks unhealthy. Three trip
// policies are available (StaticConsecutiveFailures, AdaptiveFailureRate,
// ThroughputGated) or a fully custom ReadyToTrip function.
//
// Do not construct CircuitBreaker directly; use New(), which validates
// Settings and applies defaults.
//
// All hot-path fields (state, counts, runtime-updateable settings) are
// atomics, so Execute in the Closed state never takes a lock.
type CircuitBreaker struct {
	name string

	clock clock.Clock
	logger Logger

	// Immutable, set once at construction.
	customReadyToTrip func(Counts) bool
	onStateChange     func(string, State, State)
	isSuccessful      func(error) bool
	tripPolicy        TripPolicy

	// Runtime-updateable settings (atomic).
	maxRequests          atomic.Uint32
	interval             atomic.Int64 // time.Duration
	timeout              atomic.Int64 // time.Duration
	failureRateThreshold atomic.Uint64 // float64 bits
	minimumObservations  atomic.Uint32
	failureThreshold     atomic.Uint32
	minimumThroughput    atomic.Uint32

	// State (atomic).
	state atomic.Int32

	// Counts (atomic).
	requests                     atomic.Uint32
	totalSuccesses               atomic.Uint32
	totalFailures                atomic.Uint32
	consecutiveSuccesses         atomic.Uint32
	consecutiveFailures          atomic.Uint32
	requestCountSinceWindowStart atomic.Uint32
	failureCount                 atomic.Uint32

	// Half-open admission limiter (atomic). Counts admissions, not
	// completions, per the redesign note in the spec's §9: two trial
	// calls admitted concurrently both count against MaxRequests even
	// if neither has returned yet.
	halfOpenRequests atomic.Int32

	// Timestamps (atomic, UnixNano).
	openedAt       atomic.Int64
	lastClearedAt  atomic.Int64
	stateChangedAt atomic.Int64

	// transitions fans state changes out to observers (spec §9,
	// "Synchronous callback fan-out" redesign note): bounded and
	// non-blocking, so a slow or absent consumer never stalls Execute.
	transitions chan Transition
}

func timeFromUnixNano(ns int64) time.Time { return time.Unix(0, ns) }

// New creates a circuit breaker ready for concurrent use in the Closed
// state.
//
// Defaults: MaxRequests=1, Timeout=60s, TripPolicy=StaticConsecutiveFailures
// with FailureThreshold=5, FailureRateThreshold=0.05 and
// MinimumObservations=20 for AdaptiveFailureRate, MinimumThroughput=1 for
// ThroughputGated, IsSuccessful=DefaultIsSuccessful, Logger=no-op.
//
// Panics on invalid settings (negative Interval, FailureRateThreshold
// outside (0,1)): these indicate a programming error that should surface in
// development, not at call time.
func New(settings Settings) *CircuitBreaker {
	if settings.Interval < 0 {
		panic("breaker: Interval cannot be negative")
	}
	if settings.FailureRateThreshold != 0 && (settings.FailureRateThreshold <= 0 || settings.FailureRateThreshold >= 1) {
		panic("breaker: FailureRateThreshold must be in range (0, 1)")
	}

	cb := &CircuitBreaker{
		name:              settings.Name,
		clock:             clock.Real{},
		customReadyToTrip: settings.ReadyToTrip,
		onStateChange:     settings.OnStateChange,
		isSuccessful:      settings.IsSuccessful,
		tripPolicy:        settings.TripPolicy,
		logger:            settings.Logger,
		transitions:       make(chan Transition, 16),
	}

	if cb.logger == nil {
		cb.logger = noopLogger{}
	}

	cb.setMaxRequests(settings.MaxRequests)
	cb.setInterval(settings.Interval)
	cb.setTimeout(settings.Timeout)
	cb.setFailureRateThreshold(settings.FailureRateThreshold)
	cb.setMinimumObservations(settings.MinimumObservations)
	cb.setFailureThreshold(settings.FailureThreshold)
	cb.setMinimumThroughput(settings.MinimumThroughput)

	if cb.getMaxRequests() == 0 {
		cb.setMaxRequests(1)
	}
	if cb.getTimeout() == 0 {
		cb.setTimeout(60 * time.Second)
	}
	if cb.getFailureThreshold() == 0 {
		cb.setFailureThreshold(5)
	}
	if cb.getMinimumThroughput() == 0 {
		cb.setMinimumThroughput(1)
	}
	if cb.isSuccessful == nil {
		cb.isSuccessful = DefaultIsSuccessful
	}
	if cb.tripPolicy == AdaptiveFailureRate {
		if cb.getFailureRateThreshold() == 0 {
			cb.setFailureRateThreshold(0.05)
		}
		if cb.getMinimumObservations() == 0 {
			cb.setMinimumObservations(20)
		}
	}

	now := cb.clock.Now().UnixNano()
	cb.state.Store(int32(StateClosed))
	cb.lastClearedAt.Store(now)
	cb.stateChangedAt.Store(now)

	return cb
}

// WithClock overrides the circuit breaker's time source. Intended for tests
// (clock.Fake); production callers never need this.
func (cb *CircuitBreaker) WithClock(c clock.Clock) *CircuitBreaker {
	cb.clock = c
	return cb
}

// Name returns the circuit breaker's identifier.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns a point-in-time snapshot of the current state.
func (cb *CircuitBreaker) State() State {
	return State(cb.state.Load())
}

// Counts returns a point-in-time snapshot of request statistics.
func (cb *CircuitBreaker) Counts() Counts {
	return cb.snapshotCounts()
}

// Transitions returns the channel on which every state change is
// delivered. The channel is bounded (16); if it fills, further
// transitions are dropped rather than blocking Execute — callers who need
// a complete transition history should drain it promptly or poll State()
// instead.
func (cb *CircuitBreaker) Transitions() <-chan Transition {
	return cb.transitions
}

func (cb *CircuitBreaker) emitTransition(from, to State) {
	now := cb.clock.Now()
	cb.stateChangedAt.Store(now.UnixNano())

	if cb.onStateChange != nil {
		cb.onStateChange(cb.name, from, to)
	}
	select {
	case cb.transitions <- Transition{Name: cb.name, From: from, To: to, At: now}:
	default:
	}
}

// Execute runs req if the circuit breaker allows it, counts the outcome,
// and drives state transitions accordingly.
//
//   - Closed: req always runs; a failure may trip the circuit to Open.
//   - Open: req is rejected immediately with a CircuitOpen error, unless
//     Timeout has elapsed since tripping, in which case a HALF_OPEN trial
//     begins and this call is admitted as its first probe.
//   - HalfOpen: up to MaxRequests concurrent probes are admitted; beyond
//     that, rejected with a HalfOpenExceeded error. The circuit closes once
//     MaxRequests consecutive probes have succeeded; a probe failure
//     reopens it.
//
// A panic inside req is recorded as a failure and re-raised after
// bookkeeping completes.
func (cb *CircuitBreaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	currentState, err := cb.admit()
	if err != nil {
		return nil, err
	}

	var result interface{}
	var reqErr error
	panicked := false

	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				cb.recordOutcome(false)
				cb.handleStateTransition(false, currentState)
				if currentState == StateHalfOpen {
					cb.halfOpenRequests.Add(-1)
				}
				panic(r)
			}
		}()
		result, reqErr = req()
	}()

	if currentState == StateHalfOpen {
		cb.halfOpenRequests.Add(-1)
	}
	if !panicked {
		success := cb.isSuccessful(reqErr)
		cb.recordOutcome(success)
		cb.handleStateTransition(success, currentState)
	}

	return result, reqErr
}

// ExecuteContext behaves like Execute but honors ctx: a context already
// canceled before admission is returned immediately without being counted,
// and a context canceled during req's execution is returned in place of
// req's own result, also without counting as success or failure — context
// cancellation reflects the caller giving up, not the dependency's health.
func (cb *CircuitBreaker) ExecuteContext(ctx context.Context, req func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	currentState, err := cb.admit()
	if err != nil {
		return nil, err
	}

	var result interface{}
	var reqErr error
	panicked := false

	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				cb.recordOutcome(false)
				cb.handleStateTransition(false, currentState)
				if currentState == StateHalfOpen {
					cb.halfOpenRequests.Add(-1)
				}
				panic(r)
			}
		}()
		result, reqErr = req()
	}()

	if currentState == StateHalfOpen {
		cb.halfOpenRequests.Add(-1)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if !panicked {
		success := cb.isSuccessful(reqErr)
		cb.recordOutcome(success)
		cb.handleStateTransition(success, currentState)
	}

	return result, reqErr
}

// admit decides whether a call may proceed, performing the Open->HalfOpen
// transition and half-open admission counting. On success it returns the
// state the call should be bookkept against; on rejection it returns a
// tagged error and no state.
func (cb *CircuitBreaker) admit() (State, error) {
	if cb.getInterval() > 0 && cb.State() == StateClosed {
		cb.maybeResetCounts()
	}

	currentState := cb.State()

	if currentState == StateOpen {
		if cb.shouldTransitionToHalfOpen() {
			cb.transitionToHalfOpen()
			currentState = StateHalfOpen
		} else {
			return 0, newOpenErr(cb.name)
		}
	}

	cb.requests.Add(1)

	if currentState == StateHalfOpen {
		current := cb.halfOpenRequests.Add(1)
		if current > int32(cb.getMaxRequests()) {
			cb.halfOpenRequests.Add(-1)
			return 0, newHalfOpenExceededErr(cb.name)
		}
	}

	return currentState, nil
}
