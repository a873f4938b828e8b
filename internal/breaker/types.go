// Package breaker implements the three-state circuit breaker (spec §4.2):
// CLOSED admits everything and counts failures, OPEN fails fast until the
// recovery timeout elapses, HALF_OPEN admits a bounded trial of calls to
// decide whether to recover or re-trip.
//
// The implementation keeps the teacher's (1mb-dev/autobreaker) lock-free,
// atomics-only design: every field that Execute touches on the hot path is
// an atomic.* so CLOSED-state admission never takes a lock.
package breaker

import (
	"time"

	"github.com/1mb-dev/resiliencekit/errs"
)

// State is the circuit breaker's current admission mode.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Counts holds a point-in-time snapshot of request statistics, reset on
// every state transition and (in Closed state) every Settings.Interval.
type Counts struct {
	Requests                     uint32
	TotalSuccesses               uint32
	TotalFailures                uint32
	ConsecutiveSuccesses         uint32
	ConsecutiveFailures          uint32
	RequestCountSinceWindowStart uint32

	// FailureCount is the spec's decaying failure counter (§4.2, §9
	// Open Question): incremented by one on every failure, decremented
	// by one (floor zero) on every success. Unlike ConsecutiveFailures
	// it is not reset to zero by a single success, so a failure-heavy
	// but not unbroken streak still accumulates pressure toward
	// tripping. StaticConsecutiveFailures and ThroughputGated trip
	// policies compare this field against FailureThreshold.
	FailureCount uint32
}

// TripPolicy selects how checkAndTripCircuit decides CLOSED -> OPEN.
type TripPolicy int

const (
	// StaticConsecutiveFailures trips once the decaying FailureCount
	// reaches Settings.FailureThreshold. This is the teacher's original default
	// behavior (DefaultReadyToTrip), generalized to a configurable
	// threshold instead of a hardcoded 5.
	StaticConsecutiveFailures TripPolicy = iota
	// AdaptiveFailureRate trips once the failure rate
	// (TotalFailures/Requests) exceeds Settings.FailureRateThreshold,
	// but only once Requests >= Settings.MinimumObservations. This is
	// the teacher's AdaptiveThreshold mode.
	AdaptiveFailureRate
	// ThroughputGated implements spec §4.2 literally: trips once
	// FailureCount >= FailureThreshold AND
	// RequestCountSinceWindowStart >= MinimumThroughput. The throughput
	// gate prevents a handful of failures on a near-idle service from
	// tripping the circuit prematurely.
	ThroughputGated
)

// Settings configures a CircuitBreaker. Pass to New().
type Settings struct {
	// Name identifies the breaker for logging and the transition stream.
	Name string

	// MaxRequests is the concurrent-admission cap in HALF_OPEN
	// (spec's halfOpenMaxCalls). Default 1.
	MaxRequests uint32

	// Interval clears counts periodically while CLOSED (spec's
	// monitoringPeriod). Zero means counts reset only on transitions.
	Interval time.Duration

	// Timeout is how long OPEN persists before a HALF_OPEN trial is
	// admitted (spec's recoveryTimeout). Default 60s.
	Timeout time.Duration

	// TripPolicy selects the CLOSED -> OPEN decision function. Default
	// StaticConsecutiveFailures.
	TripPolicy TripPolicy

	// FailureThreshold is the FailureCount value
	// StaticConsecutiveFailures and ThroughputGated trip at. Default 5.
	FailureThreshold uint32

	// MinimumThroughput gates ThroughputGated: the window must have
	// seen at least this many requests before a trip is considered.
	// Default 1 (no effective gate).
	MinimumThroughput uint32

	// FailureRateThreshold is the failure rate (0,1) exclusive that
	// AdaptiveFailureRate trips at. Default 0.05.
	FailureRateThreshold float64

	// MinimumObservations gates AdaptiveFailureRate. Default 20.
	MinimumObservations uint32

	// ReadyToTrip, if set, overrides TripPolicy entirely with custom
	// logic, exactly like the teacher's escape hatch.
	ReadyToTrip func(Counts) bool

	// OnStateChange is called synchronously on every transition, after
	// counts are cleared. Optional; the Transitions() channel is the
	// preferred, non-blocking way to observe transitions (spec §9).
	OnStateChange func(name string, from, to State)

	// IsSuccessful determines success vs failure from the error Execute
	// received. Default: err == nil.
	IsSuccessful func(error) bool

	// Logger receives info/warn/error records on recovery, half-open
	// entry, and tripping respectively (spec §4.2 Observability). A
	// no-op logger is used if nil.
	Logger Logger
}

// Logger is the minimal structured-logging seam the breaker needs; see
// internal/obslog.Zap for the zap-backed implementation.
type Logger interface {
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Transition describes one observed state change, delivered on
// CircuitBreaker.Transitions().
type Transition struct {
	Name string
	From State
	To   State
	At   time.Time
}

// DefaultIsSuccessful treats any non-nil error as failure.
func DefaultIsSuccessful(err error) bool { return err == nil }

func newOpenErr(name string) error { return errs.New(errs.CircuitOpen, name, nil) }

func newHalfOpenExceededErr(name string) error {
	return errs.New(errs.HalfOpenExceeded, name, nil)
}
