// Package errs defines the closed vocabulary of error tags the resilience
// runtime attaches to its own errors, and the Tagged interface that
// internal/classifier uses to read them back out.
//
// Every runtime-raised error (circuit open, storm detected, ack timeout, ...)
// implements Tagged. Application errors passed through Execute/Run are left
// untouched; the classifier retries one only if it implements Tagged with a
// tag from the caller-supplied retryable set, and treats untagged errors as
// non-retryable.
package errs

import "fmt"

// Tag identifies the kind of an error. The constants below are the closed
// set the runtime raises itself; application errors may carry tags of their
// own, which is what a classifier's retryable set names.
type Tag string

const (
	CircuitOpen      Tag = "CircuitOpen"
	HalfOpenExceeded Tag = "HalfOpenExceeded"
	StormDetected    Tag = "StormDetected"
	UnknownService   Tag = "UnknownService"
	RetryExhausted   Tag = "RetryExhausted"
	Cancelled        Tag = "Cancelled"
	ProbeTimeout     Tag = "ProbeTimeout"
	BufferOverflow   Tag = "BufferOverflow"
	AckTimeout       Tag = "AckTimeout"
)

// Tagged is implemented by every error the runtime raises itself. Callers
// can type-assert an error to Tagged to recover its Tag without string
// matching on Error().
type Tagged interface {
	error
	Tag() Tag
}

// E is the runtime's error type. It wraps an optional inner error so
// wrapper layers (§7 of the spec) can add context without swallowing it.
type E struct {
	tag       Tag
	component string
	inner     error
}

// New constructs a tagged error for component, optionally wrapping inner.
func New(tag Tag, component string, inner error) *E {
	return &E{tag: tag, component: component, inner: inner}
}

func (e *E) Tag() Tag { return e.tag }

func (e *E) Error() string {
	if e.inner != nil {
		return fmt.Sprintf("%s: %s: %v", e.component, e.tag, e.inner)
	}
	return fmt.Sprintf("%s: %s", e.component, e.tag)
}

func (e *E) Unwrap() error { return e.inner }

// Is lets errors.Is(err, errs.New(tag, "", nil)) match any *E with the same
// tag, regardless of component or inner error.
func (e *E) Is(target error) bool {
	other, ok := target.(*E)
	if !ok {
		return false
	}
	return other.tag == e.tag
}

// Sentinel instances for errors.Is comparisons against a bare tag, e.g.
// errors.Is(err, errs.ErrCircuitOpen).
var (
	ErrCircuitOpen      = New(CircuitOpen, "", nil)
	ErrHalfOpenExceeded = New(HalfOpenExceeded, "", nil)
	ErrStormDetected    = New(StormDetected, "", nil)
	ErrUnknownService   = New(UnknownService, "", nil)
	ErrRetryExhausted   = New(RetryExhausted, "", nil)
	ErrCancelled        = New(Cancelled, "", nil)
	ErrProbeTimeout     = New(ProbeTimeout, "", nil)
	ErrBufferOverflow   = New(BufferOverflow, "", nil)
	ErrAckTimeout       = New(AckTimeout, "", nil)
)
