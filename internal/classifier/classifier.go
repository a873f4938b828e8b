// Package classifier maps a raised failure to a retry disposition. Per the
// spec's redesign note (§9, "Error matching by substring"), matching is done
// against an explicit Tag field — never against error.Error() text.
package classifier

import (
	"errors"

	"github.com/1mb-dev/resiliencekit/errs"
)

// Disposition is the result of classifying an error.
type Disposition int

const (
	Retryable Disposition = iota
	NonRetryable
)

func (d Disposition) String() string {
	if d == Retryable {
		return "retryable"
	}
	return "non-retryable"
}

// Classifier decides whether a raised error should be retried. Classification
// is pure: it consults only the error value and the configured tag set,
// never runtime state.
type Classifier struct {
	retryable map[errs.Tag]struct{}
}

// New builds a Classifier that treats errors tagged with any of tags as
// Retryable. Errors implementing errs.Tagged with any other tag — including
// every tag the runtime itself raises (CircuitOpen, HalfOpenExceeded,
// StormDetected, AckTimeout, ...) — are always NonRetryable, per spec §4.1.
func New(tags ...errs.Tag) *Classifier {
	set := make(map[errs.Tag]struct{}, len(tags))
	for _, t := range tags {
		switch t {
		case errs.CircuitOpen, errs.HalfOpenExceeded, errs.StormDetected,
			errs.UnknownService, errs.RetryExhausted, errs.Cancelled,
			errs.ProbeTimeout, errs.BufferOverflow, errs.AckTimeout:
			continue // runtime-raised tags are never retryable
		}
		set[t] = struct{}{}
	}
	return &Classifier{retryable: set}
}

// Classify returns Retryable only for an error implementing errs.Tagged
// whose tag is in the configured retryable set. It returns NonRetryable for
// nil (nothing to retry), for errors that carry no tag, and for every other
// tag — including the runtime's own, which New never admits into the set
// (they already reflect an admission decision, not an operation failure).
func (c *Classifier) Classify(err error) Disposition {
	if err == nil {
		return NonRetryable
	}

	var tagged errs.Tagged
	if errors.As(err, &tagged) {
		if _, ok := c.retryable[tagged.Tag()]; ok {
			return Retryable
		}
		return NonRetryable
	}

	return NonRetryable
}
