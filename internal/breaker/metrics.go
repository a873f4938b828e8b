package breaker

import "time"

// Metrics combines current state, counts, derived rates, and transition
// timestamps into one snapshot, for dashboards and health endpoints that
// don't want to assemble it from Counts()/State() themselves.
type Metrics struct {
	State State
	Counts Counts

	// FailureRate and SuccessRate are TotalFailures/Requests and
	// TotalSuccesses/Requests respectively; both 0 if Requests is 0.
	FailureRate float64
	SuccessRate float64

	// StateChangedAt is when the breaker last transitioned state.
	StateChangedAt time.Time
	// CountsLastClearedAt is when counts were last reset, by transition
	// or by Settings.Interval elapsing while Closed.
	CountsLastClearedAt time.Time
}

// Metrics returns a point-in-time snapshot. Like Counts(), the individual
// atomic reads are consistent but the collection as a whole is not a single
// atomic transaction — acceptable for monitoring, not for decisions that
// require a strictly consistent view.
func (cb *CircuitBreaker) Metrics() Metrics {
	counts := cb.Counts()
	state := cb.State()

	var failureRate, successRate float64
	if counts.Requests > 0 {
		failureRate = float64(counts.TotalFailures) / float64(counts.Requests)
		successRate = float64(counts.TotalSuccesses) / float64(counts.Requests)
	}

	var stateChangedAt time.Time
	if ts := cb.stateChangedAt.Load(); ts > 0 {
		stateChangedAt = time.Unix(0, ts)
	}

	var countsLastClearedAt time.Time
	if ts := cb.lastClearedAt.Load(); ts > 0 {
		countsLastClearedAt = time.Unix(0, ts)
	}

	return Metrics{
		State:               state,
		Counts:              counts,
		FailureRate:         failureRate,
		SuccessRate:         successRate,
		StateChangedAt:      stateChangedAt,
		CountsLastClearedAt: countsLastClearedAt,
	}
}
