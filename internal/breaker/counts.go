package breaker

import "time"

// maybeResetCounts clears counts if Settings.Interval has elapsed since the
// last clear, while Closed. Guarded by a CAS on lastClearedAt so concurrent
// callers don't double-clear. Uses the injected clock rather than time.Now
// directly so tests can drive it with clock.Fake.
func (cb *CircuitBreaker) maybeResetCounts() {
	interval := cb.getInterval()
	if interval <= 0 {
		return
	}

	now := cb.clock.Now().UnixNano()
	last := cb.lastClearedAt.Load()

	lastTime := time.Unix(0, last)
	if cb.clock.Now().Sub(lastTime) >= interval {
		if cb.lastClearedAt.CompareAndSwap(last, now) {
			cb.clearCounts()
		}
	}
}

// clearCounts resets all counters to zero. Called on every state transition
// and, in Closed state, every Settings.Interval.
func (cb *CircuitBreaker) clearCounts() {
	cb.requests.Store(0)
	cb.totalSuccesses.Store(0)
	cb.totalFailures.Store(0)
	cb.consecutiveSuccesses.Store(0)
	cb.consecutiveFailures.Store(0)
	cb.requestCountSinceWindowStart.Store(0)
	cb.failureCount.Store(0)
}

// recordOutcome updates counts based on request outcome. failureCount is the
// spec's decaying counter: a single success only erodes it by one, rather
// than zeroing it the way consecutiveFailures does, so a request sequence
// that fails more often than it succeeds keeps climbing toward
// FailureThreshold even without an unbroken failing streak.
func (cb *CircuitBreaker) recordOutcome(success bool) {
	cb.requestCountSinceWindowStart.Add(1)

	if success {
		cb.totalSuccesses.Add(1)
		cb.consecutiveSuccesses.Add(1)
		cb.consecutiveFailures.Store(0)
		cb.decayFailureCount()
		return
	}

	cb.totalFailures.Add(1)
	cb.consecutiveFailures.Add(1)
	cb.consecutiveSuccesses.Store(0)
	cb.failureCount.Add(1)
}

// decayFailureCount subtracts one from failureCount, floored at zero.
func (cb *CircuitBreaker) decayFailureCount() {
	for {
		cur := cb.failureCount.Load()
		if cur == 0 {
			return
		}
		if cb.failureCount.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

func (cb *CircuitBreaker) snapshotCounts() Counts {
	return Counts{
		Requests:                     cb.requests.Load(),
		TotalSuccesses:               cb.totalSuccesses.Load(),
		TotalFailures:                cb.totalFailures.Load(),
		ConsecutiveSuccesses:         cb.consecutiveSuccesses.Load(),
		ConsecutiveFailures:          cb.consecutiveFailures.Load(),
		RequestCountSinceWindowStart: cb.requestCountSinceWindowStart.Load(),
		FailureCount:                 cb.failureCount.Load(),
	}
}
