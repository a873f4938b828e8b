package breaker

// handleStateTransition handles state machine transitions based on request outcome.
func (cb *CircuitBreaker) handleStateTransition(success bool, currentState State) {
	switch currentState {
	case StateClosed:
		if !success {
			cb.checkAndTripCircuit()
		}
	case StateHalfOpen:
		if success {
			// spec.md §4.2: HALF_OPEN only closes once successCount reaches
			// halfOpenMaxCalls, not on the first trial success (§8 scenario
			// 1: MaxRequests=2 needs two successful admissions).
			if cb.consecutiveSuccesses.Load() >= cb.getMaxRequests() {
				cb.transitionToClosed()
			}
		} else {
			cb.transitionBackToOpen()
		}
	}
}

// readyToTrip dispatches to the configured ReadyToTrip override, or to the
// built-in decision function for cb.tripPolicy.
func (cb *CircuitBreaker) readyToTrip(counts Counts) bool {
	if cb.customReadyToTrip != nil {
		return cb.customReadyToTrip(counts)
	}

	switch cb.tripPolicy {
	case AdaptiveFailureRate:
		if counts.Requests < cb.getMinimumObservations() {
			return false
		}
		rate := float64(counts.TotalFailures) / float64(counts.Requests)
		return rate > cb.getFailureRateThreshold()

	case ThroughputGated:
		return counts.FailureCount >= cb.getFailureThreshold() &&
			counts.RequestCountSinceWindowStart >= cb.getMinimumThroughput()

	default: // StaticConsecutiveFailures
		return counts.FailureCount >= cb.getFailureThreshold()
	}
}

// checkAndTripCircuit evaluates readyToTrip and transitions to Open if needed.
func (cb *CircuitBreaker) checkAndTripCircuit() {
	counts := cb.Counts()

	if !cb.readyToTrip(counts) {
		return
	}

	if !cb.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
		return // lost race, another goroutine already transitioned
	}

	cb.openedAt.Store(cb.clock.Now().UnixNano())
	cb.clearCounts()

	cb.logger.Error("circuit tripped",
		"name", cb.name,
		"failureCount", counts.FailureCount,
		"requests", counts.Requests,
	)
	cb.emitTransition(StateClosed, StateOpen)
}

// shouldTransitionToHalfOpen checks if timeout has elapsed since circuit opened.
// It is only consulted while Open, and every transition into Open stores
// openedAt, so a zero value is a real timestamp (a clock at the Unix epoch).
func (cb *CircuitBreaker) shouldTransitionToHalfOpen() bool {
	openedAt := cb.openedAt.Load()

	elapsed := cb.clock.Now().Sub(timeFromUnixNano(openedAt))
	return elapsed >= cb.getTimeout()
}

// transitionToHalfOpen transitions from Open to HalfOpen state.
func (cb *CircuitBreaker) transitionToHalfOpen() {
	if !cb.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
		return
	}

	cb.clearCounts()
	cb.halfOpenRequests.Store(0)

	cb.logger.Warn("circuit admitting half-open trial", "name", cb.name)
	cb.emitTransition(StateOpen, StateHalfOpen)
}

// transitionToClosed transitions from HalfOpen to Closed state (recovery).
func (cb *CircuitBreaker) transitionToClosed() {
	if !cb.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
		return
	}

	cb.clearCounts()
	cb.lastClearedAt.Store(cb.clock.Now().UnixNano())

	cb.logger.Info("circuit recovered", "name", cb.name)
	cb.emitTransition(StateHalfOpen, StateClosed)
}

// transitionBackToOpen transitions from HalfOpen back to Open (failed recovery).
func (cb *CircuitBreaker) transitionBackToOpen() {
	if !cb.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
		return
	}

	cb.openedAt.Store(cb.clock.Now().UnixNano())
	cb.clearCounts()

	cb.logger.Error("half-open trial failed, circuit reopened", "name", cb.name)
	cb.emitTransition(StateHalfOpen, StateOpen)
}
