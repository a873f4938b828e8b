package breaker

import (
	"errors"
	"fmt"
	"time"
)

// SettingsUpdate carries a partial settings change for UpdateSettings. Only
// non-nil fields are applied; nil fields keep their current value.
type SettingsUpdate struct {
	MaxRequests          *uint32
	Interval             *time.Duration
	Timeout              *time.Duration
	FailureRateThreshold *float64
	MinimumObservations  *uint32
	FailureThreshold     *uint32
	MinimumThroughput    *uint32
}

// UpdateSettings atomically updates the circuit breaker's runtime-tunable
// configuration without requiring a restart. Validation runs over the whole
// update before anything is applied, so a rejected update leaves every
// field untouched.
//
// Changing Interval while Closed resets counts immediately, since the old
// counts were measured against the previous window. Changing Timeout while
// Open restarts the recovery countdown from now, so the new timeout applies
// in full rather than to whatever time remained under the old one.
func (cb *CircuitBreaker) UpdateSettings(update SettingsUpdate) error {
	if err := cb.validateUpdate(update); err != nil {
		return err
	}

	var needsCountReset, needsTimerReset bool
	currentState := cb.State()

	if update.MaxRequests != nil {
		cb.setMaxRequests(*update.MaxRequests)
	}

	if update.Interval != nil {
		oldInterval := cb.getInterval()
		cb.setInterval(*update.Interval)
		if oldInterval != *update.Interval && currentState == StateClosed {
			needsCountReset = true
		}
	}

	if update.Timeout != nil {
		oldTimeout := cb.getTimeout()
		cb.setTimeout(*update.Timeout)
		if oldTimeout != *update.Timeout && currentState == StateOpen {
			needsTimerReset = true
		}
	}

	if update.FailureRateThreshold != nil {
		cb.setFailureRateThreshold(*update.FailureRateThreshold)
	}
	if update.MinimumObservations != nil {
		cb.setMinimumObservations(*update.MinimumObservations)
	}
	if update.FailureThreshold != nil {
		cb.setFailureThreshold(*update.FailureThreshold)
	}
	if update.MinimumThroughput != nil {
		cb.setMinimumThroughput(*update.MinimumThroughput)
	}

	if needsCountReset {
		cb.resetCounts()
	}
	if needsTimerReset {
		cb.openedAt.Store(cb.clock.Now().UnixNano())
	}

	return nil
}

// validateUpdate checks every non-nil field in update before any are applied.
func (cb *CircuitBreaker) validateUpdate(update SettingsUpdate) error {
	if update.MaxRequests != nil && *update.MaxRequests == 0 {
		return errors.New("breaker: MaxRequests must be > 0")
	}
	if update.Interval != nil && *update.Interval < 0 {
		return errors.New("breaker: Interval cannot be negative")
	}
	if update.Timeout != nil && *update.Timeout <= 0 {
		return errors.New("breaker: Timeout must be > 0")
	}
	if update.FailureRateThreshold != nil {
		threshold := *update.FailureRateThreshold
		if cb.tripPolicy == AdaptiveFailureRate && (threshold <= 0 || threshold >= 1) {
			return fmt.Errorf("breaker: FailureRateThreshold must be in range (0, 1), got %f", threshold)
		}
	}
	if update.MinimumObservations != nil && *update.MinimumObservations == 0 {
		return errors.New("breaker: MinimumObservations must be > 0")
	}
	if update.FailureThreshold != nil && *update.FailureThreshold == 0 {
		return errors.New("breaker: FailureThreshold must be > 0")
	}
	return nil
}

// resetCounts resets all counts and restarts the interval window.
func (cb *CircuitBreaker) resetCounts() {
	cb.clearCounts()
	cb.lastClearedAt.Store(cb.clock.Now().UnixNano())
}
