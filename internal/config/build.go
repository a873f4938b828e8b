package config

import (
	"fmt"

	"github.com/1mb-dev/resiliencekit/errs"
	"github.com/1mb-dev/resiliencekit/internal/backoff"
	"github.com/1mb-dev/resiliencekit/internal/breaker"
	"github.com/1mb-dev/resiliencekit/internal/health"
	"github.com/1mb-dev/resiliencekit/internal/order"
	"github.com/1mb-dev/resiliencekit/internal/retry"
)

// tripPolicyFromString maps the YAML trip_policy string to a
// breaker.TripPolicy. Validate should have already rejected unknown values.
func tripPolicyFromString(s string) breaker.TripPolicy {
	switch s {
	case "failure_rate":
		return breaker.AdaptiveFailureRate
	case "throughput_gated":
		return breaker.ThroughputGated
	default:
		return breaker.StaticConsecutiveFailures
	}
}

// BreakerSettings builds breaker.Settings for the named breaker section.
func (rt *Runtime) BreakerSettings(name string) (breaker.Settings, error) {
	c, ok := rt.Breakers[name]
	if !ok {
		return breaker.Settings{}, errs.New(errs.UnknownService, name, nil)
	}
	return breaker.Settings{
		Name:                 name,
		MaxRequests:          c.MaxRequests,
		Interval:             c.Interval.Duration,
		Timeout:              c.Timeout.Duration,
		TripPolicy:           tripPolicyFromString(c.TripPolicy),
		FailureThreshold:     c.FailureThreshold,
		MinimumThroughput:    c.MinimumThroughput,
		FailureRateThreshold: c.FailureRateThreshold,
		MinimumObservations:  c.MinimumObservations,
	}, nil
}

// RetryEngineConfig builds a retry.Config for the named retry section.
func (rt *Runtime) RetryEngineConfig(name string) (retry.Config, error) {
	c, ok := rt.Retries[name]
	if !ok {
		return retry.Config{}, errs.New(errs.UnknownService, name, nil)
	}

	tags := make([]errs.Tag, 0, len(c.RetryableTags))
	for _, t := range c.RetryableTags {
		tags = append(tags, errs.Tag(t))
	}

	return retry.Config{
		MaxAttempts: c.MaxAttempts,
		Backoff: backoff.Config{
			BaseDelay:    c.BaseDelay.Duration,
			MaxDelay:     c.MaxDelay.Duration,
			Multiplier:   c.Multiplier,
			JitterFactor: c.JitterFactor,
		},
		RetryableTags: tags,
	}, nil
}

// HealthCheckConfig builds a health.Config for the named section, with
// probe supplied by the caller (YAML carries no executable code).
func (rt *Runtime) HealthCheckConfig(name string, probe health.Probe) (health.Config, error) {
	c, ok := rt.Health[name]
	if !ok {
		return health.Config{}, errs.New(errs.UnknownService, name, nil)
	}
	return health.Config{
		Name:               name,
		Probe:              probe,
		Timeout:            c.Timeout.Duration,
		Interval:           c.Interval.Duration,
		HealthyThreshold:   c.HealthyThreshold,
		UnhealthyThreshold: c.UnhealthyThreshold,
	}, nil
}

// OrderedStreamConfig builds an order.Config for the named section.
func (rt *Runtime) OrderedStreamConfig(name string) (order.Config, error) {
	c, ok := rt.Streams[name]
	if !ok {
		return order.Config{}, errs.New(errs.UnknownService, name, nil)
	}
	return order.Config{
		Name:           name,
		BaseSeq:        c.BaseSeq,
		BufferCapacity: c.BufferCapacity,
		SeenIDCapacity: c.SeenIDCapacity,
		AckTimeout:     c.AckTimeout.Duration,
	}, nil
}

// StormCapacity returns the configured per-key capacity for the named
// storm-controller section.
func (rt *Runtime) StormCapacity(name string) (int64, error) {
	c, ok := rt.Storms[name]
	if !ok {
		return 0, errs.New(errs.UnknownService, name, nil)
	}
	if c.Capacity < 1 {
		return 0, fmt.Errorf("config: storm_controller %q: capacity must be >= 1", name)
	}
	return c.Capacity, nil
}
