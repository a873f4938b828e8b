// Package resiliencekit is the public facade over the runtime's internal
// components: a circuit breaker, a retry engine, a storm admission
// controller, a health monitor, an ordered-delivery stream, and the
// degradation coordinator and registry that tie them together.
//
// Every exported name here is a type alias or package variable pointing at
// the corresponding internal/* package, following the facade pattern of
// re-exporting implementation types rather than wrapping them: zero
// overhead, and CircuitBreaker.(*breaker.CircuitBreaker) interop for
// callers that need the underlying package directly.
//
// # Circuit Breaker
//
//	cb := resiliencekit.NewBreaker(resiliencekit.BreakerSettings{
//	    Name:             "payments-api",
//	    FailureThreshold: 5,
//	    Timeout:          10 * time.Second,
//	})
//	result, err := cb.Execute(func() (interface{}, error) {
//	    return callPaymentsAPI()
//	})
//
// # Degradation
//
//	svc := resiliencekit.NewService(resiliencekit.ServiceSettings{
//	    Name:     "payments-api",
//	    Breaker:  cb,
//	    Fallback: func(ctx context.Context) (interface{}, error) { return cachedQuote(), nil },
//	})
//	result, err := svc.Dispatch(ctx, primaryOp)
//
// resiliencekit_test.go exercises the facade end to end.
package resiliencekit

import (
	"github.com/1mb-dev/resiliencekit/internal/backoff"
	"github.com/1mb-dev/resiliencekit/internal/breaker"
	"github.com/1mb-dev/resiliencekit/internal/config"
	"github.com/1mb-dev/resiliencekit/internal/degrade"
	"github.com/1mb-dev/resiliencekit/internal/health"
	"github.com/1mb-dev/resiliencekit/internal/obslog"
	"github.com/1mb-dev/resiliencekit/internal/order"
	"github.com/1mb-dev/resiliencekit/internal/registry"
	"github.com/1mb-dev/resiliencekit/internal/retry"
	"github.com/1mb-dev/resiliencekit/internal/storm"
)

// --- Circuit breaker (internal/breaker) ---

type (
	CircuitBreaker  = breaker.CircuitBreaker
	BreakerState    = breaker.State
	BreakerCounts   = breaker.Counts
	BreakerSettings = breaker.Settings
	SettingsUpdate  = breaker.SettingsUpdate
	BreakerMetrics  = breaker.Metrics
	TripPolicy      = breaker.TripPolicy
	Transition      = breaker.Transition
	BreakerLogger   = breaker.Logger
)

const (
	StateClosed   = breaker.StateClosed
	StateOpen     = breaker.StateOpen
	StateHalfOpen = breaker.StateHalfOpen

	StaticConsecutiveFailures = breaker.StaticConsecutiveFailures
	AdaptiveFailureRate       = breaker.AdaptiveFailureRate
	ThroughputGated           = breaker.ThroughputGated
)

// NewBreaker creates a circuit breaker ready for concurrent use. Panics on
// invalid settings, mirroring construction-time validation throughout this
// module.
var NewBreaker = breaker.New

// NewZapLogger adapts a *zap.Logger (nil for a sensible production
// default) to BreakerLogger, for BreakerSettings.Logger.
var NewZapLogger = obslog.NewZap

// --- Retry (internal/retry, internal/backoff) ---

type (
	RetryEngine = retry.Engine
	RetryConfig = retry.Config
	RetryOp     = retry.Op
	BackoffConfig = backoff.Config
)

// NewRetryEngine builds a retry engine from cfg. Panics on invalid cfg.
var NewRetryEngine = retry.New

// --- Storm admission control (internal/storm) ---

type (
	StormController = storm.Controller
	StormOp         = storm.Op
)

// NewStormController builds a per-key concurrency admission controller.
// Panics if capacity < 1.
var NewStormController = storm.New

// --- Health monitoring (internal/health) ---

type (
	HealthMonitor = health.Monitor
	HealthConfig  = health.Config
	HealthResult  = health.Result
	HealthProbe   = health.Probe
	HealthStatus  = health.Status
	HealthAggregate = health.Aggregate
)

const (
	Healthy   = health.Healthy
	Unhealthy = health.Unhealthy

	AggregateHealthy   = health.AggregateHealthy
	AggregateDegraded  = health.AggregateDegraded
	AggregateUnhealthy = health.AggregateUnhealthy
)

// NewHealthMonitor builds an empty health monitor.
var NewHealthMonitor = health.New

// --- Ordered delivery (internal/order) ---

type (
	OrderedStream  = order.Stream
	OrderedConfig  = order.Config
	OrderedMessage = order.Message
	OrderedEvent   = order.Event
	OrderedEventKind = order.EventKind
	OrderedSnapshot = order.Snapshot
)

// NewOrderedStream builds a stream ready to receive messages.
var NewOrderedStream = order.New

// --- Degradation coordination (internal/degrade) ---

type (
	Service         = degrade.Service
	ServiceSettings = degrade.Settings
	Operation       = degrade.Operation
)

// NewService builds a degradation coordinator around a required circuit
// breaker and optional retry/storm wrapping and fallback.
var NewService = degrade.New

// --- Registry (internal/registry) ---

type Registry = registry.Registry

// NewRegistry builds an empty component registry, owning the background
// goroutines every health monitor and ordered stream it's given starts.
var NewRegistry = registry.New

// --- Configuration (internal/config) ---

type (
	RuntimeConfig = config.Runtime
	ConfigDuration = config.Duration
)

// LoadConfig reads a Runtime configuration document from a YAML file and
// applies its defaults. It does not validate; call Validate on the result.
var LoadConfig = config.Load
