// Package degrade implements primary+fallback dispatch guarded by a
// circuit breaker, with optional retry and storm-control wrapping of the
// primary path, per spec.md §3's Service and §4.6.
package degrade

import (
	"context"

	"github.com/1mb-dev/resiliencekit/errs"
	"github.com/1mb-dev/resiliencekit/internal/breaker"
	"github.com/1mb-dev/resiliencekit/internal/retry"
	"github.com/1mb-dev/resiliencekit/internal/storm"
)

// Operation is a caller-supplied unit of work dispatched through a Service.
type Operation func(ctx context.Context) (interface{}, error)

// Service wraps one named dependency's primary operation with a circuit
// breaker and, optionally, a retry engine and a storm controller, falling
// back to a secondary operation when the primary path is rejected or
// fails. Construct with New; zero value is not usable.
type Service struct {
	name string
	cb   *breaker.CircuitBreaker

	retryEngine *retry.Engine
	storm       *storm.Controller
	stormKey    string

	fallback Operation
}

// Settings configures a Service.
type Settings struct {
	Name string
	// Breaker guards the primary operation. Required.
	Breaker *breaker.CircuitBreaker
	// Retry, if set, wraps the primary operation inside the breaker
	// (breaker decides whether to admit at all; the retry engine then
	// governs the admitted call's own retry behavior).
	Retry *retry.Engine
	// Storm, if set, gates the primary operation by concurrency key
	// before the breaker is consulted.
	Storm    *storm.Controller
	StormKey string
	// Fallback runs if the primary path is rejected by the breaker or
	// storm controller, or fails after retries are exhausted. Optional;
	// if nil, the primary path's own error is returned.
	Fallback Operation
}

// New builds a Service. Panics if Settings.Breaker is nil: a breakerless
// service isn't a degradation coordinator, just a call.
func New(settings Settings) *Service {
	if settings.Breaker == nil {
		panic("degrade: Breaker is required")
	}
	return &Service{
		name:        settings.Name,
		cb:          settings.Breaker,
		retryEngine: settings.Retry,
		storm:       settings.Storm,
		stormKey:    settings.StormKey,
		fallback:    settings.Fallback,
	}
}

// Name returns the service's identifier.
func (s *Service) Name() string { return s.name }

// Dispatch runs primary through the configured storm/breaker/retry
// wrapping. If primary is rejected (CircuitOpen, HalfOpenExceeded,
// StormDetected) or ultimately fails, Fallback — if configured — is tried
// instead and its result and error are returned verbatim; the primary's
// error is then not returned. Without a Fallback, the primary's error is
// returned verbatim.
func (s *Service) Dispatch(ctx context.Context, primary Operation) (interface{}, error) {
	result, err := s.dispatchPrimary(ctx, primary)
	if err == nil {
		return result, nil
	}

	if s.fallback == nil {
		return result, err
	}
	return s.fallback(ctx)
}

func (s *Service) dispatchPrimary(ctx context.Context, primary Operation) (interface{}, error) {
	guarded := s.wrapWithBreaker(primary)

	if s.storm == nil {
		return guarded(ctx)
	}

	key := s.stormKey
	if key == "" {
		key = s.name
	}
	return s.storm.Run(ctx, key, guarded)
}

func (s *Service) wrapWithBreaker(primary Operation) Operation {
	return func(ctx context.Context) (interface{}, error) {
		inner := primary
		if s.retryEngine != nil {
			inner = func(ctx context.Context) (interface{}, error) {
				return s.retryEngine.Run(ctx, retry.Op(primary))
			}
		}
		return s.cb.ExecuteContext(ctx, func() (interface{}, error) {
			return inner(ctx)
		})
	}
}

// UnknownServiceErr builds the error a Registry returns for a service name
// that was never registered.
func UnknownServiceErr(name string) error {
	return errs.New(errs.UnknownService, name, nil)
}
