// Package registry owns the named, shared instances of every other
// component -- breakers, degrade services, health monitors and order
// streams -- and the lifecycle of the background goroutines they start
// (spec.md §9 "Timer ownership" redesign note). Nothing in the runtime
// starts a probe loop or an ack-timeout watcher without a Registry behind
// it to shut it down.
package registry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/1mb-dev/resiliencekit/errs"
	"github.com/1mb-dev/resiliencekit/internal/breaker"
	"github.com/1mb-dev/resiliencekit/internal/degrade"
	"github.com/1mb-dev/resiliencekit/internal/health"
	"github.com/1mb-dev/resiliencekit/internal/order"
)

// Registry is a thread-safe, named lookup for every long-lived component
// instance in one runtime. Construct with New; the zero value is not
// usable.
type Registry struct {
	closed atomic.Bool

	mu       sync.RWMutex
	breakers map[string]*breaker.CircuitBreaker
	services map[string]*degrade.Service
	streams  map[string]*order.Stream
	health   *health.Monitor
}

// New builds an empty Registry. h may be nil if the runtime has no health
// targets to monitor; one Monitor is shared across every target
// registered through RegisterHealth.
func New(h *health.Monitor) *Registry {
	if h == nil {
		h = health.New(nil)
	}
	return &Registry{
		breakers: make(map[string]*breaker.CircuitBreaker),
		services: make(map[string]*degrade.Service),
		streams:  make(map[string]*order.Stream),
		health:   h,
	}
}

func (r *Registry) checkOpen() error {
	if r.closed.Load() {
		return errs.New(errs.UnknownService, "registry", nil)
	}
	return nil
}

// configConflictError is a caller error (spec.md §7(a)): re-registering a
// name with a different instance than the one already registered under it.
// It is never one of errs.Tag's runtime-raised kinds, since it reflects a
// programming mistake at the call site, not an admission or operation
// outcome.
type configConflictError string

func (e configConflictError) Error() string { return string(e) }

func errConfigConflict(name string) error {
	return configConflictError("registry: \"" + name + "\" already registered with a different instance")
}

// RegisterBreaker adds cb under name. Registration is idempotent by name
// (spec.md §4.8): registering the same *CircuitBreaker again under a name
// it already owns is a no-op, but registering a different breaker under a
// name already in use is a configuration error -- the Registry never
// silently swaps out a live breaker.
func (r *Registry) RegisterBreaker(name string, cb *breaker.CircuitBreaker) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.breakers[name]; ok {
		if existing == cb {
			return nil
		}
		return errConfigConflict(name)
	}
	r.breakers[name] = cb
	return nil
}

// Breaker looks up a registered circuit breaker by name.
func (r *Registry) Breaker(name string) (*breaker.CircuitBreaker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cb, ok := r.breakers[name]
	if !ok {
		return nil, errs.New(errs.UnknownService, name, nil)
	}
	return cb, nil
}

// RegisterService adds svc under name. Idempotent by name like
// RegisterBreaker: re-registering the same *Service is a no-op, a different
// one under the same name is a configuration error.
func (r *Registry) RegisterService(name string, svc *degrade.Service) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.services[name]; ok {
		if existing == svc {
			return nil
		}
		return errConfigConflict(name)
	}
	r.services[name] = svc
	return nil
}

// Service looks up a registered degradation service by name.
func (r *Registry) Service(name string) (*degrade.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[name]
	if !ok {
		return nil, errs.New(errs.UnknownService, name, nil)
	}
	return svc, nil
}

// RegisterStream adds an ordered-delivery stream under name. Idempotent by
// name: re-registering the same *Stream is a no-op; a different one under
// the same name is a configuration error rather than a silent swap, since
// that would drop the old stream's in-flight reassembly state.
func (r *Registry) RegisterStream(name string, s *order.Stream) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.streams[name]; ok {
		if existing == s {
			return nil
		}
		return errConfigConflict(name)
	}
	r.streams[name] = s
	return nil
}

// Stream looks up a registered ordered-delivery stream by name.
func (r *Registry) Stream(name string) (*order.Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.streams[name]
	if !ok {
		return nil, errs.New(errs.UnknownService, name, nil)
	}
	return s, nil
}

// RegisterHealth registers a probed target with the Registry's shared
// health monitor.
func (r *Registry) RegisterHealth(ctx context.Context, cfg health.Config) error {
	if err := r.checkOpen(); err != nil {
		return err
	}
	return r.health.Register(ctx, cfg)
}

// Health returns the shared health monitor, for Aggregate()/Result() reads.
func (r *Registry) Health() *health.Monitor {
	return r.health
}

// Close tears down every owned background goroutine: every stream's
// ack-timeout watchers and the shared health monitor's probe loops.
// Idempotent. After Close, registration calls fail with UnknownService.
func (r *Registry) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}

	r.mu.Lock()
	streams := make([]*order.Stream, 0, len(r.streams))
	for _, s := range r.streams {
		streams = append(streams, s)
	}
	r.mu.Unlock()

	for _, s := range streams {
		s.Close()
	}
	r.health.Close()
}
