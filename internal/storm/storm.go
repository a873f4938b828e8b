// Package storm implements per-key concurrency admission control: each key
// gets a fixed in-flight budget, and a call that would exceed it is
// rejected immediately rather than queued, per spec.md §4.5.
package storm

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/1mb-dev/resiliencekit/errs"
)

// Controller admits at most Capacity concurrent operations per key,
// fail-fast on the rest. Zero value is not usable; construct with New.
type Controller struct {
	capacity int64

	mu   sync.Mutex
	keys map[string]*keyState
}

// keyState tracks a key's semaphore plus two counters kept separate on
// purpose: refs counts every caller currently resolving this key (admitted
// or rejected), and is what gates map eviction; inFlight counts only
// admitted, not-yet-released callers, and is what Stats() reports, so it
// never exceeds capacity even under contention.
type keyState struct {
	sem      *semaphore.Weighted
	refs     int64
	inFlight int64
}

// New builds a Controller admitting up to capacity concurrent operations
// per key. Panics if capacity < 1, matching the construction-time
// validation every config in this runtime performs.
func New(capacity int64) *Controller {
	if capacity < 1 {
		panic("storm: capacity must be >= 1")
	}
	return &Controller{capacity: capacity, keys: make(map[string]*keyState)}
}

// Op is the caller-supplied operation admitted under key's budget.
type Op func(ctx context.Context) (interface{}, error)

// Run admits op under key's concurrency budget and runs it, or returns a
// StormDetected error immediately if the budget is exhausted. Stats()
// reflects admitted calls only; the key is removed from internal
// bookkeeping once no caller — admitted or rejected — is still resolving
// it.
func (c *Controller) Run(ctx context.Context, key string, op Op) (interface{}, error) {
	ks := c.enter(key)
	defer c.leave(key, ks)

	if !ks.sem.TryAcquire(1) {
		return nil, errs.New(errs.StormDetected, key, nil)
	}
	c.adjustInFlight(ks, 1)
	defer func() {
		ks.sem.Release(1)
		c.adjustInFlight(ks, -1)
	}()

	return op(ctx)
}

// enter returns key's state, creating it and bumping its reference count
// under the controller's lock.
func (c *Controller) enter(key string) *keyState {
	c.mu.Lock()
	defer c.mu.Unlock()

	ks, ok := c.keys[key]
	if !ok {
		ks = &keyState{sem: semaphore.NewWeighted(c.capacity)}
		c.keys[key] = ks
	}
	ks.refs++
	return ks
}

// leave drops key's reference count, evicting the entry once no caller is
// resolving it.
func (c *Controller) leave(key string, ks *keyState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ks.refs--
	if ks.refs <= 0 {
		delete(c.keys, key)
	}
}

func (c *Controller) adjustInFlight(ks *keyState, delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ks.inFlight += delta
}

// Stats returns the current admitted in-flight call count per key. Keys
// with no admitted calls are never present.
func (c *Controller) Stats() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.keys))
	for k, ks := range c.keys {
		if ks.inFlight > 0 {
			out[k] = ks.inFlight
		}
	}
	return out
}
