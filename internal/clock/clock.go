// Package clock provides an injectable monotonic time source, generalizing
// the teacher's time.Now().UnixNano() timestamps (internal/breaker/state.go)
// into a seam every other component suspends and schedules against.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Timer is a cancellable, one-shot alarm.
type Timer interface {
	// C fires exactly once, carrying the fire time, unless Stop is called
	// first.
	C() <-chan time.Time
	// Stop cancels the timer. Returns false if it already fired or was
	// already stopped.
	Stop() bool
}

// Clock is the time source every component uses instead of calling time.Now
// or time.After directly, so tests can run the full retry/health/ack-timeout
// state machines without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) Timer
}

// Real is the production Clock, backed by the standard library.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) After(d time.Duration) Timer {
	t := time.NewTimer(d)
	return realTimer{t}
}

type realTimer struct{ t *time.Timer }

func (r realTimer) C() <-chan time.Time { return r.t.C }
func (r realTimer) Stop() bool          { return r.t.Stop() }

// Fake is a manually-advanced Clock for deterministic tests. Zero value is
// ready to use, starting at the Unix epoch.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	started bool
}

// NewFake returns a Fake clock starting at t.
func NewFake(t time.Time) *Fake {
	return &Fake{now: t, started: true}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		f.now = time.Unix(0, 0)
		f.started = true
	}
	return f.now
}

func (f *Fake) After(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		f.now = time.Unix(0, 0)
		f.started = true
	}
	ft := &fakeTimer{fireAt: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.timers = append(f.timers, ft)
	return ft
}

// Advance moves the fake clock forward by d, firing any timers whose
// deadline has been reached, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now
	var pending []*fakeTimer
	for _, t := range f.timers {
		if !t.stopped && !t.fired && !t.fireAt.After(now) {
			pending = append(pending, t)
		}
	}
	f.mu.Unlock()

	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].fireAt.Before(pending[j].fireAt)
	})
	for _, t := range pending {
		t.fire(now)
	}
}

type fakeTimer struct {
	mu      sync.Mutex
	fireAt  time.Time
	fired   bool
	stopped bool
	ch      chan time.Time
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (t *fakeTimer) fire(at time.Time) {
	t.mu.Lock()
	if t.fired || t.stopped {
		t.mu.Unlock()
		return
	}
	t.fired = true
	t.mu.Unlock()
	t.ch <- at
}
