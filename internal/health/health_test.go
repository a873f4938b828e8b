package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/1mb-dev/resiliencekit/internal/clock"
)

func waitForProbes(t *testing.T, counter *int32, n int32) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(counter) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d probes, got %d", n, atomic.LoadInt32(counter))
		}
		time.Sleep(time.Millisecond)
	}
}

func TestMonitor_StartsHealthy(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(fc)

	err := m.Register(context.Background(), Config{
		Name:               "svc",
		Probe:              func(ctx context.Context) error { return nil },
		Interval:           time.Second,
		HealthyThreshold:   2,
		UnhealthyThreshold: 2,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer m.Close()

	result, ok := m.Result("svc")
	if !ok || result.Status != Healthy {
		t.Fatalf("want initial Healthy, got %+v ok=%v", result, ok)
	}
}

func TestMonitor_HysteresisFlipsAfterThreshold(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(fc)

	var probeCount int32
	failing := int32(1)

	err := m.Register(context.Background(), Config{
		Name: "svc",
		Probe: func(ctx context.Context) error {
			atomic.AddInt32(&probeCount, 1)
			if atomic.LoadInt32(&failing) == 1 {
				return errors.New("down")
			}
			return nil
		},
		Interval:           time.Millisecond,
		HealthyThreshold:   2,
		UnhealthyThreshold: 2,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	defer m.Close()

	waitForProbes(t, &probeCount, 1)
	fc.Advance(time.Millisecond)
	waitForProbes(t, &probeCount, 2)

	result, _ := m.Result("svc")
	if result.Status != Unhealthy {
		t.Fatalf("want Unhealthy after 2 consecutive failures, got %v", result.Status)
	}

	atomic.StoreInt32(&failing, 0)
	fc.Advance(time.Millisecond)
	waitForProbes(t, &probeCount, 3)
	result, _ = m.Result("svc")
	if result.Status != Unhealthy {
		t.Fatalf("single success should not flip status yet, got %v", result.Status)
	}

	fc.Advance(time.Millisecond)
	waitForProbes(t, &probeCount, 4)
	result, _ = m.Result("svc")
	if result.Status != Healthy {
		t.Fatalf("want Healthy after 2 consecutive successes, got %v", result.Status)
	}
}

// waitForUnhealthy drives fc until target name reports Unhealthy.
func waitForUnhealthy(t *testing.T, m *Monitor, fc *clock.Fake, name string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		result, _ := m.Result(name)
		if result.Status == Unhealthy {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for target %s to go unhealthy", name)
		}
		fc.Advance(time.Millisecond)
		time.Sleep(time.Millisecond)
	}
}

// TestMonitor_AggregateUnhealthyWhenUnhealthyMatchesHealthy covers spec.md
// §4.3's U>=H branch: with one healthy and one unhealthy target, U=H=1 and
// U>=H, so the aggregate is Unhealthy, not Degraded.
func TestMonitor_AggregateUnhealthyWhenUnhealthyMatchesHealthy(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(fc)
	defer m.Close()

	m.Register(context.Background(), Config{
		Name:               "a",
		Probe:              func(ctx context.Context) error { return nil },
		Interval:           time.Hour,
		HealthyThreshold:   1,
		UnhealthyThreshold: 1,
	})
	m.Register(context.Background(), Config{
		Name:               "b",
		Probe:              func(ctx context.Context) error { return errors.New("down") },
		Interval:           time.Millisecond,
		HealthyThreshold:   1,
		UnhealthyThreshold: 1,
	})

	waitForUnhealthy(t, m, fc, "b")

	if got := m.Aggregate(); got != AggregateUnhealthy {
		t.Fatalf("want AggregateUnhealthy, got %v", got)
	}
}

// TestMonitor_AggregateDegradedWhenHealthyOutnumberUnhealthy covers
// spec.md §4.3's Degraded branch: strictly more healthy than unhealthy
// targets (H=2, U=1, so U<H) is neither all-healthy nor U>=H.
func TestMonitor_AggregateDegradedWhenHealthyOutnumberUnhealthy(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(fc)
	defer m.Close()

	m.Register(context.Background(), Config{
		Name:               "a",
		Probe:              func(ctx context.Context) error { return nil },
		Interval:           time.Hour,
		HealthyThreshold:   1,
		UnhealthyThreshold: 1,
	})
	m.Register(context.Background(), Config{
		Name:               "b",
		Probe:              func(ctx context.Context) error { return nil },
		Interval:           time.Hour,
		HealthyThreshold:   1,
		UnhealthyThreshold: 1,
	})
	m.Register(context.Background(), Config{
		Name:               "c",
		Probe:              func(ctx context.Context) error { return errors.New("down") },
		Interval:           time.Millisecond,
		HealthyThreshold:   1,
		UnhealthyThreshold: 1,
	})

	waitForUnhealthy(t, m, fc, "c")

	if got := m.Aggregate(); got != AggregateDegraded {
		t.Fatalf("want AggregateDegraded, got %v", got)
	}
}

func TestMonitor_EmptyRegistryIsHealthy(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(fc)
	if got := m.Aggregate(); got != AggregateHealthy {
		t.Fatalf("want AggregateHealthy for empty registry, got %v", got)
	}
}

func TestMonitor_RejectsInvalidConfig(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(fc)
	err := m.Register(context.Background(), Config{Name: "x"})
	if err == nil {
		t.Fatal("expected validation error for missing Probe/Interval")
	}
}
