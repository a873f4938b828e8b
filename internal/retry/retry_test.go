package retry

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1mb-dev/resiliencekit/errs"
	"github.com/1mb-dev/resiliencekit/internal/backoff"
	"github.com/1mb-dev/resiliencekit/internal/clock"
)

type tagged struct {
	tag errs.Tag
	msg string
}

func (t tagged) Error() string { return t.msg }
func (t tagged) Tag() errs.Tag { return t.tag }

func zeroJitter() float64 { return 0 }

func newEngine(t *testing.T, fc *clock.Fake, maxAttempts int, retryable ...errs.Tag) *Engine {
	t.Helper()
	e := New(Config{
		MaxAttempts: maxAttempts,
		Backoff: backoff.Config{
			BaseDelay:    100 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2,
			JitterFactor: 0,
		},
		RetryableTags: retryable,
		Clock:         fc,
	})
	e.rnd = zeroJitter
	return e
}

// driveFakeClock advances fc by d every time it is asked, stopping once
// stop is closed. Used so Engine.Run's blocking timer waits resolve
// without a real sleep.
func driveFakeClock(t *testing.T, fc *clock.Fake, step time.Duration, stop <-chan struct{}) {
	t.Helper()
	go func() {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fc.Advance(step)
			}
		}
	}()
}

func TestEngine_SucceedsOnFirstAttempt(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	e := newEngine(t, fc, 3)

	var calls int32
	result, err := e.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestEngine_RetriesRetryableThenSucceeds(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	e := newEngine(t, fc, 3, "E1")

	stop := make(chan struct{})
	driveFakeClock(t, fc, 400*time.Millisecond, stop)
	defer close(stop)

	var calls int32
	result, err := e.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return nil, tagged{tag: "E1", msg: "transient"}
		}
		return "done", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestEngine_StopsOnNonRetryableTag(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	e := newEngine(t, fc, 5, "E1")

	var calls int32
	_, err := e.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, tagged{tag: "E2", msg: "permanent"}
	})

	var tg errs.Tagged
	require.True(t, errors.As(err, &tg))
	assert.Equal(t, errs.Tag("E2"), tg.Tag())
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestEngine_ExhaustsMaxAttempts(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	e := newEngine(t, fc, 3, "E1")

	stop := make(chan struct{})
	driveFakeClock(t, fc, 400*time.Millisecond, stop)
	defer close(stop)

	var calls int32
	_, err := e.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, tagged{tag: "E1", msg: "transient"}
	})

	require.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))

	var tg errs.Tagged
	require.True(t, errors.As(err, &tg))
	assert.Equal(t, errs.RetryExhausted, tg.Tag())

	var orig tagged
	require.True(t, errors.As(err, &orig))
	assert.Equal(t, errs.Tag("E1"), orig.tag)
}

func TestEngine_ContextCancelledDuringSleepSurfacesCancelled(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	e := newEngine(t, fc, 5, "E1")

	ctx, cancel := context.WithCancel(context.Background())

	var calls int32
	done := make(chan struct{})
	var err error
	go func() {
		_, err = e.Run(ctx, func(ctx context.Context) (interface{}, error) {
			atomic.AddInt32(&calls, 1)
			return nil, tagged{tag: "E1", msg: "transient"}
		})
		close(done)
	}()

	for atomic.LoadInt32(&calls) < 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	var tg errs.Tagged
	require.True(t, errors.As(err, &tg))
	assert.Equal(t, errs.Cancelled, tg.Tag())
}

func TestEngine_ContextAlreadyCancelledNeverCallsOp(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	e := newEngine(t, fc, 3, "E1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	_, err := e.Run(ctx, func(ctx context.Context) (interface{}, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	})

	require.Error(t, err)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}

func TestConfig_ValidateRejectsZeroAttempts(t *testing.T) {
	cfg := Config{MaxAttempts: 0, Backoff: backoff.Config{BaseDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 2}}
	assert.Error(t, cfg.Validate())
}
