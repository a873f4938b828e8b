package degrade

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1mb-dev/resiliencekit/internal/breaker"
	"github.com/1mb-dev/resiliencekit/internal/storm"
)

func newBreaker(name string, failureThreshold uint32) *breaker.CircuitBreaker {
	return breaker.New(breaker.Settings{Name: name, FailureThreshold: failureThreshold, MaxRequests: 1})
}

func TestService_DispatchReturnsPrimaryResultOnSuccess(t *testing.T) {
	svc := New(Settings{Name: "svc", Breaker: newBreaker("svc", 3)})

	result, err := svc.Dispatch(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
}

func TestService_FallsBackWhenPrimaryFails(t *testing.T) {
	svc := New(Settings{
		Name:    "svc",
		Breaker: newBreaker("svc", 3),
		Fallback: func(ctx context.Context) (interface{}, error) {
			return "fallback", nil
		},
	})

	result, err := svc.Dispatch(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, errors.New("boom")
	})

	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
}

func TestService_NoFallbackSurfacesPrimaryError(t *testing.T) {
	svc := New(Settings{Name: "svc", Breaker: newBreaker("svc", 3)})

	boom := errors.New("boom")
	_, err := svc.Dispatch(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, boom
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestService_FallsBackWhenCircuitOpen(t *testing.T) {
	cb := newBreaker("svc", 1)
	svc := New(Settings{
		Name:    "svc",
		Breaker: cb,
		Fallback: func(ctx context.Context) (interface{}, error) {
			return "fallback", nil
		},
	})

	failing := func(ctx context.Context) (interface{}, error) { return nil, errors.New("boom") }

	svc.Dispatch(context.Background(), failing)
	require.Equal(t, breaker.StateOpen, cb.State())

	result, err := svc.Dispatch(context.Background(), failing)
	require.NoError(t, err)
	assert.Equal(t, "fallback", result)
}

func TestService_StormDetectedTriggersFallback(t *testing.T) {
	sc := storm.New(1)
	cb := newBreaker("svc", 5)
	svc := New(Settings{
		Name:    "svc",
		Breaker: cb,
		Storm:   sc,
		Fallback: func(ctx context.Context) (interface{}, error) {
			return "fallback", nil
		},
	})

	block := make(chan struct{})
	started := make(chan struct{})
	go svc.Dispatch(context.Background(), func(ctx context.Context) (interface{}, error) {
		close(started)
		<-block
		return "ok", nil
	})
	<-started

	result, err := svc.Dispatch(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", result)

	close(block)
}
