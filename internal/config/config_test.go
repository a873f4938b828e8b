package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1mb-dev/resiliencekit/errs"
	"github.com/1mb-dev/resiliencekit/internal/breaker"
)

const sampleYAML = `
breakers:
  payments:
    max_requests: 2
    interval: 30s
    timeout: 15s
    trip_policy: throughput_gated
    failure_threshold: 4
    minimum_throughput: 10
retries:
  payments:
    max_attempts: 5
    base_delay: 100ms
    max_delay: 2s
    multiplier: 2.5
    jitter_factor: 0.2
    retryable_tags: ["DownstreamTimeout"]
storm_controllers:
  payments:
    capacity: 8
health_checks:
  payments:
    interval: 5s
    healthy_threshold: 3
    unhealthy_threshold: 2
ordered_streams:
  payments:
    buffer_capacity: 32
    ack_timeout: 1s
`

func writeSample(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))
	return path
}

func TestLoad_ParsesDurationsAndDefaults(t *testing.T) {
	rt, err := Load(writeSample(t))
	require.NoError(t, err)

	b := rt.Breakers["payments"]
	assert.Equal(t, 30*time.Second, b.Interval.Duration)
	assert.Equal(t, 15*time.Second, b.Timeout.Duration)
	assert.Equal(t, uint32(4), b.FailureThreshold)

	r := rt.Retries["payments"]
	assert.Equal(t, 100*time.Millisecond, r.BaseDelay.Duration)
	assert.Equal(t, 2*time.Second, r.MaxDelay.Duration)

	s := rt.Streams["payments"]
	assert.Equal(t, uint64(1), s.BaseSeq, "base_seq default applied")
}

func TestLoad_UnknownTripPolicyFailsValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("breakers:\n  x:\n    trip_policy: bogus\n"), 0o644))

	rt, err := Load(path)
	require.NoError(t, err)
	assert.Error(t, rt.Validate())
}

func TestRuntime_BreakerSettingsBuildsUsableBreaker(t *testing.T) {
	rt, err := Load(writeSample(t))
	require.NoError(t, err)

	settings, err := rt.BreakerSettings("payments")
	require.NoError(t, err)
	assert.Equal(t, breaker.ThroughputGated, settings.TripPolicy)

	cb := breaker.New(settings)
	assert.Equal(t, breaker.StateClosed, cb.State())
}

func TestRuntime_RetryEngineConfigBuildsValidConfig(t *testing.T) {
	rt, err := Load(writeSample(t))
	require.NoError(t, err)

	cfg, err := rt.RetryEngineConfig("payments")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.MaxAttempts)
}

func TestRuntime_HealthCheckConfigWiresCallerProbe(t *testing.T) {
	rt, err := Load(writeSample(t))
	require.NoError(t, err)

	cfg, err := rt.HealthCheckConfig("payments", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.HealthyThreshold)
	assert.NotNil(t, cfg.Probe)
}

func TestRuntime_UnknownSectionReturnsTaggedError(t *testing.T) {
	rt, err := Load(writeSample(t))
	require.NoError(t, err)

	_, err = rt.BreakerSettings("missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrUnknownService)
}

func TestRuntime_StormCapacityRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storm.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storm_controllers:\n  x:\n    capacity: 0\n"), 0o644))

	rt, err := Load(path)
	require.NoError(t, err)

	_, err = rt.StormCapacity("x")
	assert.Error(t, err)
}
