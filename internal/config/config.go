// Package config loads runtime configuration for the resilience components
// from YAML, one section per component (spec.md §3's *Config types),
// grounded on the teacher pack's config-loading convention of a custom
// Duration type with UnmarshalYAML plus post-load default application.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can carry "500ms"/"1m30s" style
// strings instead of raw nanosecond integers.
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Runtime is the top-level document: every named instance of every
// component this runtime manages.
type Runtime struct {
	Breakers map[string]BreakerConfig `yaml:"breakers,omitempty"`
	Retries  map[string]RetryConfig   `yaml:"retries,omitempty"`
	Storms   map[string]StormConfig   `yaml:"storm_controllers,omitempty"`
	Health   map[string]HealthConfig  `yaml:"health_checks,omitempty"`
	Streams  map[string]OrderedConfig `yaml:"ordered_streams,omitempty"`
}

// BreakerConfig mirrors breaker.Settings' tunables (spec.md §3
// CircuitBreakerConfig).
type BreakerConfig struct {
	MaxRequests          uint32   `yaml:"max_requests"`
	Interval             Duration `yaml:"interval"`
	Timeout              Duration `yaml:"timeout"`
	TripPolicy           string   `yaml:"trip_policy"` // "consecutive_failures" | "failure_rate" | "throughput_gated"
	FailureThreshold     uint32   `yaml:"failure_threshold"`
	MinimumThroughput    uint32   `yaml:"minimum_throughput"`
	FailureRateThreshold float64  `yaml:"failure_rate_threshold"`
	MinimumObservations  uint32   `yaml:"minimum_observations"`
}

// RetryConfig mirrors retry.Config (spec.md §3 RetryConfig).
type RetryConfig struct {
	MaxAttempts   int      `yaml:"max_attempts"`
	BaseDelay     Duration `yaml:"base_delay"`
	MaxDelay      Duration `yaml:"max_delay"`
	Multiplier    float64  `yaml:"multiplier"`
	JitterFactor  float64  `yaml:"jitter_factor"`
	RetryableTags []string `yaml:"retryable_tags"`
}

// StormConfig mirrors storm.Controller's per-key capacity (spec.md §3
// StormControlConfig).
type StormConfig struct {
	Capacity int64 `yaml:"capacity"`
}

// HealthConfig mirrors health.Config (spec.md §3 HealthCheckConfig). Probe
// is not configurable from YAML: callers register the function
// programmatically and apply these fields as defaults.
type HealthConfig struct {
	Timeout            Duration `yaml:"timeout"`
	Interval           Duration `yaml:"interval"`
	HealthyThreshold   int      `yaml:"healthy_threshold"`
	UnhealthyThreshold int      `yaml:"unhealthy_threshold"`
}

// OrderedConfig mirrors order.Config (spec.md §3 StreamState).
type OrderedConfig struct {
	BaseSeq        uint64   `yaml:"base_seq"`
	BufferCapacity int      `yaml:"buffer_capacity"`
	SeenIDCapacity int      `yaml:"seen_id_capacity"`
	AckTimeout     Duration `yaml:"ack_timeout"`
}

func applyBreakerDefaults(c *BreakerConfig) {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout.Duration == 0 {
		c.Timeout.Duration = 60 * time.Second
	}
	if c.TripPolicy == "" {
		c.TripPolicy = "consecutive_failures"
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.MinimumThroughput == 0 {
		c.MinimumThroughput = 1
	}
}

func applyRetryDefaults(c *RetryConfig) {
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2
	}
	if c.MaxDelay.Duration == 0 {
		c.MaxDelay.Duration = 30 * time.Second
	}
}

func applyHealthDefaults(c *HealthConfig) {
	if c.Interval.Duration == 0 {
		c.Interval.Duration = 10 * time.Second
	}
	if c.HealthyThreshold == 0 {
		c.HealthyThreshold = 2
	}
	if c.UnhealthyThreshold == 0 {
		c.UnhealthyThreshold = 2
	}
}

func applyOrderedDefaults(c *OrderedConfig) {
	if c.BaseSeq == 0 {
		c.BaseSeq = 1
	}
	if c.BufferCapacity == 0 {
		c.BufferCapacity = 64
	}
}

// Load reads and parses a Runtime document from path and applies the
// per-section defaults above. It does not call Validate.
func Load(path string) (*Runtime, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var rt Runtime
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	rt.applyDefaults()
	return &rt, nil
}

func (rt *Runtime) applyDefaults() {
	for name, c := range rt.Breakers {
		applyBreakerDefaults(&c)
		rt.Breakers[name] = c
	}
	for name, c := range rt.Retries {
		applyRetryDefaults(&c)
		rt.Retries[name] = c
	}
	for name, c := range rt.Health {
		applyHealthDefaults(&c)
		rt.Health[name] = c
	}
	for name, c := range rt.Streams {
		applyOrderedDefaults(&c)
		rt.Streams[name] = c
	}
}

// Validate checks every section's required fields, beyond what
// applyDefaults can fill in.
func (rt *Runtime) Validate() error {
	for name, c := range rt.Breakers {
		switch c.TripPolicy {
		case "consecutive_failures", "failure_rate", "throughput_gated":
		default:
			return fmt.Errorf("config: breaker %q: unknown trip_policy %q", name, c.TripPolicy)
		}
	}
	for name, c := range rt.Storms {
		if c.Capacity < 1 {
			return fmt.Errorf("config: storm_controller %q: capacity must be >= 1", name)
		}
	}
	for name, c := range rt.Streams {
		if c.BufferCapacity < 1 {
			return fmt.Errorf("config: ordered_stream %q: buffer_capacity must be >= 1", name)
		}
	}
	return nil
}
