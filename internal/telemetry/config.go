// Package telemetry provides OpenTelemetry instrumentation for the feed registry.
// Traces and metrics share one resource describing the registry deployment.
// Metrics go to OTLP, a Prometheus scrape endpoint, or both.
package telemetry

import (
	"errors"
	"fmt"
)

const (
	// DefaultServiceName is the default service name for telemetry
	DefaultServiceName = "feed-registry-server"

	// DefaultEndpoint is the default OTLP endpoint for telemetry
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling is the ratio of read traces kept (5%). Writes are always kept.
	DefaultSampling = 0.05

	unknownVersion = "unknown"
)

// Config represents the root telemetry configuration
type Config struct {
	// Enabled controls whether telemetry is enabled globally
	Enabled bool `yaml:"enabled"`

	// ServiceName defaults to "feed-registry-server"
	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion defaults to the application version
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the OTLP collector endpoint ("host:port", HTTP)
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure allows HTTP connections instead of HTTPS
	Insecure bool `yaml:"insecure,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig defines tracing-specific configuration
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of feed read traces kept, in [0, 1]. 0 means
	// DefaultSampling. Source transitions and other writes ignore it.
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig defines metrics-specific configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Prometheus additionally exposes metrics for scraping at /metrics.
	Prometheus bool `yaml:"prometheus,omitempty"`

	// DisableOTLP turns off the OTLP push exporter, leaving only Prometheus.
	DisableOTLP bool `yaml:"disableOTLP,omitempty"`

	// DropPairLabel removes the pair label from every feed registry metric.
	// Registries serving many pairs use it to bound series cardinality.
	DropPairLabel bool `yaml:"dropPairLabel,omitempty"`
}

// settings is Config with defaults applied.
type settings struct {
	serviceName    string
	serviceVersion string
	endpoint       string
	insecure       bool
	sampling       float64
	tracing        bool
	metrics        bool
	prometheus     bool
	otlpMetrics    bool
	dropPairLabel  bool
}

// resolve applies defaults. A nil or disabled config resolves to no signals.
func (c *Config) resolve() settings {
	s := settings{
		serviceName:    DefaultServiceName,
		serviceVersion: unknownVersion,
		endpoint:       DefaultEndpoint,
		sampling:       DefaultSampling,
	}
	if c == nil {
		return s
	}
	if c.ServiceName != "" {
		s.serviceName = c.ServiceName
	}
	if c.ServiceVersion != "" {
		s.serviceVersion = c.ServiceVersion
	}
	if c.Endpoint != "" {
		s.endpoint = c.Endpoint
	}
	s.insecure = c.Insecure
	if !c.Enabled {
		return s
	}
	if t := c.Tracing; t != nil && t.Enabled {
		s.tracing = true
		if t.Sampling != 0 {
			s.sampling = t.Sampling
		}
	}
	if m := c.Metrics; m != nil && m.Enabled {
		s.metrics = true
		s.prometheus = m.Prometheus
		s.otlpMetrics = !m.DisableOTLP
		s.dropPairLabel = m.DropPairLabel
	}
	return s
}

// Validate validates the telemetry configuration
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if err := c.Tracing.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("tracing: %w", err))
	}
	if err := c.Metrics.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}

// Validate validates the tracing configuration
func (c *TracingConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.Sampling < 0 || c.Sampling > 1.0 {
		return fmt.Errorf("sampling must be between 0.0 and 1.0, got %f", c.Sampling)
	}
	return nil
}

// Validate validates the metrics configuration
func (c *MetricsConfig) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}
	if c.DisableOTLP && !c.Prometheus {
		return fmt.Errorf("at least one of OTLP or Prometheus export must be enabled")
	}
	return nil
}
