package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Telemetry holds the tracer and meter providers of one registry and
// handles their lifecycle.
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	promRegistry   *prometheus.Registry
}

// ProviderOption configures NewTracerProvider, NewMeterProvider and New.
type ProviderOption func(*providerOptions)

type providerOptions struct {
	info         RegistryInfo
	resource     *resource.Resource
	spanExporter sdktrace.SpanExporter
	registerer   prometheus.Registerer
}

// WithRegistryInfo describes the registry on the telemetry resource.
func WithRegistryInfo(info RegistryInfo) ProviderOption {
	return func(o *providerOptions) {
		o.info = info
	}
}

// WithSpanExporter replaces the OTLP exporter, e.g. with an in-memory one.
func WithSpanExporter(exporter sdktrace.SpanExporter) ProviderOption {
	return func(o *providerOptions) {
		o.spanExporter = exporter
	}
}

// WithPrometheusRegisterer sets where the Prometheus exporter registers its
// collector. Only used when Prometheus export is enabled.
func WithPrometheusRegisterer(reg prometheus.Registerer) ProviderOption {
	return func(o *providerOptions) {
		o.registerer = reg
	}
}

// withResource shares one resource between the providers built by New.
func withResource(res *resource.Resource) ProviderOption {
	return func(o *providerOptions) {
		o.resource = res
	}
}

func newProviderOptions(ctx context.Context, s settings, opts []ProviderOption) (*providerOptions, error) {
	o := &providerOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.resource == nil {
		res, err := newResource(ctx, s, o.info)
		if err != nil {
			return nil, err
		}
		o.resource = res
	}
	return o, nil
}

// New creates the telemetry of one registry from cfg.
// If telemetry is disabled or cfg is nil, returns a Telemetry with no-op providers.
// The caller is responsible for calling Shutdown when the application exits.
func New(ctx context.Context, cfg *Config, opts ...ProviderOption) (*Telemetry, error) {
	if cfg == nil || !cfg.Enabled {
		slog.Debug("Telemetry disabled")
		return &Telemetry{
			tracerProvider: tracenoop.NewTracerProvider(),
			meterProvider:  metricnoop.NewMeterProvider(),
		}, nil
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	s := cfg.resolve()
	o, err := newProviderOptions(ctx, s, opts)
	if err != nil {
		return nil, err
	}

	slog.Info("Initializing telemetry",
		"service_name", s.serviceName,
		"service_version", s.serviceVersion,
		"owner", o.info.Owner,
		"storage", o.info.Storage,
	)

	shared := append([]ProviderOption{}, opts...)
	shared = append(shared, withResource(o.resource))

	tracerProvider, err := NewTracerProvider(ctx, cfg, shared...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer provider: %w", err)
	}

	// Each instance gets its own registry so /metrics only carries this
	// server's instruments.
	var promRegistry *prometheus.Registry
	if s.metrics && s.prometheus {
		promRegistry = prometheus.NewRegistry()
		shared = append(shared, WithPrometheusRegisterer(promRegistry))
	}

	meterProvider, err := NewMeterProvider(ctx, cfg, shared...)
	if err != nil {
		if shutdownable, ok := tracerProvider.(*sdktrace.TracerProvider); ok {
			_ = shutdownable.Shutdown(ctx)
		}
		return nil, fmt.Errorf("failed to create meter provider: %w", err)
	}

	slog.Info("Telemetry initialized successfully")

	return &Telemetry{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		promRegistry:   promRegistry,
	}, nil
}

// TracerProvider returns the configured tracer provider
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the configured meter provider
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// MetricsHandler serves the Prometheus exposition of all instruments.
// It returns nil when Prometheus export is not enabled.
func (t *Telemetry) MetricsHandler() http.Handler {
	if t.promRegistry == nil {
		return nil
	}
	return promhttp.HandlerFor(t.promRegistry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops all SDK providers. Safe to call multiple times.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if tp, ok := t.tracerProvider.(*sdktrace.TracerProvider); ok {
		if err := tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown tracer provider: %w", err))
		}
	}

	if mp, ok := t.meterProvider.(*sdkmetric.MeterProvider); ok {
		if err := mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shutdown meter provider: %w", err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Debug("Telemetry shut down")
	return nil
}
