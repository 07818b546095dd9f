package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const (
	// DefaultMetricsInterval is the default interval for metric collection
	DefaultMetricsInterval = 60 * time.Second

	// PairLabel is the metric attribute carrying a "BASE/QUOTE" pair.
	PairLabel = attribute.Key("pair")

	// metricPrefix matches every instrument this server registers.
	metricPrefix = "feed_registry_*"
)

// NewMeterProvider creates a MeterProvider for the registry described by the
// options. Returns a no-op provider if metrics are disabled or cfg is nil.
// The caller is responsible for calling Shutdown on the returned provider.
func NewMeterProvider(ctx context.Context, cfg *Config, opts ...ProviderOption) (metric.MeterProvider, error) {
	s := cfg.resolve()
	if !s.metrics {
		slog.Info("Metrics disabled, using no-op meter provider")
		return noop.NewMeterProvider(), nil
	}

	o, err := newProviderOptions(ctx, s, opts)
	if err != nil {
		return nil, err
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(o.resource)}
	for _, view := range pairViews(s) {
		providerOpts = append(providerOpts, sdkmetric.WithView(view))
	}

	if s.otlpMetrics {
		exporter, err := createOTLPMetricsExporter(ctx, s.endpoint, s.insecure)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(DefaultMetricsInterval)),
		))
	}

	if s.prometheus {
		reader, err := createPrometheusReader(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
		}
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	mp := sdkmetric.NewMeterProvider(providerOpts...)
	otel.SetMeterProvider(mp)

	slog.Info("Metrics initialized",
		"endpoint", s.endpoint,
		"otlp", s.otlpMetrics,
		"prometheus", s.prometheus,
		"pair_label", !s.dropPairLabel,
		"insecure", s.insecure,
	)

	return mp, nil
}

// pairViews strips the pair label from registry instruments when configured.
func pairViews(s settings) []sdkmetric.View {
	if !s.dropPairLabel {
		return nil
	}
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: metricPrefix},
			sdkmetric.Stream{AttributeFilter: attribute.NewDenyKeysFilter(PairLabel)},
		),
	}
}

// createOTLPMetricsExporter creates an OTLP HTTP metric exporter
func createOTLPMetricsExporter(ctx context.Context, endpoint string, insecure bool) (sdkmetric.Exporter, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(endpoint),
	}

	if insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	return exporter, nil
}

// createPrometheusReader creates a pull reader registered with reg, or with
// the default Prometheus registerer when reg is nil.
func createPrometheusReader(reg prometheus.Registerer) (sdkmetric.Reader, error) {
	var opts []otelprom.Option
	if reg != nil {
		opts = append(opts, otelprom.WithRegisterer(reg))
	}
	return otelprom.New(opts...)
}
