package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// RegistryMetricsMeterName is the meter used for phase and access metrics
	RegistryMetricsMeterName = "github.com/stacklok/feed-registry-server/registry"

	// SourceMetricsMeterName is the meter used for upstream source reads
	SourceMetricsMeterName = "github.com/stacklok/feed-registry-server/source"
)

// RegistryMetrics holds the instruments for phase transitions and gated reads
type RegistryMetrics struct {
	transitions  metric.Int64Counter
	proposals    metric.Int64Counter
	accessDenied metric.Int64Counter
	currentPhase metric.Int64Gauge
}

// NewRegistryMetrics creates RegistryMetrics from provider.
// If provider is nil, it returns nil (no-op metrics).
func NewRegistryMetrics(provider metric.MeterProvider) (*RegistryMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(RegistryMetricsMeterName)

	transitions, err := meter.Int64Counter(
		"feed_registry_phase_transitions_total",
		metric.WithDescription("Number of confirmed source changes"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	proposals, err := meter.Int64Counter(
		"feed_registry_proposals_total",
		metric.WithDescription("Number of proposed source changes"),
		metric.WithUnit("{proposal}"),
	)
	if err != nil {
		return nil, err
	}

	accessDenied, err := meter.Int64Counter(
		"feed_registry_access_denied_total",
		metric.WithDescription("Number of reads rejected by the access policy"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	currentPhase, err := meter.Int64Gauge(
		"feed_registry_current_phase",
		metric.WithDescription("Current phase id of each pair"),
		metric.WithUnit("{phase}"),
	)
	if err != nil {
		return nil, err
	}

	return &RegistryMetrics{
		transitions:  transitions,
		proposals:    proposals,
		accessDenied: accessDenied,
		currentPhase: currentPhase,
	}, nil
}

// RecordProposal counts a proposal for pair
func (m *RegistryMetrics) RecordProposal(ctx context.Context, pair string) {
	if m == nil || m.proposals == nil {
		return
	}
	m.proposals.Add(ctx, 1, metric.WithAttributes(PairLabel.String(pair)))
}

// RecordTransition counts a confirmed transition and records the new phase id
func (m *RegistryMetrics) RecordTransition(ctx context.Context, pair string, phaseID uint64, removed bool) {
	if m == nil || m.transitions == nil {
		return
	}
	attrs := metric.WithAttributes(PairLabel.String(pair))
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		PairLabel.String(pair),
		attribute.Bool("removed", removed),
	))
	m.currentPhase.Record(ctx, int64(phaseID), attrs)
}

// RecordAccessDenied counts a read rejected for pair
func (m *RegistryMetrics) RecordAccessDenied(ctx context.Context, pair string) {
	if m == nil || m.accessDenied == nil {
		return
	}
	m.accessDenied.Add(ctx, 1, metric.WithAttributes(PairLabel.String(pair)))
}

// SourceMetrics holds the instruments for upstream source reads
type SourceMetrics struct {
	readDuration metric.Float64Histogram
}

// NewSourceMetrics creates SourceMetrics from provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSourceMetrics(provider metric.MeterProvider) (*SourceMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SourceMetricsMeterName)

	readDuration, err := meter.Float64Histogram(
		"feed_registry_source_read_duration_seconds",
		metric.WithDescription("Duration of reads delegated to upstream sources"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		return nil, err
	}

	return &SourceMetrics{readDuration: readDuration}, nil
}

// RecordRead records the duration of a delegated read
func (m *SourceMetrics) RecordRead(ctx context.Context, operation string, duration time.Duration, success bool) {
	if m == nil || m.readDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	}

	m.readDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
