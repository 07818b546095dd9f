package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader, scopeName string) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != scopeName {
			continue
		}
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewRegistryMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewRegistryMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("nil metrics are no-ops", func(t *testing.T) {
		t.Parallel()

		var metrics *RegistryMetrics
		assert.NotPanics(t, func() {
			metrics.RecordProposal(context.Background(), "ETH/USD")
			metrics.RecordTransition(context.Background(), "ETH/USD", 2, false)
			metrics.RecordAccessDenied(context.Background(), "ETH/USD")
		})
	})
}

func TestRegistryMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewRegistryMetrics(mp)
	require.NoError(t, err)
	require.NotNil(t, metrics)

	ctx := context.Background()
	metrics.RecordProposal(ctx, "ETH/USD")
	metrics.RecordTransition(ctx, "ETH/USD", 1, false)
	metrics.RecordTransition(ctx, "ETH/USD", 2, true)
	metrics.RecordAccessDenied(ctx, "BTC/USD")

	got := collect(t, reader, RegistryMetricsMeterName)

	transitions, ok := got["feed_registry_phase_transitions_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range transitions.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	phase, ok := got["feed_registry_current_phase"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, phase.DataPoints, 1)
	assert.Equal(t, int64(2), phase.DataPoints[0].Value)

	assert.Contains(t, got, "feed_registry_proposals_total")
	assert.Contains(t, got, "feed_registry_access_denied_total")
}

func TestSourceMetrics_RecordRead(t *testing.T) {
	t.Parallel()

	metrics, err := NewSourceMetrics(nil)
	require.NoError(t, err)
	assert.Nil(t, metrics)
	assert.NotPanics(t, func() { metrics.RecordRead(context.Background(), "latest_round", time.Second, true) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err = NewSourceMetrics(mp)
	require.NoError(t, err)
	metrics.RecordRead(context.Background(), "latest_round", 1500*time.Millisecond, true)

	got := collect(t, reader, SourceMetricsMeterName)
	hist, ok := got["feed_registry_source_read_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.NotEmpty(t, hist.DataPoints)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)
}
