package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// otlpCollector accepts and discards OTLP exports.
func otlpCollector(t *testing.T) string {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return strings.TrimPrefix(server.URL, "http://")
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		config           *Config
		expectNoOpTracer bool
		expectNoOpMeter  bool
		errorContains    string
	}{
		{
			name:             "no config",
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name:             "disabled",
			config:           &Config{Enabled: false},
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name: "both signals disabled",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: false},
				Metrics: &MetricsConfig{Enabled: false},
			},
			expectNoOpTracer: true,
			expectNoOpMeter:  true,
		},
		{
			name: "invalid sampling",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 1.5},
			},
			errorContains: "invalid telemetry configuration",
		},
		{
			name: "tracing and prometheus metrics",
			config: &Config{
				Enabled:  true,
				Insecure: true,
				Tracing:  &TracingConfig{Enabled: true, Sampling: 1},
				Metrics:  &MetricsConfig{Enabled: true, Prometheus: true, DisableOTLP: true},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()

			if tt.config != nil && tt.config.Enabled {
				tt.config.Endpoint = otlpCollector(t)
			}

			tel, err := New(ctx, tt.config, WithRegistryInfo(RegistryInfo{Owner: "0xowner", Storage: "memory"}))
			if tt.errorContains != "" {
				require.ErrorContains(t, err, tt.errorContains)
				return
			}
			require.NoError(t, err)

			if tt.expectNoOpTracer {
				assert.IsType(t, tracenoop.TracerProvider{}, tel.TracerProvider())
			} else {
				assert.IsType(t, &sdktrace.TracerProvider{}, tel.TracerProvider())
			}
			if tt.expectNoOpMeter {
				assert.IsType(t, noop.MeterProvider{}, tel.MeterProvider())
			} else {
				assert.IsType(t, &sdkmetric.MeterProvider{}, tel.MeterProvider())
			}

			require.NoError(t, tel.Shutdown(ctx))
		})
	}
}

func TestTelemetry_MetricsHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("nil without prometheus", func(t *testing.T) {
		t.Parallel()

		tel, err := New(ctx, nil)
		require.NoError(t, err)
		assert.Nil(t, tel.MetricsHandler())
	})

	t.Run("serves registry metrics", func(t *testing.T) {
		t.Parallel()

		tel, err := New(ctx, &Config{
			Enabled: true,
			Metrics: &MetricsConfig{Enabled: true, Prometheus: true, DisableOTLP: true},
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = tel.Shutdown(ctx) })

		m, err := NewRegistryMetrics(tel.MeterProvider())
		require.NoError(t, err)
		m.RecordProposal(ctx, "ETH/USD")

		handler := tel.MetricsHandler()
		require.NotNil(t, handler)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		body, err := io.ReadAll(rec.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "feed_registry_proposals_total")
		assert.Contains(t, string(body), `pair="ETH/USD"`)
	})
}

func TestTelemetry_ShutdownIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tel, err := New(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, tel.Shutdown(ctx))
	require.NoError(t, tel.Shutdown(ctx))
}
