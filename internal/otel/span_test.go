package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordingTracer(t *testing.T) (*tracetest.SpanRecorder, trace.Tracer) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return recorder, tp.Tracer("feed-registry-test")
}

func TestStartSpan(t *testing.T) {
	t.Parallel()

	t.Run("nil tracer without parent", func(t *testing.T) {
		t.Parallel()

		ctx, span := StartSpan(context.Background(), nil, "registry.GetFeed")
		require.NotNil(t, ctx)
		assert.False(t, span.SpanContext().IsValid())
		assert.NotPanics(t, func() { span.End() })
	})

	t.Run("nil tracer reuses parent", func(t *testing.T) {
		t.Parallel()

		_, tracer := recordingTracer(t)
		parentCtx, parent := tracer.Start(context.Background(), "GET /v1/feeds/{base}/{quote}")
		defer parent.End()

		ctx, span := StartSpan(parentCtx, nil, "registry.GetFeed")
		assert.Equal(t, parentCtx, ctx)
		assert.Equal(t, parent.SpanContext(), span.SpanContext())
	})

	t.Run("tracer records named span", func(t *testing.T) {
		t.Parallel()

		recorder, tracer := recordingTracer(t)
		_, span := StartSpan(context.Background(), tracer, "registry.ConfirmSource",
			trace.WithAttributes(AttrPair.String("ETH/USD"), AttrPhaseID.Int64(2)),
		)
		span.End()

		ended := recorder.Ended()
		require.Len(t, ended, 1)
		assert.Equal(t, "registry.ConfirmSource", ended[0].Name())

		attrs := map[string]string{}
		for _, kv := range ended[0].Attributes() {
			attrs[string(kv.Key)] = kv.Value.Emit()
		}
		assert.Equal(t, "ETH/USD", attrs["feed.pair"])
		assert.Equal(t, "2", attrs["feed.phase_id"])
	})
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus codes.Code
		wantEvents int
	}{
		{name: "nil error leaves span untouched", err: nil, wantStatus: codes.Unset, wantEvents: 0},
		{name: "error marks span failed", err: errors.New("source 0xa unavailable"), wantStatus: codes.Error, wantEvents: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder, tracer := recordingTracer(t)
			_, span := tracer.Start(context.Background(), "registry.LatestRoundData")
			RecordError(span, tt.err)
			span.End()

			ended := recorder.Ended()
			require.Len(t, ended, 1)
			assert.Equal(t, tt.wantStatus, ended[0].Status().Code)
			assert.Len(t, ended[0].Events(), tt.wantEvents)
			if tt.err != nil {
				// The status text never carries the error detail.
				assert.Equal(t, "operation failed", ended[0].Status().Description)
				assert.Equal(t, "exception", ended[0].Events()[0].Name)
			}
		})
	}
}

func TestRecordError_NilSpan(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { RecordError(nil, errors.New("boom")) })
	assert.NotPanics(t, func() { RecordError(nil, nil) })
}
