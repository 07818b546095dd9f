package telemetry

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span name prefixes. Registry operations are "registry.<Operation>" and the
// reads they delegate to upstream sources are "source.<operation>".
const (
	RegistrySpanPrefix = "registry."
	SourceSpanPrefix   = "source."
)

// AttrWrite marks a server span for a request that changes registry state.
const AttrWrite = attribute.Key("feed.write")

// transitionSpans are kept regardless of the sampling ratio.
var transitionSpans = map[string]struct{}{
	RegistrySpanPrefix + "ProposeSource": {},
	RegistrySpanPrefix + "ConfirmSource": {},
}

// feedSampler keeps every source transition and admin write, and samples
// feed reads by trace id ratio.
type feedSampler struct {
	reads sdktrace.Sampler
}

func newFeedSampler(ratio float64) sdktrace.Sampler {
	return feedSampler{reads: sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))}
}

func (s feedSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	if isWrite(p) {
		return sdktrace.SamplingResult{
			Decision:   sdktrace.RecordAndSample,
			Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
		}
	}
	return s.reads.ShouldSample(p)
}

func (s feedSampler) Description() string {
	return fmt.Sprintf("FeedSampler{reads:%s}", s.reads.Description())
}

func isWrite(p sdktrace.SamplingParameters) bool {
	if _, ok := transitionSpans[p.Name]; ok {
		return true
	}
	for _, kv := range p.Attributes {
		if kv.Key == AttrWrite && kv.Value.AsBool() {
			return true
		}
	}
	return false
}

// NewTracerProvider creates a TracerProvider for the registry described by
// the options. Returns a no-op provider if tracing is disabled or cfg is nil.
// The caller is responsible for calling Shutdown on the returned provider.
func NewTracerProvider(ctx context.Context, cfg *Config, opts ...ProviderOption) (trace.TracerProvider, error) {
	s := cfg.resolve()
	if !s.tracing {
		slog.Info("Tracing disabled, using no-op tracer provider")
		return noop.NewTracerProvider(), nil
	}

	o, err := newProviderOptions(ctx, s, opts)
	if err != nil {
		return nil, err
	}

	exporter := o.spanExporter
	if exporter == nil {
		exporter, err = createOTLPTracingExporter(ctx, s.endpoint, s.insecure)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP tracing exporter: %w", err)
		}
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(o.resource),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(newFeedSampler(s.sampling)),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if s.insecure {
		slog.Warn("Tracing configured with insecure connection, spans are sent over unencrypted HTTP")
	}

	slog.Info("Tracing initialized",
		"endpoint", s.endpoint,
		"read_sampling_ratio", s.sampling,
		"owner", o.info.Owner,
		"insecure", s.insecure,
	)

	return tp, nil
}

// createOTLPTracingExporter creates an OTLP HTTP trace exporter
func createOTLPTracingExporter(ctx context.Context, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(endpoint),
	}

	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return exporter, nil
}
