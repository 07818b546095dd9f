// Package otel provides span helpers shared by the feed registry components.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by registry spans.
const (
	AttrPair      = attribute.Key("feed.pair")
	AttrPhaseID   = attribute.Key("feed.phase_id")
	AttrSource    = attribute.Key("feed.source")
	AttrRound     = attribute.Key("feed.round_id")
	AttrCaller    = attribute.Key("feed.caller")
	AttrStoreType = attribute.Key("store.type")
)

// StartSpan starts a span on tracer, or returns the span already in ctx when
// tracer is nil.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err on span and marks it failed. The status text is
// generic; details stay in the span event.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}
