package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/otel"
	"github.com/stacklok/feed-registry-server/internal/ownership"
	"github.com/stacklok/feed-registry-server/internal/source"
	"github.com/stacklok/feed-registry-server/internal/telemetry"
)

const (
	// TypeAndVersion identifies the registry implementation.
	TypeAndVersion = "FeedRegistry 1.0.0"

	// Emitter is the emitter name on registry events.
	Emitter = "registry"

	tracerName = "github.com/stacklok/feed-registry-server/registry"
)

// Registry maps pairs to their serving source and keeps every past source
// addressable through global round ids.
type Registry struct {
	*ownership.Owned

	store         PhaseStore
	resolver      source.Resolver
	publisher     *events.Publisher
	tracer        trace.Tracer
	metrics       *telemetry.RegistryMetrics
	sourceMetrics *telemetry.SourceMetrics

	// transitionMu serializes propose and confirm.
	transitionMu sync.Mutex

	policyMu sync.RWMutex
	policy   access.Policy
}

type options struct {
	publisher      *events.Publisher
	policy         access.Policy
	tracerProvider trace.TracerProvider
	metrics        *telemetry.RegistryMetrics
	sourceMetrics  *telemetry.SourceMetrics
	owned          *ownership.Owned
}

// Option configures a Registry.
type Option func(*options) error

// WithPublisher sets the event publisher.
func WithPublisher(p *events.Publisher) Option {
	return func(o *options) error {
		o.publisher = p
		return nil
	}
}

// WithAccessPolicy sets the initial access policy. Without one, reads are not gated.
func WithAccessPolicy(p access.Policy) Option {
	return func(o *options) error {
		o.policy = p
		return nil
	}
}

// WithTracerProvider sets the tracer provider for registry spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) error {
		o.tracerProvider = tp
		return nil
	}
}

// WithMetrics sets the phase and access metrics.
func WithMetrics(m *telemetry.RegistryMetrics) Option {
	return func(o *options) error {
		o.metrics = m
		return nil
	}
}

// WithSourceMetrics sets the metrics recorded around delegated reads.
func WithSourceMetrics(m *telemetry.SourceMetrics) Option {
	return func(o *options) error {
		o.sourceMetrics = m
		return nil
	}
}

// WithOwnership administers the registry through an existing ownership
// record, so components sharing it follow the same owner.
func WithOwnership(owned *ownership.Owned) Option {
	return func(o *options) error {
		if owned == nil {
			return fmt.Errorf("ownership record is nil")
		}
		o.owned = owned
		return nil
	}
}

// New creates a Registry administered by owner.
func New(owner string, store PhaseStore, resolver source.Resolver, opts ...Option) (*Registry, error) {
	if store == nil {
		return nil, fmt.Errorf("phase store is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("source resolver is required")
	}

	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	owned := o.owned
	if owned == nil {
		var err error
		owned, err = ownership.New(owner, events.OwnershipNotifier(o.publisher, Emitter))
		if err != nil {
			return nil, err
		}
	} else if owned.Owner() != owner {
		return nil, fmt.Errorf("ownership record is held by %q, not %q", owned.Owner(), owner)
	}

	// A no-op tracer keeps spans from ending the caller's span.
	tracer := noop.NewTracerProvider().Tracer(tracerName)
	if o.tracerProvider != nil {
		tracer = o.tracerProvider.Tracer(tracerName)
	}

	return &Registry{
		Owned:         owned,
		store:         store,
		resolver:      resolver,
		publisher:     o.publisher,
		tracer:        tracer,
		metrics:       o.metrics,
		sourceMetrics: o.sourceMetrics,
		policy:        o.policy,
	}, nil
}

// TypeAndVersion returns the implementation identifier.
func (*Registry) TypeAndVersion() string {
	return TypeAndVersion
}

// AccessPolicy returns the active policy, or nil when reads are not gated.
func (r *Registry) AccessPolicy() access.Policy {
	r.policyMu.RLock()
	defer r.policyMu.RUnlock()
	return r.policy
}

// SetAccessPolicy swaps the access policy. A nil policy disables gating.
func (r *Registry) SetAccessPolicy(ctx context.Context, actor string, policy access.Policy) error {
	if err := r.RequireOwner(actor); err != nil {
		return err
	}

	r.policyMu.Lock()
	r.policy = policy
	r.policyMu.Unlock()

	slog.InfoContext(ctx, "Access policy changed", "policy", access.Ref(policy), "actor", actor)
	r.publisher.Publish(ctx, events.Event{
		Type:    events.TypeAccessPolicyChanged,
		Emitter: Emitter,
		Policy:  access.Ref(policy),
		Actor:   actor,
	})
	return nil
}

// HasAccess reports whether caller may read pair under the current policy.
func (r *Registry) HasAccess(ctx context.Context, caller string, pair Pair) (bool, error) {
	err := r.checkAccess(ctx, caller, pair)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNoAccess):
		return false, nil
	default:
		return false, err
	}
}

// IsFeedEnabled reports whether source is currently serving some pair.
func (r *Registry) IsFeedEnabled(ctx context.Context, src string) (bool, error) {
	if src == "" {
		return false, nil
	}
	return r.store.IsSourceEnabled(ctx, src)
}

// Pairs lists every pair with a confirmed phase.
func (r *Registry) Pairs(ctx context.Context) ([]Pair, error) {
	return r.store.Pairs(ctx)
}

// checkAccess gates value reads. The owner is never gated.
func (r *Registry) checkAccess(ctx context.Context, caller string, pair Pair) error {
	policy := r.AccessPolicy()
	if policy == nil || r.IsOwner(caller) {
		return nil
	}
	ok, err := policy.HasAccess(ctx, caller, pair.Encode())
	if err != nil {
		return fmt.Errorf("access check failed: %w", err)
	}
	if !ok {
		r.metrics.RecordAccessDenied(ctx, pair.String())
		slog.DebugContext(ctx, "Read denied by access policy", "pair", pair.String(), "caller", caller)
		return ErrNoAccess
	}
	return nil
}

func (r *Registry) resolve(ref string) (source.Source, error) {
	src, err := r.resolver.Resolve(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source %q: %w", ref, err)
	}
	return src, nil
}

func (r *Registry) startSpan(ctx context.Context, name string, pair Pair) (context.Context, trace.Span) {
	return otel.StartSpan(ctx, r.tracer, telemetry.RegistrySpanPrefix+name,
		trace.WithAttributes(otel.AttrPair.String(pair.String())),
	)
}

// observe runs a delegated read in its own "source.<op>" span, times it and
// wraps upstream failures.
func observe[T any](ctx context.Context, r *Registry, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := otel.StartSpan(ctx, r.tracer, telemetry.SourceSpanPrefix+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	start := time.Now()
	v, err := fn(ctx)
	r.sourceMetrics.RecordRead(ctx, op, time.Since(start), err == nil)
	if err != nil {
		otel.RecordError(span, err)
		return v, fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, op, err)
	}
	return v, nil
}
