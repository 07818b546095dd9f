package registry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/access/mocks"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/otel"
	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/registry/inmemory"
)

func gatedFixture(t *testing.T) (*fixture, *access.GrantPolicy) {
	t.Helper()

	f := fourPhases(t)
	f.transition(t, btcUSD, "0xa")

	policy, err := access.NewGrantPolicy("reads", owner, events.NewPublisher(f.log))
	require.NoError(t, err)
	require.NoError(t, f.reg.SetAccessPolicy(context.Background(), owner, policy))
	return f, policy
}

func TestAccess_GatedReads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, _ := gatedFixture(t)

	gated := map[string]func() error{
		"decimals":     func() error { _, err := f.reg.Decimals(ctx, consumer, ethUSD); return err },
		"description":  func() error { _, err := f.reg.Description(ctx, consumer, ethUSD); return err },
		"version":      func() error { _, err := f.reg.Version(ctx, consumer, ethUSD); return err },
		"latest":       func() error { _, err := f.reg.LatestAnswer(ctx, consumer, ethUSD); return err },
		"timestamp":    func() error { _, err := f.reg.LatestTimestamp(ctx, consumer, ethUSD); return err },
		"round":        func() error { _, err := f.reg.LatestRound(ctx, consumer, ethUSD); return err },
		"round data":   func() error { _, err := f.reg.LatestRoundData(ctx, consumer, ethUSD); return err },
		"answer":       func() error { _, err := f.reg.GetAnswer(ctx, consumer, ethUSD, round(1, 1)); return err },
		"ts at round":  func() error { _, err := f.reg.GetTimestamp(ctx, consumer, ethUSD, round(1, 1)); return err },
		"data at":      func() error { _, err := f.reg.GetRoundData(ctx, consumer, ethUSD, round(1, 1)); return err },
		"proposed":     func() error { _, err := f.reg.ProposedLatestRoundData(ctx, consumer, ethUSD); return err },
		"proposed at":  func() error { _, err := f.reg.ProposedGetRoundData(ctx, consumer, ethUSD, round(0, 1)); return err },
	}
	for name, read := range gated {
		assert.ErrorIs(t, read(), registry.ErrNoAccess, name)
	}

	// navigation and introspection stay open
	_, err := f.reg.GetSourceForRound(ctx, ethUSD, round(1, 1))
	require.NoError(t, err)
	_, _, err = f.reg.GetPhaseRange(ctx, ethUSD, 4)
	require.NoError(t, err)
	_, err = f.reg.GetNextRoundID(ctx, ethUSD, round(1, 1))
	require.NoError(t, err)
	_, err = f.reg.GetFeed(ctx, ethUSD)
	require.NoError(t, err)

	// the administrator is never gated
	_, err = f.reg.Decimals(ctx, owner, ethUSD)
	require.NoError(t, err)
}

func TestAccess_LocalAndGlobalGrants(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, policy := gatedFixture(t)

	require.NoError(t, policy.AddLocalAccess(ctx, owner, consumer, ethUSD.Encode()))
	_, err := f.reg.LatestAnswer(ctx, consumer, ethUSD)
	require.NoError(t, err)
	_, err = f.reg.LatestAnswer(ctx, consumer, btcUSD)
	assert.ErrorIs(t, err, registry.ErrNoAccess)

	ok, err := f.reg.HasAccess(ctx, consumer, btcUSD)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, policy.AddGlobalAccess(ctx, owner, consumer))
	_, err = f.reg.LatestAnswer(ctx, consumer, btcUSD)
	require.NoError(t, err)

	require.NoError(t, policy.RemoveGlobalAccess(ctx, owner, consumer))
	_, err = f.reg.LatestAnswer(ctx, consumer, ethUSD)
	require.NoError(t, err, "local grant survives removal of the global one")
	_, err = f.reg.LatestAnswer(ctx, consumer, btcUSD)
	assert.ErrorIs(t, err, registry.ErrNoAccess)

	require.NoError(t, policy.DisableAccessCheck(ctx, owner))
	_, err = f.reg.LatestAnswer(ctx, stranger, btcUSD)
	require.NoError(t, err)
}

func TestSetAccessPolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f, policy := gatedFixture(t)

	err := f.reg.SetAccessPolicy(ctx, stranger, nil)
	assert.ErrorIs(t, err, registry.ErrUnauthorized)
	assert.Same(t, policy, f.reg.AccessPolicy())

	// re-setting the same policy is allowed on the registry
	require.NoError(t, f.reg.SetAccessPolicy(ctx, owner, policy))

	require.NoError(t, f.reg.SetAccessPolicy(ctx, owner, nil))
	_, err = f.reg.Decimals(ctx, stranger, ethUSD)
	require.NoError(t, err, "no policy means reads are open")

	var changes []events.Event
	for _, e := range f.log.Since(0) {
		if e.Type == events.TypeAccessPolicyChanged {
			changes = append(changes, e)
		}
	}
	require.Len(t, changes, 3)
	assert.Equal(t, "reads", changes[0].Policy)
	assert.Equal(t, owner, changes[0].Actor)
	assert.Empty(t, changes[2].Policy)
}

func TestAccess_PolicyErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	f := fourPhases(t)

	policy := mocks.NewMockPolicy(ctrl)
	require.NoError(t, f.reg.SetAccessPolicy(ctx, owner, policy))

	policy.EXPECT().HasAccess(gomock.Any(), consumer, ethUSD.Encode()).Return(false, access.ErrMalformedRequest)
	_, err := f.reg.Decimals(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, access.ErrMalformedRequest)
	assert.NotErrorIs(t, err, registry.ErrNoAccess)

	policy.EXPECT().HasAccess(gomock.Any(), consumer, ethUSD.Encode()).Return(true, nil)
	ok, err := f.reg.HasAccess(ctx, consumer, ethUSD)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccess_CedarPolicy(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := fourPhases(t)

	policy, err := access.NewCedarPolicy("cedar", []byte(`
permit(
  principal == FeedRegistry::Caller::"0xconsumer",
  action == FeedRegistry::Action::"read",
  resource
) when { resource.base == "ETH" };
`))
	require.NoError(t, err)
	require.NoError(t, f.reg.SetAccessPolicy(ctx, owner, policy))

	_, err = f.reg.LatestAnswer(ctx, consumer, ethUSD)
	require.NoError(t, err)
	_, err = f.reg.LatestAnswer(ctx, stranger, ethUSD)
	assert.ErrorIs(t, err, registry.ErrNoAccess)
}

func TestTracing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, "0xa")
	reg, err := registry.New(owner, inmemory.New(), f.resolver, registry.WithTracerProvider(tp))
	require.NoError(t, err)

	require.NoError(t, reg.ProposeSource(ctx, owner, ethUSD, "0xa"))
	_, err = reg.ConfirmSource(ctx, owner, ethUSD, "0xb")
	require.ErrorIs(t, err, registry.ErrProposalMismatch)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "registry.ProposeSource", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Equal(t, "registry.ConfirmSource", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
}

func TestTracing_SourceReads(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, "0xa")
	f.advance("0xa", 1, 3)
	reg, err := registry.New(owner, inmemory.New(), f.resolver, registry.WithTracerProvider(tp))
	require.NoError(t, err)
	require.NoError(t, reg.ProposeSource(ctx, owner, ethUSD, "0xa"))
	_, err = reg.ConfirmSource(ctx, owner, ethUSD, "0xa")
	require.NoError(t, err)
	exporter.Reset()

	_, err = reg.LatestAnswer(ctx, "", ethUSD)
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	read, parent := spans[0], spans[1]
	assert.Equal(t, "source.latest_answer", read.Name)
	assert.Equal(t, trace.SpanKindClient, read.SpanKind)
	assert.Equal(t, "registry.LatestAnswer", parent.Name)
	assert.Equal(t, parent.SpanContext.SpanID(), read.Parent.SpanID())
	assert.Contains(t, parent.Attributes, otel.AttrSource.String("0xa"))
	assert.Contains(t, parent.Attributes, otel.AttrPair.String("ETH/USD"))
}
