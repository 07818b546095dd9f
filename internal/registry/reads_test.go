package registry_test

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/registry/inmemory"
	"github.com/stacklok/feed-registry-server/internal/source"
	"github.com/stacklok/feed-registry-server/internal/source/mocks"
)

func TestReads_NoFeed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t)

	_, err := f.reg.Decimals(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, registry.ErrSourceNotFound)
	_, err = f.reg.Description(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, registry.ErrSourceNotFound)
	_, err = f.reg.Version(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, registry.ErrSourceNotFound)
	_, err = f.reg.LatestAnswer(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, registry.ErrSourceNotFound)
	_, err = f.reg.LatestRoundData(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, registry.ErrSourceNotFound)

	answer, err := f.reg.GetAnswer(ctx, consumer, ethUSD, round(1, 1))
	require.NoError(t, err)
	assert.Zero(t, answer.Sign())
}

func TestReads_CurrentSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := fourPhases(t)

	decimals, err := f.reg.Decimals(ctx, consumer, ethUSD)
	require.NoError(t, err)
	assert.Equal(t, uint8(8), decimals)

	description, err := f.reg.Description(ctx, consumer, ethUSD)
	require.NoError(t, err)
	assert.Equal(t, "0xd / USD", description)

	version, err := f.reg.Version(ctx, consumer, ethUSD)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), version)

	answer, err := f.reg.LatestAnswer(ctx, consumer, ethUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(5100), answer.Int64())

	ts, err := f.reg.LatestTimestamp(ctx, consumer, ethUSD)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_700_000_051), ts)

	latest, err := f.reg.LatestRound(ctx, consumer, ethUSD)
	require.NoError(t, err)
	assert.Equal(t, round(4, 51), latest)

	rd, err := f.reg.LatestRoundData(ctx, consumer, ethUSD)
	require.NoError(t, err)
	assert.Equal(t, round(4, 51), rd.RoundID)
	assert.Equal(t, round(4, 51), rd.AnsweredInRound)
	assert.Equal(t, int64(5100), rd.Answer.Int64())
}

func TestReads_HistoricalRounds(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := fourPhases(t)

	answer, err := f.reg.GetAnswer(ctx, consumer, ethUSD, round(1, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(500), answer.Int64())

	answer, err = f.reg.GetAnswer(ctx, consumer, ethUSD, round(2, 130))
	require.NoError(t, err)
	assert.Equal(t, int64(13000), answer.Int64())

	ts, err := f.reg.GetTimestamp(ctx, consumer, ethUSD, round(2, 130))
	require.NoError(t, err)
	assert.Equal(t, uint64(1_700_000_130), ts)

	rd, err := f.reg.GetRoundData(ctx, consumer, ethUSD, round(1, 5))
	require.NoError(t, err)
	assert.Equal(t, round(1, 5), rd.RoundID)
	assert.Equal(t, round(1, 5), rd.AnsweredInRound)
	assert.Equal(t, int64(500), rd.Answer.Int64())

	t.Run("zero sentinel for scalar reads", func(t *testing.T) {
		for _, r := range []*big.Int{
			round(3, 1),
			round(9, 1),
			round(1, 77),
			new(big.Int).Lsh(big.NewInt(1), 250),
		} {
			answer, err := f.reg.GetAnswer(ctx, consumer, ethUSD, r)
			require.NoError(t, err, "round %v", r)
			assert.Zero(t, answer.Sign(), "round %v", r)

			ts, err := f.reg.GetTimestamp(ctx, consumer, ethUSD, r)
			require.NoError(t, err, "round %v", r)
			assert.Zero(t, ts, "round %v", r)
		}
	})

	t.Run("explicit failure for round data", func(t *testing.T) {
		for _, r := range []*big.Int{round(3, 1), round(9, 1), round(1, 77)} {
			_, err := f.reg.GetRoundData(ctx, consumer, ethUSD, r)
			assert.ErrorIs(t, err, registry.ErrRoundNotFound, "round %v", r)
		}
	})
}

func TestReads_ProposedSource(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, "0xa", "0xb")
	f.advance("0xa", 1, 3)
	f.transition(t, ethUSD, "0xa")

	_, err := f.reg.ProposedLatestRoundData(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, registry.ErrNoProposedSource)

	f.advance("0xb", 700, 701)
	require.NoError(t, f.reg.ProposeSource(ctx, owner, ethUSD, "0xb"))

	rd, err := f.reg.ProposedLatestRoundData(ctx, consumer, ethUSD)
	require.NoError(t, err)
	assert.Equal(t, int64(701), rd.RoundID.Int64(), "proposed reads keep native ids")

	rd, err = f.reg.ProposedGetRoundData(ctx, consumer, ethUSD, big.NewInt(700))
	require.NoError(t, err)
	assert.Equal(t, int64(70000), rd.Answer.Int64())

	_, err = f.reg.ProposedGetRoundData(ctx, consumer, ethUSD, big.NewInt(5))
	assert.ErrorIs(t, err, source.ErrNoData)

	require.NoError(t, f.reg.ProposeSource(ctx, owner, ethUSD, ""))
	_, err = f.reg.ProposedLatestRoundData(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, registry.ErrNoProposedSource, "a removal proposal has nothing to read")
}

func TestReads_RoundOverflow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newFixture(t, "0xa")
	f.advance("0xa", 1, 1)
	f.transition(t, ethUSD, "0xa")

	f.sources["0xa"].SetLatestRound(new(big.Int).Lsh(big.NewInt(1), 64))
	_, err := f.reg.LatestRound(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, registry.ErrRoundOverflow)
}

func TestReads_SourceFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)

	src := mocks.NewMockSource(ctrl)
	resolver := mocks.NewMockResolver(ctrl)
	resolver.EXPECT().Resolve("0xmock").Return(src, nil).AnyTimes()

	src.EXPECT().LatestRound(gomock.Any()).Return(big.NewInt(12), nil)
	reg, err := registry.New(owner, inmemory.New(), resolver)
	require.NoError(t, err)
	require.NoError(t, reg.ProposeSource(ctx, owner, ethUSD, "0xmock"))
	_, err = reg.ConfirmSource(ctx, owner, ethUSD, "0xmock")
	require.NoError(t, err)

	src.EXPECT().Decimals(gomock.Any()).Return(uint8(0), assert.AnError)
	_, err = reg.Decimals(ctx, consumer, ethUSD)
	assert.ErrorIs(t, err, registry.ErrSourceUnavailable)
	assert.ErrorIs(t, err, assert.AnError)

	src.EXPECT().GetRoundData(gomock.Any(), big.NewInt(11)).Return(source.RoundData{
		RoundID:         big.NewInt(11),
		Answer:          big.NewInt(-3),
		AnsweredInRound: big.NewInt(10),
	}, nil)
	rd, err := reg.GetRoundData(ctx, consumer, ethUSD, round(1, 11))
	require.NoError(t, err)
	assert.Equal(t, round(1, 11), rd.RoundID)
	assert.Equal(t, round(1, 10), rd.AnsweredInRound)
	assert.Equal(t, int64(-3), rd.Answer.Int64())
}
