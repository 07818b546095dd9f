package sourcetest

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/feed-registry-server/internal/source"
)

func TestFake(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := New(8, "ETH / USD")

	latest, err := f.LatestRound(ctx)
	require.NoError(t, err)
	assert.Zero(t, latest.Sign())
	_, err = f.LatestRoundData(ctx)
	assert.ErrorIs(t, err, source.ErrNoData)

	f.SetRound(1, 100, 1000)
	f.SetRound(2, 200, 2000)

	latest, err = f.LatestRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), latest.Int64())

	answer, err := f.GetAnswer(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, int64(100), answer.Int64())

	answer, err = f.GetAnswer(ctx, big.NewInt(7))
	require.NoError(t, err)
	assert.Zero(t, answer.Sign(), "unknown rounds answer zero")

	rd, err := f.GetRoundData(ctx, big.NewInt(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), rd.UpdatedAt)
	assert.Equal(t, int64(2), rd.AnsweredInRound.Int64())

	boom := errors.New("boom")
	f.SetError(boom)
	_, err = f.Decimals(ctx)
	assert.ErrorIs(t, err, boom)
}
