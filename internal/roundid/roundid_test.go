package roundid

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pow2(n uint) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), n)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	maxRound := new(big.Int).Sub(pow2(64), big.NewInt(1))
	maxPhaseID := new(big.Int).Sub(pow2(192), big.NewInt(1))

	tests := []struct {
		name  string
		phase *big.Int
		round *big.Int
	}{
		{name: "zero", phase: big.NewInt(0), round: big.NewInt(0)},
		{name: "first phase first round", phase: big.NewInt(1), round: big.NewInt(1)},
		{name: "max round", phase: big.NewInt(7), round: maxRound},
		{name: "max phase", phase: maxPhaseID, round: big.NewInt(42)},
		{name: "max phase max round", phase: maxPhaseID, round: maxRound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			id, err := Encode(tt.phase, tt.round)
			require.NoError(t, err)

			phase, round := Decode(id)
			assert.Equal(t, 0, tt.phase.Cmp(phase), "phase %v != %v", tt.phase, phase)
			assert.Equal(t, tt.round.Uint64(), round)
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	t.Parallel()

	id, err := Encode(big.NewInt(2), big.NewInt(124))
	require.NoError(t, err)

	want := new(big.Int).Add(new(big.Int).Mul(big.NewInt(2), PhaseBase()), big.NewInt(124))
	assert.Equal(t, 0, want.Cmp(id))
	assert.Equal(t, 0, Make(2, 124).Cmp(id))
}

func TestEncodeRejectsOverflow(t *testing.T) {
	t.Parallel()

	_, err := Encode(big.NewInt(1), pow2(64))
	require.ErrorIs(t, err, ErrRoundOverflow)

	_, err = Encode(big.NewInt(1), big.NewInt(-1))
	require.ErrorIs(t, err, ErrRoundOverflow)

	_, err = Encode(pow2(192), big.NewInt(1))
	require.ErrorIs(t, err, ErrPhaseOverflow)
}

func TestDecodeArbitraryInput(t *testing.T) {
	t.Parallel()

	// 2^255 + 2^64 + 1 decodes arithmetically even though no such phase exists.
	id := new(big.Int).Add(pow2(255), PhaseBase())
	id.Add(id, big.NewInt(1))

	phase, round := Decode(id)
	assert.Equal(t, uint64(1), round)
	assert.Equal(t, 0, new(big.Int).Add(pow2(191), big.NewInt(1)).Cmp(phase))

	phase, round = Decode(nil)
	assert.Equal(t, 0, phase.Sign())
	assert.Zero(t, round)
}

func TestSourceRound(t *testing.T) {
	t.Parallel()

	r, err := SourceRound(big.NewInt(156))
	require.NoError(t, err)
	assert.Equal(t, uint64(156), r)

	_, err = SourceRound(pow2(64))
	require.ErrorIs(t, err, ErrRoundOverflow)

	_, err = SourceRound(nil)
	require.ErrorIs(t, err, ErrRoundOverflow)
}

func TestParse(t *testing.T) {
	t.Parallel()

	id, err := Parse("18446744073709551617")
	require.NoError(t, err)
	assert.Equal(t, 0, Make(1, 1).Cmp(id))

	_, err = Parse("-1")
	require.Error(t, err)

	_, err = Parse("abc")
	require.Error(t, err)
}
