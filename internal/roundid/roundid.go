// Package roundid packs a phase id and a source-native round number into a
// single global round identifier and splits it back apart.
//
// A global round id is phaseID * 2^64 + sourceRound. The low 64 bits always
// hold the round number reported by the source that served the phase, the
// remaining bits hold the phase id.
package roundid

import (
	"errors"
	"fmt"
	"math/big"
)

const (
	// PhaseOffset is the bit offset of the phase id inside a global round id.
	PhaseOffset = 64

	// MaxPhaseBits is the number of bits available for phase ids.
	MaxPhaseBits = 192
)

var (
	// ErrRoundOverflow is returned when a source round does not fit into 64 bits.
	ErrRoundOverflow = errors.New("round overflow")

	// ErrPhaseOverflow is returned when a phase id does not fit into 192 bits.
	ErrPhaseOverflow = errors.New("phase overflow")

	phaseBase = new(big.Int).Lsh(big.NewInt(1), PhaseOffset)
	maxPhase  = new(big.Int).Lsh(big.NewInt(1), MaxPhaseBits)
	lowMask   = new(big.Int).Sub(phaseBase, big.NewInt(1))
)

// PhaseBase returns 2^64, the distance between the first rounds of two
// consecutive phases.
func PhaseBase() *big.Int {
	return new(big.Int).Set(phaseBase)
}

// Encode packs phaseID and sourceRound into a global round id.
func Encode(phaseID, sourceRound *big.Int) (*big.Int, error) {
	if sourceRound == nil || sourceRound.Sign() < 0 || sourceRound.Cmp(phaseBase) >= 0 {
		return nil, fmt.Errorf("%w: source round %v does not fit in %d bits", ErrRoundOverflow, sourceRound, PhaseOffset)
	}
	if phaseID == nil || phaseID.Sign() < 0 || phaseID.Cmp(maxPhase) >= 0 {
		return nil, fmt.Errorf("%w: phase id %v does not fit in %d bits", ErrPhaseOverflow, phaseID, MaxPhaseBits)
	}
	id := new(big.Int).Lsh(phaseID, PhaseOffset)
	return id.Or(id, sourceRound), nil
}

// Make builds the global round id for a phase and a round already known to fit.
func Make(phaseID, sourceRound uint64) *big.Int {
	id := new(big.Int).Lsh(new(big.Int).SetUint64(phaseID), PhaseOffset)
	return id.Or(id, new(big.Int).SetUint64(sourceRound))
}

// Decode splits a global round id into its phase id and source round.
// It never validates that the phase exists. Nil or negative input decodes
// as phase 0, round 0.
func Decode(globalRound *big.Int) (phaseID *big.Int, sourceRound uint64) {
	if globalRound == nil || globalRound.Sign() < 0 {
		return new(big.Int), 0
	}
	phaseID = new(big.Int).Rsh(globalRound, PhaseOffset)
	sourceRound = new(big.Int).And(globalRound, lowMask).Uint64()
	return phaseID, sourceRound
}

// SourceRound converts a source-reported round number to uint64, failing with
// ErrRoundOverflow when it cannot be encoded.
func SourceRound(round *big.Int) (uint64, error) {
	if round == nil || round.Sign() < 0 || !round.IsUint64() {
		return 0, fmt.Errorf("%w: source round %v does not fit in %d bits", ErrRoundOverflow, round, PhaseOffset)
	}
	return round.Uint64(), nil
}

// Parse reads a decimal global round id.
func Parse(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid round id: %q", s)
	}
	return id, nil
}
