package registry

import (
	"context"
	"fmt"
	"math/big"

	"github.com/stacklok/feed-registry-server/internal/roundid"
)

// locate resolves a global round id to its phase. The phase must be one of
// 1..current; the source round is not range checked.
func (r *Registry) locate(ctx context.Context, pair Pair, round *big.Int) (Phase, uint64, Phase, error) {
	phaseID, sourceRound := roundid.Decode(round)
	if !phaseID.IsUint64() {
		return Phase{}, 0, Phase{}, fmt.Errorf("%w: %s round %v", ErrRoundNotFound, pair, round)
	}
	current, err := r.store.CurrentPhase(ctx, pair)
	if err != nil {
		return Phase{}, 0, Phase{}, err
	}
	phase, err := r.phaseOf(ctx, pair, current, phaseID.Uint64())
	if isNotFound(err) {
		return Phase{}, 0, Phase{}, fmt.Errorf("%w: %s round %v", ErrRoundNotFound, pair, round)
	}
	if err != nil {
		return Phase{}, 0, Phase{}, err
	}
	return phase, sourceRound, current, nil
}

// GetSourceForRound returns the source that produced a global round id.
func (r *Registry) GetSourceForRound(ctx context.Context, pair Pair, round *big.Int) (string, error) {
	phase, sourceRound, current, err := r.locate(ctx, pair, round)
	if err != nil {
		return "", err
	}
	if !phase.HasSource() {
		return "", fmt.Errorf("%w: %s round %v", ErrRoundNotFound, pair, round)
	}
	ending, err := r.effectiveEnd(ctx, phase, current.ID)
	if err != nil {
		return "", err
	}
	if sourceRound < phase.firstRound() || sourceRound > ending {
		return "", fmt.Errorf("%w: %s round %v", ErrRoundNotFound, pair, round)
	}
	return phase.Source, nil
}

// GetPreviousRoundID returns the global round id preceding round, walking
// back over phases without rounds. It returns 0 when there is none.
func (r *Registry) GetPreviousRoundID(ctx context.Context, pair Pair, round *big.Int) (*big.Int, error) {
	phase, sourceRound, _, err := r.locate(ctx, pair, round)
	if err != nil {
		return nil, err
	}
	if phase.HasSource() && sourceRound > phase.firstRound() {
		return new(big.Int).Sub(round, big.NewInt(1)), nil
	}

	history, err := r.store.History(ctx, pair)
	if err != nil {
		return nil, err
	}
	// history[i] is phase i+1, so history[phase.ID-2] is the predecessor.
	for i := min(int(phase.ID)-2, len(history)-1); i >= 0; i-- {
		prev := history[i]
		if prev.HasSource() && prev.EndingRound > 0 {
			return roundid.Make(prev.ID, prev.EndingRound), nil
		}
	}
	return new(big.Int), nil
}

// GetNextRoundID returns the global round id following round, walking
// forward over phases without rounds. It returns 0 when round is at or past
// the latest round of the current phase.
func (r *Registry) GetNextRoundID(ctx context.Context, pair Pair, round *big.Int) (*big.Int, error) {
	phase, sourceRound, current, err := r.locate(ctx, pair, round)
	if err != nil {
		return nil, err
	}

	if phase.HasSource() {
		ending, err := r.effectiveEnd(ctx, phase, current.ID)
		if err != nil {
			return nil, err
		}
		if first := phase.firstRound(); first <= ending {
			if sourceRound < first {
				return roundid.Make(phase.ID, first), nil
			}
			if sourceRound < ending {
				return new(big.Int).Add(round, big.NewInt(1)), nil
			}
		}
	}

	history, err := r.store.History(ctx, pair)
	if err != nil {
		return nil, err
	}
	// history[phase.ID] is the successor.
	for i := int(phase.ID); i < len(history); i++ {
		next := history[i]
		if !next.HasSource() {
			continue
		}
		ending, err := r.effectiveEnd(ctx, next, current.ID)
		if err != nil {
			return nil, err
		}
		if first := next.firstRound(); first <= ending {
			return roundid.Make(next.ID, first), nil
		}
	}
	return new(big.Int), nil
}
