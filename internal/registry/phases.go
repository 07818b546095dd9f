package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/stacklok/feed-registry-server/internal/roundid"
)

// CurrentPhaseID returns the pair's current phase id, 0 if never confirmed.
func (r *Registry) CurrentPhaseID(ctx context.Context, pair Pair) (uint64, error) {
	current, err := r.store.CurrentPhase(ctx, pair)
	if err != nil {
		return 0, err
	}
	return current.ID, nil
}

// CurrentPhase returns the pair's current phase as stored.
func (r *Registry) CurrentPhase(ctx context.Context, pair Pair) (Phase, error) {
	return r.store.CurrentPhase(ctx, pair)
}

// GetPhase returns phase id. Phase 0 is the implicit phase before any
// confirmation and always exists.
func (r *Registry) GetPhase(ctx context.Context, pair Pair, id uint64) (Phase, error) {
	if id == 0 {
		return Phase{}, nil
	}
	return r.store.Phase(ctx, pair, id)
}

// GetFeed returns the source currently serving pair.
func (r *Registry) GetFeed(ctx context.Context, pair Pair) (string, error) {
	current, err := r.store.CurrentPhase(ctx, pair)
	if err != nil {
		return "", err
	}
	if !current.HasSource() {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, pair)
	}
	return current.Source, nil
}

// GetPhaseFeed returns the source that served phase id.
func (r *Registry) GetPhaseFeed(ctx context.Context, pair Pair, id uint64) (string, error) {
	phase, err := r.GetPhase(ctx, pair, id)
	if err != nil {
		return "", err
	}
	if !phase.HasSource() {
		return "", fmt.Errorf("%w: %s phase %d", ErrSourceNotFound, pair, id)
	}
	return phase.Source, nil
}

// GetProposedFeed returns the pending proposal and whether one exists.
func (r *Registry) GetProposedFeed(ctx context.Context, pair Pair) (string, bool, error) {
	return r.store.Proposal(ctx, pair)
}

// GetPhaseRange returns the first and last global round ids of phase id.
// The end of the current phase is read from its source on every call.
func (r *Registry) GetPhaseRange(ctx context.Context, pair Pair, id uint64) (start, end *big.Int, err error) {
	if id == 0 {
		return new(big.Int), new(big.Int), nil
	}

	current, err := r.store.CurrentPhase(ctx, pair)
	if err != nil {
		return nil, nil, err
	}
	phase, err := r.phaseOf(ctx, pair, current, id)
	if err != nil {
		return nil, nil, err
	}
	if !phase.HasSource() {
		collapsed := roundid.Make(id, 0)
		return collapsed, new(big.Int).Set(collapsed), nil
	}

	ending, err := r.effectiveEnd(ctx, phase, current.ID)
	if err != nil {
		return nil, nil, err
	}
	return roundid.Make(id, phase.StartingRound), roundid.Make(id, ending), nil
}

// phaseOf fetches phase id, reusing current when it is the one requested.
func (r *Registry) phaseOf(ctx context.Context, pair Pair, current Phase, id uint64) (Phase, error) {
	if id == 0 || id > current.ID {
		return Phase{}, fmt.Errorf("%w: %s phase %d", ErrPhaseNotFound, pair, id)
	}
	if id == current.ID {
		return current, nil
	}
	return r.store.Phase(ctx, pair, id)
}

// effectiveEnd is the frozen ending round of a historical phase, or the live
// round of the current phase's source.
func (r *Registry) effectiveEnd(ctx context.Context, phase Phase, currentID uint64) (uint64, error) {
	if !phase.HasSource() {
		return 0, nil
	}
	if phase.ID < currentID {
		return phase.EndingRound, nil
	}
	return r.liveRound(ctx, phase.Source)
}

// isNotFound matches the not-found family.
func isNotFound(err error) bool {
	return errors.Is(err, ErrSourceNotFound) || errors.Is(err, ErrPhaseNotFound)
}
