package registry

import "context"

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go PhaseStore

// PhaseStore persists per-pair phase history and the pending proposal.
type PhaseStore interface {
	// Pairs lists every pair with at least one confirmed phase.
	Pairs(ctx context.Context) ([]Pair, error)
	// CurrentPhase returns the latest phase, or the zero Phase when none was
	// ever confirmed.
	CurrentPhase(ctx context.Context, pair Pair) (Phase, error)
	// Phase returns phase id, failing with ErrPhaseNotFound for 0 and for ids
	// beyond the current phase.
	Phase(ctx context.Context, pair Pair, id uint64) (Phase, error)
	// History returns phases 1..current in id order.
	History(ctx context.Context, pair Pair) ([]Phase, error)
	// Proposal returns the proposed source and whether one is pending. A
	// pending proposal may be the empty (none) source.
	Proposal(ctx context.Context, pair Pair) (string, bool, error)
	// SetProposal replaces the pending proposal.
	SetProposal(ctx context.Context, pair Pair, source string) error
	// CommitTransition atomically freezes the outgoing phase, appends
	// t.Incoming and clears the proposal. It fails with ErrProposalMismatch
	// unless t.Incoming.Source is the pending proposal, and with
	// ErrPhaseConflict unless t.Incoming.ID is the current id plus one.
	CommitTransition(ctx context.Context, pair Pair, t Transition) error
	// IsSourceEnabled reports whether source is the current source of at
	// least one pair.
	IsSourceEnabled(ctx context.Context, source string) (bool, error)
}
