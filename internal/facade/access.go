package facade

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/source"
)

// AccessControlledFacade is a PairFacade that only serves its allowed reader
// and callers admitted by its own access policy.
type AccessControlledFacade struct {
	*PairFacade

	allowedReader string
	publisher     *events.Publisher

	mu     sync.RWMutex
	policy access.Policy
}

// NewAccessControlledFacade wraps a PairFacade. allowedReader may be empty, in
// which case only the policy admits callers.
func NewAccessControlledFacade(
	reader Reader,
	pair registry.Pair,
	identity, owner, allowedReader string,
	publisher *events.Publisher,
) (*AccessControlledFacade, error) {
	inner, err := NewPairFacade(reader, pair, identity, owner, publisher)
	if err != nil {
		return nil, err
	}
	return &AccessControlledFacade{
		PairFacade:    inner,
		allowedReader: allowedReader,
		publisher:     publisher,
	}, nil
}

// AllowedReader returns the caller that is always served.
func (f *AccessControlledFacade) AllowedReader() string { return f.allowedReader }

// AccessPolicy returns the facade's own policy, or nil.
func (f *AccessControlledFacade) AccessPolicy() access.Policy {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.policy
}

// SetAccessPolicy replaces the facade's policy. Setting the policy already in
// place fails with registry.ErrAlreadyCurrent.
func (f *AccessControlledFacade) SetAccessPolicy(ctx context.Context, actor string, policy access.Policy) error {
	if err := f.RequireOwner(actor); err != nil {
		return err
	}

	f.mu.Lock()
	if f.policy == policy {
		f.mu.Unlock()
		return registry.ErrAlreadyCurrent
	}
	f.policy = policy
	f.mu.Unlock()

	slog.InfoContext(ctx, "Facade access policy changed",
		"pair", f.pair.String(),
		"policy", access.Ref(policy),
		"actor", actor)
	f.publisher.Publish(ctx, events.Event{
		Type:    events.TypeAccessPolicyChanged,
		Emitter: emitter(f.pair),
		Base:    f.pair.Base,
		Quote:   f.pair.Quote,
		Policy:  access.Ref(policy),
		Actor:   actor,
	})
	return nil
}

func (f *AccessControlledFacade) authorize(ctx context.Context, caller string) error {
	if caller != "" && caller == f.allowedReader {
		return nil
	}
	policy := f.AccessPolicy()
	if policy == nil {
		return registry.ErrNoAccess
	}
	ok, err := policy.HasAccess(ctx, caller, f.pair.Encode())
	if err != nil {
		return err
	}
	if !ok {
		return registry.ErrNoAccess
	}
	return nil
}

func guarded[T any](ctx context.Context, f *AccessControlledFacade, caller string, read func() (T, error)) (T, error) {
	if err := f.authorize(ctx, caller); err != nil {
		var zero T
		slog.DebugContext(ctx, "Facade read denied", "pair", f.pair.String(), "caller", caller, "error", err)
		return zero, err
	}
	return read()
}

// Decimals is PairFacade.Decimals for an admitted caller.
func (f *AccessControlledFacade) Decimals(ctx context.Context, caller string) (uint8, error) {
	return guarded(ctx, f, caller, func() (uint8, error) { return f.PairFacade.Decimals(ctx) })
}

// Description is PairFacade.Description for an admitted caller.
func (f *AccessControlledFacade) Description(ctx context.Context, caller string) (string, error) {
	return guarded(ctx, f, caller, func() (string, error) { return f.PairFacade.Description(ctx) })
}

// Version is PairFacade.Version for an admitted caller.
func (f *AccessControlledFacade) Version(ctx context.Context, caller string) (uint64, error) {
	return guarded(ctx, f, caller, func() (uint64, error) { return f.PairFacade.Version(ctx) })
}

// LatestAnswer is PairFacade.LatestAnswer for an admitted caller.
func (f *AccessControlledFacade) LatestAnswer(ctx context.Context, caller string) (*big.Int, error) {
	return guarded(ctx, f, caller, func() (*big.Int, error) { return f.PairFacade.LatestAnswer(ctx) })
}

// LatestTimestamp is PairFacade.LatestTimestamp for an admitted caller.
func (f *AccessControlledFacade) LatestTimestamp(ctx context.Context, caller string) (uint64, error) {
	return guarded(ctx, f, caller, func() (uint64, error) { return f.PairFacade.LatestTimestamp(ctx) })
}

// LatestRound is PairFacade.LatestRound for an admitted caller.
func (f *AccessControlledFacade) LatestRound(ctx context.Context, caller string) (*big.Int, error) {
	return guarded(ctx, f, caller, func() (*big.Int, error) { return f.PairFacade.LatestRound(ctx) })
}

// GetAnswer is PairFacade.GetAnswer for an admitted caller.
func (f *AccessControlledFacade) GetAnswer(ctx context.Context, caller string, round *big.Int) (*big.Int, error) {
	return guarded(ctx, f, caller, func() (*big.Int, error) { return f.PairFacade.GetAnswer(ctx, round) })
}

// GetTimestamp is PairFacade.GetTimestamp for an admitted caller.
func (f *AccessControlledFacade) GetTimestamp(ctx context.Context, caller string, round *big.Int) (uint64, error) {
	return guarded(ctx, f, caller, func() (uint64, error) { return f.PairFacade.GetTimestamp(ctx, round) })
}

// LatestRoundData is PairFacade.LatestRoundData for an admitted caller.
func (f *AccessControlledFacade) LatestRoundData(ctx context.Context, caller string) (source.RoundData, error) {
	return guarded(ctx, f, caller, func() (source.RoundData, error) { return f.PairFacade.LatestRoundData(ctx) })
}

// GetRoundData is PairFacade.GetRoundData for an admitted caller.
func (f *AccessControlledFacade) GetRoundData(ctx context.Context, caller string, round *big.Int) (source.RoundData, error) {
	return guarded(ctx, f, caller, func() (source.RoundData, error) { return f.PairFacade.GetRoundData(ctx, round) })
}
