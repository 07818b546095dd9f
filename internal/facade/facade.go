// Package facade exposes a single registry pair through the narrow reader
// interface that single-source consumers expect.
package facade

import (
	"context"
	"fmt"
	"math/big"

	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/ownership"
	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/source"
)

// Reader is the part of the registry a facade delegates to.
type Reader interface {
	Decimals(ctx context.Context, caller string, pair registry.Pair) (uint8, error)
	Description(ctx context.Context, caller string, pair registry.Pair) (string, error)
	Version(ctx context.Context, caller string, pair registry.Pair) (uint64, error)
	LatestAnswer(ctx context.Context, caller string, pair registry.Pair) (*big.Int, error)
	LatestTimestamp(ctx context.Context, caller string, pair registry.Pair) (uint64, error)
	LatestRound(ctx context.Context, caller string, pair registry.Pair) (*big.Int, error)
	GetAnswer(ctx context.Context, caller string, pair registry.Pair, round *big.Int) (*big.Int, error)
	GetTimestamp(ctx context.Context, caller string, pair registry.Pair, round *big.Int) (uint64, error)
	LatestRoundData(ctx context.Context, caller string, pair registry.Pair) (source.RoundData, error)
	GetRoundData(ctx context.Context, caller string, pair registry.Pair, round *big.Int) (source.RoundData, error)
}

var _ Reader = (*registry.Registry)(nil)

// PairFacade reads one pair from the registry under its own identity. The
// registry's access policy therefore has to grant the identity, not the end
// consumer.
type PairFacade struct {
	*ownership.Owned

	reader   Reader
	pair     registry.Pair
	identity string
}

// NewPairFacade creates a facade for pair that calls reader as identity.
func NewPairFacade(reader Reader, pair registry.Pair, identity, owner string, publisher *events.Publisher) (*PairFacade, error) {
	if reader == nil {
		return nil, fmt.Errorf("registry reader is required")
	}
	if identity == "" {
		return nil, fmt.Errorf("facade identity is required")
	}
	owned, err := ownership.New(owner, events.OwnershipNotifier(publisher, emitter(pair)))
	if err != nil {
		return nil, err
	}
	return &PairFacade{Owned: owned, reader: reader, pair: pair, identity: identity}, nil
}

// Registry returns the reader the facade delegates to.
func (f *PairFacade) Registry() Reader { return f.reader }

// Pair returns the fixed pair.
func (f *PairFacade) Pair() registry.Pair { return f.pair }

// Identity returns the caller name used towards the registry.
func (f *PairFacade) Identity() string { return f.identity }

// Decimals returns the decimals of the pair's current source.
func (f *PairFacade) Decimals(ctx context.Context) (uint8, error) {
	return f.reader.Decimals(ctx, f.identity, f.pair)
}

// Description returns the description of the pair's current source.
func (f *PairFacade) Description(ctx context.Context) (string, error) {
	return f.reader.Description(ctx, f.identity, f.pair)
}

// Version returns the version of the pair's current source.
func (f *PairFacade) Version(ctx context.Context) (uint64, error) {
	return f.reader.Version(ctx, f.identity, f.pair)
}

// LatestAnswer returns the latest answer of the pair.
func (f *PairFacade) LatestAnswer(ctx context.Context) (*big.Int, error) {
	return f.reader.LatestAnswer(ctx, f.identity, f.pair)
}

// LatestTimestamp returns the update time of the latest answer.
func (f *PairFacade) LatestTimestamp(ctx context.Context) (uint64, error) {
	return f.reader.LatestTimestamp(ctx, f.identity, f.pair)
}

// LatestRound returns the latest global round id.
func (f *PairFacade) LatestRound(ctx context.Context) (*big.Int, error) {
	return f.reader.LatestRound(ctx, f.identity, f.pair)
}

// GetAnswer returns the answer of a global round id.
func (f *PairFacade) GetAnswer(ctx context.Context, round *big.Int) (*big.Int, error) {
	return f.reader.GetAnswer(ctx, f.identity, f.pair, round)
}

// GetTimestamp returns the update time of a global round id.
func (f *PairFacade) GetTimestamp(ctx context.Context, round *big.Int) (uint64, error) {
	return f.reader.GetTimestamp(ctx, f.identity, f.pair, round)
}

// LatestRoundData returns the latest round with global ids.
func (f *PairFacade) LatestRoundData(ctx context.Context) (source.RoundData, error) {
	return f.reader.LatestRoundData(ctx, f.identity, f.pair)
}

// GetRoundData returns a round by global id.
func (f *PairFacade) GetRoundData(ctx context.Context, round *big.Int) (source.RoundData, error) {
	return f.reader.GetRoundData(ctx, f.identity, f.pair, round)
}

func emitter(pair registry.Pair) string {
	return "facade:" + pair.String()
}
