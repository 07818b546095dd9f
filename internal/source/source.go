// Package source defines the capability the registry needs from an external
// data source (aggregator) and resolves source references to it.
//
// Values are never stored by the registry; every read is delegated live.
package source

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrUnknownSource is returned when a reference cannot be resolved.
	ErrUnknownSource = errors.New("unknown source")
	// ErrNoData is returned by round reads for rounds the source does not have.
	ErrNoData = errors.New("no data present")
)

// RoundData is a single round as reported by a source. Round ids are native to
// the source unless the registry has rewritten them into global ids.
type RoundData struct {
	RoundID         *big.Int
	Answer          *big.Int
	StartedAt       uint64
	UpdatedAt       uint64
	AnsweredInRound *big.Int
}

//go:generate mockgen -destination=mocks/mock_source.go -package=mocks -source=source.go Source,Resolver

// Source is the read capability of an external data source.
//
// GetAnswer and GetTimestamp follow the legacy convention of returning zero
// values for rounds the source does not know; GetRoundData fails with
// ErrNoData instead.
type Source interface {
	Decimals(ctx context.Context) (uint8, error)
	Description(ctx context.Context) (string, error)
	Version(ctx context.Context) (uint64, error)
	LatestAnswer(ctx context.Context) (*big.Int, error)
	LatestTimestamp(ctx context.Context) (uint64, error)
	LatestRound(ctx context.Context) (*big.Int, error)
	GetAnswer(ctx context.Context, round *big.Int) (*big.Int, error)
	GetTimestamp(ctx context.Context, round *big.Int) (uint64, error)
	LatestRoundData(ctx context.Context) (RoundData, error)
	GetRoundData(ctx context.Context, round *big.Int) (RoundData, error)
}

// Resolver maps a source reference to its Source.
type Resolver interface {
	Resolve(ref string) (Source, error)
}
