// Package sourcetest provides a scripted in-process source.Source for tests.
package sourcetest

import (
	"context"
	"math/big"
	"sync"

	"github.com/stacklok/feed-registry-server/internal/source"
)

type round struct {
	answer    *big.Int
	startedAt uint64
	updatedAt uint64
}

// Fake is a source.Source whose rounds are set by the test. Setting a round
// makes it the latest, mirroring how aggregators advance.
type Fake struct {
	mu          sync.Mutex
	decimals    uint8
	description string
	version     uint64
	rounds      map[string]round
	latest      *big.Int
	err         error
}

var _ source.Source = (*Fake)(nil)

// New creates a Fake with no rounds.
func New(decimals uint8, description string) *Fake {
	return &Fake{
		decimals:    decimals,
		description: description,
		version:     4,
		rounds:      make(map[string]round),
		latest:      new(big.Int),
	}
}

// SetVersion sets the reported version.
func (f *Fake) SetVersion(v uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.version = v
}

// SetRound records a round and makes it the latest.
func (f *Fake) SetRound(id uint64, answer int64, updatedAt uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := new(big.Int).SetUint64(id)
	f.rounds[r.String()] = round{answer: big.NewInt(answer), startedAt: updatedAt, updatedAt: updatedAt}
	f.latest = r
}

// SetLatestRound overrides the reported latest round without recording data.
func (f *Fake) SetLatestRound(r *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latest = new(big.Int).Set(r)
}

// SetError makes every call fail with err until cleared with nil.
func (f *Fake) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Decimals implements source.Source.
func (f *Fake) Decimals(context.Context) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.decimals, f.err
}

// Description implements source.Source.
func (f *Fake) Description(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.description, f.err
}

// Version implements source.Source.
func (f *Fake) Version(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.version, f.err
}

// LatestAnswer implements source.Source.
func (f *Fake) LatestAnswer(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.answer(f.latest), nil
}

// LatestTimestamp implements source.Source.
func (f *Fake) LatestTimestamp(context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.rounds[f.latest.String()].updatedAt, nil
}

// LatestRound implements source.Source.
func (f *Fake) LatestRound(context.Context) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return new(big.Int).Set(f.latest), nil
}

// GetAnswer implements source.Source.
func (f *Fake) GetAnswer(_ context.Context, r *big.Int) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.answer(r), nil
}

// GetTimestamp implements source.Source.
func (f *Fake) GetTimestamp(_ context.Context, r *big.Int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	return f.rounds[r.String()].updatedAt, nil
}

// LatestRoundData implements source.Source.
func (f *Fake) LatestRoundData(context.Context) (source.RoundData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return source.RoundData{}, f.err
	}
	return f.roundData(f.latest)
}

// GetRoundData implements source.Source.
func (f *Fake) GetRoundData(_ context.Context, r *big.Int) (source.RoundData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return source.RoundData{}, f.err
	}
	return f.roundData(r)
}

func (f *Fake) answer(r *big.Int) *big.Int {
	rd, ok := f.rounds[r.String()]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(rd.answer)
}

func (f *Fake) roundData(r *big.Int) (source.RoundData, error) {
	rd, ok := f.rounds[r.String()]
	if !ok {
		return source.RoundData{}, source.ErrNoData
	}
	return source.RoundData{
		RoundID:         new(big.Int).Set(r),
		Answer:          new(big.Int).Set(rd.answer),
		StartedAt:       rd.startedAt,
		UpdatedAt:       rd.updatedAt,
		AnsweredInRound: new(big.Int).Set(r),
	}, nil
}
