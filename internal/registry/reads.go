package registry

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/stacklok/feed-registry-server/internal/otel"
	"github.com/stacklok/feed-registry-server/internal/roundid"
	"github.com/stacklok/feed-registry-server/internal/source"
)

// readCurrent gates a read and runs fn against the pair's current source.
func readCurrent[T any](
	ctx context.Context,
	r *Registry,
	op, caller string,
	pair Pair,
	fn func(context.Context, Phase, source.Source) (T, error),
) (_ T, err error) {
	var zero T
	ctx, span := r.startSpan(ctx, op, pair)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	if err := r.checkAccess(ctx, caller, pair); err != nil {
		return zero, err
	}
	current, err := r.store.CurrentPhase(ctx, pair)
	if err != nil {
		return zero, err
	}
	if !current.HasSource() {
		return zero, fmt.Errorf("%w: %s", ErrSourceNotFound, pair)
	}
	span.SetAttributes(otel.AttrSource.String(current.Source), otel.AttrPhaseID.Int64(int64(current.ID)))
	src, err := r.resolve(current.Source)
	if err != nil {
		return zero, err
	}
	return fn(ctx, current, src)
}

// Decimals returns the current source's decimals.
func (r *Registry) Decimals(ctx context.Context, caller string, pair Pair) (uint8, error) {
	return readCurrent(ctx, r, "Decimals", caller, pair, func(ctx context.Context, _ Phase, src source.Source) (uint8, error) {
		return observe(ctx, r, "decimals", func(ctx context.Context) (uint8, error) { return src.Decimals(ctx) })
	})
}

// Description returns the current source's description.
func (r *Registry) Description(ctx context.Context, caller string, pair Pair) (string, error) {
	return readCurrent(ctx, r, "Description", caller, pair, func(ctx context.Context, _ Phase, src source.Source) (string, error) {
		return observe(ctx, r, "description", func(ctx context.Context) (string, error) { return src.Description(ctx) })
	})
}

// Version returns the current source's version.
func (r *Registry) Version(ctx context.Context, caller string, pair Pair) (uint64, error) {
	return readCurrent(ctx, r, "Version", caller, pair, func(ctx context.Context, _ Phase, src source.Source) (uint64, error) {
		return observe(ctx, r, "version", func(ctx context.Context) (uint64, error) { return src.Version(ctx) })
	})
}

// LatestAnswer returns the current source's latest answer.
func (r *Registry) LatestAnswer(ctx context.Context, caller string, pair Pair) (*big.Int, error) {
	return readCurrent(ctx, r, "LatestAnswer", caller, pair, func(ctx context.Context, _ Phase, src source.Source) (*big.Int, error) {
		return observe(ctx, r, "latest_answer", func(ctx context.Context) (*big.Int, error) { return src.LatestAnswer(ctx) })
	})
}

// LatestTimestamp returns the current source's latest update time.
func (r *Registry) LatestTimestamp(ctx context.Context, caller string, pair Pair) (uint64, error) {
	return readCurrent(ctx, r, "LatestTimestamp", caller, pair, func(ctx context.Context, _ Phase, src source.Source) (uint64, error) {
		return observe(ctx, r, "latest_timestamp", func(ctx context.Context) (uint64, error) { return src.LatestTimestamp(ctx) })
	})
}

// LatestRound returns the global id of the current source's latest round.
func (r *Registry) LatestRound(ctx context.Context, caller string, pair Pair) (*big.Int, error) {
	return readCurrent(ctx, r, "LatestRound", caller, pair, func(ctx context.Context, phase Phase, src source.Source) (*big.Int, error) {
		latest, err := observe(ctx, r, "latest_round", func(ctx context.Context) (*big.Int, error) { return src.LatestRound(ctx) })
		if err != nil {
			return nil, err
		}
		return globalize(phase.ID, latest)
	})
}

// LatestRoundData returns the current source's latest round with round ids
// rewritten into global ids.
func (r *Registry) LatestRoundData(ctx context.Context, caller string, pair Pair) (source.RoundData, error) {
	return readCurrent(ctx, r, "LatestRoundData", caller, pair, func(ctx context.Context, phase Phase, src source.Source) (source.RoundData, error) {
		rd, err := observe(ctx, r, "latest_round_data", func(ctx context.Context) (source.RoundData, error) { return src.LatestRoundData(ctx) })
		if errors.Is(err, source.ErrNoData) {
			return source.RoundData{}, fmt.Errorf("%w: %s has no rounds", ErrRoundNotFound, pair)
		}
		if err != nil {
			return source.RoundData{}, err
		}
		return globalizeRoundData(phase.ID, rd)
	})
}

// GetAnswer returns the answer of a global round. Rounds of unknown phases,
// of phases without a source, or with an unencodable round yield zero.
func (r *Registry) GetAnswer(ctx context.Context, caller string, pair Pair, round *big.Int) (*big.Int, error) {
	src, sourceRound, err := r.historicalSource(ctx, "GetAnswer", caller, pair, round)
	if err != nil || src == nil {
		return new(big.Int), err
	}
	return observe(ctx, r, "get_answer", func(ctx context.Context) (*big.Int, error) {
		return src.GetAnswer(ctx, new(big.Int).SetUint64(sourceRound))
	})
}

// GetTimestamp returns the update time of a global round, zero under the
// same conditions as GetAnswer.
func (r *Registry) GetTimestamp(ctx context.Context, caller string, pair Pair, round *big.Int) (uint64, error) {
	src, sourceRound, err := r.historicalSource(ctx, "GetTimestamp", caller, pair, round)
	if err != nil || src == nil {
		return 0, err
	}
	return observe(ctx, r, "get_timestamp", func(ctx context.Context) (uint64, error) {
		return src.GetTimestamp(ctx, new(big.Int).SetUint64(sourceRound))
	})
}

// GetRoundData returns a global round from the source of its phase, with
// round ids rewritten into global ids. The phase range is not checked; the
// source decides whether the round exists.
func (r *Registry) GetRoundData(ctx context.Context, caller string, pair Pair, round *big.Int) (source.RoundData, error) {
	src, sourceRound, err := r.historicalSource(ctx, "GetRoundData", caller, pair, round)
	if err != nil {
		return source.RoundData{}, err
	}
	if src == nil {
		return source.RoundData{}, fmt.Errorf("%w: %s round %v", ErrRoundNotFound, pair, round)
	}
	rd, err := observe(ctx, r, "get_round_data", func(ctx context.Context) (source.RoundData, error) {
		return src.GetRoundData(ctx, new(big.Int).SetUint64(sourceRound))
	})
	if errors.Is(err, source.ErrNoData) {
		return source.RoundData{}, fmt.Errorf("%w: %s round %v", ErrRoundNotFound, pair, round)
	}
	if err != nil {
		return source.RoundData{}, err
	}
	phaseID, _ := roundid.Decode(round)
	return globalizeRoundData(phaseID.Uint64(), rd)
}

// ProposedLatestRoundData reads the latest round of the proposed source with
// native round ids.
func (r *Registry) ProposedLatestRoundData(ctx context.Context, caller string, pair Pair) (source.RoundData, error) {
	src, err := r.proposedSource(ctx, caller, pair)
	if err != nil {
		return source.RoundData{}, err
	}
	return observe(ctx, r, "proposed_latest_round_data", func(ctx context.Context) (source.RoundData, error) {
		return src.LatestRoundData(ctx)
	})
}

// ProposedGetRoundData reads a native round of the proposed source.
func (r *Registry) ProposedGetRoundData(ctx context.Context, caller string, pair Pair, sourceRound *big.Int) (source.RoundData, error) {
	src, err := r.proposedSource(ctx, caller, pair)
	if err != nil {
		return source.RoundData{}, err
	}
	return observe(ctx, r, "proposed_get_round_data", func(ctx context.Context) (source.RoundData, error) {
		return src.GetRoundData(ctx, sourceRound)
	})
}

// historicalSource gates a read and resolves the source of round's phase.
// A nil source with a nil error means the round belongs to no source.
func (r *Registry) historicalSource(ctx context.Context, op, caller string, pair Pair, round *big.Int) (_ source.Source, _ uint64, err error) {
	ctx, span := r.startSpan(ctx, op, pair)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	if err := r.checkAccess(ctx, caller, pair); err != nil {
		return nil, 0, err
	}
	phase, sourceRound, _, err := r.locate(ctx, pair, round)
	if isNotFound(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	if !phase.HasSource() {
		return nil, 0, nil
	}
	span.SetAttributes(otel.AttrSource.String(phase.Source), otel.AttrPhaseID.Int64(int64(phase.ID)))
	src, err := r.resolve(phase.Source)
	if err != nil {
		return nil, 0, err
	}
	return src, sourceRound, nil
}

func (r *Registry) proposedSource(ctx context.Context, caller string, pair Pair) (source.Source, error) {
	if err := r.checkAccess(ctx, caller, pair); err != nil {
		return nil, err
	}
	proposed, ok, err := r.store.Proposal(ctx, pair)
	if err != nil {
		return nil, err
	}
	if !ok || proposed == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoProposedSource, pair)
	}
	return r.resolve(proposed)
}

func globalize(phaseID uint64, native *big.Int) (*big.Int, error) {
	sourceRound, err := roundid.SourceRound(native)
	if err != nil {
		return nil, err
	}
	return roundid.Make(phaseID, sourceRound), nil
}

func globalizeRoundData(phaseID uint64, rd source.RoundData) (source.RoundData, error) {
	roundID, err := globalize(phaseID, rd.RoundID)
	if err != nil {
		return source.RoundData{}, err
	}
	answeredIn, err := globalize(phaseID, rd.AnsweredInRound)
	if err != nil {
		return source.RoundData{}, err
	}
	rd.RoundID = roundID
	rd.AnsweredInRound = answeredIn
	return rd, nil
}
