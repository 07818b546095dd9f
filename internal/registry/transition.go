package registry

import (
	"context"
	"log/slog"
	"math/big"

	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/otel"
	"github.com/stacklok/feed-registry-server/internal/roundid"
)

// ProposeSource sets the pending proposal for pair. An empty src proposes
// removing the feed.
func (r *Registry) ProposeSource(ctx context.Context, actor string, pair Pair, src string) (err error) {
	ctx, span := r.startSpan(ctx, "ProposeSource", pair)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	if err := r.RequireOwner(actor); err != nil {
		return err
	}

	r.transitionMu.Lock()
	defer r.transitionMu.Unlock()

	current, err := r.store.CurrentPhase(ctx, pair)
	if err != nil {
		return err
	}
	if current.Source == src {
		return ErrAlreadyCurrent
	}
	if src != "" {
		if _, err := r.resolve(src); err != nil {
			return err
		}
	}

	if err := r.store.SetProposal(ctx, pair, src); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Source proposed",
		"pair", pair.String(),
		"source", src,
		"previous_source", current.Source,
		"actor", actor,
	)
	r.metrics.RecordProposal(ctx, pair.String())
	r.publisher.Publish(ctx, events.Event{
		Type:           events.TypeSourceProposed,
		Emitter:        Emitter,
		Base:           pair.Base,
		Quote:          pair.Quote,
		Source:         src,
		PreviousSource: current.Source,
		Actor:          actor,
	})
	return nil
}

// ConfirmSource turns the pending proposal into a new phase and returns its
// id. The outgoing phase's ending round is frozen at the outgoing source's
// live round. All source reads happen before anything is written, so a
// failure leaves the pair untouched.
func (r *Registry) ConfirmSource(ctx context.Context, actor string, pair Pair, src string) (_ uint64, err error) {
	ctx, span := r.startSpan(ctx, "ConfirmSource", pair)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	if err := r.RequireOwner(actor); err != nil {
		return 0, err
	}

	r.transitionMu.Lock()
	defer r.transitionMu.Unlock()

	proposed, ok, err := r.store.Proposal(ctx, pair)
	if err != nil {
		return 0, err
	}
	if !ok || proposed != src {
		return 0, ErrProposalMismatch
	}

	current, err := r.store.CurrentPhase(ctx, pair)
	if err != nil {
		return 0, err
	}

	var outgoingEnd uint64
	if current.HasSource() {
		if outgoingEnd, err = r.liveRound(ctx, current.Source); err != nil {
			return 0, err
		}
	}

	next := Phase{ID: current.ID + 1, Source: src}
	if src != "" {
		if next.StartingRound, err = r.liveRound(ctx, src); err != nil {
			return 0, err
		}
	}

	if err := r.store.CommitTransition(ctx, pair, Transition{OutgoingEnd: outgoingEnd, Incoming: next}); err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Source confirmed",
		"pair", pair.String(),
		"source", src,
		"previous_source", current.Source,
		"phase_id", next.ID,
		"starting_round", next.StartingRound,
		"frozen_ending_round", outgoingEnd,
		"actor", actor,
	)
	r.metrics.RecordTransition(ctx, pair.String(), next.ID, src == "")
	r.publisher.Publish(ctx, events.Event{
		Type:           events.TypeSourceConfirmed,
		Emitter:        Emitter,
		Base:           pair.Base,
		Quote:          pair.Quote,
		Source:         src,
		PreviousSource: current.Source,
		PhaseID:        next.ID,
		Actor:          actor,
	})
	return next.ID, nil
}

// liveRound reads the latest round of ref, failing with ErrRoundOverflow
// when it does not fit a global round id.
func (r *Registry) liveRound(ctx context.Context, ref string) (uint64, error) {
	src, err := r.resolve(ref)
	if err != nil {
		return 0, err
	}
	latest, err := observe(ctx, r, "latest_round", func(ctx context.Context) (*big.Int, error) {
		return src.LatestRound(ctx)
	})
	if err != nil {
		return 0, err
	}
	return roundid.SourceRound(latest)
}
