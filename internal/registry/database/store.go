// Package database provides a PostgreSQL implementation of registry.PhaseStore.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/feed-registry-server/internal/otel"
	"github.com/stacklok/feed-registry-server/internal/registry"
)

// TracerName is the name used for the phase store tracer.
const TracerName = "github.com/stacklok/feed-registry-server/registry/database"

// serializationFailure is the SQLSTATE of a serializable transaction that lost a race.
const serializationFailure = "40001"

const phaseColumns = "ph.phase_id, ph.source, ph.starting_round::text, ph.ending_round::text"

// options holds configuration options for the database store
type options struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// Option is a functional option for configuring the database store
type Option func(*options) error

// WithConnectionPool sets the pgx pool backing the store. The caller is
// responsible for closing the pool when it is done.
func WithConnectionPool(pool *pgxpool.Pool) Option {
	return func(o *options) error {
		if pool == nil {
			return fmt.Errorf("pgx pool is required")
		}
		o.pool = pool
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer for the store.
// If not set, tracing is disabled.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) error {
		if tracer != nil {
			o.tracer = tracer
		}
		return nil
	}
}

// Store is a registry.PhaseStore persisted in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

var _ registry.PhaseStore = (*Store)(nil)

// New creates a database-backed phase store with the given options.
func New(opts ...Option) (*Store, error) {
	o := &options{tracer: noop.NewTracerProvider().Tracer(TracerName)}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.pool == nil {
		return nil, fmt.Errorf("pgx pool is required")
	}
	return &Store{pool: o.pool, tracer: o.tracer}, nil
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Pairs implements registry.PhaseStore.
func (s *Store) Pairs(ctx context.Context) (_ []registry.Pair, err error) {
	ctx, span := s.startSpan(ctx, "Store.Pairs")
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	rows, err := s.pool.Query(ctx,
		`SELECT base, quote FROM feed_pair WHERE current_phase_id > 0 ORDER BY base, quote`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	pairs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (registry.Pair, error) {
		var p registry.Pair
		err := row.Scan(&p.Base, &p.Quote)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pairs: %w", err)
	}
	return pairs, nil
}

// CurrentPhase implements registry.PhaseStore.
func (s *Store) CurrentPhase(ctx context.Context, pair registry.Pair) (_ registry.Phase, err error) {
	ctx, span := s.startSpan(ctx, "Store.CurrentPhase", pair)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	phase, err := scanPhase(s.pool.QueryRow(ctx, `
		SELECT `+phaseColumns+`
		FROM feed_pair p
		JOIN feed_phase ph ON ph.pair_id = p.id AND ph.phase_id = p.current_phase_id
		WHERE p.base = $1 AND p.quote = $2`,
		pair.Base, pair.Quote))
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.Phase{}, nil
	}
	if err != nil {
		return registry.Phase{}, fmt.Errorf("failed to get current phase of %s: %w", pair, err)
	}
	return phase, nil
}

// Phase implements registry.PhaseStore.
func (s *Store) Phase(ctx context.Context, pair registry.Pair, id uint64) (_ registry.Phase, err error) {
	ctx, span := s.startSpan(ctx, "Store.Phase", pair)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	notFound := fmt.Errorf("%w: %s phase %d", registry.ErrPhaseNotFound, pair, id)
	if id == 0 || id > maxPhaseID {
		return registry.Phase{}, notFound
	}

	phase, err := scanPhase(s.pool.QueryRow(ctx, `
		SELECT `+phaseColumns+`
		FROM feed_phase ph
		JOIN feed_pair p ON p.id = ph.pair_id
		WHERE p.base = $1 AND p.quote = $2 AND ph.phase_id = $3`,
		pair.Base, pair.Quote, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.Phase{}, notFound
	}
	if err != nil {
		return registry.Phase{}, fmt.Errorf("failed to get phase %d of %s: %w", id, pair, err)
	}
	return phase, nil
}

// History implements registry.PhaseStore.
func (s *Store) History(ctx context.Context, pair registry.Pair) (_ []registry.Phase, err error) {
	ctx, span := s.startSpan(ctx, "Store.History", pair)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	rows, err := s.pool.Query(ctx, `
		SELECT `+phaseColumns+`
		FROM feed_phase ph
		JOIN feed_pair p ON p.id = ph.pair_id
		WHERE p.base = $1 AND p.quote = $2
		ORDER BY ph.phase_id`,
		pair.Base, pair.Quote)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases of %s: %w", pair, err)
	}
	phases, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (registry.Phase, error) {
		return scanPhase(row)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list phases of %s: %w", pair, err)
	}
	return phases, nil
}

// Proposal implements registry.PhaseStore.
func (s *Store) Proposal(ctx context.Context, pair registry.Pair) (_ string, _ bool, err error) {
	ctx, span := s.startSpan(ctx, "Store.Proposal", pair)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	var (
		source string
		ok     bool
	)
	err = s.pool.QueryRow(ctx,
		`SELECT proposed_source, has_proposal FROM feed_pair WHERE base = $1 AND quote = $2`,
		pair.Base, pair.Quote).Scan(&source, &ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get proposal of %s: %w", pair, err)
	}
	return source, ok, nil
}

// SetProposal implements registry.PhaseStore.
func (s *Store) SetProposal(ctx context.Context, pair registry.Pair, source string) (err error) {
	ctx, span := s.startSpan(ctx, "Store.SetProposal", pair)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO feed_pair (base, quote, proposed_source, has_proposal)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (base, quote) DO UPDATE
		SET proposed_source = EXCLUDED.proposed_source,
		    has_proposal = TRUE,
		    updated_at = NOW()`,
		pair.Base, pair.Quote, source)
	if err != nil {
		return fmt.Errorf("failed to store proposal of %s: %w", pair, err)
	}
	return nil
}

// CommitTransition implements registry.PhaseStore. All checks and writes run
// in a single serializable transaction holding the pair row lock.
func (s *Store) CommitTransition(ctx context.Context, pair registry.Pair, t registry.Transition) (err error) {
	ctx, span := s.startSpan(ctx, "Store.CommitTransition", pair)
	span.SetAttributes(
		otel.AttrPhaseID.Int64(int64(t.Incoming.ID)),
		otel.AttrSource.String(t.Incoming.Source),
	)
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.Serializable,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			slog.ErrorContext(ctx, "failed to rollback transaction", "error", err)
		}
	}()

	var (
		pairID      int64
		currentID   int64
		proposed    string
		hasProposal bool
	)
	err = tx.QueryRow(ctx, `
		SELECT id, current_phase_id, proposed_source, has_proposal
		FROM feed_pair
		WHERE base = $1 AND quote = $2
		FOR UPDATE`,
		pair.Base, pair.Quote).Scan(&pairID, &currentID, &proposed, &hasProposal)
	if errors.Is(err, pgx.ErrNoRows) {
		return registry.ErrProposalMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", pair, err)
	}

	if !hasProposal || proposed != t.Incoming.Source {
		return registry.ErrProposalMismatch
	}
	if t.Incoming.ID != uint64(currentID)+1 {
		return fmt.Errorf("%w: %s expected phase %d, got %d",
			registry.ErrPhaseConflict, pair, currentID+1, t.Incoming.ID)
	}

	if currentID > 0 {
		var outgoing string
		err = tx.QueryRow(ctx,
			`SELECT source FROM feed_phase WHERE pair_id = $1 AND phase_id = $2`,
			pairID, currentID).Scan(&outgoing)
		if err != nil {
			return fmt.Errorf("failed to read outgoing phase of %s: %w", pair, err)
		}
		if outgoing != "" {
			if _, err = tx.Exec(ctx,
				`UPDATE feed_phase SET ending_round = $3::numeric WHERE pair_id = $1 AND phase_id = $2`,
				pairID, currentID, formatRound(t.OutgoingEnd)); err != nil {
				return fmt.Errorf("failed to freeze phase %d of %s: %w", currentID, pair, err)
			}
		}
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO feed_phase (pair_id, phase_id, source, starting_round, ending_round)
		VALUES ($1, $2, $3, $4::numeric, 0)`,
		pairID, int64(t.Incoming.ID), t.Incoming.Source, formatRound(t.Incoming.StartingRound)); err != nil {
		return fmt.Errorf("failed to insert phase %d of %s: %w", t.Incoming.ID, pair, err)
	}
	if _, err = tx.Exec(ctx, `
		UPDATE feed_pair
		SET current_phase_id = $2, proposed_source = '', has_proposal = FALSE, updated_at = NOW()
		WHERE id = $1`,
		pairID, int64(t.Incoming.ID)); err != nil {
		return fmt.Errorf("failed to advance %s: %w", pair, err)
	}

	if err = tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == serializationFailure {
			return fmt.Errorf("%w: %s: %w", registry.ErrPhaseConflict, pair, err)
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Phase transition committed",
		"pair", pair.String(),
		"phase_id", t.Incoming.ID,
		"source", t.Incoming.Source)
	return nil
}

// IsSourceEnabled implements registry.PhaseStore.
func (s *Store) IsSourceEnabled(ctx context.Context, source string) (_ bool, err error) {
	ctx, span := s.startSpan(ctx, "Store.IsSourceEnabled")
	span.SetAttributes(otel.AttrSource.String(source))
	defer func() {
		otel.RecordError(span, err)
		span.End()
	}()

	var enabled bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM feed_pair p
			JOIN feed_phase ph ON ph.pair_id = p.id AND ph.phase_id = p.current_phase_id
			WHERE ph.source = $1 AND ph.source <> ''
		)`, source).Scan(&enabled)
	if err != nil {
		return false, fmt.Errorf("failed to read status of %s: %w", source, err)
	}
	return enabled, nil
}

// maxPhaseID is the largest phase id representable in a BIGINT column.
const maxPhaseID = 1<<63 - 1

func scanPhase(row pgx.Row) (registry.Phase, error) {
	var (
		id            int64
		source        string
		start, ending string
	)
	if err := row.Scan(&id, &source, &start, &ending); err != nil {
		return registry.Phase{}, err
	}
	startingRound, err := strconv.ParseUint(start, 10, 64)
	if err != nil {
		return registry.Phase{}, fmt.Errorf("invalid starting round %q: %w", start, err)
	}
	endingRound, err := strconv.ParseUint(ending, 10, 64)
	if err != nil {
		return registry.Phase{}, fmt.Errorf("invalid ending round %q: %w", ending, err)
	}
	return registry.Phase{
		ID:            uint64(id),
		Source:        source,
		StartingRound: startingRound,
		EndingRound:   endingRound,
	}, nil
}

func formatRound(round uint64) string {
	return strconv.FormatUint(round, 10)
}

// startSpan starts a span tagged with the PostgreSQL db.system attribute.
func (s *Store) startSpan(ctx context.Context, name string, pair ...registry.Pair) (context.Context, trace.Span) {
	attrs := []trace.SpanStartOption{trace.WithAttributes(semconv.DBSystemPostgreSQL)}
	if len(pair) > 0 {
		attrs = append(attrs, trace.WithAttributes(otel.AttrPair.String(pair[0].String())))
	}
	return otel.StartSpan(ctx, s.tracer, name, attrs...)
}
