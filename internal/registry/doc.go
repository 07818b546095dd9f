// Package registry implements the versioned feed registry. For every
// base/quote pair it keeps a history of phases, moves the pair to a new
// source through a two-step propose/confirm handover, and answers reads by
// delegating to whichever source served the requested round.
//
// # Round identifiers
//
// Every source numbers its rounds from its own counter. The registry exposes
// global round ids that encode the phase in the upper bits:
//
//	global := phaseID<<64 | sourceRound
//
// so ids of a later phase always compare greater than ids of an earlier one.
// The codec lives in internal/roundid.
//
// # Phases
//
// Phase 0 is implicit and never holds a source. Confirming a proposal closes
// the current phase, freezing its ending round at the outgoing source's live
// latest round, and opens phase current+1 starting at the incoming source's
// live latest round. Confirming the empty source ("none") is a phase too:
// it records that the pair was removed for a while.
//
//	reg.ProposeSource(ctx, owner, pair, "0xaggregator")
//	phaseID, err := reg.ConfirmSource(ctx, owner, pair, "0xaggregator")
//
// The ending round of the current phase is never stored; it is read from the
// source on every call.
//
// # Navigation
//
// GetPreviousRoundID and GetNextRoundID step through the global id space and
// skip any number of empty phases, including phases whose source never
// produced a round. They return 0 when there is nothing further.
//
// # Access
//
// Answer reads are gated by an access.Policy when one is installed. The
// registry owner always passes. Navigation and phase introspection are never
// gated.
//
// # Storage
//
// A PhaseStore keeps the history. Two implementations ship with the server:
//
//   - inmemory: process-local, for tests and ephemeral deployments
//   - database: PostgreSQL through pgx, with migrations in the top-level
//     database package
package registry
