package registry

import (
	"errors"
	"fmt"

	"github.com/stacklok/feed-registry-server/internal/ownership"
	"github.com/stacklok/feed-registry-server/internal/roundid"
)

var (
	// ErrUnauthorized is returned when a write is attempted by a non-owner.
	ErrUnauthorized = ownership.ErrUnauthorized
	// ErrNoAccess is returned when the access policy denies a read.
	ErrNoAccess = errors.New("no access")
	// ErrSourceNotFound is returned when no source serves the pair or phase.
	ErrSourceNotFound = errors.New("feed not found")
	// ErrRoundNotFound is returned when a round falls outside every known
	// phase range. It matches ErrSourceNotFound too.
	ErrRoundNotFound = fmt.Errorf("round not found: %w", ErrSourceNotFound)
	// ErrPhaseNotFound is returned for phase ids beyond the current phase.
	ErrPhaseNotFound = errors.New("phase not found")
	// ErrProposalMismatch is returned when a confirm does not match the pending proposal.
	ErrProposalMismatch = errors.New("invalid proposed feed")
	// ErrAlreadyCurrent is returned when proposing the current source, or
	// setting a policy that is already active where that is rejected.
	ErrAlreadyCurrent = errors.New("cannot propose current feed")
	// ErrNoProposedSource is returned by proposed reads when nothing is proposed.
	ErrNoProposedSource = errors.New("no proposed feed")
	// ErrRoundOverflow is returned when a source round does not fit in 64 bits.
	ErrRoundOverflow = roundid.ErrRoundOverflow
	// ErrInvalidPair is returned for pairs with an empty or oversized base or quote.
	ErrInvalidPair = errors.New("invalid pair")
	// ErrPhaseConflict is returned by stores when another writer advanced the
	// pair between read and commit.
	ErrPhaseConflict = errors.New("phase changed concurrently")
	// ErrSourceUnavailable wraps failures of the upstream source itself.
	ErrSourceUnavailable = errors.New("source read failed")
)
