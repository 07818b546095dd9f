package registry

import (
	"fmt"
	"strings"

	"github.com/stacklok/feed-registry-server/internal/access"
)

// MaxIdentifierLength bounds the byte length of a base or quote identifier.
const MaxIdentifierLength = 256

// Pair identifies a feed by base asset and quote denomination. Order matters.
type Pair struct {
	Base  string `json:"base"`
	Quote string `json:"quote"`
}

// NewPair validates and builds a Pair.
func NewPair(base, quote string) (Pair, error) {
	base, quote = strings.TrimSpace(base), strings.TrimSpace(quote)
	if base == "" || quote == "" {
		return Pair{}, fmt.Errorf("%w: base and quote are required", ErrInvalidPair)
	}
	if len(base) > MaxIdentifierLength || len(quote) > MaxIdentifierLength {
		return Pair{}, fmt.Errorf("%w: identifiers are limited to %d bytes", ErrInvalidPair, MaxIdentifierLength)
	}
	return Pair{Base: base, Quote: quote}, nil
}

func (p Pair) String() string {
	return p.Base + "/" + p.Quote
}

// Encode returns the request data handed to access policies.
func (p Pair) Encode() []byte {
	return access.EncodePair(p.Base, p.Quote)
}

// Phase is one era of a pair's history. An empty Source means no source
// served the pair during the phase. EndingRound stays 0 until the next phase
// is confirmed; for the current phase the end is always read live.
type Phase struct {
	ID            uint64 `json:"id"`
	Source        string `json:"source"`
	StartingRound uint64 `json:"starting_round"`
	EndingRound   uint64 `json:"ending_round"`
}

// HasSource reports whether a source served the phase.
func (p Phase) HasSource() bool {
	return p.Source != ""
}

// firstRound is the lowest source round that can exist in the phase.
func (p Phase) firstRound() uint64 {
	return max(p.StartingRound, 1)
}

// Transition describes a confirmed source change for CommitTransition.
type Transition struct {
	// OutgoingEnd is the frozen ending round of phase Incoming.ID-1. It is
	// ignored when there is no outgoing phase.
	OutgoingEnd uint64
	Incoming    Phase
}
