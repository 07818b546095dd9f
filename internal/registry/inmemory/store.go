// Package inmemory provides a PhaseStore kept entirely in process memory.
package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stacklok/feed-registry-server/internal/registry"
)

type pairState struct {
	phases      []registry.Phase // phases[i] has id i+1
	proposal    string
	hasProposal bool
}

// Store is an in-memory registry.PhaseStore.
type Store struct {
	mu    sync.RWMutex
	pairs map[registry.Pair]*pairState

	// serving counts the pairs whose current phase uses each source.
	serving map[string]int
}

var _ registry.PhaseStore = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		pairs:   make(map[registry.Pair]*pairState),
		serving: make(map[string]int),
	}
}

// Pairs implements registry.PhaseStore.
func (s *Store) Pairs(context.Context) ([]registry.Pair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pairs := make([]registry.Pair, 0, len(s.pairs))
	for pair, st := range s.pairs {
		if len(st.phases) > 0 {
			pairs = append(pairs, pair)
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].String() < pairs[j].String()
	})
	return pairs, nil
}

// CurrentPhase implements registry.PhaseStore.
func (s *Store) CurrentPhase(_ context.Context, pair registry.Pair) (registry.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.pairs[pair]
	if !ok || len(st.phases) == 0 {
		return registry.Phase{}, nil
	}
	return st.phases[len(st.phases)-1], nil
}

// Phase implements registry.PhaseStore.
func (s *Store) Phase(_ context.Context, pair registry.Pair, id uint64) (registry.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.pairs[pair]
	if !ok || id == 0 || id > uint64(len(st.phases)) {
		return registry.Phase{}, fmt.Errorf("%w: %s phase %d", registry.ErrPhaseNotFound, pair, id)
	}
	return st.phases[id-1], nil
}

// History implements registry.PhaseStore.
func (s *Store) History(_ context.Context, pair registry.Pair) ([]registry.Phase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.pairs[pair]
	if !ok {
		return nil, nil
	}
	out := make([]registry.Phase, len(st.phases))
	copy(out, st.phases)
	return out, nil
}

// Proposal implements registry.PhaseStore.
func (s *Store) Proposal(_ context.Context, pair registry.Pair) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.pairs[pair]
	if !ok {
		return "", false, nil
	}
	return st.proposal, st.hasProposal, nil
}

// SetProposal implements registry.PhaseStore.
func (s *Store) SetProposal(_ context.Context, pair registry.Pair, source string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(pair)
	st.proposal = source
	st.hasProposal = true
	return nil
}

// CommitTransition implements registry.PhaseStore.
func (s *Store) CommitTransition(_ context.Context, pair registry.Pair, t registry.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.state(pair)
	if !st.hasProposal || st.proposal != t.Incoming.Source {
		return registry.ErrProposalMismatch
	}
	if t.Incoming.ID != uint64(len(st.phases))+1 {
		return fmt.Errorf("%w: %s expected phase %d, got %d",
			registry.ErrPhaseConflict, pair, len(st.phases)+1, t.Incoming.ID)
	}

	if n := len(st.phases); n > 0 {
		outgoing := &st.phases[n-1]
		if outgoing.HasSource() {
			outgoing.EndingRound = t.OutgoingEnd
			s.release(outgoing.Source)
		}
	}

	incoming := t.Incoming
	incoming.EndingRound = 0
	st.phases = append(st.phases, incoming)
	if incoming.HasSource() {
		s.serving[incoming.Source]++
	}
	st.proposal = ""
	st.hasProposal = false
	return nil
}

// IsSourceEnabled implements registry.PhaseStore.
func (s *Store) IsSourceEnabled(_ context.Context, source string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serving[source] > 0, nil
}

func (s *Store) release(source string) {
	if s.serving[source] <= 1 {
		delete(s.serving, source)
		return
	}
	s.serving[source]--
}

func (s *Store) state(pair registry.Pair) *pairState {
	st, ok := s.pairs[pair]
	if !ok {
		st = &pairState{}
		s.pairs[pair] = st
	}
	return st
}
