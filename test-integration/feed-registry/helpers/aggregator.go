package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// MockAggregator serves the aggregator HTTP API backing a source.
type MockAggregator struct {
	*httptest.Server

	decimals    uint8
	description string

	mu     sync.Mutex
	rounds map[uint64]mockRound
	latest uint64
}

type mockRound struct {
	answer    int64
	updatedAt uint64
}

// NewMockAggregator starts an aggregator with no rounds.
func NewMockAggregator(decimals uint8, description string) *MockAggregator {
	m := &MockAggregator{
		decimals:    decimals,
		description: description,
		rounds:      map[uint64]mockRound{},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.serve))
	return m
}

// AddRound records a round, advancing the latest round when id is newer.
func (m *MockAggregator) AddRound(id uint64, answer int64, updatedAt uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds[id] = mockRound{answer: answer, updatedAt: updatedAt}
	if id > m.latest {
		m.latest = id
	}
}

func (m *MockAggregator) serve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/metadata" {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"decimals":    m.decimals,
			"description": m.description,
			"version":     4,
		})
		return
	}

	ref, ok := strings.CutPrefix(r.URL.Path, "/rounds/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.latest
	if ref != "latest" {
		parsed, err := strconv.ParseUint(ref, 10, 64)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id = parsed
	}
	round, found := m.rounds[id]
	if !found {
		http.NotFound(w, r)
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"roundId":         strconv.FormatUint(id, 10),
		"answer":          strconv.FormatInt(round.answer, 10),
		"startedAt":       round.updatedAt,
		"updatedAt":       round.updatedAt,
		"answeredInRound": strconv.FormatUint(id, 10),
	})
}
