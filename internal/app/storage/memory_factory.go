package storage

import (
	"context"
	"log/slog"

	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/registry/inmemory"
)

// MemoryFactory keeps phase history in process memory. History is lost on restart.
type MemoryFactory struct {
	store *inmemory.Store
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates a MemoryFactory.
func NewMemoryFactory() *MemoryFactory {
	return &MemoryFactory{}
}

// CreatePhaseStore returns the same in-memory store on every call.
func (m *MemoryFactory) CreatePhaseStore(_ context.Context) (registry.PhaseStore, error) {
	if m.store == nil {
		slog.Warn("Using in-memory phase store, history will not survive a restart")
		m.store = inmemory.New()
	}
	return m.store, nil
}

// CheckReadiness always succeeds.
func (*MemoryFactory) CheckReadiness(context.Context) error {
	return nil
}

// Cleanup is a no-op.
func (*MemoryFactory) Cleanup() {}
