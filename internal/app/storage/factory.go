// Package storage creates the phase store selected by configuration and owns
// the lifecycle of whatever backs it.
package storage

import (
	"context"
	"fmt"

	"github.com/stacklok/feed-registry-server/internal/config"
	"github.com/stacklok/feed-registry-server/internal/registry"
)

//go:generate mockgen -destination=mocks/mock_factory.go -package=mocks -source=factory.go Factory

// Factory creates the phase store and reports on its health.
type Factory interface {
	// CreatePhaseStore returns the store holding phase history and proposals.
	CreatePhaseStore(ctx context.Context) (registry.PhaseStore, error)

	// CheckReadiness reports whether the backing storage can serve requests.
	CheckReadiness(ctx context.Context) error

	// Cleanup releases any resources held by this factory.
	// Should be called when the application shuts down.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type.
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.GetStorageType() {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeMemory:
		return NewMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.GetStorageType())
	}
}
