package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/config"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/facade"
	"github.com/stacklok/feed-registry-server/internal/registry"
)

// buildFacades creates the configured named facades over reg. A facade's
// policy is one of the registry's selectable policies, shared by reference.
func buildFacades(
	ctx context.Context,
	cfg *config.Config,
	reg *registry.Registry,
	policies map[string]access.Policy,
	publisher *events.Publisher,
) (map[string]*facade.AccessControlledFacade, error) {
	facades := make(map[string]*facade.AccessControlledFacade, len(cfg.Facades))
	for _, fc := range cfg.Facades {
		pair, err := registry.NewPair(fc.Base, fc.Quote)
		if err != nil {
			return nil, fmt.Errorf("facade %s: %w", fc.Name, err)
		}
		f, err := facade.NewAccessControlledFacade(reg, pair, fc.Identity, cfg.Owner, fc.AllowedReader, publisher)
		if err != nil {
			return nil, fmt.Errorf("facade %s: %w", fc.Name, err)
		}
		if fc.Policy != "" {
			policy, ok := policies[fc.Policy]
			if !ok {
				return nil, fmt.Errorf("facade %s: access policy %q is not available", fc.Name, fc.Policy)
			}
			if err := f.SetAccessPolicy(ctx, cfg.Owner, policy); err != nil {
				return nil, fmt.Errorf("facade %s: %w", fc.Name, err)
			}
		}
		facades[fc.Name] = f
		slog.Info("Facade configured",
			"name", fc.Name,
			"pair", pair.String(),
			"identity", fc.Identity,
			"policy", fc.Policy)
	}
	return facades, nil
}
