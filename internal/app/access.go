package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/config"
	"github.com/stacklok/feed-registry-server/internal/events"
	"github.com/stacklok/feed-registry-server/internal/ownership"
	"github.com/stacklok/feed-registry-server/internal/registry"
)

// buildAccessPolicies creates every selectable access policy and returns the
// one configured as active. The grants policy is always built so the owner can
// switch to it at runtime; the active policy is nil when reads are ungated.
// Grants are administered through the registry's ownership record.
func buildAccessPolicies(
	ctx context.Context,
	cfg *config.Config,
	owned *ownership.Owned,
	publisher *events.Publisher,
) (map[string]access.Policy, access.Policy, error) {
	grants, err := access.NewSharedGrantPolicy(config.AccessPolicyGrants, owned, publisher)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create grants policy: %w", err)
	}
	policies := map[string]access.Policy{grants.Name(): grants}

	if cfg.Access.GetPolicy() == config.AccessPolicyGrants {
		if err := seedGrants(ctx, grants, cfg.Owner, cfg.Access); err != nil {
			return nil, nil, err
		}
	}

	if cfg.Access != nil && cfg.Access.CedarPolicyFile != "" {
		policyBytes, err := os.ReadFile(filepath.Clean(cfg.Access.CedarPolicyFile))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read cedar policy file: %w", err)
		}
		cedar, err := access.NewCedarPolicy(config.AccessPolicyCedar, policyBytes)
		if err != nil {
			return nil, nil, err
		}
		policies[cedar.Name()] = cedar
		slog.Info("Loaded Cedar access policy", "file", cfg.Access.CedarPolicyFile)
	}

	active := policies[cfg.Access.GetPolicy()]
	if active == nil {
		slog.Warn("No access policy configured, reads are not gated")
	} else {
		slog.Info("Access policy active", "policy", access.Ref(active))
	}
	return policies, active, nil
}

// seedGrants applies the configured grants on behalf of the owner.
func seedGrants(ctx context.Context, grants *access.GrantPolicy, owner string, cfg *config.AccessConfig) error {
	for _, caller := range cfg.GlobalGrants {
		if err := grants.AddGlobalAccess(ctx, owner, caller); err != nil {
			return fmt.Errorf("failed to grant global access to %s: %w", caller, err)
		}
	}
	for _, g := range cfg.LocalGrants {
		pair, err := registry.NewPair(g.Base, g.Quote)
		if err != nil {
			return fmt.Errorf("invalid local grant for %s: %w", g.Caller, err)
		}
		if err := grants.AddLocalAccess(ctx, owner, g.Caller, pair.Encode()); err != nil {
			return fmt.Errorf("failed to grant %s/%s access to %s: %w", g.Base, g.Quote, g.Caller, err)
		}
	}
	if cfg.CheckDisabled {
		if err := grants.DisableAccessCheck(ctx, owner); err != nil {
			return fmt.Errorf("failed to disable access check: %w", err)
		}
	}

	slog.Info("Seeded access grants",
		"global", len(cfg.GlobalGrants),
		"local", len(cfg.LocalGrants),
		"check_enabled", grants.CheckEnabled(),
	)
	return nil
}
