package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stacklok/feed-registry-server/internal/config"
)

// NewAuthMiddleware creates the caller identification middleware from cfg.
// Returns: (middleware, authInfoHandler, error). The info handler is nil unless
// jwt mode has a resource URL to advertise.
func NewAuthMiddleware(
	ctx context.Context,
	cfg *config.AuthConfig,
	factory validatorFactory,
) (func(http.Handler) http.Handler, http.Handler, error) {
	switch cfg.GetMode() {
	case config.AuthModeHeader:
		slog.Info("Callers identified by header", "header", CallerHeader)
		return headerMiddleware, nil, nil
	case config.AuthModeJWT:
		return createJWTMiddleware(ctx, cfg, factory)
	default:
		return nil, nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}

func createJWTMiddleware(
	ctx context.Context,
	cfg *config.AuthConfig,
	factory validatorFactory,
) (func(http.Handler) http.Handler, http.Handler, error) {
	if factory == nil {
		factory = DefaultValidatorFactory
	}

	providers := make([]providerConfig, len(cfg.Providers))
	issuers := make([]string, len(cfg.Providers))
	for i, p := range cfg.Providers {
		providers[i] = providerConfig{
			Name:        p.Name,
			Issuer:      p.Issuer,
			Audience:    p.Audience,
			KeyFile:     p.KeyFile,
			JWKSURL:     p.JWKSURL,
			CallerClaim: p.GetCallerClaim(),
		}
		issuers[i] = p.Issuer
	}

	m, err := newTokenMiddleware(ctx, providers, cfg.ResourceURL, cfg.Realm, factory)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}

	publicPaths := append(append([]string{}, DefaultPublicPaths...), cfg.PublicPaths...)
	mw := WrapWithPublicPaths(m.Middleware, publicPaths)

	var info http.Handler
	if cfg.ResourceURL != "" {
		info, err = newProtectedResourceHandler(cfg.ResourceURL, issuers)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create protected resource handler: %w", err)
		}
	}

	slog.Info("Callers identified by bearer token", "providers", len(providers))
	return mw, info, nil
}
