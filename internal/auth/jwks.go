package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/httprc/v3"
	"github.com/lestrrat-go/jwx/v3/jwk"
)

// jwksValidator verifies tokens against an issuer's JSON Web Key Set. The set
// is cached and refreshed in the background; tokens name their key by kid.
type jwksValidator struct {
	url    string
	cache  *jwk.Cache
	parser *jwt.Parser
}

var _ tokenValidatorInterface = (*jwksValidator)(nil)

// newJWKSValidator registers cfg.JWKSURL with a key cache and waits for the
// first fetch. The cache refreshes until ctx is cancelled.
func newJWKSValidator(ctx context.Context, cfg providerConfig) (tokenValidatorInterface, error) {
	cache, err := jwk.NewCache(ctx, httprc.NewClient())
	if err != nil {
		return nil, fmt.Errorf("failed to create JWKS cache: %w", err)
	}
	if err := cache.Register(ctx, cfg.JWKSURL); err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", cfg.JWKSURL, err)
	}

	slog.Info("JWKS registered", "provider", cfg.Name, "url", cfg.JWKSURL)
	return &jwksValidator{
		url:    cfg.JWKSURL,
		cache:  cache,
		parser: newParser(cfg, asymmetricMethods),
	}, nil
}

// ValidateToken verifies token with the key named by its kid header.
func (v *jwksValidator) ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.keyFor(ctx, t)
	}); err != nil {
		return nil, err
	}
	return claims, nil
}

func (v *jwksValidator) keyFor(ctx context.Context, t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("token has no kid header")
	}

	set, err := v.cache.Lookup(ctx, v.url)
	if err != nil {
		return nil, fmt.Errorf("failed to look up JWKS: %w", err)
	}
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, fmt.Errorf("unknown key id %q", kid)
	}

	var raw any
	if err := jwk.Export(key, &raw); err != nil {
		return nil, fmt.Errorf("failed to export key %q: %w", kid, err)
	}
	return raw, nil
}
