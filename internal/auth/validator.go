package auth

//go:generate mockgen -destination=mocks/mock_validator.go -package=mocks -source=validator.go tokenValidatorInterface

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// tokenValidatorInterface abstracts token validation for testability.
type tokenValidatorInterface interface {
	ValidateToken(ctx context.Context, token string) (jwt.MapClaims, error)
}

var (
	asymmetricMethods = []string{"RS256", "RS384", "RS512", "PS256", "PS384", "PS512", "ES256", "ES384", "ES512", "EdDSA"}
	hmacMethods       = []string{"HS256", "HS384", "HS512"}
)

// jwtValidator verifies signed tokens from a single issuer.
type jwtValidator struct {
	key    any
	parser *jwt.Parser
}

var _ tokenValidatorInterface = (*jwtValidator)(nil)

// newJWTValidator loads the provider key. A PEM public key selects the
// asymmetric algorithms; any other file content is an HMAC secret. Providers
// with a JWKS URL verify against the remote key set instead.
func newJWTValidator(ctx context.Context, cfg providerConfig) (tokenValidatorInterface, error) {
	if cfg.JWKSURL != "" {
		return newJWKSValidator(ctx, cfg)
	}

	data, err := os.ReadFile(filepath.Clean(cfg.KeyFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	key, methods, err := parseKey(data)
	if err != nil {
		return nil, err
	}

	return &jwtValidator{key: key, parser: newParser(cfg, methods)}, nil
}

func newParser(cfg providerConfig, methods []string) *jwt.Parser {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(methods),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	return jwt.NewParser(opts...)
}

func parseKey(data []byte) (any, []string, error) {
	if strings.Contains(string(data), "-----BEGIN") {
		if key, err := jwt.ParseRSAPublicKeyFromPEM(data); err == nil {
			return key, asymmetricMethods, nil
		}
		if key, err := jwt.ParseECPublicKeyFromPEM(data); err == nil {
			return key, asymmetricMethods, nil
		}
		key, err := jwt.ParseEdPublicKeyFromPEM(data)
		if err != nil {
			return nil, nil, errors.New("key file holds no supported PEM public key")
		}
		return key, asymmetricMethods, nil
	}

	secret := []byte(strings.TrimSpace(string(data)))
	if len(secret) == 0 {
		return nil, nil, errors.New("key file is empty")
	}
	return secret, hmacMethods, nil
}

// ValidateToken verifies the signature and the registered claims of token.
func (v *jwtValidator) ValidateToken(_ context.Context, token string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}); err != nil {
		return nil, err
	}
	return claims, nil
}
