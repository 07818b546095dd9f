package auth

import (
	"path"
	"strings"
)

// DefaultPublicPaths never require a token.
var DefaultPublicPaths = []string{
	"/health",
	"/readiness",
	"/version",
	"/metrics",
	"/.well-known",
}

// providerConfig holds configuration for a single token validation provider
type providerConfig struct {
	// Name is a human-readable identifier for this provider
	Name string

	// Issuer is the expected iss claim
	Issuer string

	// Audience is the expected aud claim, unchecked when empty
	Audience string

	// KeyFile holds the verification key
	KeyFile string

	// JWKSURL serves the verification keys, looked up by kid
	JWKSURL string

	// CallerClaim names the claim carrying the caller identity
	CallerClaim string
}

// IsPublicPath checks if a path should bypass authentication.
// It performs secure path matching by:
// 1. Rejecting paths with encoded path separators to prevent double-encoding attacks
// 2. Normalizing the path to prevent traversal attacks (e.g., /health/../v1/owner)
// 3. Using segment-aware matching so /health matches /health and /health/check but NOT /healthcheck
func IsPublicPath(requestPath string, publicPaths []string) bool {
	// %2f = /, %2F = /, %2e = ., %2E = .
	lowerPath := strings.ToLower(requestPath)
	if strings.Contains(lowerPath, "%2f") || strings.Contains(lowerPath, "%2e") {
		return false
	}

	cleanPath := path.Clean(requestPath)
	if !strings.HasPrefix(cleanPath, "/") {
		cleanPath = "/" + cleanPath
	}

	for _, publicPath := range publicPaths {
		cleanPublicPath := path.Clean(publicPath)
		if !strings.HasPrefix(cleanPublicPath, "/") {
			cleanPublicPath = "/" + cleanPublicPath
		}

		// Special case: root path "/" makes everything public
		if cleanPublicPath == "/" {
			return true
		}

		if cleanPath == cleanPublicPath {
			return true
		}

		// /health matches /health/check but NOT /healthcheck
		if strings.HasPrefix(cleanPath, cleanPublicPath+"/") {
			return true
		}
	}
	return false
}
