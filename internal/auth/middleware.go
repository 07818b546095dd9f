// Package auth identifies the caller of each API request, either from a
// trusted header or from a verified bearer token.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/feed-registry-server/internal/otel"
)

// errNoIssuerAccepted indicates no configured issuer accepted the token.
var errNoIssuerAccepted = errors.New("no issuer accepted the token")

// errMissingCallerClaim indicates a valid token without the caller claim
var errMissingCallerClaim = errors.New("token has no caller claim")

// RFC 6750 Section 3 error codes
const (
	// errorCodeInvalidRequest indicates the request is missing a required parameter,
	// includes an unsupported parameter or parameter value, or is otherwise malformed.
	errorCodeInvalidRequest = "invalid_request"

	// errorCodeInvalidToken indicates the access token provided is expired, revoked,
	// malformed, or invalid for other reasons.
	errorCodeInvalidToken = "invalid_token"
)

// AttrIssuer names the provider that identified the caller on the request span.
const AttrIssuer = attribute.Key("auth.issuer")

// defaultRealm is the default protection space identifier
const defaultRealm = "feed-registry"

// issuer is one configured token provider and the claim naming the caller.
type issuer struct {
	name        string
	callerClaim string
	validator   tokenValidatorInterface
}

// identify validates token and returns the caller it names.
func (i issuer) identify(ctx context.Context, token string) (string, error) {
	claims, err := i.validator.ValidateToken(ctx, token)
	if err != nil {
		return "", err
	}
	caller, ok := claims[i.callerClaim].(string)
	if !ok || caller == "" {
		return "", fmt.Errorf("%w %q", errMissingCallerClaim, i.callerClaim)
	}
	return caller, nil
}

// validatorFactory creates token validators from configuration.
type validatorFactory func(ctx context.Context, cfg providerConfig) (tokenValidatorInterface, error)

// DefaultValidatorFactory verifies tokens with the provider's key file or JWKS.
var DefaultValidatorFactory validatorFactory = newJWTValidator

// tokenMiddleware identifies callers from bearer tokens. Feed reads may stay
// anonymous and are judged by the access policy. Registry writes need a token.
type tokenMiddleware struct {
	issuers     []issuer
	resourceURL string
	realm       string
}

// newTokenMiddleware creates the bearer token middleware for providers.
func newTokenMiddleware(
	ctx context.Context,
	providers []providerConfig,
	resourceURL string,
	realm string,
	factory validatorFactory,
) (*tokenMiddleware, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one provider must be configured")
	}

	if realm == "" {
		realm = defaultRealm
	}

	m := &tokenMiddleware{
		issuers:     make([]issuer, 0, len(providers)),
		resourceURL: resourceURL,
		realm:       realm,
	}

	for _, pc := range providers {
		validator, err := factory(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to create validator for provider %q: %w", pc.Name, err)
		}
		m.issuers = append(m.issuers, issuer{
			name:        pc.Name,
			callerClaim: pc.CallerClaim,
			validator:   validator,
		})
	}

	return m, nil
}

// Middleware returns an HTTP middleware that puts the token's caller on the
// request context. Reads without an Authorization header proceed as the
// anonymous caller.
func (m *tokenMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if isRegistryWrite(r) {
				m.writeError(w, http.StatusUnauthorized, errorCodeInvalidRequest, "registry writes require a bearer token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), "")))
			return
		}

		token, err := extractBearerToken(r)
		if err != nil {
			slog.Warn("Token extraction failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, http.StatusUnauthorized, errorCodeInvalidRequest, "malformed authorization header")
			return
		}

		caller, name, err := m.identify(r.Context(), token)
		if err != nil {
			slog.Warn("Token validation failed",
				"error", err,
				"remote_addr", r.RemoteAddr,
				"path", r.URL.Path)
			m.writeError(w, http.StatusUnauthorized, errorCodeInvalidToken, "token validation failed")
			return
		}

		trace.SpanFromContext(r.Context()).SetAttributes(
			otel.AttrCaller.String(caller),
			AttrIssuer.String(name),
		)
		slog.Debug("Caller identified",
			"issuer", name,
			"caller", caller,
			"path", r.URL.Path)
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

// identify tries each issuer in order and returns the first caller found,
// with the name of the issuer that vouched for it.
func (m *tokenMiddleware) identify(ctx context.Context, token string) (string, string, error) {
	errs := []error{errNoIssuerAccepted}
	for _, iss := range m.issuers {
		caller, err := iss.identify(ctx, token)
		if err == nil {
			return caller, iss.name, nil
		}
		slog.Debug("Issuer rejected token", "issuer", iss.name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", iss.name, err))
	}
	return "", "", errors.Join(errs...)
}

// isRegistryWrite reports whether r changes sources, ownership or grants.
func isRegistryWrite(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	}
	return true
}

func extractBearerToken(r *http.Request) (string, error) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("authorization header is not a bearer token")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("bearer token is empty")
	}
	return token, nil
}

// sanitizeHeaderValue drops CR and LF and escapes quotes for a quoted-string
// (RFC 7230).
func sanitizeHeaderValue(s string) string {
	if !strings.ContainsAny(s, "\r\n\"") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.ReplaceAll(s, `"`, `\"`)
}

// challenge renders the RFC 6750 WWW-Authenticate value for this registry.
func (m *tokenMiddleware) challenge(errCode, description string) string {
	params := []string{
		fmt.Sprintf(`realm="%s"`, sanitizeHeaderValue(m.realm)),
		fmt.Sprintf(`error="%s"`, errCode),
		fmt.Sprintf(`error_description="%s"`, sanitizeHeaderValue(description)),
	}
	if m.resourceURL != "" {
		params = append(params, fmt.Sprintf(`resource_metadata="%s%s"`,
			sanitizeHeaderValue(m.resourceURL), WellKnownPath))
	}
	return "Bearer " + strings.Join(params, ", ")
}

// writeError writes a JSON error with a WWW-Authenticate challenge.
func (m *tokenMiddleware) writeError(w http.ResponseWriter, status int, errCode, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", m.challenge(errCode, description))
	w.WriteHeader(status)

	resp := struct {
		Error string `json:"error"`
	}{
		Error: description,
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("Failed to encode error response", "error", err)
	}
}

// WrapWithPublicPaths wraps an auth middleware to bypass authentication for public paths.
func WrapWithPublicPaths(
	authMw func(http.Handler) http.Handler,
	publicPaths []string,
) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		authWrappedNext := authMw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsPublicPath(r.URL.Path, publicPaths) {
				authWrappedNext.ServeHTTP(w, r)
				return
			}
			// Public paths are served anonymously, never from the header.
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), "")))
		})
	}
}
