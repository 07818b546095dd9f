package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// WellKnownPath serves the protected resource metadata.
const WellKnownPath = "/.well-known/oauth-protected-resource"

// protectedResourceMetadata represents RFC 9728 OAuth 2.0 Protected Resource Metadata
type protectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	BearerMethodsSupported []string `json:"bearer_methods_supported,omitempty"`
}

// newProtectedResourceHandler creates an RFC 9728 compliant handler.
// resourceURL must not be empty and at least one authorization server is required.
func newProtectedResourceHandler(resourceURL string, authorizationServers []string) (http.Handler, error) {
	if resourceURL == "" {
		return nil, errors.New("resourceURL is required")
	}
	if len(authorizationServers) == 0 {
		return nil, errors.New("at least one authorization server is required")
	}

	data, err := json.Marshal(protectedResourceMetadata{
		Resource:               resourceURL,
		AuthorizationServers:   authorizationServers,
		BearerMethodsSupported: []string{"header"},
	})
	if err != nil {
		return nil, err
	}

	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := w.Write(data); err != nil {
			slog.Error("Failed to write protected resource metadata", "error", err)
		}
	}), nil
}
