// Package common provides shared HTTP utility functions for API handlers.
package common

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stacklok/feed-registry-server/internal/access"
	"github.com/stacklok/feed-registry-server/internal/auth"
	"github.com/stacklok/feed-registry-server/internal/filtering"
	"github.com/stacklok/feed-registry-server/internal/ownership"
	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/roundid"
	"github.com/stacklok/feed-registry-server/internal/source"
)

// CallerHeader carries the identity of the caller in header mode. An absent
// header is the anonymous caller.
const CallerHeader = auth.CallerHeader

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Caller returns the caller identity of r as established by the auth
// middleware, or the caller header when no middleware ran.
func Caller(r *http.Request) string {
	if caller, ok := auth.CallerFromContext(r.Context()); ok {
		return caller
	}
	return r.Header.Get(CallerHeader)
}

// WriteJSONResponse writes a JSON response with the given data
func WriteJSONResponse(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}

// WriteErrorResponse writes a standardized error response
func WriteErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	WriteJSONResponse(w, ErrorResponse{Error: message}, statusCode)
}

// WriteError maps err to a status code and writes it. Server-side failures
// are logged with the request context.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFromError(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err)
	}
	WriteErrorResponse(w, err.Error(), status)
}

// StatusFromError returns the HTTP status code for a registry error.
func StatusFromError(err error) int {
	switch {
	case errors.Is(err, registry.ErrUnauthorized),
		errors.Is(err, ownership.ErrNotPendingOwner):
		return http.StatusUnauthorized
	case errors.Is(err, registry.ErrNoAccess):
		return http.StatusForbidden
	case errors.Is(err, registry.ErrSourceNotFound),
		errors.Is(err, registry.ErrPhaseNotFound),
		errors.Is(err, registry.ErrNoProposedSource),
		errors.Is(err, source.ErrUnknownSource),
		errors.Is(err, source.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrProposalMismatch),
		errors.Is(err, registry.ErrAlreadyCurrent),
		errors.Is(err, registry.ErrPhaseConflict):
		return http.StatusConflict
	case errors.Is(err, registry.ErrRoundOverflow),
		errors.Is(err, roundid.ErrPhaseOverflow),
		errors.Is(err, registry.ErrInvalidPair),
		errors.Is(err, access.ErrMalformedRequest),
		errors.Is(err, filtering.ErrInvalidPattern),
		errors.Is(err, ownership.ErrZeroOwner),
		errors.Is(err, ownership.ErrTransferToSelf):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrSourceUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
