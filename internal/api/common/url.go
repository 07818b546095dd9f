package common

import (
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/stacklok/feed-registry-server/internal/registry"
	"github.com/stacklok/feed-registry-server/internal/roundid"
)

// GetAndValidateURLParam extracts, decodes, and validates a URL parameter from the request.
// Returns the decoded value or an error if invalid.
// Validation rules:
// - Must not be empty after trimming whitespace
// - Must not contain any whitespace characters
func GetAndValidateURLParam(r *http.Request, paramName string) (string, error) {
	encodedValue := chi.URLParam(r, paramName)

	decoded, err := url.PathUnescape(encodedValue)
	if err != nil {
		return "", fmt.Errorf("invalid URL encoding in %s", paramName)
	}

	if strings.TrimSpace(decoded) == "" {
		return "", fmt.Errorf("%s cannot be empty", paramName)
	}

	if strings.ContainsAny(decoded, " \t\n\r") {
		return "", fmt.Errorf("%s cannot contain whitespace", paramName)
	}

	return decoded, nil
}

// PairParam reads the {base} and {quote} URL parameters.
func PairParam(r *http.Request) (registry.Pair, error) {
	base, err := GetAndValidateURLParam(r, "base")
	if err != nil {
		return registry.Pair{}, err
	}
	quote, err := GetAndValidateURLParam(r, "quote")
	if err != nil {
		return registry.Pair{}, err
	}
	return registry.NewPair(base, quote)
}

// RoundParam reads a decimal round id URL parameter.
func RoundParam(r *http.Request, paramName string) (*big.Int, error) {
	raw, err := GetAndValidateURLParam(r, paramName)
	if err != nil {
		return nil, err
	}
	return roundid.Parse(raw)
}

// PhaseParam reads a phase id URL parameter.
func PhaseParam(r *http.Request, paramName string) (uint64, error) {
	raw, err := GetAndValidateURLParam(r, paramName)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid phase id: %q", raw)
	}
	return id, nil
}
