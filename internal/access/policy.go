// Package access provides the pluggable access policies consulted before the
// registry serves gated reads.
//
// Two variants are available: GrantPolicy keeps wildcard (global) and exact
// (local) grants per caller, and CedarPolicy decodes the request as a pair and
// evaluates Cedar policies over it.
package access

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMalformedRequest is returned by policies that require structured
	// request data when the data cannot be decoded.
	ErrMalformedRequest = errors.New("malformed access request")
)

//go:generate mockgen -destination=mocks/mock_policy.go -package=mocks -source=policy.go Policy

// Policy decides whether a caller may access an encoded request.
type Policy interface {
	HasAccess(ctx context.Context, caller string, data []byte) (bool, error)
}

// Named is implemented by policies that carry a stable reference name.
type Named interface {
	Name() string
}

// Ref returns the reference recorded in notifications for p.
func Ref(p Policy) string {
	if p == nil {
		return ""
	}
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}
