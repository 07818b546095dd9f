package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPublicPath(t *testing.T) {
	t.Parallel()

	publicPaths := []string{"/health", "/readiness", "/.well-known", "custom"}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "exact match", path: "/health", want: true},
		{name: "sub path", path: "/health/live", want: true},
		{name: "prefix without boundary", path: "/healthcheck", want: false},
		{name: "well-known metadata", path: "/.well-known/oauth-protected-resource", want: true},
		{name: "public path without leading slash", path: "/custom", want: true},
		{name: "api path", path: "/v1/feeds/ETH/USD/latest/answer", want: false},
		{name: "traversal out of public path", path: "/health/../v1/owner", want: false},
		{name: "double slash", path: "//health", want: true},
		{name: "encoded slash", path: "/health%2f..%2fv1", want: false},
		{name: "encoded dot", path: "/health/%2E%2E/v1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPublicPath(tt.path, publicPaths))
		})
	}
}

func TestIsPublicPath_Root(t *testing.T) {
	t.Parallel()

	assert.True(t, IsPublicPath("/v1/owner", []string{"/"}))
	assert.False(t, IsPublicPath("/v1/owner", nil))
}
