package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/feed-registry-server/internal/versions"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestNewRootCmd(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "version", "migrate", "validate"}, names)
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, out string)
	}{
		{
			name: "text",
			args: []string{"version"},
			check: func(t *testing.T, out string) {
				t.Helper()
				assert.Contains(t, out, versions.Version)
			},
		},
		{
			name: "json",
			args: []string{"version", "--format", "json"},
			check: func(t *testing.T, out string) {
				t.Helper()
				var info versions.Info
				require.NoError(t, json.Unmarshal([]byte(out), &info))
				assert.Equal(t, versions.Version, info.Version)
				assert.NotEmpty(t, info.GoVersion)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := NewRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetArgs(tt.args)
			require.NoError(t, root.Execute())
			tt.check(t, out.String())
		})
	}
}
