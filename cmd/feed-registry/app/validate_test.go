package app

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCmd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		wantErr  string
		contains []string
	}{
		{
			name: "valid",
			content: `owner: "0xowner"
sources:
  - address: "0xa"
    endpoint: "http://localhost:9000"
access:
  policy: grants
events:
  redis:
    address: localhost:6379
`,
			contains: []string{"Valid configuration", "Owner: 0xowner", "Storage: memory", "Sources: 1", "Access policy: grants", "Auth mode: header", "Event stream: "},
		},
		{
			name:    "missing owner",
			content: "sources: []\n",
			wantErr: "owner is required",
		},
		{
			name: "bad endpoint",
			content: `owner: "0xowner"
sources:
  - address: "0xa"
    endpoint: "ftp://localhost"
`,
			wantErr: "endpoint must be an http or https URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			root := NewRootCmd()
			var out bytes.Buffer
			root.SetOut(&out)
			root.SetErr(&out)
			root.SetArgs([]string{"validate", writeConfig(t, tt.content)})

			err := root.Execute()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, out.String(), s)
			}
		})
	}
}

func TestValidateCmd_RequiresPath(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"validate"})
	require.Error(t, root.Execute())
}
