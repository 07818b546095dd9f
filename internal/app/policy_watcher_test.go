package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/feed-registry-server/internal/access"
)

func TestStartPolicyWatcher_MissingFile(t *testing.T) {
	t.Parallel()

	policy, err := access.NewCedarPolicy("cedar", nil)
	require.NoError(t, err)

	_, err = startPolicyWatcher(filepath.Join(t.TempDir(), "missing.cedar"), policy)
	require.ErrorContains(t, err, "failed to watch policy file")
}

func TestPolicyWatcher_ReplacedFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	policyFile := filepath.Join(dir, "policies.cedar")
	require.NoError(t, os.WriteFile(policyFile, nil, 0600))

	policy, err := access.NewCedarPolicy("cedar", nil)
	require.NoError(t, err)

	w, err := startPolicyWatcher(policyFile, policy)
	require.NoError(t, err)
	defer func() { require.NoError(t, w.Close()) }()

	// Replace the file atomically, the way volume mounts update it.
	staged := filepath.Join(dir, "policies.cedar.tmp")
	require.NoError(t, os.WriteFile(staged, []byte(`permit (principal, action, resource);`), 0600))
	require.NoError(t, os.Rename(staged, policyFile))

	assert.Eventually(t, func() bool {
		ok, err := policy.HasAccess(context.Background(), "0xany", access.EncodePair("ETH", "USD"))
		return err == nil && ok
	}, 5*time.Second, 20*time.Millisecond)
}

func TestPolicyWatcher_CloseTwice(t *testing.T) {
	t.Parallel()

	policyFile := filepath.Join(t.TempDir(), "policies.cedar")
	require.NoError(t, os.WriteFile(policyFile, nil, 0600))

	policy, err := access.NewCedarPolicy("cedar", nil)
	require.NoError(t, err)

	w, err := startPolicyWatcher(policyFile, policy)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
