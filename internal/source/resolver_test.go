package source_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/feed-registry-server/internal/source"
	"github.com/stacklok/feed-registry-server/internal/source/sourcetest"
)

func TestStaticResolver(t *testing.T) {
	t.Parallel()

	r := source.NewStaticResolver()
	_, err := r.Resolve("0xa")
	require.ErrorIs(t, err, source.ErrUnknownSource)

	a := sourcetest.New(8, "ETH / USD")
	r.Register("0xa", a)
	got, err := r.Resolve("0xa")
	require.NoError(t, err)
	assert.Same(t, a, got)
	assert.Equal(t, 1, r.Len())

	r.Register("0xa", nil)
	_, err = r.Resolve("0xa")
	assert.ErrorIs(t, err, source.ErrUnknownSource)
}
