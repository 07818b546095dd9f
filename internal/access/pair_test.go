package access

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePair(t *testing.T) {
	t.Parallel()

	got := EncodePair("ETH", "USD")
	assert.Equal(t, []byte{3, 'E', 'T', 'H', 3, 'U', 'S', 'D'}, got)
	assert.NotEqual(t, EncodePair("USD", "ETH"), got, "pair encoding must be ordered")
	assert.NotEqual(t, EncodePair("ETHU", "SD"), got)
}

func TestEncodePair_LongIdentifiers(t *testing.T) {
	t.Parallel()

	prefix := strings.Repeat("x", 1<<16-1)
	a := EncodePair(prefix+"A", "USD")
	b := EncodePair(prefix+"B", "USD")
	assert.NotEqual(t, a, b)

	base, quote, err := DecodePair(a)
	require.NoError(t, err)
	assert.Equal(t, prefix+"A", base)
	assert.Equal(t, "USD", quote)
}

func TestDecodePair(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		data      []byte
		wantBase  string
		wantQuote string
		wantErr   bool
	}{
		{name: "round trip", data: EncodePair("BTC", "ETH"), wantBase: "BTC", wantQuote: "ETH"},
		{name: "empty", data: nil, wantErr: true},
		{name: "unterminated prefix", data: []byte{0x80}, wantErr: true},
		{name: "truncated base", data: []byte{5, 'B', 'T'}, wantErr: true},
		{name: "missing quote", data: []byte{1, 'B'}, wantErr: true},
		{name: "empty base", data: []byte{0, 1, 'Q'}, wantErr: true},
		{name: "oversized length", data: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01, 'A'}, wantErr: true},
		{name: "trailing bytes", data: append(EncodePair("A", "B"), 0xff), wantErr: true},
		{name: "arbitrary bytes", data: []byte("not a pair"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			base, quote, err := DecodePair(tt.data)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedRequest)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBase, base)
			assert.Equal(t, tt.wantQuote, quote)
		})
	}
}
