package access

import (
	"encoding/binary"
	"fmt"
)

// EncodePair returns the canonical request encoding of a (base, quote) pair:
// each identifier as a uvarint length followed by its bytes. Identifiers are
// never truncated, so distinct pairs always encode differently.
// No normalization is applied, so (A, B) and (B, A) encode differently.
func EncodePair(base, quote string) []byte {
	out := make([]byte, 0, 2*binary.MaxVarintLen64+len(base)+len(quote))
	out = appendField(out, base)
	return appendField(out, quote)
}

// DecodePair parses data produced by EncodePair. Both identifiers must be
// non-empty and no trailing bytes are allowed.
func DecodePair(data []byte) (base, quote string, err error) {
	base, rest, err := readField(data)
	if err != nil {
		return "", "", fmt.Errorf("%w: base: %v", ErrMalformedRequest, err)
	}
	quote, rest, err = readField(rest)
	if err != nil {
		return "", "", fmt.Errorf("%w: quote: %v", ErrMalformedRequest, err)
	}
	if len(rest) != 0 {
		return "", "", fmt.Errorf("%w: %d trailing bytes", ErrMalformedRequest, len(rest))
	}
	return base, quote, nil
}

func appendField(out []byte, s string) []byte {
	out = binary.AppendUvarint(out, uint64(len(s)))
	return append(out, s...)
}

func readField(data []byte) (string, []byte, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 {
		return "", nil, fmt.Errorf("invalid length prefix")
	}
	data = data[k:]
	if n == 0 {
		return "", nil, fmt.Errorf("empty identifier")
	}
	if n > uint64(len(data)) {
		return "", nil, fmt.Errorf("want %d bytes, have %d", n, len(data))
	}
	return string(data[:n]), data[n:], nil
}
