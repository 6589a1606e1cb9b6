// Package bitstream defines the immutable bit sequence consumed by every
// statistics and encoding component of the gateway, together with the
// deterministic numeric encodings derived from it. A sequence is produced
// once by an entropy source and only ever borrowed (read-only) afterwards.
package bitstream

import (
	"errors"
	"fmt"
)

// ErrEmptySequence is returned by encodings and statistics that are
// undefined for a zero-length bit sequence.
var ErrEmptySequence = errors.New("bitstream: empty sequence")

// Sequence is an ordered, finite sequence of binary outcomes. Each element
// is exactly 0 or 1. Sequences are treated as immutable once constructed;
// no function in this module mutates a Sequence after creation.
type Sequence []byte

// New validates raw outcome values and wraps them as a Sequence. It returns
// an error when any element is neither 0 nor 1. The input slice is copied
// so later mutation of bits cannot alias the returned Sequence.
func New(bits []byte) (Sequence, error) {
	out := make(Sequence, len(bits))
	for i, b := range bits {
		if b > 1 {
			return nil, fmt.Errorf("bitstream: value %d at index %d is not a bit", b, i)
		}
		out[i] = b
	}
	return out, nil
}

// FromString parses an ASCII string of '0' and '1' characters into a
// Sequence. Any other character is rejected.
func FromString(s string) (Sequence, error) {
	out := make(Sequence, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '0':
			out[i] = 0
		case '1':
			out[i] = 1
		default:
			return nil, fmt.Errorf("bitstream: invalid character %q at index %d", s[i], i)
		}
	}
	return out, nil
}

// FromBytes unpacks a packed byte stream into individual bits, big-endian
// within each byte (the most significant bit of the first byte becomes the
// first element of the Sequence).
func FromBytes(data []byte) Sequence {
	out := make(Sequence, 0, len(data)*8)
	for _, b := range data {
		for shift := 7; shift >= 0; shift-- {
			out = append(out, (b>>uint(shift))&1)
		}
	}
	return out
}

// Pack compacts the sequence into a big-endian byte stream. The first bit
// becomes the most significant bit of the first byte; a final partial byte
// is zero-padded in its least significant positions. Empty sequences pack
// to nil.
func (s Sequence) Pack() []byte {
	if len(s) == 0 {
		return nil
	}

	out := make([]byte, (len(s)+7)/8)
	for i, bit := range s {
		if bit != 0 {
			out[i/8] |= 1 << uint(7-(i%8))
		}
	}
	return out
}

// Counts returns the number of zeros and ones in the sequence. The two
// counts always sum to len(s).
func (s Sequence) Counts() (zeros, ones int) {
	for _, b := range s {
		if b == 0 {
			zeros++
		} else {
			ones++
		}
	}
	return zeros, ones
}
