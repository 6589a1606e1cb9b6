package bitstream

import (
	"fmt"
	"math/big"
)

// floatWindowBits is the fixed resolution of the Float encoding. Only the
// first floatWindowBits bits of a sequence influence the result.
const floatWindowBits = 32

// BinaryString concatenates the sequence digits in order into an ASCII
// string of '0' and '1' characters. Returns ErrEmptySequence for an empty
// sequence.
func (s Sequence) BinaryString() (string, error) {
	if len(s) == 0 {
		return "", ErrEmptySequence
	}

	buf := make([]byte, len(s))
	for i, bit := range s {
		buf[i] = '0' + bit
	}
	return string(buf), nil
}

// Decimal interprets the sequence as a base-2 unsigned integer with the
// first bit most significant. The result is arbitrary precision; long
// sequences never overflow a fixed-width integer type.
func (s Sequence) Decimal() (*big.Int, error) {
	if len(s) == 0 {
		return nil, ErrEmptySequence
	}

	value := new(big.Int)
	for _, bit := range s {
		value.Lsh(value, 1)
		if bit != 0 {
			value.SetBit(value, 0, 1)
		}
	}
	return value, nil
}

// Hex renders the same integer value as Decimal in lowercase hexadecimal.
// The rendering uses bare digits without an "0x" prefix and without fixed
// width, matching big.Int's canonical text form.
func (s Sequence) Hex() (string, error) {
	value, err := s.Decimal()
	if err != nil {
		return "", err
	}
	return value.Text(16), nil
}

// Float projects the sequence onto a fixed 32-bit resolution and scales
// into [0,1). The first 32 bits are interpreted as a big-endian unsigned
// integer; sequences shorter than 32 bits are right-padded with zeros and
// longer sequences are truncated. The projection is lossy: two sequences
// that agree on their first 32 bits yield the same float no matter how
// they continue.
func (s Sequence) Float() (float64, error) {
	if len(s) == 0 {
		return 0, ErrEmptySequence
	}

	width := len(s)
	if width > floatWindowBits {
		width = floatWindowBits
	}

	var value uint32
	for _, bit := range s[:width] {
		value = value<<1 | uint32(bit)
	}
	value <<= uint(floatWindowBits - width) // right-pad short sequences

	return float64(value) / (1 << floatWindowBits), nil
}

// String renders the sequence for logs, eliding everything past the first
// 64 bits.
func (s Sequence) String() string {
	const preview = 64

	if len(s) <= preview {
		str, _ := s.BinaryString()
		return str
	}
	head, _ := s[:preview].BinaryString()
	return fmt.Sprintf("%s... (%d bits)", head, len(s))
}
