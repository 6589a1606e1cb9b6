package bitstream

import (
	"errors"
	"math/big"
	"strings"
	"testing"
)

func TestBinaryStringPreservesLengthAndOrder(t *testing.T) {
	t.Parallel()

	seq, _ := FromString("01101001")
	str, err := seq.BinaryString()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if str != "01101001" {
		t.Fatalf("expected 01101001, got %s", str)
	}
	if len(str) != len(seq) {
		t.Fatalf("expected length %d, got %d", len(seq), len(str))
	}
}

func TestDecimalRoundTripsThroughBinaryString(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"1", "0", "101101", "00001111", "1111111111111111111111111111111111111111"} {
		seq, _ := FromString(in)

		str, err := seq.BinaryString()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in, err)
		}

		want, ok := new(big.Int).SetString(str, 2)
		if !ok {
			t.Fatalf("%s: reference parse failed", in)
		}

		got, err := seq.Decimal()
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", in, err)
		}
		if got.Cmp(want) != 0 {
			t.Fatalf("%s: expected %s, got %s", in, want, got)
		}
	}
}

func TestDecimalExceedsFixedWidthTypes(t *testing.T) {
	t.Parallel()

	// 96 one-bits cannot fit any machine word; the encoding must not wrap.
	seq, _ := FromString(strings.Repeat("1", 96))
	value, err := seq.Decimal()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value.BitLen() != 96 {
		t.Fatalf("expected 96-bit value, got %d bits", value.BitLen())
	}
}

func TestHexLowercaseBareDigits(t *testing.T) {
	t.Parallel()

	seq, _ := FromString("11111010110111101101") // 0xfaded
	hexStr, err := seq.Hex()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hexStr != "faded" {
		t.Fatalf("expected faded, got %s", hexStr)
	}
}

func TestFloatPadsShortSequences(t *testing.T) {
	t.Parallel()

	// "1" pads to 1 followed by 31 zeros: 2^31 / 2^32 = 0.5.
	seq, _ := FromString("1")
	f, err := seq.Float()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f != 0.5 {
		t.Fatalf("expected 0.5, got %v", f)
	}
}

func TestFloatDependsOnlyOnFirst32Bits(t *testing.T) {
	t.Parallel()

	prefix := "10110011100011110000111110000011" // 32 bits
	a, _ := FromString(prefix + strings.Repeat("0", 32))
	b, _ := FromString(prefix + strings.Repeat("1", 32))

	fa, err := a.Float()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fb, err := b.Float()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fa != fb {
		t.Fatalf("floats differ despite identical first 32 bits: %v vs %v", fa, fb)
	}
	if fa < 0 || fa >= 1 {
		t.Fatalf("expected value in [0,1), got %v", fa)
	}
}

func TestEncodingsRejectEmptySequence(t *testing.T) {
	t.Parallel()

	var seq Sequence

	if _, err := seq.BinaryString(); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("BinaryString: expected ErrEmptySequence, got %v", err)
	}
	if _, err := seq.Decimal(); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("Decimal: expected ErrEmptySequence, got %v", err)
	}
	if _, err := seq.Hex(); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("Hex: expected ErrEmptySequence, got %v", err)
	}
	if _, err := seq.Float(); !errors.Is(err, ErrEmptySequence) {
		t.Fatalf("Float: expected ErrEmptySequence, got %v", err)
	}
}
