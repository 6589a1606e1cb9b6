package validation

import (
	"qrng-gateway/internal/bitstream"
)

// Default health check parameters for bit samples, derived from NIST
// SP 800-90B Section 4.4 with a false-positive probability near 2^-40.
// The repetition cutoff assumes roughly one bit of entropy per sample;
// the proportion cutoff assumes at least half a bit.
const (
	DefaultRepetitionCutoff = 41
	DefaultProportionCutoff = 624
	DefaultProportionWindow = 1024
)

// MaxRunLength returns the length of the longest run of identical
// consecutive bits in seq. Empty input yields 0.
func MaxRunLength(seq bitstream.Sequence) int {
	if len(seq) == 0 {
		return 0
	}

	longest := 1
	current := 1
	for i := 1; i < len(seq); i++ {
		if seq[i] == seq[i-1] {
			current++
			if current > longest {
				longest = current
			}
		} else {
			current = 1
		}
	}

	return longest
}

// RepetitionCheck applies the Repetition Count Test from NIST SP 800-90B
// Section 4.4.1 to a materialized block of bits. It reports false when any
// bit value repeats cutoff or more consecutive times, indicating a
// stuck-at fault in the source. Non-positive cutoffs fall back to
// DefaultRepetitionCutoff. The check carries no state across calls.
func RepetitionCheck(seq bitstream.Sequence, cutoff int) bool {
	if cutoff <= 0 {
		cutoff = DefaultRepetitionCutoff
	}

	return MaxRunLength(seq) < cutoff
}

// ProportionCheck applies the Adaptive Proportion Test from NIST SP 800-90B
// Section 4.4.2 to a materialized block of bits. The block is split into
// consecutive windows of windowSize samples; within each complete window
// the occurrences of the window's first bit value are counted, and the
// check fails when any window reaches the cutoff, indicating statistical
// bias. A trailing partial window is not evaluated. Non-positive
// parameters fall back to the package defaults. The check carries no state
// across calls.
func ProportionCheck(seq bitstream.Sequence, cutoff, windowSize int) bool {
	if cutoff <= 0 {
		cutoff = DefaultProportionCutoff
	}
	if windowSize <= 0 {
		windowSize = DefaultProportionWindow
	}

	for start := 0; start+windowSize <= len(seq); start += windowSize {
		window := seq[start : start+windowSize]
		first := window[0]
		matches := 0
		for _, b := range window {
			if b == first {
				matches++
			}
		}
		if matches >= cutoff {
			return false
		}
	}

	return true
}
