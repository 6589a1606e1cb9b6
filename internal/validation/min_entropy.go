package validation

import (
	"math"

	"qrng-gateway/internal/bitstream"
)

// maxBitEntropy is the upper bound of min-entropy per sample for a binary
// alphabet.
const maxBitEntropy = 1.0

// EstimateMCV estimates min-entropy using the Most Common Value method
// from NIST SP 800-90B Section 6.3.1, adapted to bit samples. It returns
// -log2(pmax) where pmax is the relative frequency of the more common bit
// value. The result ranges from 0.0 (single-valued sequence) to 1.0
// (perfectly balanced). Empty input yields 0.0.
func EstimateMCV(seq bitstream.Sequence) float64 {
	if len(seq) == 0 {
		return 0.0
	}

	zeros, ones := seq.Counts()
	maxCount := zeros
	if ones > maxCount {
		maxCount = ones
	}

	pMax := float64(maxCount) / float64(len(seq))
	if pMax >= 1.0 {
		return 0.0
	}

	return -math.Log2(pMax)
}

// EstimateCollision estimates min-entropy using the Collision method from
// NIST SP 800-90B Section 6.3.2. It locates the first repeated bit value
// and computes log2(t) where t is the one-indexed collision position,
// clamped to [0, 1]. For a binary alphabet a collision occurs by the third
// sample at the latest. Empty input yields 0.0; a single sample yields the
// alphabet maximum.
func EstimateCollision(seq bitstream.Sequence) float64 {
	if len(seq) == 0 {
		return 0.0
	}
	if len(seq) == 1 {
		return maxBitEntropy
	}

	var seen [2]bool
	tCollision := 0
	for i, b := range seq {
		if seen[b] {
			tCollision = i + 1 // collision time is 1-indexed
			break
		}
		seen[b] = true
	}

	if tCollision == 0 {
		return maxBitEntropy
	}

	minEntropy := math.Log2(float64(tCollision))
	if minEntropy > maxBitEntropy {
		minEntropy = maxBitEntropy
	}
	if minEntropy < 0 {
		minEntropy = 0
	}

	return minEntropy
}

// EstimateMinEntropyConservative returns the lower of the MCV and
// Collision estimates, following NIST SP 800-90B guidance to take the
// minimum across estimators as a conservative bound. The estimate is a
// diagnostic, not a certification of the source.
func EstimateMinEntropyConservative(seq bitstream.Sequence) float64 {
	mcv := EstimateMCV(seq)
	collision := EstimateCollision(seq)

	if mcv < collision {
		return mcv
	}
	return collision
}
