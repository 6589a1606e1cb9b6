// Package analysis computes descriptive statistics over bit sequences:
// outcome counts, empirical probabilities, Shannon entropy with the
// derived quality grade, and the side-by-side comparison against an
// independently produced baseline sequence.
package analysis

import (
	"math"

	"qrng-gateway/internal/bitstream"
)

// MaxEntropy is the Shannon entropy of a perfectly unbiased two-outcome
// source, in bits per sample.
const MaxEntropy = 1.0

// DescriptiveStats captures the first-order statistics of a bit sequence.
// Probability0 and Probability1 always sum to 1 within floating tolerance;
// EntropyRatio lies in [0,1] and reaches 1.0 exactly when both outcomes
// are equally likely.
type DescriptiveStats struct {
	Total          int     `json:"total_measurements"`
	Count0         int     `json:"count_0"`
	Count1         int     `json:"count_1"`
	Probability0   float64 `json:"probability_0"`
	Probability1   float64 `json:"probability_1"`
	ShannonEntropy float64 `json:"shannon_entropy"`
	MaxEntropy     float64 `json:"max_entropy"`
	EntropyRatio   float64 `json:"entropy_ratio"`
}

// Quality grades the entropy ratio of the sequence.
func (d DescriptiveStats) Quality() QualityLabel {
	return ClassifyEntropyRatio(d.EntropyRatio)
}

// Describe computes descriptive statistics for a bit sequence. Entropy and
// probabilities are undefined for an empty sequence, which is reported as
// bitstream.ErrEmptySequence.
func Describe(seq bitstream.Sequence) (DescriptiveStats, error) {
	if len(seq) == 0 {
		return DescriptiveStats{}, bitstream.ErrEmptySequence
	}

	zeros, ones := seq.Counts()
	total := float64(len(seq))

	p0 := float64(zeros) / total
	p1 := float64(ones) / total

	entropy := shannonEntropy(p0, p1)

	return DescriptiveStats{
		Total:          len(seq),
		Count0:         zeros,
		Count1:         ones,
		Probability0:   p0,
		Probability1:   p1,
		ShannonEntropy: entropy,
		MaxEntropy:     MaxEntropy,
		EntropyRatio:   entropy / MaxEntropy,
	}, nil
}

// shannonEntropy computes -sum(p*log2(p)) over the given outcome
// probabilities. Terms with p == 0 contribute zero rather than the NaN
// that 0*log2(0) would otherwise produce.
func shannonEntropy(probabilities ...float64) float64 {
	entropy := 0.0
	for _, p := range probabilities {
		if p > 0 {
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
