// Package validation implements the randomness quality assessment routines
// of the gateway: a chi-square goodness-of-fit test and the Wald-Wolfowitz
// runs test over bit sequences, block-scoped continuous health checks
// derived from NIST SP 800-90B Section 4.4, and min-entropy estimators per
// NIST SP 800-90B Section 6 adapted to the binary alphabet.
package validation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"qrng-gateway/internal/bitstream"
)

// SignificanceLevel is the fixed threshold applied to every p-value when
// deriving a pass/fail verdict. It is configuration, not derived data.
const SignificanceLevel = 0.05

// ErrDegenerateInput is returned when a test is mathematically undefined
// for its input: a zero expected class count in the chi-square test, or a
// runs test over fewer than two bits or a single-valued sequence.
var ErrDegenerateInput = errors.New("validation: degenerate input")

// Interpretation labels attached to test results.
const (
	InterpretationRandom    = "Random"
	InterpretationNotRandom = "Not random"
	InterpretationClustered = "Clustered"
)

// ChiSquareResult holds the outcome of a chi-square goodness-of-fit test.
// Passes is PValue > SignificanceLevel.
type ChiSquareResult struct {
	Statistic        float64 `json:"chi_square_statistic"`
	DegreesOfFreedom int     `json:"degrees_of_freedom"`
	PValue           float64 `json:"p_value"`
	Passes           bool    `json:"passes_test"`
	Interpretation   string  `json:"interpretation"`
}

// RunsResult holds the outcome of a runs test. Passes is
// PValue > SignificanceLevel; a failing sequence is labelled Clustered.
type RunsResult struct {
	Runs           int     `json:"runs_count"`
	ExpectedRuns   float64 `json:"expected_runs"`
	ZScore         float64 `json:"z_score"`
	PValue         float64 `json:"p_value"`
	Passes         bool    `json:"passes_test"`
	Interpretation string  `json:"interpretation"`
}

// goodnessOfFit computes the chi-square statistic over k observed/expected
// class pairs. Every expected count must be strictly positive; the
// degrees of freedom are k-1. The reference use is the two-class bit case
// but the computation is deliberately generic.
func goodnessOfFit(observed []float64, expected []float64) (statistic float64, df int, err error) {
	if len(observed) != len(expected) || len(observed) < 2 {
		return 0, 0, fmt.Errorf("%w: need at least two matching class counts", ErrDegenerateInput)
	}

	for i := range observed {
		if expected[i] <= 0 {
			return 0, 0, fmt.Errorf("%w: expected count for class %d is %g", ErrDegenerateInput, i, expected[i])
		}
		diff := observed[i] - expected[i]
		statistic += diff * diff / expected[i]
	}

	return statistic, len(observed) - 1, nil
}

// ChiSquareTest performs a chi-square goodness-of-fit test of the bit
// counts in seq against an expected probability of ones equal to
// expectedProb (the zeros class carries the complementary probability).
// The p-value is the upper-tail probability of the chi-square distribution
// with one degree of freedom at the computed statistic.
//
// Returns bitstream.ErrEmptySequence for an empty sequence and
// ErrDegenerateInput when expectedProb is outside (0,1), since either
// endpoint makes an expected class count zero.
func ChiSquareTest(seq bitstream.Sequence, expectedProb float64) (ChiSquareResult, error) {
	if len(seq) == 0 {
		return ChiSquareResult{}, bitstream.ErrEmptySequence
	}
	if expectedProb <= 0 || expectedProb >= 1 {
		return ChiSquareResult{}, fmt.Errorf("%w: expected probability %g leaves an empty class", ErrDegenerateInput, expectedProb)
	}

	zeros, ones := seq.Counts()
	total := float64(len(seq))

	observed := []float64{float64(zeros), float64(ones)}
	expected := []float64{total * (1 - expectedProb), total * expectedProb}

	statistic, df, err := goodnessOfFit(observed, expected)
	if err != nil {
		return ChiSquareResult{}, err
	}

	pValue := distuv.ChiSquared{K: float64(df)}.Survival(statistic)
	pValue = clampProbability(pValue)

	result := ChiSquareResult{
		Statistic:        statistic,
		DegreesOfFreedom: df,
		PValue:           pValue,
		Passes:           pValue > SignificanceLevel,
	}
	result.Interpretation = InterpretationNotRandom
	if result.Passes {
		result.Interpretation = InterpretationRandom
	}

	return result, nil
}

// RunsTest performs the Wald-Wolfowitz runs test for clustering. A run is
// a maximal block of identical consecutive bits; under independence the
// run count is approximately normal with mean 2*n0*n1/n + 1. The p-value
// is two-sided.
//
// Returns bitstream.ErrEmptySequence for an empty sequence and
// ErrDegenerateInput when the sequence has fewer than two bits or only one
// distinct value, where the variance degenerates and the z-score is
// undefined. The degenerate case is reported as an error, never as NaN.
func RunsTest(seq bitstream.Sequence) (RunsResult, error) {
	if len(seq) == 0 {
		return RunsResult{}, bitstream.ErrEmptySequence
	}
	if len(seq) < 2 {
		return RunsResult{}, fmt.Errorf("%w: runs test needs at least two bits", ErrDegenerateInput)
	}

	zeros, ones := seq.Counts()
	if zeros == 0 || ones == 0 {
		return RunsResult{}, fmt.Errorf("%w: single-valued sequence", ErrDegenerateInput)
	}

	runs := 1
	for i := 1; i < len(seq); i++ {
		if seq[i] != seq[i-1] {
			runs++
		}
	}

	n := float64(len(seq))
	n0 := float64(zeros)
	n1 := float64(ones)

	expectedRuns := (2*n0*n1)/n + 1
	variance := (2 * n0 * n1 * (2*n0*n1 - n)) / (n * n * (n - 1))
	if variance <= 0 {
		return RunsResult{}, fmt.Errorf("%w: non-positive runs variance", ErrDegenerateInput)
	}

	z := (float64(runs) - expectedRuns) / math.Sqrt(variance)
	pValue := clampProbability(2 * distuv.UnitNormal.Survival(math.Abs(z)))

	result := RunsResult{
		Runs:         runs,
		ExpectedRuns: expectedRuns,
		ZScore:       z,
		PValue:       pValue,
		Passes:       pValue > SignificanceLevel,
	}
	result.Interpretation = InterpretationClustered
	if result.Passes {
		result.Interpretation = InterpretationRandom
	}

	return result, nil
}

// clampProbability bounds a probability to [0,1] against floating-point
// drift in the distribution tails.
func clampProbability(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}
