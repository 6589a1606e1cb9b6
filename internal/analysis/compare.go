package analysis

import (
	"qrng-gateway/internal/bitstream"
)

// Comparison juxtaposes the descriptive statistics of a quantum-generated
// sequence and an independently produced classical baseline. No
// significance test is performed on the difference; only descriptive
// values are reported side by side.
type Comparison struct {
	Quantum   DescriptiveStats `json:"quantum"`
	Classical DescriptiveStats `json:"classical"`

	QuantumQuality   QualityLabel `json:"quantum_quality"`
	ClassicalQuality QualityLabel `json:"classical_quality"`

	// RelativeQuality reproduces the historical report field: the quantum
	// entropy ratio divided by the classical probability of zero. The
	// quotient mixes an entropy metric with a raw probability and has no
	// statistical meaning; it is retained only for compatibility with
	// existing report output. When the classical sequence contains no
	// zeros the field is reported as 0 instead of dividing by zero.
	// EntropyRatioDelta is the sound comparison: quantum minus classical
	// entropy ratio.
	RelativeQuality   float64 `json:"relative_quality"`
	EntropyRatioDelta float64 `json:"entropy_ratio_delta"`
}

// Compare computes descriptive statistics independently for the quantum
// and classical sequences and derives the comparison record. Either
// sequence being empty yields bitstream.ErrEmptySequence.
func Compare(quantum, classical bitstream.Sequence) (Comparison, error) {
	quantumStats, err := Describe(quantum)
	if err != nil {
		return Comparison{}, err
	}

	classicalStats, err := Describe(classical)
	if err != nil {
		return Comparison{}, err
	}

	relative := 0.0
	if classicalStats.Probability0 > 0 {
		relative = quantumStats.EntropyRatio / classicalStats.Probability0
	}

	return Comparison{
		Quantum:           quantumStats,
		Classical:         classicalStats,
		QuantumQuality:    quantumStats.Quality(),
		ClassicalQuality:  classicalStats.Quality(),
		RelativeQuality:   relative,
		EntropyRatioDelta: quantumStats.EntropyRatio - classicalStats.EntropyRatio,
	}, nil
}
