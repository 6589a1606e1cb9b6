package analysis

import (
	"fmt"

	montanastats "github.com/montanaflynn/stats"

	"qrng-gateway/internal/bitstream"
	"qrng-gateway/internal/validation"
)

// SerialCorrelation computes the Pearson correlation between the sequence
// and a copy of itself shifted by lag positions. An independent source
// shows correlations near zero at every lag; strong negative values
// indicate anti-clustering (alternation), strong positive values indicate
// clustering. The diagnostic complements the runs test without replacing
// its verdict.
//
// Returns bitstream.ErrEmptySequence for an empty sequence and
// validation.ErrDegenerateInput when lag is not in [1, len-2] or the
// sequence is single-valued (zero variance).
func SerialCorrelation(seq bitstream.Sequence, lag int) (float64, error) {
	if len(seq) == 0 {
		return 0, bitstream.ErrEmptySequence
	}
	if lag < 1 || lag >= len(seq)-1 {
		return 0, fmt.Errorf("%w: lag %d out of range for %d bits", validation.ErrDegenerateInput, lag, len(seq))
	}

	zeros, ones := seq.Counts()
	if zeros == 0 || ones == 0 {
		return 0, fmt.Errorf("%w: single-valued sequence has no variance", validation.ErrDegenerateInput)
	}

	values := make([]float64, len(seq))
	for i, b := range seq {
		values[i] = float64(b)
	}

	correlation, err := montanastats.Correlation(values[lag:], values[:len(values)-lag])
	if err != nil {
		return 0, fmt.Errorf("analysis: serial correlation: %w", err)
	}

	return correlation, nil
}
