package analysis

// QualityLabel is the three-tier qualitative grade derived from an entropy
// ratio. The same mapping is applied everywhere a grade is reported.
type QualityLabel string

const (
	QualityExcellent QualityLabel = "Excellent"
	QualityGood      QualityLabel = "Good"
	QualityPoor      QualityLabel = "Poor"
)

// Fixed classification breakpoints on the entropy ratio.
const (
	excellentThreshold = 0.95
	goodThreshold      = 0.85
)

// ClassifyEntropyRatio maps an entropy ratio to its quality grade:
// above 0.95 is Excellent, above 0.85 is Good, everything else Poor.
// Both comparisons are strict, so a ratio of exactly 0.95 grades Good and
// exactly 0.85 grades Poor.
func ClassifyEntropyRatio(ratio float64) QualityLabel {
	switch {
	case ratio > excellentThreshold:
		return QualityExcellent
	case ratio > goodThreshold:
		return QualityGood
	default:
		return QualityPoor
	}
}
