package fraud

// Band is the risk band of a score. Bands are derived on read and never
// stored.
type Band string

const (
	BandLow    Band = "low"
	BandMedium Band = "medium"
	BandHigh   Band = "high"
)

// Band thresholds.
const (
	MediumThreshold = 25
	HighThreshold   = 50
)

// BandFor maps a score to its band: low < 25, medium 25-49, high >= 50.
func BandFor(score int) Band {
	switch {
	case score >= HighThreshold:
		return BandHigh
	case score >= MediumThreshold:
		return BandMedium
	default:
		return BandLow
	}
}

func (b Band) String() string { return string(b) }
