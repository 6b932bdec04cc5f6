package moderation

import "math"

// Severity is the band a score falls in.
type Severity int

const (
	// SeverityLow is for scores below LowThreshold.
	SeverityLow Severity = iota
	// SeverityMedium is for scores in [LowThreshold, HighThreshold).
	SeverityMedium
	// SeverityHigh is for scores at or above HighThreshold.
	SeverityHigh
)

const (
	// LowThreshold is the lower bound of the medium band.
	LowThreshold = 0.30
	// HighThreshold is the lower bound of the high band.
	HighThreshold = 0.70
)

// SeverityOf returns the band of score. Scores outside of [0, 1] are clamped.
func SeverityOf(score float64) Severity {
	score = math.Min(math.Max(score, 0), 1)
	switch {
	case score < LowThreshold:
		return SeverityLow
	case score < HighThreshold:
		return SeverityMedium
	default:
		return SeverityHigh
	}
}

// Tone is the visual treatment of the band.
func (s Severity) Tone() string {
	switch s {
	case SeverityLow:
		return "success"
	case SeverityMedium:
		return "warning"
	default:
		return "destructive"
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	default:
		return "high"
	}
}

// Percent returns score as a whole percentage, rounded half away from zero.
func Percent(score float64) int {
	return int(math.Round(score * 100))
}
