package hlr

import "math"

// History is the slice of a learner-content record the estimator depends on.
type History struct {
	Repetitions     int
	SuccessCount    int
	TotalReviews    int
	EaseFactor      float64
	CurrentInterval float64
}

// Estimate is the predicted memory half-life in hours and how much data backs it.
type Estimate struct {
	HalfLife   float64
	Confidence float64
	// Fallback is set when degenerate inputs forced the default interval.
	Fallback bool
}

const maxRepetitionBoost = 10

// EstimateHalfLife predicts how many hours it takes the recall probability to reach 50%.
func (c Config) EstimateHalfLife(h History, difficulty float64) Estimate {
	successRate := 0.5
	if h.TotalReviews > 0 {
		successRate = float64(h.SuccessCount) / float64(h.TotalReviews)
	}

	base := h.EaseFactor * 24
	difficultyMultiplier := 1 + (difficulty-5)*0.1
	performanceMultiplier := 0.5 + successRate*1.5
	repetitionMultiplier := math.Pow(1.3, float64(min(max(h.Repetitions, 0), maxRepetitionBoost)))

	raw := base * difficultyMultiplier * performanceMultiplier * repetitionMultiplier * c.ContentSetMultiplier

	est := Estimate{Confidence: math.Min(float64(max(h.TotalReviews, 0))/10, 1.0)}
	if !finite(raw) {
		est.HalfLife = c.DefaultInterval
		est.Fallback = true
		return est
	}
	est.HalfLife = c.clampInterval(raw)
	return est
}
