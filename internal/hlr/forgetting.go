package hlr

import "math"

// Recommendation buckets the current recall probability.
type Recommendation string

const (
	ReviewNow   Recommendation = "review_now"
	ReviewSoon  Recommendation = "review_soon"
	ReviewLater Recommendation = "review_later"
)

// Recall is the forgetting-curve reading for one item.
type Recall struct {
	Probability    float64
	Recommendation Recommendation
}

// RecallProbability evaluates p = 2^(-elapsed/halfLife).
func (c Config) RecallProbability(halfLife, elapsedHours float64) Recall {
	if !finite(halfLife) || halfLife <= 0 {
		return Recall{Probability: 0, Recommendation: ReviewNow}
	}
	if math.IsNaN(elapsedHours) {
		elapsedHours = 0
	}
	// clock skew can produce a negative elapsed time
	elapsedHours = math.Max(elapsedHours, 0)

	p := clamp(math.Pow(2, -elapsedHours/halfLife), 0, 1)
	return Recall{Probability: p, Recommendation: c.Recommend(p)}
}

// Recommend maps a probability onto a recommendation bucket.
func (c Config) Recommend(probability float64) Recommendation {
	switch {
	case probability < c.ReviewNowThreshold:
		return ReviewNow
	case probability < c.ReviewSoonThreshold:
		return ReviewSoon
	default:
		return ReviewLater
	}
}
