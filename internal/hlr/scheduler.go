package hlr

import (
	"errors"
	"math"
	"time"
)

// ErrQuality is returned for qualities outside [1,5].
var ErrQuality = errors.New("hlr: quality must be between 1 and 5")

const passingQuality = 3

// Outcome is the full set of scheduling fields produced by one review.
type Outcome struct {
	EaseFactor   float64
	Interval     float64
	NextReview   time.Time
	Repetitions  int
	TotalReviews int
	SuccessCount int
	// Fallback is set when a non-finite ease factor or interval was replaced by a default.
	Fallback bool
}

// Schedule applies one review of the given quality to the prior history.
func (c Config) Schedule(quality int, prior History, halfLife float64, now time.Time) (Outcome, error) {
	if quality < 1 || quality > 5 {
		return Outcome{}, ErrQuality
	}

	var out Outcome

	ease := clamp(prior.EaseFactor+c.EaseDeltas[quality], c.MinEaseFactor, c.MaxEaseFactor)
	if !finite(ease) {
		ease = c.InitialEaseFactor
		out.Fallback = true
	}

	var interval float64
	switch {
	case quality == 1:
		interval = c.InitialFailureInterval
	case prior.Repetitions == 0:
		interval = c.InitialSuccessIntervals[quality]
	default:
		targetTime := halfLife * math.Log2(1/c.TargetRecallProbability)
		interval = math.Max(targetTime, prior.CurrentInterval*ease)
	}
	if !finite(interval) {
		interval = c.DefaultInterval
		out.Fallback = true
	}
	interval = c.clampInterval(interval)

	out.EaseFactor = ease
	out.Interval = interval
	out.NextReview = now.Add(Hours(interval))
	out.TotalReviews = max(prior.TotalReviews, 0) + 1
	out.SuccessCount = max(prior.SuccessCount, 0)
	if quality >= passingQuality {
		out.Repetitions = max(prior.Repetitions, 0) + 1
		out.SuccessCount++
	}
	return out, nil
}

// Hours converts a fractional hour count into a duration.
func Hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}
