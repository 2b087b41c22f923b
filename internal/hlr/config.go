// Package hlr implements the half-life regression scheduling model: half-life
// estimation, the exponential forgetting curve and the ease/interval update rule.
//
// Every function in this package is pure and safe for concurrent use.
package hlr

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Config carries every tunable constant of the model. Intervals and half-lives are in hours.
type Config struct {
	InitialEaseFactor float64
	MinEaseFactor     float64
	MaxEaseFactor     float64

	// EaseDeltas is indexed by quality; index 0 is unused.
	EaseDeltas [6]float64

	InitialFailureInterval float64
	// InitialSuccessIntervals is indexed by quality; only 2..5 are used.
	InitialSuccessIntervals [6]float64

	DefaultInterval float64
	MinInterval     float64
	MaxInterval     float64

	TargetRecallProbability float64
	ContentSetMultiplier    float64

	ReviewNowThreshold  float64
	ReviewSoonThreshold float64

	// ExerciseTypeWeights are reported back to callers; they never feed the schedule.
	ExerciseTypeWeights map[string]float64
}

// DefaultConfig returns the reference parameters of the model.
func DefaultConfig() Config {
	return Config{
		InitialEaseFactor: 2.5,
		MinEaseFactor:     1.3,
		MaxEaseFactor:     4.0,
		EaseDeltas:        [6]float64{0, -0.8, -0.15, 0.0, 0.1, 0.15},

		InitialFailureInterval:  1,
		InitialSuccessIntervals: [6]float64{0, 1, 6, 24, 72, 168},

		DefaultInterval: 24,
		MinInterval:     0.17,
		MaxInterval:     720,

		TargetRecallProbability: 0.8,
		ContentSetMultiplier:    1.0,

		ReviewNowThreshold:  0.70,
		ReviewSoonThreshold: 0.85,

		ExerciseTypeWeights: map[string]float64{
			"flashcard":    1.0,
			"audio":        1.2,
			"conversation": 1.5,
			"visual":       0.9,
		},
	}
}

var errConfig = errors.New("hlr: invalid config")

// Validate reports the first inconsistent parameter.
func (c Config) Validate() error {
	checks := []struct {
		ok   bool
		what string
	}{
		{c.MinEaseFactor > 0 && c.MinEaseFactor <= c.MaxEaseFactor, "ease factor bounds"},
		{c.InitialEaseFactor >= c.MinEaseFactor && c.InitialEaseFactor <= c.MaxEaseFactor, "initial ease factor"},
		{c.MinInterval > 0 && c.MinInterval <= c.MaxInterval, "interval bounds"},
		{c.DefaultInterval >= c.MinInterval && c.DefaultInterval <= c.MaxInterval, "default interval"},
		{c.InitialFailureInterval > 0, "initial failure interval"},
		{c.TargetRecallProbability > 0 && c.TargetRecallProbability < 1, "target recall probability"},
		{c.ContentSetMultiplier > 0 && !math.IsInf(c.ContentSetMultiplier, 0), "content set multiplier"},
		{c.ReviewNowThreshold > 0 && c.ReviewNowThreshold <= c.ReviewSoonThreshold && c.ReviewSoonThreshold <= 1, "recommendation thresholds"},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("%w: %s", errConfig, chk.what)
		}
	}
	for q := 2; q <= 5; q++ {
		if c.InitialSuccessIntervals[q] <= 0 {
			return fmt.Errorf("%w: initial success interval for quality %d", errConfig, q)
		}
	}
	return nil
}

// OtherExercise is the kind reported for exercise types without a configured weight.
const OtherExercise = "other"

// ExerciseWeight returns the configured weight for an exercise type, 1.0 when unknown.
func (c Config) ExerciseWeight(exerciseType string) float64 {
	if w, ok := c.ExerciseTypeWeights[normalizeExercise(exerciseType)]; ok && w > 0 {
		return w
	}
	return 1.0
}

// ExerciseKind maps a client supplied exercise type onto a configured key.
// Unknown types collapse into OtherExercise; an empty type stays empty.
func (c Config) ExerciseKind(exerciseType string) string {
	key := normalizeExercise(exerciseType)
	if key == "" {
		return ""
	}
	if _, ok := c.ExerciseTypeWeights[key]; ok {
		return key
	}
	return OtherExercise
}

func normalizeExercise(exerciseType string) string {
	return strings.ToLower(strings.TrimSpace(exerciseType))
}

func (c Config) clampInterval(hours float64) float64 {
	return clamp(hours, c.MinInterval, c.MaxInterval)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
