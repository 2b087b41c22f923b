package hlr

import (
	"errors"
	"math"
	"testing"
	"time"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newHistory() History {
	return History{EaseFactor: 2.5, CurrentInterval: 24}
}

func TestScheduleFirstSuccess(t *testing.T) {
	cfg := DefaultConfig()
	h := newHistory()
	est := cfg.EstimateHalfLife(h, 5)

	got, err := cfg.Schedule(3, h, est.HalfLife, fixedNow)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if got.Repetitions != 1 {
		t.Errorf("expected repetitions 1, got %d", got.Repetitions)
	}
	if got.EaseFactor != 2.5 {
		t.Errorf("expected ease factor 2.5, got %v", got.EaseFactor)
	}
	if got.Interval != 24 {
		t.Errorf("expected interval 24h, got %v", got.Interval)
	}
	if !got.NextReview.Equal(fixedNow.Add(24 * time.Hour)) {
		t.Errorf("expected next review one day later, got %v", got.NextReview)
	}
	if got.TotalReviews != 1 || got.SuccessCount != 1 {
		t.Errorf("expected counters 1/1, got %d/%d", got.SuccessCount, got.TotalReviews)
	}
}

func TestScheduleFailureAfterSuccess(t *testing.T) {
	cfg := DefaultConfig()
	h := History{Repetitions: 1, SuccessCount: 1, TotalReviews: 1, EaseFactor: 2.5, CurrentInterval: 24}
	est := cfg.EstimateHalfLife(h, 5)

	got, err := cfg.Schedule(1, h, est.HalfLife, fixedNow)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if got.Repetitions != 0 {
		t.Errorf("expected repetitions reset, got %d", got.Repetitions)
	}
	if math.Abs(got.EaseFactor-1.7) > 1e-9 {
		t.Errorf("expected ease factor 1.7, got %v", got.EaseFactor)
	}
	if got.Interval != 1 {
		t.Errorf("expected interval 1h, got %v", got.Interval)
	}
	if got.TotalReviews != 2 || got.SuccessCount != 1 {
		t.Errorf("expected counters 1/2, got %d/%d", got.SuccessCount, got.TotalReviews)
	}
}

func TestScheduleInitialSuccessIntervals(t *testing.T) {
	cfg := DefaultConfig()
	want := map[int]float64{2: 6, 3: 24, 4: 72, 5: 168}
	for q, hours := range want {
		got, err := cfg.Schedule(q, newHistory(), 75, fixedNow)
		if err != nil {
			t.Fatalf("quality %d: %v", q, err)
		}
		if got.Interval != hours {
			t.Errorf("quality %d: expected %vh, got %v", q, hours, got.Interval)
		}
	}
}

func TestScheduleHardRecallResetsRepetitions(t *testing.T) {
	cfg := DefaultConfig()
	h := History{Repetitions: 4, SuccessCount: 4, TotalReviews: 4, EaseFactor: 2.5, CurrentInterval: 100}
	got, err := cfg.Schedule(2, h, 200, fixedNow)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if got.Repetitions != 0 {
		t.Errorf("expected quality 2 to reset repetitions, got %d", got.Repetitions)
	}
	if got.SuccessCount != 4 {
		t.Errorf("expected success count unchanged, got %d", got.SuccessCount)
	}
	// repetitions > 0 so the half-life branch applies: max(200*log2(1.25), 100*2.35)
	want := math.Max(200*math.Log2(1/0.8), 100*2.35)
	if math.Abs(got.Interval-want) > 1e-9 {
		t.Errorf("expected interval %v, got %v", want, got.Interval)
	}
}

func TestScheduleHalfLifeBranch(t *testing.T) {
	cfg := DefaultConfig()
	h := History{Repetitions: 2, SuccessCount: 2, TotalReviews: 2, EaseFactor: 2.5, CurrentInterval: 10}
	got, err := cfg.Schedule(4, h, 400, fixedNow)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	want := 400 * math.Log2(1/0.8)
	if math.Abs(got.Interval-want) > 1e-9 {
		t.Errorf("expected target-time interval %v, got %v", want, got.Interval)
	}
	if got.Repetitions != 3 {
		t.Errorf("expected repetitions 3, got %d", got.Repetitions)
	}
}

func TestScheduleRejectsInvalidQuality(t *testing.T) {
	cfg := DefaultConfig()
	for _, q := range []int{-1, 0, 6, 100} {
		if _, err := cfg.Schedule(q, newHistory(), 24, fixedNow); !errors.Is(err, ErrQuality) {
			t.Errorf("quality %d: expected ErrQuality, got %v", q, err)
		}
	}
}

func TestScheduleInvariantsHold(t *testing.T) {
	cfg := DefaultConfig()
	eases := []float64{1.3, 1.31, 2.0, 2.5, 3.9, 4.0}
	intervals := []float64{0.17, 1, 24, 300, 720}
	reps := []int{0, 1, 5, 12}
	for q := 1; q <= 5; q++ {
		for _, ease := range eases {
			for _, interval := range intervals {
				for _, r := range reps {
					h := History{Repetitions: r, SuccessCount: r, TotalReviews: r + 1, EaseFactor: ease, CurrentInterval: interval}
					for _, difficulty := range []float64{1, 5, 10} {
						est := cfg.EstimateHalfLife(h, difficulty)
						got, err := cfg.Schedule(q, h, est.HalfLife, fixedNow)
						if err != nil {
							t.Fatalf("unexpected error: %v", err)
						}
						if got.EaseFactor < cfg.MinEaseFactor || got.EaseFactor > cfg.MaxEaseFactor {
							t.Fatalf("ease %v out of bounds for q=%d h=%+v", got.EaseFactor, q, h)
						}
						if got.Interval < cfg.MinInterval || got.Interval > cfg.MaxInterval {
							t.Fatalf("interval %v out of bounds for q=%d h=%+v", got.Interval, q, h)
						}
						if !got.NextReview.After(fixedNow) {
							t.Fatalf("next review %v not after now", got.NextReview)
						}
						if got.SuccessCount > got.TotalReviews {
							t.Fatalf("success count %d exceeds total %d", got.SuccessCount, got.TotalReviews)
						}
						if q == 1 && (got.Repetitions != 0 || got.Interval != cfg.InitialFailureInterval) {
							t.Fatalf("failure did not reset: %+v", got)
						}

						again, _ := cfg.Schedule(q, h, cfg.EstimateHalfLife(h, difficulty).HalfLife, fixedNow)
						if again.EaseFactor != got.EaseFactor || again.Interval != got.Interval {
							t.Fatalf("schedule not deterministic: %+v vs %+v", got, again)
						}
					}
				}
			}
		}
	}
}

func TestScheduleNonFiniteFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	h := History{Repetitions: 3, SuccessCount: 3, TotalReviews: 3, EaseFactor: math.NaN(), CurrentInterval: math.Inf(1)}
	got, err := cfg.Schedule(4, h, math.NaN(), fixedNow)
	if err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if !got.Fallback {
		t.Fatalf("expected fallback flag")
	}
	if got.EaseFactor != cfg.InitialEaseFactor {
		t.Errorf("expected default ease factor, got %v", got.EaseFactor)
	}
	if got.Interval != cfg.DefaultInterval {
		t.Errorf("expected default interval, got %v", got.Interval)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.TargetRecallProbability = 1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected invalid target recall probability to fail")
	}
	cfg = DefaultConfig()
	cfg.MinInterval = 1000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected inverted interval bounds to fail")
	}
}

func TestExerciseWeight(t *testing.T) {
	cfg := DefaultConfig()
	if w := cfg.ExerciseWeight("conversation"); w != 1.5 {
		t.Errorf("expected conversation weight 1.5, got %v", w)
	}
	if w := cfg.ExerciseWeight("unknown"); w != 1.0 {
		t.Errorf("expected unknown weight 1.0, got %v", w)
	}
}

func TestExerciseKind(t *testing.T) {
	cfg := DefaultConfig()
	cases := map[string]string{
		"":            "",
		"audio":       "audio",
		" Visual ":    "visual",
		"x-1":         OtherExercise,
		"handwriting": OtherExercise,
	}
	for in, want := range cases {
		if got := cfg.ExerciseKind(in); got != want {
			t.Errorf("ExerciseKind(%q) = %q, want %q", in, got, want)
		}
	}
	if w := cfg.ExerciseWeight("Audio"); w != 1.2 {
		t.Errorf("expected case-insensitive weight lookup, got %v", w)
	}
}
