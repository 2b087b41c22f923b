package hlr

import (
	"math"
	"testing"
)

func TestEstimateHalfLifeNewRecord(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.EstimateHalfLife(History{EaseFactor: 2.5, CurrentInterval: 24}, 5)

	// 2.5*24 * 1.0 * (0.5+0.5*1.5) * 1.3^0
	want := 60 * 1.25
	if math.Abs(got.HalfLife-want) > 1e-9 {
		t.Fatalf("expected half-life %v, got %v", want, got.HalfLife)
	}
	if got.Confidence != 0 {
		t.Errorf("expected zero confidence without reviews, got %v", got.Confidence)
	}
	if got.Fallback {
		t.Errorf("did not expect fallback")
	}
}

func TestEstimateHalfLifeMultipliers(t *testing.T) {
	cfg := DefaultConfig()
	h := History{Repetitions: 3, SuccessCount: 4, TotalReviews: 5, EaseFactor: 2.0}
	got := cfg.EstimateHalfLife(h, 8)

	want := 2.0 * 24 * (1 + 3*0.1) * (0.5 + 0.8*1.5) * math.Pow(1.3, 3)
	if math.Abs(got.HalfLife-want) > 1e-9 {
		t.Fatalf("expected half-life %v, got %v", want, got.HalfLife)
	}
	if got.Confidence != 0.5 {
		t.Errorf("expected confidence 0.5, got %v", got.Confidence)
	}
}

func TestEstimateHalfLifeRepetitionBoostCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInterval = 1e9
	ten := cfg.EstimateHalfLife(History{Repetitions: 10, SuccessCount: 10, TotalReviews: 10, EaseFactor: 1.3}, 1)
	forty := cfg.EstimateHalfLife(History{Repetitions: 40, SuccessCount: 10, TotalReviews: 10, EaseFactor: 1.3}, 1)
	if ten.HalfLife != forty.HalfLife {
		t.Fatalf("expected repetition multiplier to cap at 10, got %v vs %v", ten.HalfLife, forty.HalfLife)
	}
}

func TestEstimateHalfLifeClampsAndConfidence(t *testing.T) {
	cfg := DefaultConfig()

	high := cfg.EstimateHalfLife(History{Repetitions: 10, SuccessCount: 30, TotalReviews: 30, EaseFactor: 4}, 10)
	if high.HalfLife != cfg.MaxInterval {
		t.Errorf("expected clamp to %v, got %v", cfg.MaxInterval, high.HalfLife)
	}
	if high.Confidence != 1 {
		t.Errorf("expected confidence to cap at 1, got %v", high.Confidence)
	}

	low := cfg.EstimateHalfLife(History{EaseFactor: 0.001, TotalReviews: 3}, 1)
	if low.HalfLife != cfg.MinInterval {
		t.Errorf("expected clamp to %v, got %v", cfg.MinInterval, low.HalfLife)
	}
}

func TestEstimateHalfLifeContentSetMultiplier(t *testing.T) {
	cfg := DefaultConfig()
	base := cfg.EstimateHalfLife(History{EaseFactor: 2.5}, 5)
	cfg.ContentSetMultiplier = 1.2
	scaled := cfg.EstimateHalfLife(History{EaseFactor: 2.5}, 5)
	if math.Abs(scaled.HalfLife-base.HalfLife*1.2) > 1e-9 {
		t.Fatalf("expected multiplier to scale half-life, got %v from %v", scaled.HalfLife, base.HalfLife)
	}
}

func TestEstimateHalfLifeNonFiniteFallsBack(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.EstimateHalfLife(History{EaseFactor: math.NaN()}, 5)
	if !got.Fallback {
		t.Fatalf("expected fallback for NaN ease factor")
	}
	if got.HalfLife != cfg.DefaultInterval {
		t.Errorf("expected default interval %v, got %v", cfg.DefaultInterval, got.HalfLife)
	}
}
