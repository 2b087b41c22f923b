package usecase

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/hlr"
	"github.com/eslsoft/spacedrep/internal/infrastructure/metrics"
	"github.com/eslsoft/spacedrep/internal/repository"
)

// Interval histogram thresholds, in hours.
const (
	learningMaxHours = 7 * 24
	youngMaxHours    = 30 * 24
)

// Difficulty adjustment thresholds.
const (
	minAdjustmentSample  = 5
	highConfidenceSample = 20
	tooEasyQuality       = 4.2
	tooEasySuccessRate   = 0.9
	tooHardQuality       = 2.5
	tooHardSuccessRate   = 0.4
	maxUpcomingDays      = 90
)

// IntervalHistogram counts records by interval maturity.
type IntervalHistogram struct {
	New      int `json:"new"`
	Learning int `json:"learning"`
	Young    int `json:"young"`
	Mature   int `json:"mature"`
}

// LearnerStats summarises a learner's records.
type LearnerStats struct {
	TotalItems        int               `json:"total_items"`
	DueNow            int               `json:"due_now"`
	DueWithin24h      int               `json:"due_within_24h"`
	AverageEaseFactor float64           `json:"average_ease_factor"`
	AverageInterval   float64           `json:"average_interval_hours"`
	TotalReviews      int               `json:"total_reviews"`
	TotalSuccesses    int               `json:"total_successes"`
	SuccessRate       float64           `json:"success_rate"`
	Intervals         IntervalHistogram `json:"intervals"`
	OptimalBatchSize  int               `json:"optimal_batch_size"`
}

// Confidence grades how much data backs a difficulty adjustment.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Adjustment reasons.
const (
	ReasonInsufficientData = "insufficient_data"
	ReasonTooEasy          = "too_easy"
	ReasonTooHard          = "too_hard"
	ReasonOptimal          = "optimal"
)

// ContentPerformance aggregates all learners' results for one content item.
type ContentPerformance struct {
	Learners       int     `json:"learners"`
	TotalReviews   int     `json:"total_reviews"`
	AverageQuality float64 `json:"average_quality"`
	SuccessRate    float64 `json:"success_rate"`
}

// DifficultyAdjustment recommends moving a content item's difficulty by -1, 0 or +1.
type DifficultyAdjustment struct {
	ContentID  string             `json:"content_id"`
	Adjustment int                `json:"adjustment"`
	Confidence Confidence         `json:"confidence"`
	Reason     string             `json:"reason"`
	Stats      ContentPerformance `json:"stats"`
}

// UpcomingDay is the number of reviews falling due on one day.
type UpcomingDay struct {
	Date  time.Time `json:"date"`
	Count int       `json:"count"`
}

// DifficultyTrend is the learner's performance on items of one difficulty level.
type DifficultyTrend struct {
	Difficulty        int     `json:"difficulty"`
	Items             int     `json:"items"`
	SuccessRate       float64 `json:"success_rate"`
	AverageEaseFactor float64 `json:"average_ease_factor"`
}

// StatsUsecase produces read-side summaries over learner records.
type StatsUsecase interface {
	GetStats(ctx context.Context, learnerID string) (*LearnerStats, error)
	GetDifficultyAdjustment(ctx context.Context, contentID string) (*DifficultyAdjustment, error)
	UpcomingReviews(ctx context.Context, learnerID string, days int) ([]UpcomingDay, error)
	PerformanceTrends(ctx context.Context, learnerID string) ([]DifficultyTrend, error)
	OptimalBatchSize(ctx context.Context, learnerID string) (int, error)
}

// NewStatsUsecase wires the aggregator.
func NewStatsUsecase(states repository.LearnerStateRepository, contents repository.ContentRepository, opts Options, logger logrus.FieldLogger, collector *metrics.Collector) StatsUsecase {
	if logger == nil {
		logger = nopLogger()
	}
	opts = opts.normalized()
	return &statsUsecase{
		states:   states,
		contents: contents,
		model:    opts.Model,
		store:    storage{timeout: opts.StorageTimeout, logger: logger, metrics: collector},
		clock:    time.Now,
	}
}

type statsUsecase struct {
	states   repository.LearnerStateRepository
	contents repository.ContentRepository
	model    hlr.Config
	store    storage
	clock    func() time.Time
}

func (u *statsUsecase) learnerStates(ctx context.Context, learnerID string) ([]*entity.LearnerContentState, error) {
	learnerID, err := entity.ValidateLearnerID(learnerID)
	if err != nil {
		return nil, err
	}
	ctx, cancel := u.store.ctx(ctx)
	defer cancel()

	states, err := u.states.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, u.store.fail("list states by learner", err)
	}
	return states, nil
}

func (u *statsUsecase) GetStats(ctx context.Context, learnerID string) (*LearnerStats, error) {
	states, err := u.learnerStates(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	return u.summarize(states, u.clock().UTC()), nil
}

func (u *statsUsecase) summarize(states []*entity.LearnerContentState, now time.Time) *LearnerStats {
	stats := &LearnerStats{TotalItems: len(states)}
	if len(states) == 0 {
		stats.OptimalBatchSize = batchSizeFor(0)
		return stats
	}

	horizon := now.Add(24 * time.Hour)
	for _, s := range states {
		if !s.NextReview.After(now) {
			stats.DueNow++
		} else if !s.NextReview.After(horizon) {
			stats.DueWithin24h++
		}
		stats.TotalReviews += s.TotalReviews
		stats.TotalSuccesses += s.SuccessCount

		switch {
		case !s.Reviewed() || s.CurrentInterval == u.model.DefaultInterval:
			stats.Intervals.New++
		case s.CurrentInterval <= learningMaxHours:
			stats.Intervals.Learning++
		case s.CurrentInterval <= youngMaxHours:
			stats.Intervals.Young++
		default:
			stats.Intervals.Mature++
		}
	}

	n := float64(len(states))
	stats.AverageEaseFactor = lo.SumBy(states, func(s *entity.LearnerContentState) float64 { return s.EaseFactor }) / n
	stats.AverageInterval = lo.SumBy(states, func(s *entity.LearnerContentState) float64 { return s.CurrentInterval }) / n
	if stats.TotalReviews > 0 {
		stats.SuccessRate = float64(stats.TotalSuccesses) / float64(stats.TotalReviews)
	}
	stats.OptimalBatchSize = batchSizeFor(stats.SuccessRate)
	return stats
}

func (u *statsUsecase) GetDifficultyAdjustment(ctx context.Context, contentID string) (*DifficultyAdjustment, error) {
	contentID, err := entity.ValidateContentID(contentID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := u.store.ctx(ctx)
	defer cancel()

	states, err := u.states.ListByContent(ctx, contentID)
	if err != nil {
		return nil, u.store.fail("list states by content", err)
	}
	return adjustDifficulty(contentID, states), nil
}

func adjustDifficulty(contentID string, states []*entity.LearnerContentState) *DifficultyAdjustment {
	reviewed := lo.Filter(states, func(s *entity.LearnerContentState, _ int) bool { return s.Reviewed() })

	perf := ContentPerformance{Learners: len(reviewed)}
	var rateSum float64
	var rateN, qualitySum, qualityN int
	for _, s := range reviewed {
		perf.TotalReviews += s.TotalReviews
		// each learner weighs the same regardless of how often they reviewed
		if s.TotalReviews > 0 {
			rateSum += s.SuccessRate()
			rateN++
		}
		if s.LastResponseQuality != nil {
			qualitySum += *s.LastResponseQuality
			qualityN++
		}
	}
	if rateN > 0 {
		perf.SuccessRate = rateSum / float64(rateN)
	}
	if qualityN > 0 {
		perf.AverageQuality = float64(qualitySum) / float64(qualityN)
	}

	adj := &DifficultyAdjustment{ContentID: contentID, Stats: perf}
	if perf.TotalReviews < minAdjustmentSample {
		adj.Confidence = ConfidenceLow
		adj.Reason = ReasonInsufficientData
		return adj
	}

	adj.Confidence = ConfidenceMedium
	if perf.TotalReviews >= highConfidenceSample {
		adj.Confidence = ConfidenceHigh
	}
	switch {
	case perf.AverageQuality > tooEasyQuality && perf.SuccessRate > tooEasySuccessRate:
		adj.Adjustment = 1
		adj.Reason = ReasonTooEasy
	case perf.AverageQuality < tooHardQuality && perf.SuccessRate < tooHardSuccessRate:
		adj.Adjustment = -1
		adj.Reason = ReasonTooHard
	default:
		adj.Reason = ReasonOptimal
	}
	return adj
}

func (u *statsUsecase) UpcomingReviews(ctx context.Context, learnerID string, days int) ([]UpcomingDay, error) {
	if days < 1 || days > maxUpcomingDays {
		return nil, entity.NewValidationError("days", entity.ErrInvalidLimit)
	}
	states, err := u.learnerStates(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	now := u.clock().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]UpcomingDay, days)
	for i := range out {
		out[i].Date = start.AddDate(0, 0, i)
	}
	for _, s := range states {
		idx := 0
		if s.NextReview.After(start) {
			idx = int(s.NextReview.Sub(start) / (24 * time.Hour))
		}
		if idx < days {
			out[idx].Count++
		}
	}
	return out, nil
}

func (u *statsUsecase) PerformanceTrends(ctx context.Context, learnerID string) ([]DifficultyTrend, error) {
	states, err := u.learnerStates(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return []DifficultyTrend{}, nil
	}

	ctx, cancel := u.store.ctx(ctx)
	defer cancel()

	items, err := u.contents.GetMany(ctx, lo.Map(states, func(s *entity.LearnerContentState, _ int) string { return s.ContentID }))
	if err != nil {
		return nil, u.store.fail("get contents", err)
	}

	groups := lo.GroupBy(states, func(s *entity.LearnerContentState) int {
		return int(math.Round(items[s.ContentID].DifficultyOrDefault()))
	})
	levels := lo.Keys(groups)
	sort.Ints(levels)

	trends := make([]DifficultyTrend, 0, len(levels))
	for _, level := range levels {
		group := groups[level]
		total := lo.SumBy(group, func(s *entity.LearnerContentState) int { return s.TotalReviews })
		success := lo.SumBy(group, func(s *entity.LearnerContentState) int { return s.SuccessCount })
		trend := DifficultyTrend{
			Difficulty:        level,
			Items:             len(group),
			AverageEaseFactor: lo.SumBy(group, func(s *entity.LearnerContentState) float64 { return s.EaseFactor }) / float64(len(group)),
		}
		if total > 0 {
			trend.SuccessRate = float64(success) / float64(total)
		}
		trends = append(trends, trend)
	}
	return trends, nil
}

func (u *statsUsecase) OptimalBatchSize(ctx context.Context, learnerID string) (int, error) {
	stats, err := u.GetStats(ctx, learnerID)
	if err != nil {
		return 0, err
	}
	return stats.OptimalBatchSize, nil
}

func batchSizeFor(successRate float64) int {
	switch {
	case successRate >= 0.8:
		return 25
	case successRate >= 0.6:
		return 20
	case successRate >= 0.4:
		return 15
	default:
		return 10
	}
}
