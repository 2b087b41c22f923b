package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/hlr"
	"github.com/eslsoft/spacedrep/internal/infrastructure/metrics"
	"github.com/eslsoft/spacedrep/internal/repository"
)

// MaxBatchReviews caps the number of events accepted by one BatchReview call.
const MaxBatchReviews = 100

// ReviewResult is the persisted state after a review plus the model outputs that produced it.
type ReviewResult struct {
	State      *entity.LearnerContentState
	HalfLife   float64
	Confidence float64
	// TypeWeight is the configured weight of the event's exercise type. It is
	// informational and never influences the schedule.
	TypeWeight float64
	Fallback   bool
}

// BatchReviewResult is the per-event outcome of BatchReview.
type BatchReviewResult struct {
	ContentID string
	Result    *ReviewResult
	Err       error
}

// ReviewUsecase records review outcomes and manages learner content records.
type ReviewUsecase interface {
	RecordReview(ctx context.Context, event entity.ReviewEvent) (*ReviewResult, error)
	BatchReview(ctx context.Context, learnerID string, events []entity.ReviewEvent) ([]BatchReviewResult, error)
	InitializeContent(ctx context.Context, learnerID string, contentIDs []string) (int, error)
	ResetItem(ctx context.Context, learnerID, contentID string) (*entity.LearnerContentState, error)
	GetState(ctx context.Context, learnerID, contentID string) (*entity.LearnerContentState, error)
	ListStates(ctx context.Context, query *repository.ListStateQuery) ([]*entity.LearnerContentState, int64, error)
}

// NewReviewUsecase wires the repositories with the scheduling model.
func NewReviewUsecase(states repository.LearnerStateRepository, contents repository.ContentRepository, opts Options, logger logrus.FieldLogger, collector *metrics.Collector) ReviewUsecase {
	if logger == nil {
		logger = nopLogger()
	}
	opts = opts.normalized()
	return &reviewUsecase{
		states:   states,
		contents: contents,
		model:    opts.Model,
		store:    storage{timeout: opts.StorageTimeout, logger: logger, metrics: collector},
		logger:   logger,
		metrics:  collector,
		clock:    time.Now,
		newID:    uuid.NewString,
	}
}

type reviewUsecase struct {
	states   repository.LearnerStateRepository
	contents repository.ContentRepository
	model    hlr.Config
	store    storage
	logger   logrus.FieldLogger
	metrics  *metrics.Collector
	clock    func() time.Time
	newID    func() string
}

func (u *reviewUsecase) RecordReview(ctx context.Context, event entity.ReviewEvent) (*ReviewResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	key := event.Key()

	ctx, cancel := u.store.ctx(ctx)
	defer cancel()

	item, err := u.contents.Get(ctx, key.ContentID)
	if err != nil {
		return nil, u.store.fail("get content", err)
	}
	difficulty := item.DifficultyOrDefault()

	now := u.clock().UTC()
	seed := entity.NewLearnerContentState(u.newID(), key, now)

	var (
		est hlr.Estimate
		out hlr.Outcome
	)
	state, err := u.states.Mutate(ctx, key, seed, func(s *entity.LearnerContentState) error {
		history := historyOf(s)
		est = u.model.EstimateHalfLife(history, difficulty)
		var err error
		out, err = u.model.Schedule(event.Quality, history, est.HalfLife, now)
		if err != nil {
			return entity.NewValidationError("quality", entity.ErrInvalidQuality)
		}
		applyOutcome(s, out, event.Quality, now)
		return nil
	})
	if err != nil {
		return nil, u.store.fail("record review", err)
	}

	fields := logrus.Fields{
		"learner_id": key.LearnerID,
		"content_id": key.ContentID,
		"quality":    event.Quality,
	}
	if est.Fallback {
		u.metrics.ObserveFallback("half_life")
		u.logger.WithFields(fields).Warn("half-life estimate was not finite, using default interval")
	}
	if out.Fallback {
		u.metrics.ObserveFallback("schedule")
		u.logger.WithFields(fields).Warn("schedule produced a non-finite value, using defaults")
	}
	if event.ResponseTimeSeconds != nil {
		fields["response_time_seconds"] = *event.ResponseTimeSeconds
	}
	u.metrics.ObserveReview(event.Quality, state.CurrentInterval, u.model.ExerciseKind(event.ExerciseType), event.ResponseTimeSeconds)
	u.logger.WithFields(fields).WithField("interval_hours", state.CurrentInterval).Debug("review recorded")

	return &ReviewResult{
		State:      state,
		HalfLife:   est.HalfLife,
		Confidence: est.Confidence,
		TypeWeight: u.model.ExerciseWeight(event.ExerciseType),
		Fallback:   est.Fallback || out.Fallback,
	}, nil
}

func applyOutcome(s *entity.LearnerContentState, out hlr.Outcome, quality int, now time.Time) {
	s.EaseFactor = out.EaseFactor
	s.CurrentInterval = out.Interval
	s.Repetitions = out.Repetitions
	s.TotalReviews = out.TotalReviews
	s.SuccessCount = out.SuccessCount
	s.NextReview = out.NextReview
	reviewed := now
	s.LastReviewed = &reviewed
	q := quality
	s.LastResponseQuality = &q
	s.UpdatedAt = now
}

func (u *reviewUsecase) BatchReview(ctx context.Context, learnerID string, events []entity.ReviewEvent) ([]BatchReviewResult, error) {
	learnerID, err := entity.ValidateLearnerID(learnerID)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, entity.NewValidationError("reviews", entity.ErrInvalidReview)
	}
	if len(events) > MaxBatchReviews {
		return nil, entity.NewValidationError("reviews", fmt.Errorf("%w: at most %d reviews per batch, got %d", entity.ErrInvalidReview, MaxBatchReviews, len(events)))
	}

	results := make([]BatchReviewResult, 0, len(events))
	for _, event := range events {
		event.LearnerID = learnerID
		res, err := u.RecordReview(ctx, event)
		results = append(results, BatchReviewResult{ContentID: event.ContentID, Result: res, Err: err})
	}
	return results, nil
}

func (u *reviewUsecase) InitializeContent(ctx context.Context, learnerID string, contentIDs []string) (int, error) {
	learnerID, err := entity.ValidateLearnerID(learnerID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(contentIDs))
	for _, raw := range contentIDs {
		id, err := entity.ValidateContentID(raw)
		if err != nil {
			return 0, err
		}
		ids = append(ids, id)
	}
	ids = lo.Uniq(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	ctx, cancel := u.store.ctx(ctx)
	defer cancel()

	existing, err := u.states.ExistingContentIDs(ctx, learnerID, ids)
	if err != nil {
		return 0, u.store.fail("existing content ids", err)
	}
	missing := lo.Without(ids, existing...)

	now := u.clock().UTC()
	created := 0
	for _, contentID := range missing {
		state := entity.NewLearnerContentState(u.newID(), entity.StateKey{LearnerID: learnerID, ContentID: contentID}, now)
		if _, err := u.states.Create(ctx, state); err != nil {
			if errors.Is(err, entity.ErrDuplicateState) {
				continue
			}
			return created, u.store.fail("create state", err)
		}
		created++
	}

	u.metrics.ObserveCreated(created)
	u.logger.WithFields(logrus.Fields{
		"learner_id": learnerID,
		"requested":  len(ids),
		"created":    created,
	}).Info("content initialized")
	return created, nil
}

func (u *reviewUsecase) ResetItem(ctx context.Context, learnerID, contentID string) (*entity.LearnerContentState, error) {
	key, err := entity.ValidateKey(learnerID, contentID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := u.store.ctx(ctx)
	defer cancel()

	now := u.clock().UTC()
	state, err := u.states.Mutate(ctx, key, nil, func(s *entity.LearnerContentState) error {
		s.Reset(now)
		return nil
	})
	if err != nil {
		return nil, u.store.fail("reset state", err)
	}
	u.logger.WithFields(logrus.Fields{"learner_id": key.LearnerID, "content_id": key.ContentID}).Info("item reset")
	return state, nil
}

func (u *reviewUsecase) GetState(ctx context.Context, learnerID, contentID string) (*entity.LearnerContentState, error) {
	key, err := entity.ValidateKey(learnerID, contentID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := u.store.ctx(ctx)
	defer cancel()

	state, err := u.states.Get(ctx, key)
	if err != nil {
		return nil, u.store.fail("get state", err)
	}
	return state, nil
}

func (u *reviewUsecase) ListStates(ctx context.Context, query *repository.ListStateQuery) ([]*entity.LearnerContentState, int64, error) {
	if query == nil {
		return nil, 0, entity.NewValidationError("query", entity.ErrInvalidFilter)
	}
	learnerID, err := entity.ValidateLearnerID(query.LearnerID)
	if err != nil {
		return nil, 0, err
	}
	query.LearnerID = learnerID
	if err := query.Compile(); err != nil {
		return nil, 0, entity.NewValidationError("filter", errors.Join(entity.ErrInvalidFilter, err))
	}

	ctx, cancel := u.store.ctx(ctx)
	defer cancel()

	states, total, err := u.states.List(ctx, query)
	if err != nil {
		return nil, 0, u.store.fail("list states", err)
	}
	return states, total, nil
}
