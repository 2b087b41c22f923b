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

// Tier is the urgency bucket of a queued item, in the order items are served.
type Tier int

const (
	TierSeverelyOverdue Tier = iota
	TierDueNow
	TierDueSoon
	TierFuture
)

func (t Tier) String() string {
	switch t {
	case TierSeverelyOverdue:
		return "severely_overdue"
	case TierDueNow:
		return "due_now"
	case TierDueSoon:
		return "due_soon"
	default:
		return "future"
	}
}

const (
	dueSoonWindow           = 6 * time.Hour
	secondsPerReview        = 30
	overdueIntervalMultiple = 2
)

// QueueItem is one ranked entry of a learner's review queue with recall diagnostics.
type QueueItem struct {
	ContentID         string
	Tier              Tier
	RecallProbability float64
	Recommendation    hlr.Recommendation
	HalfLife          float64
	ElapsedHours      float64
	HoursOverdue      float64
	Difficulty        float64
	EaseFactor        float64
	CurrentInterval   float64
	Repetitions       int
	NextReview        time.Time
	LastReviewed      *time.Time
}

// ReviewQueue is the bounded, ordered result of GetDueItems.
type ReviewQueue struct {
	Items            []QueueItem
	TotalDue         int
	EstimatedMinutes int
}

// QueueUsecase ranks a learner's records into a review queue.
type QueueUsecase interface {
	GetDueItems(ctx context.Context, learnerID string, limit int) (*ReviewQueue, error)
}

// NewQueueUsecase wires the queue builder.
func NewQueueUsecase(states repository.LearnerStateRepository, contents repository.ContentRepository, opts Options, logger logrus.FieldLogger, collector *metrics.Collector) QueueUsecase {
	if logger == nil {
		logger = nopLogger()
	}
	opts = opts.normalized()
	return &queueUsecase{
		states:       states,
		contents:     contents,
		model:        opts.Model,
		defaultLimit: opts.DefaultQueueLimit,
		maxLimit:     opts.MaxQueueLimit,
		store:        storage{timeout: opts.StorageTimeout, logger: logger, metrics: collector},
		metrics:      collector,
		clock:        time.Now,
	}
}

type queueUsecase struct {
	states       repository.LearnerStateRepository
	contents     repository.ContentRepository
	model        hlr.Config
	defaultLimit int
	maxLimit     int
	store        storage
	metrics      *metrics.Collector
	clock        func() time.Time
}

func (u *queueUsecase) GetDueItems(ctx context.Context, learnerID string, limit int) (*ReviewQueue, error) {
	learnerID, err := entity.ValidateLearnerID(learnerID)
	if err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = u.defaultLimit
	case limit > u.maxLimit:
		return nil, entity.NewValidationError("limit", entity.ErrInvalidLimit)
	}

	ctx, cancel := u.store.ctx(ctx)
	defer cancel()

	states, err := u.states.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, u.store.fail("list states by learner", err)
	}

	now := u.clock().UTC()
	ranked := make([]*entity.LearnerContentState, len(states))
	copy(ranked, states)
	sort.SliceStable(ranked, func(i, j int) bool {
		ti, tj := tierOf(ranked[i], now), tierOf(ranked[j], now)
		if ti != tj {
			return ti < tj
		}
		if !ranked[i].NextReview.Equal(ranked[j].NextReview) {
			return ranked[i].NextReview.Before(ranked[j].NextReview)
		}
		return ranked[i].ContentID < ranked[j].ContentID
	})

	totalDue := lo.CountBy(ranked, func(s *entity.LearnerContentState) bool {
		return tierOf(s, now) <= TierDueNow
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	ids := lo.Map(ranked, func(s *entity.LearnerContentState, _ int) string { return s.ContentID })
	items, err := u.contents.GetMany(ctx, ids)
	if err != nil {
		return nil, u.store.fail("get contents", err)
	}

	queue := &ReviewQueue{
		Items:            make([]QueueItem, 0, len(ranked)),
		TotalDue:         totalDue,
		EstimatedMinutes: int(math.Ceil(float64(len(ranked)*secondsPerReview) / 60)),
	}
	for _, s := range ranked {
		queue.Items = append(queue.Items, u.diagnose(s, items[s.ContentID].DifficultyOrDefault(), now))
	}
	u.metrics.ObserveQueue(len(queue.Items))
	return queue, nil
}

func (u *queueUsecase) diagnose(s *entity.LearnerContentState, difficulty float64, now time.Time) QueueItem {
	est := u.model.EstimateHalfLife(historyOf(s), difficulty)
	elapsed := s.ElapsedHours(now)
	recall := u.model.RecallProbability(est.HalfLife, elapsed)
	return QueueItem{
		ContentID:         s.ContentID,
		Tier:              tierOf(s, now),
		RecallProbability: recall.Probability,
		Recommendation:    recall.Recommendation,
		HalfLife:          est.HalfLife,
		ElapsedHours:      math.Max(elapsed, 0),
		HoursOverdue:      math.Max(now.Sub(s.NextReview).Hours(), 0),
		Difficulty:        difficulty,
		EaseFactor:        s.EaseFactor,
		CurrentInterval:   s.CurrentInterval,
		Repetitions:       s.Repetitions,
		NextReview:        s.NextReview,
		LastReviewed:      s.LastReviewed,
	}
}

func tierOf(s *entity.LearnerContentState, now time.Time) Tier {
	switch {
	case !s.NextReview.After(now.Add(-hlr.Hours(overdueIntervalMultiple * s.CurrentInterval))):
		return TierSeverelyOverdue
	case !s.NextReview.After(now):
		return TierDueNow
	case !s.NextReview.After(now.Add(dueSoonWindow)):
		return TierDueSoon
	default:
		return TierFuture
	}
}
