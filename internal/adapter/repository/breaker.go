package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/repository"
)

// BreakerSettings configures the storage circuit breaker.
type BreakerSettings struct {
	Name        string
	MaxFailures uint32
	OpenTimeout time.Duration
}

// BreakerStateRepository short-circuits calls to a failing store. Only storage
// errors count as failures; not-found, validation and duplicate results pass through.
type BreakerStateRepository struct {
	next repository.LearnerStateRepository
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerStateRepository wraps next with a consecutive-failure circuit breaker.
func NewBreakerStateRepository(next repository.LearnerStateRepository, settings BreakerSettings, logger logrus.FieldLogger) *BreakerStateRepository {
	if settings.Name == "" {
		settings.Name = "learner-states"
	}
	if settings.MaxFailures == 0 {
		settings.MaxFailures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("storage circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !entity.IsStorage(err) || errors.Is(err, entity.ErrConcurrentUpdate)
		},
	})
	return &BreakerStateRepository{next: next, cb: cb}
}

var _ repository.LearnerStateRepository = (*BreakerStateRepository)(nil)

func guard[T any](cb *gobreaker.CircuitBreaker, op string, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, entity.NewStorageError(op, err)
		}
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

func (r *BreakerStateRepository) Get(ctx context.Context, key entity.StateKey) (*entity.LearnerContentState, error) {
	return guard(r.cb, "get state", func() (*entity.LearnerContentState, error) {
		return r.next.Get(ctx, key)
	})
}

func (r *BreakerStateRepository) ListByLearner(ctx context.Context, learnerID string) ([]*entity.LearnerContentState, error) {
	return guard(r.cb, "list states by learner", func() ([]*entity.LearnerContentState, error) {
		return r.next.ListByLearner(ctx, learnerID)
	})
}

func (r *BreakerStateRepository) ListByContent(ctx context.Context, contentID string) ([]*entity.LearnerContentState, error) {
	return guard(r.cb, "list states by content", func() ([]*entity.LearnerContentState, error) {
		return r.next.ListByContent(ctx, contentID)
	})
}

type listPage struct {
	states []*entity.LearnerContentState
	total  int64
}

func (r *BreakerStateRepository) List(ctx context.Context, query *repository.ListStateQuery) ([]*entity.LearnerContentState, int64, error) {
	page, err := guard(r.cb, "list states", func() (listPage, error) {
		states, total, err := r.next.List(ctx, query)
		return listPage{states: states, total: total}, err
	})
	return page.states, page.total, err
}

func (r *BreakerStateRepository) ExistingContentIDs(ctx context.Context, learnerID string, contentIDs []string) ([]string, error) {
	return guard(r.cb, "existing content ids", func() ([]string, error) {
		return r.next.ExistingContentIDs(ctx, learnerID, contentIDs)
	})
}

func (r *BreakerStateRepository) Create(ctx context.Context, state *entity.LearnerContentState) (*entity.LearnerContentState, error) {
	return guard(r.cb, "create state", func() (*entity.LearnerContentState, error) {
		return r.next.Create(ctx, state)
	})
}

func (r *BreakerStateRepository) Mutate(ctx context.Context, key entity.StateKey, seed *entity.LearnerContentState, fn repository.MutateFunc) (*entity.LearnerContentState, error) {
	return guard(r.cb, "mutate state", func() (*entity.LearnerContentState, error) {
		return r.next.Mutate(ctx, key, seed, fn)
	})
}

func (r *BreakerStateRepository) Upsert(ctx context.Context, state *entity.LearnerContentState) error {
	_, err := guard(r.cb, "upsert state", func() (struct{}, error) {
		return struct{}{}, r.next.Upsert(ctx, state)
	})
	return err
}

func (r *BreakerStateRepository) Count(ctx context.Context) (int, error) {
	return guard(r.cb, "count states", func() (int, error) {
		return r.next.Count(ctx)
	})
}

func (r *BreakerStateRepository) Walk(ctx context.Context, fn func(*entity.LearnerContentState) error) error {
	_, err := guard(r.cb, "walk states", func() (struct{}, error) {
		return struct{}{}, r.next.Walk(ctx, fn)
	})
	return err
}
