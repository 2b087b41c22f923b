package usecase

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/repository"
)

type fakeStateRepo struct {
	mu      sync.RWMutex
	items   map[entity.StateKey]*entity.LearnerContentState
	failErr error
	creates int
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{items: make(map[entity.StateKey]*entity.LearnerContentState)}
}

func (r *fakeStateRepo) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.failErr
}

func (r *fakeStateRepo) Get(ctx context.Context, key entity.StateKey) (*entity.LearnerContentState, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.items[key]
	if !ok {
		return nil, entity.NewStateNotFound(key)
	}
	return st.Clone(), nil
}

func (r *fakeStateRepo) ListByLearner(ctx context.Context, learnerID string) ([]*entity.LearnerContentState, error) {
	return r.collect(ctx, func(s *entity.LearnerContentState) bool { return s.LearnerID == learnerID })
}

func (r *fakeStateRepo) ListByContent(ctx context.Context, contentID string) ([]*entity.LearnerContentState, error) {
	return r.collect(ctx, func(s *entity.LearnerContentState) bool { return s.ContentID == contentID })
}

func (r *fakeStateRepo) collect(ctx context.Context, keep func(*entity.LearnerContentState) bool) ([]*entity.LearnerContentState, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*entity.LearnerContentState
	for _, st := range r.items {
		if keep(st) {
			out = append(out, st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LearnerID != out[j].LearnerID {
			return out[i].LearnerID < out[j].LearnerID
		}
		return out[i].ContentID < out[j].ContentID
	})
	return out, nil
}

func (r *fakeStateRepo) List(ctx context.Context, query *repository.ListStateQuery) ([]*entity.LearnerContentState, int64, error) {
	states, err := r.collect(ctx, func(s *entity.LearnerContentState) bool {
		return s.LearnerID == query.LearnerID && query.Compiled.Match(s)
	})
	if err != nil {
		return nil, 0, err
	}
	sort.SliceStable(states, func(i, j int) bool { return query.Compiled.Less(states[i], states[j]) })
	total := int64(len(states))
	start := min(int(query.Offset()), len(states))
	end := min(start+int(query.PageSize), len(states))
	return states[start:end], total, nil
}

func (r *fakeStateRepo) ExistingContentIDs(ctx context.Context, learnerID string, contentIDs []string) ([]string, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, id := range contentIDs {
		if _, ok := r.items[entity.StateKey{LearnerID: learnerID, ContentID: id}]; ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *fakeStateRepo) Create(ctx context.Context, state *entity.LearnerContentState) (*entity.LearnerContentState, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[state.Key()]; ok {
		return nil, entity.ErrDuplicateState
	}
	r.creates++
	r.items[state.Key()] = state.Clone()
	return state.Clone(), nil
}

func (r *fakeStateRepo) Mutate(ctx context.Context, key entity.StateKey, seed *entity.LearnerContentState, fn repository.MutateFunc) (*entity.LearnerContentState, error) {
	if err := r.check(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[key]
	if !ok {
		if seed == nil {
			return nil, entity.NewStateNotFound(key)
		}
		current = seed.Clone()
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID, next.LearnerID, next.ContentID = current.ID, key.LearnerID, key.ContentID
	next.Version = current.Version + 1
	r.items[key] = next
	return next.Clone(), nil
}

func (r *fakeStateRepo) Upsert(ctx context.Context, state *entity.LearnerContentState) error {
	if err := r.check(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[state.Key()] = state.Clone()
	return nil
}

func (r *fakeStateRepo) Count(ctx context.Context) (int, error) {
	if err := r.check(ctx); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items), nil
}

func (r *fakeStateRepo) Walk(ctx context.Context, fn func(*entity.LearnerContentState) error) error {
	states, err := r.collect(ctx, func(*entity.LearnerContentState) bool { return true })
	if err != nil {
		return err
	}
	for _, st := range states {
		if err := fn(st); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeStateRepo) put(st *entity.LearnerContentState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[st.Key()] = st.Clone()
}

type fakeContentRepo struct {
	mu    sync.RWMutex
	items map[string]*entity.ContentItem
}

func newFakeContentRepo(items ...*entity.ContentItem) *fakeContentRepo {
	r := &fakeContentRepo{items: make(map[string]*entity.ContentItem)}
	for _, it := range items {
		r.items[it.ID] = it
	}
	return r
}

func (r *fakeContentRepo) Get(ctx context.Context, id string) (*entity.ContentItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if it, ok := r.items[id]; ok {
		cp := *it
		return &cp, nil
	}
	return nil, nil
}

func (r *fakeContentRepo) GetMany(ctx context.Context, ids []string) (map[string]*entity.ContentItem, error) {
	out := make(map[string]*entity.ContentItem, len(ids))
	for _, id := range ids {
		it, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if it != nil {
			out[id] = it
		}
	}
	return out, nil
}

func (r *fakeContentRepo) List(ctx context.Context) ([]*entity.ContentItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*entity.ContentItem, 0, len(r.items))
	for _, it := range r.items {
		cp := *it
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeContentRepo) Save(ctx context.Context, item *entity.ContentItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.items[item.ID] = &cp
	return nil
}

var errDown = errors.New("database down")

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sequentialIDs() func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "id-" + strconv.Itoa(n)
	}
}
