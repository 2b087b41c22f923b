package repository

import (
	"context"
	"strings"
	"time"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/pkg/filterexpr"
)

// MutateFunc edits a state in place. It may run more than once for a single
// Mutate call, so it must not have side effects outside the record.
type MutateFunc func(state *entity.LearnerContentState) error

// LearnerStateRepository abstracts persistence for learner content states.
type LearnerStateRepository interface {
	Get(ctx context.Context, key entity.StateKey) (*entity.LearnerContentState, error)
	ListByLearner(ctx context.Context, learnerID string) ([]*entity.LearnerContentState, error)
	ListByContent(ctx context.Context, contentID string) ([]*entity.LearnerContentState, error)
	List(ctx context.Context, query *ListStateQuery) ([]*entity.LearnerContentState, int64, error)
	// ExistingContentIDs returns the subset of contentIDs the learner already has a record for.
	ExistingContentIDs(ctx context.Context, learnerID string, contentIDs []string) ([]string, error)
	// Create inserts a new record and fails with entity.ErrDuplicateState when the pair exists.
	Create(ctx context.Context, state *entity.LearnerContentState) (*entity.LearnerContentState, error)
	// Mutate performs an atomic read-modify-write of the record addressed by key.
	// When the record is missing it is created from seed first; a nil seed turns a
	// missing record into a not-found error. The stored version is incremented.
	Mutate(ctx context.Context, key entity.StateKey, seed *entity.LearnerContentState, fn MutateFunc) (*entity.LearnerContentState, error)
	// Upsert writes a record verbatim, replacing any existing row for its key.
	Upsert(ctx context.Context, state *entity.LearnerContentState) error
	Count(ctx context.Context) (int, error)
	// Walk streams every record ordered by learner and content id.
	Walk(ctx context.Context, fn func(*entity.LearnerContentState) error) error
}

// ListStateQuery holds parameters for listing a learner's states.
type ListStateQuery struct {
	Pagination
	FilterOrder

	LearnerID string
	// Compiled is populated by Compile and consumed by the storage adapters.
	Compiled StateFilter
}

// StateFilter is the typed form of a list filter and ordering.
type StateFilter struct {
	ContentIDs     []string
	ContentPrefix  *string
	MinRepetitions *int
	MaxRepetitions *int
	MinEaseFactor  *float64
	MaxEaseFactor  *float64
	NextReviewFrom *time.Time
	NextReviewTo   *time.Time

	Order []filterexpr.OrderTerm
}

// StateFilterFields whitelists the CEL identifiers accepted by ListStates.
var StateFilterFields = filterexpr.Fields{
	"content_id": {
		Kind: filterexpr.KindString,
		Ops: map[filterexpr.Op]string{
			filterexpr.OpIN: "ContentIDs",
			filterexpr.OpSW: "ContentPrefix",
		},
	},
	"repetitions": {
		Kind: filterexpr.KindNumber,
		Ops: map[filterexpr.Op]string{
			filterexpr.OpGTE: "MinRepetitions",
			filterexpr.OpLTE: "MaxRepetitions",
		},
	},
	"ease_factor": {
		Kind: filterexpr.KindNumber,
		Ops: map[filterexpr.Op]string{
			filterexpr.OpGTE: "MinEaseFactor",
			filterexpr.OpLTE: "MaxEaseFactor",
		},
	},
	"next_review": {
		Kind: filterexpr.KindTimestamp,
		Ops: map[filterexpr.Op]string{
			filterexpr.OpGTE: "NextReviewFrom",
			filterexpr.OpLTE: "NextReviewTo",
		},
	},
}

// StateOrderSchema maps order_by keys onto learner_content_states columns.
var StateOrderSchema = filterexpr.OrderSchema{
	Keys: map[string]string{
		"next_review":      "next_review",
		"ease_factor":      "ease_factor",
		"current_interval": "current_interval",
		"updated_at":       "updated_at",
		"content_id":       "content_id",
	},
	Default:  []filterexpr.OrderTerm{{Key: "next_review"}},
	Tiebreak: "content_id",
	MaxTerms: 2,
}

// Compile parses the raw filter and order_by into q.Compiled and normalizes paging.
func (q *ListStateQuery) Compile() error {
	var f StateFilter
	if err := filterexpr.Bind(q.Filter, &f, StateFilterFields); err != nil {
		return err
	}
	order, err := filterexpr.ParseOrder(q.OrderBy, StateOrderSchema)
	if err != nil {
		return err
	}
	f.Order = order
	q.Compiled = f
	q.Pagination.Normalize()
	return nil
}

// Match reports whether s satisfies every predicate of the filter.
func (f StateFilter) Match(s *entity.LearnerContentState) bool {
	if len(f.ContentIDs) > 0 && !contains(f.ContentIDs, s.ContentID) {
		return false
	}
	if f.ContentPrefix != nil && !strings.HasPrefix(s.ContentID, *f.ContentPrefix) {
		return false
	}
	if f.MinRepetitions != nil && s.Repetitions < *f.MinRepetitions {
		return false
	}
	if f.MaxRepetitions != nil && s.Repetitions > *f.MaxRepetitions {
		return false
	}
	if f.MinEaseFactor != nil && s.EaseFactor < *f.MinEaseFactor {
		return false
	}
	if f.MaxEaseFactor != nil && s.EaseFactor > *f.MaxEaseFactor {
		return false
	}
	if f.NextReviewFrom != nil && s.NextReview.Before(*f.NextReviewFrom) {
		return false
	}
	if f.NextReviewTo != nil && s.NextReview.After(*f.NextReviewTo) {
		return false
	}
	return true
}

// Less orders two states by the compiled order terms.
func (f StateFilter) Less(a, b *entity.LearnerContentState) bool {
	for _, term := range f.Order {
		c := compareStates(term.Key, a, b)
		if c == 0 {
			continue
		}
		if term.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func compareStates(key string, a, b *entity.LearnerContentState) int {
	switch key {
	case "next_review":
		return a.NextReview.Compare(b.NextReview)
	case "updated_at":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case "ease_factor":
		return compareFloat(a.EaseFactor, b.EaseFactor)
	case "current_interval":
		return compareFloat(a.CurrentInterval, b.CurrentInterval)
	case "content_id":
		return strings.Compare(a.ContentID, b.ContentID)
	default:
		return 0
	}
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
