package repository

import (
	"sort"
	"testing"
	"time"

	"github.com/eslsoft/spacedrep/internal/entity"
)

func newState(contentID string, reps int, ease float64, next time.Time) *entity.LearnerContentState {
	return &entity.LearnerContentState{
		LearnerID:   "learner",
		ContentID:   contentID,
		Repetitions: reps,
		EaseFactor:  ease,
		NextReview:  next,
	}
}

func TestListStateQueryCompile(t *testing.T) {
	q := &ListStateQuery{
		FilterOrder: FilterOrder{
			Filter:  "content_id in ['a', 'b', 'c'] && repetitions >= 1 && ease_factor <= 3.0 && next_review <= timestamp('2025-02-01T00:00:00Z')",
			OrderBy: "ease_factor desc",
		},
	}
	if err := q.Compile(); err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	if q.PageNo != 1 || q.PageSize != defaultPageSize {
		t.Errorf("expected default paging, got %+v", q.Pagination)
	}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	states := []*entity.LearnerContentState{
		newState("a", 1, 2.0, base),
		newState("b", 3, 2.9, base.Add(time.Hour)),
		newState("c", 0, 2.5, base),                 // repetitions too low
		newState("d", 2, 2.5, base),                 // not in list
		newState("b2", 2, 3.5, base),                // not in list
		newState("c", 2, 2.9, base.AddDate(0, 2, 0)), // too late
	}
	var matched []*entity.LearnerContentState
	for _, s := range states {
		if q.Compiled.Match(s) {
			matched = append(matched, s)
		}
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matched))
	}
	sort.Slice(matched, func(i, j int) bool { return q.Compiled.Less(matched[i], matched[j]) })
	if matched[0].ContentID != "b" || matched[1].ContentID != "a" {
		t.Fatalf("expected ease factor descending order, got %s,%s", matched[0].ContentID, matched[1].ContentID)
	}
}

func TestListStateQueryCompileRejectsUnknownField(t *testing.T) {
	q := &ListStateQuery{FilterOrder: FilterOrder{Filter: "total_reviews >= 2"}}
	if err := q.Compile(); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
	q = &ListStateQuery{FilterOrder: FilterOrder{OrderBy: "learner_id"}}
	if err := q.Compile(); err == nil {
		t.Fatalf("expected unknown order key to be rejected")
	}
}

func TestPaginationNormalize(t *testing.T) {
	p := Pagination{PageNo: 3, PageSize: 10000}
	p.Normalize()
	if p.PageSize != maxPageSize {
		t.Errorf("expected page size clamp, got %d", p.PageSize)
	}
	if p.Offset() != 2*maxPageSize {
		t.Errorf("unexpected offset %d", p.Offset())
	}

	far := Pagination{PageNo: 5000000, PageSize: 500}
	far.Normalize()
	if far.PageNo != MaxPageNo {
		t.Errorf("expected page number clamp, got %d", far.PageNo)
	}
	if want := int64(MaxPageNo-1) * 500; far.Offset() != want {
		t.Errorf("expected offset %d, got %d", want, far.Offset())
	}
}

func TestNewPagination(t *testing.T) {
	p, err := NewPagination(0, 0)
	if err != nil {
		t.Fatalf("NewPagination: %v", err)
	}
	if p.PageNo != 1 || p.PageSize != defaultPageSize {
		t.Fatalf("expected defaults, got %+v", p)
	}
	p, err = NewPagination(2, 1<<40)
	if err != nil {
		t.Fatalf("NewPagination: %v", err)
	}
	if p.PageSize != maxPageSize {
		t.Fatalf("expected page size clamp without truncation, got %d", p.PageSize)
	}
	for _, tc := range []struct{ pageNo, pageSize int }{
		{5000000, 500},
		{1 << 40, 10},
		{-1, 10},
		{1, -5},
	} {
		if _, err := NewPagination(tc.pageNo, tc.pageSize); !entity.IsValidation(err) {
			t.Errorf("page %d size %d: expected validation error, got %v", tc.pageNo, tc.pageSize, err)
		}
	}
}
