package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/infrastructure/metrics"
	"github.com/eslsoft/spacedrep/internal/repository"
)

var testNow = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func newTestReviewUsecase(states *fakeStateRepo, contents *fakeContentRepo, now time.Time) *reviewUsecase {
	uc := NewReviewUsecase(states, contents, DefaultOptions(), nil, nil).(*reviewUsecase)
	uc.clock = fixedClock(now)
	uc.newID = sequentialIDs()
	return uc
}

func TestRecordReview_FirstSuccessThenFailure(t *testing.T) {
	states := newFakeStateRepo()
	uc := newTestReviewUsecase(states, newFakeContentRepo(), testNow)
	ctx := context.Background()

	if _, err := uc.InitializeContent(ctx, "learner-1", []string{"c1"}); err != nil {
		t.Fatalf("InitializeContent: %v", err)
	}

	res, err := uc.RecordReview(ctx, entity.ReviewEvent{LearnerID: "learner-1", ContentID: "c1", Quality: 3})
	if err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	st := res.State
	if st.Repetitions != 1 || st.EaseFactor != 2.5 || st.CurrentInterval != 24 {
		t.Fatalf("unexpected state after first success: %+v", st)
	}
	if !st.NextReview.Equal(testNow.Add(24 * time.Hour)) {
		t.Fatalf("unexpected next review %v", st.NextReview)
	}
	if st.LastReviewed == nil || !st.LastReviewed.Equal(testNow) {
		t.Fatalf("last reviewed not set: %v", st.LastReviewed)
	}
	if st.LastResponseQuality == nil || *st.LastResponseQuality != 3 {
		t.Fatalf("last quality not set: %v", st.LastResponseQuality)
	}

	uc.clock = fixedClock(testNow.Add(30 * time.Hour))
	res, err = uc.RecordReview(ctx, entity.ReviewEvent{LearnerID: "learner-1", ContentID: "c1", Quality: 1})
	if err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	st = res.State
	if st.Repetitions != 0 || math.Abs(st.EaseFactor-1.7) > 1e-9 || st.CurrentInterval != 1 {
		t.Fatalf("unexpected state after failure: %+v", st)
	}
	if st.TotalReviews != 2 || st.SuccessCount != 1 {
		t.Fatalf("unexpected counters: total=%d success=%d", st.TotalReviews, st.SuccessCount)
	}
	if st.ID != "id-1" {
		t.Fatalf("record identity changed: %s", st.ID)
	}
}

func TestRecordReview_SeedsMissingRecord(t *testing.T) {
	states := newFakeStateRepo()
	contents := newFakeContentRepo(&entity.ContentItem{ID: "hard", Difficulty: 8})
	uc := newTestReviewUsecase(states, contents, testNow)

	res, err := uc.RecordReview(context.Background(), entity.ReviewEvent{LearnerID: "u", ContentID: "plain", Quality: 4, ExerciseType: "audio"})
	if err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	// default ease 2.5, neutral success rate, default difficulty 5: 60 * 1.25
	if math.Abs(res.HalfLife-75) > 1e-9 {
		t.Fatalf("expected half-life 75, got %v", res.HalfLife)
	}
	if res.TypeWeight != 1.2 {
		t.Fatalf("expected audio weight 1.2, got %v", res.TypeWeight)
	}
	if res.State.CurrentInterval != 72 || res.State.Version != 2 {
		t.Fatalf("unexpected seeded state: %+v", res.State)
	}

	res, err = uc.RecordReview(context.Background(), entity.ReviewEvent{LearnerID: "u", ContentID: "hard", Quality: 4})
	if err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	if math.Abs(res.HalfLife-97.5) > 1e-9 {
		t.Fatalf("expected difficulty-scaled half-life 97.5, got %v", res.HalfLife)
	}
	if res.TypeWeight != 1.0 {
		t.Fatalf("expected neutral weight, got %v", res.TypeWeight)
	}
}

func TestRecordReview_NextReviewInFuture(t *testing.T) {
	uc := newTestReviewUsecase(newFakeStateRepo(), newFakeContentRepo(), testNow)
	for q := 1; q <= 5; q++ {
		for i := 0; i < 4; i++ {
			res, err := uc.RecordReview(context.Background(), entity.ReviewEvent{LearnerID: "u", ContentID: "c", Quality: q})
			if err != nil {
				t.Fatalf("q=%d: %v", q, err)
			}
			if !res.State.NextReview.After(testNow) {
				t.Fatalf("q=%d: next review %v not after %v", q, res.State.NextReview, testNow)
			}
			if res.State.SuccessCount > res.State.TotalReviews {
				t.Fatalf("success count exceeds total: %+v", res.State)
			}
		}
	}
}

func TestRecordReview_Validation(t *testing.T) {
	states := newFakeStateRepo()
	uc := newTestReviewUsecase(states, newFakeContentRepo(), testNow)
	negative := -1.0

	cases := []struct {
		name  string
		event entity.ReviewEvent
		field string
	}{
		{"quality zero", entity.ReviewEvent{LearnerID: "u", ContentID: "c", Quality: 0}, "quality"},
		{"quality six", entity.ReviewEvent{LearnerID: "u", ContentID: "c", Quality: 6}, "quality"},
		{"blank learner", entity.ReviewEvent{LearnerID: "  ", ContentID: "c", Quality: 3}, "learner_id"},
		{"blank content", entity.ReviewEvent{LearnerID: "u", ContentID: "", Quality: 3}, "content_id"},
		{"negative response time", entity.ReviewEvent{LearnerID: "u", ContentID: "c", Quality: 3, ResponseTimeSeconds: &negative}, "response_time_seconds"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := uc.RecordReview(context.Background(), tc.event)
			var verr *entity.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Field != tc.field {
				t.Fatalf("expected field %s, got %s", tc.field, verr.Field)
			}
		})
	}
	if n, _ := states.Count(context.Background()); n != 0 {
		t.Fatalf("validation failures must not write, found %d records", n)
	}
}

func TestRecordReview_StorageFailure(t *testing.T) {
	states := newFakeStateRepo()
	states.failErr = errDown
	uc := newTestReviewUsecase(states, newFakeContentRepo(), testNow)

	_, err := uc.RecordReview(context.Background(), entity.ReviewEvent{LearnerID: "u", ContentID: "c", Quality: 3})
	if !entity.IsStorage(err) || !errors.Is(err, errDown) {
		t.Fatalf("expected storage error wrapping cause, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	states.failErr = nil
	_, err = uc.RecordReview(ctx, entity.ReviewEvent{LearnerID: "u", ContentID: "c", Quality: 3})
	if !entity.IsStorage(err) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected storage error for cancelled context, got %v", err)
	}
}

func TestRecordReview_ConcurrentSameKey(t *testing.T) {
	states := newFakeStateRepo()
	uc := newTestReviewUsecase(states, newFakeContentRepo(), testNow)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			if _, err := uc.RecordReview(context.Background(), entity.ReviewEvent{LearnerID: "u", ContentID: "c", Quality: q}); err != nil {
				t.Errorf("RecordReview: %v", err)
			}
		}(i%5 + 1)
	}
	wg.Wait()

	st, err := states.Get(context.Background(), entity.StateKey{LearnerID: "u", ContentID: "c"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if st.TotalReviews != n {
		t.Fatalf("lost update: total reviews %d want %d", st.TotalReviews, n)
	}
	if st.SuccessCount != n*3/5 {
		t.Fatalf("expected %d successes, got %d", n*3/5, st.SuccessCount)
	}
}

func TestRecordReview_ExerciseTypeLabelsBounded(t *testing.T) {
	uc := newTestReviewUsecase(newFakeStateRepo(), newFakeContentRepo(), testNow)
	collector := metrics.NewCollector(nil)
	uc.metrics = collector
	uc.store.metrics = collector
	ctx := context.Background()

	rt := 2.0
	for i := 0; i < 50; i++ {
		event := entity.ReviewEvent{LearnerID: "u", ContentID: fmt.Sprintf("c%d", i), Quality: 4, ExerciseType: fmt.Sprintf("x-%d", i), ResponseTimeSeconds: &rt}
		if _, err := uc.RecordReview(ctx, event); err != nil {
			t.Fatalf("RecordReview: %v", err)
		}
	}
	if _, err := uc.RecordReview(ctx, entity.ReviewEvent{LearnerID: "u", ContentID: "audio-1", Quality: 4, ExerciseType: "Audio", ResponseTimeSeconds: &rt}); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}

	if n := testutil.CollectAndCount(collector.ResponseTime); n != 2 {
		t.Fatalf("expected 2 exercise_type series, got %d", n)
	}
	families, err := collector.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	counts := map[string]uint64{}
	for _, mf := range families {
		if mf.GetName() != "spacedrep_review_response_seconds" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "exercise_type" {
					counts[lp.GetValue()] = m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	if counts["other"] != 50 || counts["audio"] != 1 {
		t.Fatalf("unexpected exercise_type samples %v", counts)
	}
}

func TestInitializeContent_Idempotent(t *testing.T) {
	states := newFakeStateRepo()
	uc := newTestReviewUsecase(states, newFakeContentRepo(), testNow)
	ctx := context.Background()

	created, err := uc.InitializeContent(ctx, "u", []string{"a", "b", "c"})
	if err != nil || created != 3 {
		t.Fatalf("first init: created=%d err=%v", created, err)
	}
	created, err = uc.InitializeContent(ctx, "u", []string{"b", " c ", "d", "d"})
	if err != nil || created != 1 {
		t.Fatalf("second init: created=%d err=%v", created, err)
	}
	if states.creates != 4 {
		t.Fatalf("expected 4 inserts, got %d", states.creates)
	}

	st, err := states.Get(ctx, entity.StateKey{LearnerID: "u", ContentID: "d"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !st.NextReview.Equal(testNow) || st.EaseFactor != 2.5 || st.CurrentInterval != 24 || st.Repetitions != 0 {
		t.Fatalf("unexpected initial state: %+v", st)
	}

	if _, err := uc.InitializeContent(ctx, "u", []string{"ok", ""}); !entity.IsValidation(err) {
		t.Fatalf("expected validation error for blank id, got %v", err)
	}
	if created, err := uc.InitializeContent(ctx, "u", nil); err != nil || created != 0 {
		t.Fatalf("empty init: created=%d err=%v", created, err)
	}
}

type racingStateRepo struct {
	*fakeStateRepo
}

// ExistingContentIDs hides every record so inserts collide with rows created by a concurrent caller.
func (r racingStateRepo) ExistingContentIDs(context.Context, string, []string) ([]string, error) {
	return nil, nil
}

func TestInitializeContent_DuplicateRaceIsNoop(t *testing.T) {
	states := newFakeStateRepo()
	states.put(entity.NewLearnerContentState("pre", entity.StateKey{LearnerID: "u", ContentID: "a"}, testNow))
	uc := NewReviewUsecase(racingStateRepo{states}, newFakeContentRepo(), DefaultOptions(), nil, nil)

	created, err := uc.InitializeContent(context.Background(), "u", []string{"a", "b"})
	if err != nil {
		t.Fatalf("duplicate insert must be a no-op, got %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 created, got %d", created)
	}
}

func TestBatchReview_ContinuesPastFailures(t *testing.T) {
	uc := newTestReviewUsecase(newFakeStateRepo(), newFakeContentRepo(), testNow)
	results, err := uc.BatchReview(context.Background(), "u", []entity.ReviewEvent{
		{ContentID: "a", Quality: 5},
		{ContentID: "b", Quality: 9},
		{ContentID: "c", Quality: 2},
	})
	if err != nil {
		t.Fatalf("BatchReview: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Result.State.CurrentInterval != 168 {
		t.Fatalf("unexpected first result: %+v", results[0])
	}
	if !entity.IsValidation(results[1].Err) || results[1].Result != nil {
		t.Fatalf("expected validation failure for second item: %+v", results[1])
	}
	if results[2].Err != nil || results[2].Result.State.Repetitions != 0 || results[2].Result.State.CurrentInterval != 6 {
		t.Fatalf("unexpected third result: %+v", results[2])
	}

	if _, err := uc.BatchReview(context.Background(), "u", nil); !entity.IsValidation(err) {
		t.Fatalf("expected validation error for empty batch, got %v", err)
	}
}

func TestBatchReview_RejectsOversizedBatch(t *testing.T) {
	states := newFakeStateRepo()
	uc := newTestReviewUsecase(states, newFakeContentRepo(), testNow)
	events := make([]entity.ReviewEvent, MaxBatchReviews+1)
	for i := range events {
		events[i] = entity.ReviewEvent{ContentID: fmt.Sprintf("c%d", i), Quality: 3}
	}
	if _, err := uc.BatchReview(context.Background(), "u", events); !entity.IsValidation(err) {
		t.Fatalf("expected validation error for oversized batch, got %v", err)
	}
	if n, _ := states.Count(context.Background()); n != 0 {
		t.Fatalf("oversized batch must not write, got %d records", n)
	}
	results, err := uc.BatchReview(context.Background(), "u", events[:MaxBatchReviews])
	if err != nil || len(results) != MaxBatchReviews {
		t.Fatalf("expected a full batch to be accepted, got %d results, err %v", len(results), err)
	}
}

func TestResetItem(t *testing.T) {
	states := newFakeStateRepo()
	uc := newTestReviewUsecase(states, newFakeContentRepo(), testNow)
	ctx := context.Background()

	if _, err := uc.ResetItem(ctx, "u", "c"); !entity.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	for _, q := range []int{5, 4, 4} {
		if _, err := uc.RecordReview(ctx, entity.ReviewEvent{LearnerID: "u", ContentID: "c", Quality: q}); err != nil {
			t.Fatalf("RecordReview: %v", err)
		}
	}
	before, _ := uc.GetState(ctx, "u", "c")

	later := testNow.Add(48 * time.Hour)
	uc.clock = fixedClock(later)
	st, err := uc.ResetItem(ctx, "u", "c")
	if err != nil {
		t.Fatalf("ResetItem: %v", err)
	}
	if st.ID != before.ID || !st.CreatedAt.Equal(before.CreatedAt) {
		t.Fatalf("reset must preserve identity: before=%+v after=%+v", before, st)
	}
	if st.EaseFactor != 2.5 || st.CurrentInterval != 24 || st.Repetitions != 0 || st.TotalReviews != 0 || st.SuccessCount != 0 {
		t.Fatalf("reset did not restore defaults: %+v", st)
	}
	if st.LastReviewed != nil || st.LastResponseQuality != nil || !st.NextReview.Equal(later) {
		t.Fatalf("reset did not clear review fields: %+v", st)
	}
	if st.Version != before.Version+1 {
		t.Fatalf("expected version bump, got %d after %d", st.Version, before.Version)
	}
}

func TestGetStateAndListStates(t *testing.T) {
	states := newFakeStateRepo()
	uc := newTestReviewUsecase(states, newFakeContentRepo(), testNow)
	ctx := context.Background()

	if _, err := uc.GetState(ctx, "u", "missing"); !entity.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := uc.InitializeContent(ctx, "u", []string{"verb-run", "verb-walk", "noun-cat"}); err != nil {
		t.Fatalf("InitializeContent: %v", err)
	}
	for _, id := range []string{"verb-run", "noun-cat"} {
		if _, err := uc.RecordReview(ctx, entity.ReviewEvent{LearnerID: "u", ContentID: id, Quality: 5}); err != nil {
			t.Fatalf("RecordReview: %v", err)
		}
	}

	query := &repository.ListStateQuery{
		LearnerID:   "u",
		FilterOrder: repository.FilterOrder{Filter: `content_id.startsWith("verb-")`, OrderBy: "next_review desc"},
	}
	got, total, err := uc.ListStates(ctx, query)
	if err != nil {
		t.Fatalf("ListStates: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("expected 2 verbs, got total=%d len=%d", total, len(got))
	}
	if got[0].ContentID != "verb-run" {
		t.Fatalf("expected latest next review first, got %s", got[0].ContentID)
	}

	bad := &repository.ListStateQuery{LearnerID: "u", FilterOrder: repository.FilterOrder{Filter: `difficulty >= 3`}}
	if _, _, err := uc.ListStates(ctx, bad); !entity.IsValidation(err) || !errors.Is(err, entity.ErrInvalidFilter) {
		t.Fatalf("expected invalid filter, got %v", err)
	}
}
