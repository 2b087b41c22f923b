package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"

	adapterrepo "github.com/eslsoft/spacedrep/internal/adapter/repository"
	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/infrastructure/config"
	"github.com/eslsoft/spacedrep/internal/infrastructure/database"
	"github.com/eslsoft/spacedrep/internal/usecase"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "api.db") + "?_busy_timeout=5000"
	db, cleanup, err := database.Open(config.DriverSQLite, dsn)
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(cleanup)
	if err := database.Migrate(context.Background(), db, config.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	states := adapterrepo.NewSQLiteStateRepository(db, 3)
	contents := adapterrepo.NewSQLContentRepository(db, config.DriverSQLite)
	if err := contents.Save(context.Background(), &entity.ContentItem{ID: "c1", Difficulty: 8}); err != nil {
		t.Fatalf("save content: %v", err)
	}

	opts := usecase.DefaultOptions()
	h := NewHandler(
		usecase.NewReviewUsecase(states, contents, opts, nil, nil),
		usecase.NewQueueUsecase(states, contents, opts, nil, nil),
		usecase.NewStatsUsecase(states, contents, opts, nil, nil),
		nil,
	)
	r := chi.NewRouter()
	h.Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestReviewFlow(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/v1/learners/alice/items/initialize", initializeRequest{ContentIDs: []string{"c1", "c2", "c1"}})
	if rec.Code != http.StatusOK || decode[initializeResponse](t, rec).Created != 2 {
		t.Fatalf("initialize: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/v1/learners/alice/queue?limit=5", nil)
	queue := decode[queueResponse](t, rec)
	if rec.Code != http.StatusOK || len(queue.Items) != 2 || queue.Items[0].Tier != "due_now" || queue.TotalDue != 2 {
		t.Fatalf("queue: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/learners/alice/reviews", reviewRequest{ContentID: "c1", Quality: 3, ExerciseType: "audio"})
	review := decode[reviewResponse](t, rec)
	if rec.Code != http.StatusOK || review.State.Repetitions != 1 || review.State.CurrentInterval != 24 || review.TypeWeight != 1.2 {
		t.Fatalf("review: %d %s", rec.Code, rec.Body.String())
	}
	if review.HalfLife != 97.5 {
		t.Fatalf("expected difficulty-adjusted half-life 97.5, got %v", review.HalfLife)
	}

	rec = do(t, h, http.MethodPost, "/v1/learners/alice/reviews/batch", batchReviewRequest{Reviews: []reviewRequest{
		{ContentID: "c1", Quality: 1},
		{ContentID: "c2", Quality: 9},
	}})
	batch := decode[struct {
		Results []batchItemResponse `json:"results"`
	}](t, rec)
	if rec.Code != http.StatusOK || len(batch.Results) != 2 {
		t.Fatalf("batch: %d %s", rec.Code, rec.Body.String())
	}
	if batch.Results[0].Result == nil || batch.Results[0].Result.State.CurrentInterval != 1 {
		t.Fatalf("first batch item: %+v", batch.Results[0])
	}
	if batch.Results[1].Error == nil || batch.Results[1].Error.Code != "InvalidArgument" {
		t.Fatalf("second batch item: %+v", batch.Results[1])
	}

	rec = do(t, h, http.MethodGet, "/v1/learners/alice/items/c1", nil)
	if st := decode[stateResponse](t, rec); rec.Code != http.StatusOK || st.TotalReviews != 2 || st.SuccessCount != 1 {
		t.Fatalf("get state: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/v1/learners/alice/items?filter="+`repetitions%20%3E%3D%200`+"&order_by=content_id&page_size=1", nil)
	list := decode[listStatesResponse](t, rec)
	if rec.Code != http.StatusOK || list.Total != 2 || len(list.Items) != 1 || list.Items[0].ContentID != "c1" {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/v1/learners/alice/stats", nil)
	if stats := decode[usecase.LearnerStats](t, rec); rec.Code != http.StatusOK || stats.TotalItems != 2 || stats.TotalReviews != 2 {
		t.Fatalf("stats: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/v1/learners/alice/upcoming?days=3", nil)
	if up := decode[upcomingResponse](t, rec); rec.Code != http.StatusOK || len(up.Days) != 3 {
		t.Fatalf("upcoming: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/v1/learners/alice/trends", nil)
	if tr := decode[trendsResponse](t, rec); rec.Code != http.StatusOK || len(tr.Levels) == 0 {
		t.Fatalf("trends: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodGet, "/v1/contents/c1/difficulty-adjustment", nil)
	if adj := decode[usecase.DifficultyAdjustment](t, rec); rec.Code != http.StatusOK || adj.Reason != usecase.ReasonInsufficientData {
		t.Fatalf("difficulty: %d %s", rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, "/v1/learners/alice/items/c1/reset", nil)
	if st := decode[stateResponse](t, rec); rec.Code != http.StatusOK || st.TotalReviews != 0 || st.CurrentInterval != 24 {
		t.Fatalf("reset: %d %s", rec.Code, rec.Body.String())
	}
}

func TestErrorResponses(t *testing.T) {
	h := newTestRouter(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"bad quality", http.MethodPost, "/v1/learners/alice/reviews", reviewRequest{ContentID: "c1", Quality: 0}, http.StatusBadRequest, "InvalidArgument"},
		{"malformed body", http.MethodPost, "/v1/learners/alice/reviews", "{", http.StatusBadRequest, "InvalidArgument"},
		{"unknown field", http.MethodPost, "/v1/learners/alice/reviews", `{"content_id":"c1","quality":3,"grade":"A"}`, http.StatusBadRequest, "InvalidArgument"},
		{"missing state", http.MethodGet, "/v1/learners/alice/items/nope", nil, http.StatusNotFound, "NotFound"},
		{"reset missing", http.MethodPost, "/v1/learners/alice/items/nope/reset", nil, http.StatusNotFound, "NotFound"},
		{"limit too large", http.MethodGet, "/v1/learners/alice/queue?limit=101", nil, http.StatusBadRequest, "InvalidArgument"},
		{"limit not a number", http.MethodGet, "/v1/learners/alice/queue?limit=ten", nil, http.StatusBadRequest, "InvalidArgument"},
		{"bad filter", http.MethodGet, "/v1/learners/alice/items?filter=ease_factor%20%3D%3D", nil, http.StatusBadRequest, "InvalidArgument"},
		{"too many days", http.MethodGet, "/v1/learners/alice/upcoming?days=91", nil, http.StatusBadRequest, "InvalidArgument"},
		{"empty batch", http.MethodPost, "/v1/learners/alice/reviews/batch", batchReviewRequest{}, http.StatusBadRequest, "InvalidArgument"},
		{"oversized batch", http.MethodPost, "/v1/learners/alice/reviews/batch", oversizedBatch(), http.StatusBadRequest, "InvalidArgument"},
		{"page out of range", http.MethodGet, "/v1/learners/alice/items?page_no=5000000&page_size=500", nil, http.StatusBadRequest, "InvalidArgument"},
		{"negative page size", http.MethodGet, "/v1/learners/alice/items?page_size=-1", nil, http.StatusBadRequest, "InvalidArgument"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status %d want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			if body := decode[errorBody](t, rec); body.Code != tc.code || body.Message == "" {
				t.Fatalf("unexpected error body %+v", body)
			}
		})
	}
}

func oversizedBatch() batchReviewRequest {
	req := batchReviewRequest{Reviews: make([]reviewRequest, usecase.MaxBatchReviews+1)}
	for i := range req.Reviews {
		req.Reviews[i] = reviewRequest{ContentID: fmt.Sprintf("c%d", i), Quality: 3}
	}
	return req
}

func TestErrorResponse_HidesInternalDetails(t *testing.T) {
	status, body := errorResponse(errors.New("pq: secret table exploded"))
	if status != http.StatusInternalServerError || body.Code != "Internal" || body.Message != "internal error" {
		t.Fatalf("unexpected internal error mapping %d %+v", status, body)
	}
	status, body = errorResponse(entity.NewStorageError("get state", errors.New("connection refused")))
	if status != http.StatusServiceUnavailable || body.Code != "Unavailable" {
		t.Fatalf("unexpected storage error mapping %d %+v", status, body)
	}
}
