package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/repository"
	"github.com/eslsoft/spacedrep/internal/usecase"
)

const maxBodyBytes = 1 << 20

// Handler exposes the review scheduler over JSON/HTTP.
type Handler struct {
	review usecase.ReviewUsecase
	queue  usecase.QueueUsecase
	stats  usecase.StatsUsecase
	logger logrus.FieldLogger
}

// NewHandler creates the HTTP handler set.
func NewHandler(review usecase.ReviewUsecase, queue usecase.QueueUsecase, stats usecase.StatsUsecase, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{review: review, queue: queue, stats: stats, logger: logger}
}

// Routes registers the API under r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/learners/{learnerID}", func(r chi.Router) {
			r.Post("/items/initialize", h.InitializeContent)
			r.Get("/items", h.ListStates)
			r.Get("/items/{contentID}", h.GetState)
			r.Post("/items/{contentID}/reset", h.ResetItem)
			r.Post("/reviews", h.RecordReview)
			r.Post("/reviews/batch", h.BatchReview)
			r.Get("/queue", h.GetDueItems)
			r.Get("/stats", h.GetStats)
			r.Get("/upcoming", h.UpcomingReviews)
			r.Get("/trends", h.PerformanceTrends)
		})
		r.Get("/contents/{contentID}/difficulty-adjustment", h.GetDifficultyAdjustment)
	})
}

// InitializeContent handles POST /v1/learners/{learnerID}/items/initialize
func (h *Handler) InitializeContent(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	created, err := h.review.InitializeContent(r.Context(), chi.URLParam(r, "learnerID"), req.ContentIDs)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, initializeResponse{Created: created})
}

// ListStates handles GET /v1/learners/{learnerID}/items
func (h *Handler) ListStates(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pageNo, err := queryInt(r, "page_no")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	pageSize, err := queryInt(r, "page_size")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	page, err := repository.NewPagination(pageNo, pageSize)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	query := &repository.ListStateQuery{
		Pagination:  page,
		FilterOrder: repository.FilterOrder{Filter: q.Get("filter"), OrderBy: q.Get("order_by")},
		LearnerID:   chi.URLParam(r, "learnerID"),
	}
	states, total, err := h.review.ListStates(r.Context(), query)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, listStatesResponse{
		Items:    lo.Map(states, func(s *entity.LearnerContentState, _ int) *stateResponse { return toStateResponse(s) }),
		Total:    total,
		PageNo:   query.PageNo,
		PageSize: query.PageSize,
	})
}

// GetState handles GET /v1/learners/{learnerID}/items/{contentID}
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.review.GetState(r.Context(), chi.URLParam(r, "learnerID"), chi.URLParam(r, "contentID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStateResponse(state))
}

// ResetItem handles POST /v1/learners/{learnerID}/items/{contentID}/reset
func (h *Handler) ResetItem(w http.ResponseWriter, r *http.Request) {
	state, err := h.review.ResetItem(r.Context(), chi.URLParam(r, "learnerID"), chi.URLParam(r, "contentID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toStateResponse(state))
}

// RecordReview handles POST /v1/learners/{learnerID}/reviews
func (h *Handler) RecordReview(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.review.RecordReview(r.Context(), req.toEvent(chi.URLParam(r, "learnerID")))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toReviewResponse(result))
}

// BatchReview handles POST /v1/learners/{learnerID}/reviews/batch
func (h *Handler) BatchReview(w http.ResponseWriter, r *http.Request) {
	var req batchReviewRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	learnerID := chi.URLParam(r, "learnerID")
	events := lo.Map(req.Reviews, func(rr reviewRequest, _ int) entity.ReviewEvent { return rr.toEvent(learnerID) })
	results, err := h.review.BatchReview(r.Context(), learnerID, events)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]batchItemResponse, 0, len(results))
	for _, res := range results {
		item := batchItemResponse{ContentID: res.ContentID}
		if res.Err != nil {
			_, body := errorResponse(res.Err)
			item.Error = &body
		} else {
			item.Result = toReviewResponse(res.Result)
		}
		items = append(items, item)
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": items})
}

// GetDueItems handles GET /v1/learners/{learnerID}/queue
func (h *Handler) GetDueItems(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	queue, err := h.queue.GetDueItems(r.Context(), chi.URLParam(r, "learnerID"), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toQueueResponse(queue))
}

// GetStats handles GET /v1/learners/{learnerID}/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.GetStats(r.Context(), chi.URLParam(r, "learnerID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// UpcomingReviews handles GET /v1/learners/{learnerID}/upcoming
func (h *Handler) UpcomingReviews(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days")
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if days == 0 {
		days = 7
	}
	upcoming, err := h.stats.UpcomingReviews(r.Context(), chi.URLParam(r, "learnerID"), days)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, upcomingResponse{Days: upcoming})
}

// PerformanceTrends handles GET /v1/learners/{learnerID}/trends
func (h *Handler) PerformanceTrends(w http.ResponseWriter, r *http.Request) {
	trends, err := h.stats.PerformanceTrends(r.Context(), chi.URLParam(r, "learnerID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, trendsResponse{Levels: trends})
}

// GetDifficultyAdjustment handles GET /v1/contents/{contentID}/difficulty-adjustment
func (h *Handler) GetDifficultyAdjustment(w http.ResponseWriter, r *http.Request) {
	adj, err := h.stats.GetDifficultyAdjustment(r.Context(), chi.URLParam(r, "contentID"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, adj)
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return entity.NewValidationError("body", errors.New("request body is empty"))
		}
		return entity.NewValidationError("body", fmt.Errorf("malformed JSON: %w", err))
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, entity.NewValidationError(name, fmt.Errorf("not an integer: %q", raw))
	}
	return v, nil
}
