package httpapi

import (
	"time"

	"github.com/samber/lo"

	"github.com/eslsoft/spacedrep/internal/entity"
	"github.com/eslsoft/spacedrep/internal/usecase"
)

type initializeRequest struct {
	ContentIDs []string `json:"content_ids"`
}

type initializeResponse struct {
	Created int `json:"created"`
}

type reviewRequest struct {
	ContentID           string   `json:"content_id"`
	Quality             int      `json:"quality"`
	ResponseTimeSeconds *float64 `json:"response_time_seconds,omitempty"`
	ExerciseType        string   `json:"exercise_type,omitempty"`
}

func (r reviewRequest) toEvent(learnerID string) entity.ReviewEvent {
	return entity.ReviewEvent{
		LearnerID:           learnerID,
		ContentID:           r.ContentID,
		Quality:             r.Quality,
		ResponseTimeSeconds: r.ResponseTimeSeconds,
		ExerciseType:        r.ExerciseType,
	}
}

type batchReviewRequest struct {
	Reviews []reviewRequest `json:"reviews"`
}

type stateResponse struct {
	ID                  string     `json:"id"`
	LearnerID           string     `json:"learner_id"`
	ContentID           string     `json:"content_id"`
	EaseFactor          float64    `json:"ease_factor"`
	CurrentInterval     float64    `json:"current_interval"`
	Repetitions         int        `json:"repetitions"`
	TotalReviews        int        `json:"total_reviews"`
	SuccessCount        int        `json:"success_count"`
	LastReviewed        *time.Time `json:"last_reviewed,omitempty"`
	NextReview          time.Time  `json:"next_review"`
	LastResponseQuality *int       `json:"last_response_quality,omitempty"`
	Version             int64      `json:"version"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toStateResponse(s *entity.LearnerContentState) *stateResponse {
	if s == nil {
		return nil
	}
	return &stateResponse{
		ID:                  s.ID,
		LearnerID:           s.LearnerID,
		ContentID:           s.ContentID,
		EaseFactor:          s.EaseFactor,
		CurrentInterval:     s.CurrentInterval,
		Repetitions:         s.Repetitions,
		TotalReviews:        s.TotalReviews,
		SuccessCount:        s.SuccessCount,
		LastReviewed:        s.LastReviewed,
		NextReview:          s.NextReview,
		LastResponseQuality: s.LastResponseQuality,
		Version:             s.Version,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

type reviewResponse struct {
	State      *stateResponse `json:"state"`
	HalfLife   float64        `json:"half_life"`
	Confidence float64        `json:"confidence"`
	TypeWeight float64        `json:"type_weight"`
	Fallback   bool           `json:"fallback,omitempty"`
}

func toReviewResponse(r *usecase.ReviewResult) *reviewResponse {
	return &reviewResponse{
		State:      toStateResponse(r.State),
		HalfLife:   r.HalfLife,
		Confidence: r.Confidence,
		TypeWeight: r.TypeWeight,
		Fallback:   r.Fallback,
	}
}

type batchItemResponse struct {
	ContentID string          `json:"content_id"`
	Result    *reviewResponse `json:"result,omitempty"`
	Error     *errorBody      `json:"error,omitempty"`
}

type listStatesResponse struct {
	Items    []*stateResponse `json:"items"`
	Total    int64            `json:"total"`
	PageNo   int32            `json:"page_no"`
	PageSize int32            `json:"page_size"`
}

type queueItemResponse struct {
	ContentID         string     `json:"content_id"`
	Tier              string     `json:"tier"`
	RecallProbability float64    `json:"recall_probability"`
	Recommendation    string     `json:"recommendation"`
	HalfLife          float64    `json:"half_life"`
	ElapsedHours      float64    `json:"elapsed_hours"`
	HoursOverdue      float64    `json:"hours_overdue"`
	NextReview        time.Time  `json:"next_review"`
	LastReviewed      *time.Time `json:"last_reviewed,omitempty"`
	Difficulty        float64    `json:"difficulty"`
	EaseFactor        float64    `json:"ease_factor"`
	CurrentInterval   float64    `json:"current_interval"`
	Repetitions       int        `json:"repetitions"`
}

type queueResponse struct {
	Items            []queueItemResponse `json:"items"`
	TotalDue         int                 `json:"total_due"`
	EstimatedMinutes int                 `json:"estimated_minutes"`
}

func toQueueResponse(q *usecase.ReviewQueue) *queueResponse {
	return &queueResponse{
		Items: lo.Map(q.Items, func(it usecase.QueueItem, _ int) queueItemResponse {
			return queueItemResponse{
				ContentID:         it.ContentID,
				Tier:              it.Tier.String(),
				RecallProbability: it.RecallProbability,
				Recommendation:    string(it.Recommendation),
				HalfLife:          it.HalfLife,
				ElapsedHours:      it.ElapsedHours,
				HoursOverdue:      it.HoursOverdue,
				NextReview:        it.NextReview,
				LastReviewed:      it.LastReviewed,
				Difficulty:        it.Difficulty,
				EaseFactor:        it.EaseFactor,
				CurrentInterval:   it.CurrentInterval,
				Repetitions:       it.Repetitions,
			}
		}),
		TotalDue:         q.TotalDue,
		EstimatedMinutes: q.EstimatedMinutes,
	}
}

type upcomingResponse struct {
	Days []usecase.UpcomingDay `json:"days"`
}

type trendsResponse struct {
	Levels []usecase.DifficultyTrend `json:"levels"`
}
