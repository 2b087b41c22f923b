package entity

import (
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Review quality bounds and the success threshold.
const (
	MinQuality     = 1
	MaxQuality     = 5
	PassingQuality = 3
	maxIDLength    = 128
)

// ReviewEvent is a single review outcome submitted by a learner.
type ReviewEvent struct {
	LearnerID           string   `json:"learner_id" validate:"required,max=128"`
	ContentID           string   `json:"content_id" validate:"required,max=128"`
	Quality             int      `json:"quality" validate:"min=1,max=5"`
	ResponseTimeSeconds *float64 `json:"response_time_seconds,omitempty" validate:"omitempty,gte=0"`
	ExerciseType        string   `json:"exercise_type,omitempty" validate:"omitempty,max=64"`
}

// Key returns the learner-content key the event addresses.
func (e ReviewEvent) Key() StateKey {
	return StateKey{LearnerID: e.LearnerID, ContentID: e.ContentID}
}

// Passed reports whether the quality counts as a successful recall.
func (e ReviewEvent) Passed() bool {
	return e.Quality >= PassingQuality
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate checks the event and reports the first offending field as a ValidationError.
func (e *ReviewEvent) Validate() error {
	e.LearnerID = strings.TrimSpace(e.LearnerID)
	e.ContentID = strings.TrimSpace(e.ContentID)
	e.ExerciseType = strings.TrimSpace(e.ExerciseType)

	err := validatorInstance().Struct(e)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return NewValidationError("review", err)
	}
	fe := fieldErrs[0]
	switch fe.Field() {
	case "LearnerID":
		return NewValidationError("learner_id", ErrInvalidLearnerID)
	case "ContentID":
		return NewValidationError("content_id", ErrInvalidContentID)
	case "Quality":
		return NewValidationError("quality", ErrInvalidQuality)
	case "ResponseTimeSeconds":
		return NewValidationError("response_time_seconds", ErrInvalidReview)
	default:
		return NewValidationError(strings.ToLower(fe.Field()), ErrInvalidReview)
	}
}

// ValidateQuality rejects qualities outside [1,5].
func ValidateQuality(quality int) error {
	if quality < MinQuality || quality > MaxQuality {
		return NewValidationError("quality", ErrInvalidQuality)
	}
	return nil
}

// ValidateLearnerID trims and checks a learner identifier.
func ValidateLearnerID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if err := validatorInstance().Var(id, "required,max=128"); err != nil {
		return "", NewValidationError("learner_id", ErrInvalidLearnerID)
	}
	return id, nil
}

// ValidateContentID trims and checks a content identifier.
func ValidateContentID(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxIDLength {
		return "", NewValidationError("content_id", ErrInvalidContentID)
	}
	return id, nil
}

// ValidateKey validates both halves of a learner-content key.
func ValidateKey(learnerID, contentID string) (StateKey, error) {
	lid, err := ValidateLearnerID(learnerID)
	if err != nil {
		return StateKey{}, err
	}
	cid, err := ValidateContentID(contentID)
	if err != nil {
		return StateKey{}, err
	}
	return StateKey{LearnerID: lid, ContentID: cid}, nil
}
