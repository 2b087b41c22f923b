package entity

import (
	"strings"
	"time"
)

// Default scheduling parameters for a freshly created or reset record.
const (
	DefaultEaseFactor    = 2.5
	DefaultIntervalHours = 24.0
)

// StateKey identifies a learner-content pair.
type StateKey struct {
	LearnerID string
	ContentID string
}

func (k StateKey) String() string {
	return k.LearnerID + "/" + k.ContentID
}

// LearnerContentState is the persisted spaced repetition record for one learner and one content item.
// CurrentInterval is expressed in hours.
type LearnerContentState struct {
	ID                  string
	LearnerID           string
	ContentID           string
	EaseFactor          float64
	CurrentInterval     float64
	Repetitions         int
	TotalReviews        int
	SuccessCount        int
	LastReviewed        *time.Time
	NextReview          time.Time
	LastResponseQuality *int
	Version             int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewLearnerContentState builds a record that is immediately eligible for review.
func NewLearnerContentState(id string, key StateKey, now time.Time) *LearnerContentState {
	st := &LearnerContentState{
		ID:        id,
		LearnerID: key.LearnerID,
		ContentID: key.ContentID,
		CreatedAt: now,
	}
	st.Reset(now)
	return st
}

// Reset restores the default schedule while keeping the record identity.
func (s *LearnerContentState) Reset(now time.Time) {
	s.EaseFactor = DefaultEaseFactor
	s.CurrentInterval = DefaultIntervalHours
	s.Repetitions = 0
	s.TotalReviews = 0
	s.SuccessCount = 0
	s.LastReviewed = nil
	s.NextReview = now
	s.LastResponseQuality = nil
	s.Normalize(now)
}

// Key returns the learner-content key of the record.
func (s *LearnerContentState) Key() StateKey {
	return StateKey{LearnerID: s.LearnerID, ContentID: s.ContentID}
}

// SuccessRate returns successCount/totalReviews, or 0 when the item was never reviewed.
func (s *LearnerContentState) SuccessRate() float64 {
	if s.TotalReviews <= 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.TotalReviews)
}

// ElapsedHours reports the hours since the last review. Never reviewed items are
// assumed to be twice their current interval old.
func (s *LearnerContentState) ElapsedHours(now time.Time) float64 {
	if s.LastReviewed == nil {
		return 2 * s.CurrentInterval
	}
	return now.Sub(*s.LastReviewed).Hours()
}

// Reviewed reports whether the record has at least one recorded review.
func (s *LearnerContentState) Reviewed() bool {
	return s.TotalReviews > 0
}

// Normalize ensures defaults & constraints before persistence.
func (s *LearnerContentState) Normalize(now time.Time) {
	s.LearnerID = strings.TrimSpace(s.LearnerID)
	s.ContentID = strings.TrimSpace(s.ContentID)
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.Version <= 0 {
		s.Version = 1
	}
}

// Clone returns a deep copy of the record.
func (s *LearnerContentState) Clone() *LearnerContentState {
	if s == nil {
		return nil
	}
	cp := *s
	if s.LastReviewed != nil {
		t := *s.LastReviewed
		cp.LastReviewed = &t
	}
	if s.LastResponseQuality != nil {
		q := *s.LastResponseQuality
		cp.LastResponseQuality = &q
	}
	return &cp
}
