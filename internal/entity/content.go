package entity

import "math"

// Difficulty bounds of a content item.
const (
	MinDifficulty     = 1.0
	MaxDifficulty     = 10.0
	DefaultDifficulty = 5.0
)

// ContentItem is the catalogue entry the scheduler reads difficulty from.
type ContentItem struct {
	ID         string
	Difficulty float64
}

// DifficultyOrDefault returns the item difficulty, falling back to the scale midpoint
// when the item is unknown or carries an out-of-range value.
func (c *ContentItem) DifficultyOrDefault() float64 {
	if c == nil || math.IsNaN(c.Difficulty) || c.Difficulty < MinDifficulty || c.Difficulty > MaxDifficulty {
		return DefaultDifficulty
	}
	return c.Difficulty
}
