package repository

import (
	"strings"

	"github.com/eslsoft/spacedrep/internal/repository"
)

const defaultStateOrder = "next_review ASC, content_id ASC"

// stateWhere renders the compiled list filter as a WHERE body. placeholder
// receives the 1-based argument position so both ? and $n dialects work.
func stateWhere(query *repository.ListStateQuery, placeholder func(int) string) (string, []any) {
	f := query.Compiled
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, strings.Replace(cond, "?", placeholder(len(args)), 1))
	}

	add("learner_id = ?", query.LearnerID)
	if len(f.ContentIDs) > 0 {
		marks := make([]string, 0, len(f.ContentIDs))
		for _, id := range f.ContentIDs {
			args = append(args, id)
			marks = append(marks, placeholder(len(args)))
		}
		conds = append(conds, "content_id IN ("+strings.Join(marks, ", ")+")")
	}
	if f.ContentPrefix != nil {
		add("content_id LIKE ? ESCAPE '\\'", escapeLike(*f.ContentPrefix)+"%")
	}
	if f.MinRepetitions != nil {
		add("repetitions >= ?", *f.MinRepetitions)
	}
	if f.MaxRepetitions != nil {
		add("repetitions <= ?", *f.MaxRepetitions)
	}
	if f.MinEaseFactor != nil {
		add("ease_factor >= ?", *f.MinEaseFactor)
	}
	if f.MaxEaseFactor != nil {
		add("ease_factor <= ?", *f.MaxEaseFactor)
	}
	if f.NextReviewFrom != nil {
		add("next_review >= ?", f.NextReviewFrom.UTC())
	}
	if f.NextReviewTo != nil {
		add("next_review <= ?", f.NextReviewTo.UTC())
	}
	return strings.Join(conds, " AND "), args
}

func orderClause(query *repository.ListStateQuery) string {
	if clause := repository.StateOrderSchema.SQL(query.Compiled.Order); clause != "" {
		return clause
	}
	return defaultStateOrder
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
