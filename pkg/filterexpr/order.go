package filterexpr

import (
	"fmt"
	"strings"
)

// OrderTerm is one key of an ORDER BY list.
type OrderTerm struct {
	Key  string
	Desc bool
}

// OrderSchema whitelists sortable keys. Keys maps each public key to its column.
// Tiebreak is always appended (ascending) unless already present, so paging is stable.
type OrderSchema struct {
	Keys     map[string]string
	Default  []OrderTerm
	Tiebreak string
	MaxTerms int
}

// ParseOrder reads "key [asc|desc], key [asc|desc]".
func ParseOrder(raw string, schema OrderSchema) ([]OrderTerm, error) {
	var terms []OrderTerm
	seen := map[string]bool{}

	for _, seg := range strings.Split(raw, ",") {
		parts := strings.Fields(seg)
		if len(parts) == 0 {
			continue
		}
		if len(parts) > 2 {
			return nil, fmt.Errorf("%w: order segment %q", ErrUnsupported, strings.TrimSpace(seg))
		}
		key := parts[0]
		if _, ok := schema.Keys[key]; !ok {
			return nil, fmt.Errorf("%w: cannot order by %q", ErrUnsupported, key)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate order key %q", ErrUnsupported, key)
		}
		seen[key] = true

		term := OrderTerm{Key: key}
		if len(parts) == 2 {
			switch strings.ToLower(parts[1]) {
			case "asc":
			case "desc":
				term.Desc = true
			default:
				return nil, fmt.Errorf("%w: direction %q", ErrUnsupported, parts[1])
			}
		}
		terms = append(terms, term)
	}

	if schema.MaxTerms > 0 && len(terms) > schema.MaxTerms {
		return nil, fmt.Errorf("%w: at most %d order keys", ErrUnsupported, schema.MaxTerms)
	}
	if len(terms) == 0 {
		terms = append(terms, schema.Default...)
		for _, t := range terms {
			seen[t.Key] = true
		}
	}
	if schema.Tiebreak != "" && !seen[schema.Tiebreak] {
		terms = append(terms, OrderTerm{Key: schema.Tiebreak})
	}
	return terms, nil
}

// SQL renders terms as an ORDER BY body using the schema's column mapping.
func (s OrderSchema) SQL(terms []OrderTerm) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		col, ok := s.Keys[t.Key]
		if !ok {
			continue
		}
		dir := "ASC"
		if t.Desc {
			dir = "DESC"
		}
		parts = append(parts, col+" "+dir)
	}
	return strings.Join(parts, ", ")
}
