package repository

import (
	"fmt"

	"github.com/eslsoft/spacedrep/internal/entity"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500

	// MaxPageNo is the largest page_no accepted from requests.
	MaxPageNo = 1_000_000
)

// Pagination holds pagination parameters for listing entities.
type Pagination struct {
	PageNo   int32
	PageSize int32
}

// Normalize clamps page number and size into their accepted ranges.
func (p *Pagination) Normalize() {
	if p.PageNo <= 0 {
		p.PageNo = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	if p.PageNo > MaxPageNo {
		p.PageNo = MaxPageNo
	}
}

func (p *Pagination) Offset() int64 { return int64(p.PageNo-1) * int64(p.PageSize) }

// NewPagination validates raw page parameters from a request. Zero values
// select the defaults; an oversized page_size is clamped.
func NewPagination(pageNo, pageSize int) (Pagination, error) {
	if pageNo < 0 || pageNo > MaxPageNo {
		return Pagination{}, entity.NewValidationError("page_no", fmt.Errorf("%w: page_no must be between 1 and %d", entity.ErrInvalidPage, MaxPageNo))
	}
	if pageSize < 0 {
		return Pagination{}, entity.NewValidationError("page_size", fmt.Errorf("%w: page_size must not be negative", entity.ErrInvalidPage))
	}
	p := Pagination{PageNo: int32(pageNo), PageSize: int32(min(pageSize, maxPageSize))}
	p.Normalize()
	return p, nil
}

// FilterOrder carries the raw CEL filter and order_by strings of a list request.
type FilterOrder struct {
	Filter  string
	OrderBy string
}

func (fo *FilterOrder) GetFilter() string { return fo.Filter }

func (fo *FilterOrder) GetOrderBy() string { return fo.OrderBy }
