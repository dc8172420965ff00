package shared

import "math"

const (
	// DefaultLimit applies when a list filter does not set Limit.
	DefaultLimit = 20
	// MaxLimit caps any requested page size.
	MaxLimit = 500
)

// ListFilter carries paging options shared by list queries. Zero values mean
// limit=20, offset=0.
type ListFilter struct {
	Limit  int
	Offset int
}

// Normalize applies defaults and bounds.
func (f ListFilter) Normalize() ListFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Pagination contains metadata for paginated listings.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
}

// NewPagination computes pagination metadata.
func NewPagination(page, perPage, total int) Pagination {
	if perPage <= 0 {
		perPage = DefaultLimit
	}
	if page <= 0 {
		page = 1
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}
}
