package shared

import (
	"strconv"

	"github.com/odyssey-erp/stockflow/internal/shared"
)

// ListFilters represents standard list filters. Inactive rows are hidden unless
// IncludeInactive is set.
type ListFilters struct {
	shared.ListFilter
	Search          string
	SortBy          string
	SortDir         string
	IncludeInactive bool
}

// ParseListFilters reads limit, offset, search, sort, dir and inactive query values.
// Malformed numbers fall back to the defaults.
func ParseListFilters(get func(string) string) ListFilters {
	limit, _ := strconv.Atoi(get("limit"))
	offset, _ := strconv.Atoi(get("offset"))
	inactive, _ := strconv.ParseBool(get("inactive"))
	return ListFilters{
		ListFilter:      shared.ListFilter{Limit: limit, Offset: offset}.Normalize(),
		Search:          get("search"),
		SortBy:          get("sort"),
		SortDir:         get("dir"),
		IncludeInactive: inactive,
	}
}

// SortOrder maps a requested column to a safe ORDER BY clause; unknown columns use fallback.
func SortOrder(sortBy, sortDir string, allowed map[string]string, fallback string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	col, ok := allowed[sortBy]
	if !ok {
		col = fallback
	}
	return col + " " + dir + ", id " + dir
}
