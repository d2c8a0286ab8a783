package common

import (
	"net/http"
	"strconv"
)

// MaxPageSize caps page_size.
const MaxPageSize = 100

// PaginationParams represents pagination parameters
type PaginationParams struct {
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
	Order    string `json:"order,omitempty"`
}

// DefaultPaginationParams returns default pagination parameters
func DefaultPaginationParams() PaginationParams {
	return PaginationParams{
		Page:     1,
		PageSize: 20,
		Order:    "desc",
	}
}

// ExtractPaginationParams extracts pagination parameters from request.
// Malformed values fall back to the defaults.
func ExtractPaginationParams(r *http.Request) PaginationParams {
	params := DefaultPaginationParams()
	q := r.URL.Query()

	if page := q.Get("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			params.Page = p
		}
	}

	if pageSize := q.Get("page_size"); pageSize != "" {
		if ps, err := strconv.Atoi(pageSize); err == nil && ps > 0 {
			params.PageSize = min(ps, MaxPageSize)
		}
	}

	if order := q.Get("order"); order == "asc" || order == "desc" {
		params.Order = order
	}

	return params
}

// CalculateOffset calculates the offset of the first item on the page
func (p PaginationParams) CalculateOffset() int {
	return (p.Page - 1) * p.PageSize
}

// CalculateTotalPages calculates total number of pages
func CalculateTotalPages(total, pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	pages := total / pageSize
	if total%pageSize > 0 {
		pages++
	}
	return pages
}

// BuildPaginationMeta builds pagination metadata
func BuildPaginationMeta(page, pageSize, total int) *PaginationInfo {
	totalPages := CalculateTotalPages(total, pageSize)

	return &PaginationInfo{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// Paginate returns the page of items selected by p. items are assumed to
// be in descending order already; "asc" reverses them first.
func Paginate[T any](items []T, p PaginationParams) ([]T, *PaginationInfo) {
	ordered := items
	if p.Order == "asc" {
		ordered = make([]T, len(items))
		for i, it := range items {
			ordered[len(items)-1-i] = it
		}
	}

	start := min(p.CalculateOffset(), len(ordered))
	end := min(start+p.PageSize, len(ordered))
	page := make([]T, end-start)
	copy(page, ordered[start:end])
	return page, BuildPaginationMeta(p.Page, p.PageSize, len(items))
}
