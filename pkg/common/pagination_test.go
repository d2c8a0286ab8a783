package common

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractPaginationParams(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  PaginationParams
	}{
		{name: "defaults", query: "", want: PaginationParams{Page: 1, PageSize: 20, Order: "desc"}},
		{name: "explicit", query: "?page=3&page_size=5&order=asc", want: PaginationParams{Page: 3, PageSize: 5, Order: "asc"}},
		{name: "capped", query: "?page_size=1000", want: PaginationParams{Page: 1, PageSize: MaxPageSize, Order: "desc"}},
		{name: "garbage", query: "?page=-2&page_size=x&order=sideways", want: PaginationParams{Page: 1, PageSize: 20, Order: "desc"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/api/v1/assets"+tt.query, nil)
			assert.Equal(t, tt.want, ExtractPaginationParams(r))
		})
	}
}

func TestPaginate(t *testing.T) {
	items := []int{9, 8, 7, 6, 5}

	page, meta := Paginate(items, PaginationParams{Page: 2, PageSize: 2, Order: "desc"})
	assert.Equal(t, []int{7, 6}, page)
	assert.Equal(t, &PaginationInfo{Page: 2, PageSize: 2, Total: 5, TotalPages: 3, HasNext: true, HasPrev: true}, meta)

	page, _ = Paginate(items, PaginationParams{Page: 1, PageSize: 2, Order: "asc"})
	assert.Equal(t, []int{5, 6}, page)

	page, meta = Paginate(items, PaginationParams{Page: 9, PageSize: 2})
	assert.Empty(t, page)
	assert.False(t, meta.HasNext)
	assert.Equal(t, []int{9, 8, 7, 6, 5}, items)
}
