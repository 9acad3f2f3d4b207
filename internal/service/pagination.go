package service

import "math"

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageMeta describes one page of a listing
type PageMeta struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalPages  int   `json:"total_pages"`
	TotalCount  int64 `json:"total_count"`
}

// Page is a normalized page request
type Page struct {
	Number int
	Size   int
}

// NewPage clamps page to >= 1 and size to [min, MaxPageSize]. A zero size means DefaultPageSize.
func NewPage(page, size, min int) Page {
	if page < 1 {
		page = 1
	}
	if size == 0 {
		size = DefaultPageSize
	}
	if size < min {
		size = min
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return Page{Number: page, Size: size}
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// Meta builds the listing metadata for total matching rows
func (p Page) Meta(total int64) PageMeta {
	return PageMeta{
		CurrentPage: p.Number,
		PageSize:    p.Size,
		TotalPages:  int(math.Ceil(float64(total) / float64(p.Size))),
		TotalCount:  total,
	}
}

// SortOrder returns "ASC" for "asc" (any case) and "DESC" otherwise
func SortOrder(order string) string {
	if order == "asc" || order == "ASC" {
		return "ASC"
	}
	return "DESC"
}
