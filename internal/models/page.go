package models

// Page size limits
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// PageRequest selects a page of results. Page numbers start at 1.
type PageRequest struct {
	Page int
	Size int
}

// Normalize clamps the request into valid bounds
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Size < 1 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset returns the number of rows to skip
func (p PageRequest) Offset() int {
	n := p.Normalize()
	return (n.Page - 1) * n.Size
}

// PageMeta describes the position of a page within the full result
type PageMeta struct {
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
	HasPrev    bool  `json:"has_prev"`
}

// NewPageMeta computes page metadata for a total row count
func NewPageMeta(p PageRequest, total int64) PageMeta {
	p = p.Normalize()
	totalPages := int(total) / p.Size
	if int(total)%p.Size > 0 {
		totalPages++
	}
	return PageMeta{
		Page:       p.Page,
		Size:       p.Size,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
		HasPrev:    p.Page > 1,
	}
}

// CardPage is one page of cards prepared for display
type CardPage struct {
	Items []CardView `json:"items"`
	Meta  PageMeta   `json:"meta"`
}
