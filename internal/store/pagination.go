package store

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page selects one page of a listing. Number is 1-indexed.
type Page struct {
	Number int
	Size   int
}

// NewPage clamps number and size to a valid page. An out of range size falls
// back to DefaultPageSize.
func NewPage(number, size int) Page {
	if number < 1 {
		number = 1
	}
	if size < 1 || size > MaxPageSize {
		size = DefaultPageSize
	}
	return Page{Number: number, Size: size}
}

// Offset is the number of rows before the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}

// PageInfo describes where a page sits in the full listing.
type PageInfo struct {
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	HasPrev    bool  `json:"has_prev"`
	HasNext    bool  `json:"has_next"`
}

// Info returns the metadata of p in a listing of total rows.
func (p Page) Info(total int64) PageInfo {
	totalPages := 0
	if p.Size > 0 {
		totalPages = int((total + int64(p.Size) - 1) / int64(p.Size))
	}
	return PageInfo{
		Total:      total,
		TotalPages: totalPages,
		Page:       p.Number,
		PageSize:   p.Size,
		HasPrev:    p.Number > 1,
		HasNext:    p.Number < totalPages,
	}
}
