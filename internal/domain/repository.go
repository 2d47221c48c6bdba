// Package domain provides types shared by the engine's domain packages.
package domain

// Pagination defaults.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Page contains pagination options for list operations.
type Page struct {
	Limit  int
	Offset int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// Paginate slices an in-memory result set. Used by in-memory repositories.
func Paginate[T any](all []T, page Page) ListResult[T] {
	page = page.Normalize()
	res := ListResult[T]{TotalCount: int64(len(all)), Limit: page.Limit, Offset: page.Offset, Items: []T{}}
	if page.Offset >= len(all) {
		return res
	}
	end := page.Offset + page.Limit
	if end > len(all) {
		end = len(all)
	}
	res.Items = all[page.Offset:end]
	return res
}
