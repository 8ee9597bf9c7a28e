package domain

// Page size bounds for list endpoints.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PaginationParams selects one page of an ordered result. Page is 1-indexed.
type PaginationParams struct {
	Page  int
	Limit int
}

// NewPaginationParams builds a PaginationParams from optional HTTP query params.
// Missing or non-positive values fall back to page 1 and DefaultPageLimit;
// the limit is capped at MaxPageLimit.
func NewPaginationParams(page, limit *int) PaginationParams {
	p := PaginationParams{Page: 1, Limit: DefaultPageLimit}
	if page != nil && *page >= 1 {
		p.Page = *page
	}
	if limit != nil && *limit >= 1 {
		p.Limit = min(*limit, MaxPageLimit)
	}
	return p
}

// Bounds returns the half-open index range [start, end) of the page within a
// result of n items. A page past the end yields an empty range.
func (p PaginationParams) Bounds(n int) (start, end int) {
	start = min((p.Page-1)*p.Limit, n)
	end = min(start+p.Limit, n)
	return start, end
}
