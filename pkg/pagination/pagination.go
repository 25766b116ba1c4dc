package pagination

import "math"

const (
	// DefaultLimit is the standard page size when a limit is not provided.
	DefaultLimit = 20
	// MaxLimit caps how many rows any page query can request.
	MaxLimit = 100
)

// Params holds page/limit inputs from controllers or services.
type Params struct {
	Page  int
	Limit int
}

// Page describes where a result set sits within the full match count.
type Page struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
}

// Normalize clamps page to >= 1 and limit into [1, maxLimit], substituting
// defaultLimit for non-positive limits. Zero bounds fall back to the package defaults.
func Normalize(p Params, defaultLimit, maxLimit int) Params {
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

// Offset returns the row offset for the normalized params.
func (p Params) Offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit
}

// NewPage builds page metadata; totalPages is ceil(totalItems / limit).
func NewPage(p Params, totalItems int64) Page {
	totalPages := 0
	if p.Limit > 0 {
		totalPages = int(math.Ceil(float64(totalItems) / float64(p.Limit)))
	}
	return Page{
		CurrentPage:  p.Page,
		TotalPages:   totalPages,
		TotalItems:   totalItems,
		ItemsPerPage: p.Limit,
	}
}
