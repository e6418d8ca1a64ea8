package domain

// Page size bounds for range queries.
const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// PageRequest asks for one page of a newest-first listing.
// Cursor is opaque and only meaningful to the listing that issued it.
type PageRequest struct {
	Limit  int
	Cursor string
}

// ClampedLimit returns Limit bounded to [1, MaxPageLimit], defaulting when unset.
func (r PageRequest) ClampedLimit() int {
	return ClampLimit(r.Limit)
}

// ClampLimit bounds a requested page size.
func ClampLimit(n int) int {
	switch {
	case n <= 0:
		return DefaultPageLimit
	case n > MaxPageLimit:
		return MaxPageLimit
	default:
		return n
	}
}

// Page is one slice of a listing.
type Page[T any] struct {
	Items      []T
	NextCursor string
	HasMore    bool
}
