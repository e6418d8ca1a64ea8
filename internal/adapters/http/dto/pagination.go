package dto

import "github.com/jsamuelsen/quotevault/internal/domain"

// PaginationRequest represents pagination parameters from the request.
type PaginationRequest struct {
	// Cursor is an opaque string from a previous response's NextCursor.
	Cursor string `form:"cursor" json:"cursor" validate:"omitempty,max=512"`

	// Limit is the maximum number of items to return (1-100, default 20).
	Limit int `form:"limit" json:"limit" validate:"omitempty,gte=1,lte=100"`
}

// PageRequest converts the query parameters into a domain page request.
func (p *PaginationRequest) PageRequest() domain.PageRequest {
	return domain.PageRequest{Limit: domain.ClampLimit(p.Limit), Cursor: p.Cursor}
}

// PaginatedResponse is a generic paginated response structure.
type PaginatedResponse[T any] struct {
	// Items is the array of items for this page.
	Items []T `json:"items"`

	// NextCursor resumes the listing after the last item. Empty on the last page.
	NextCursor string `json:"nextCursor,omitempty"`

	// HasMore indicates whether there are more items after this page.
	HasMore bool `json:"hasMore"`
}

// NewPaginatedResponse converts a domain page, mapping each item with conv.
func NewPaginatedResponse[T, R any](page domain.Page[T], conv func(T) R) *PaginatedResponse[R] {
	return &PaginatedResponse[R]{
		Items:      Map(page.Items, conv),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
}
