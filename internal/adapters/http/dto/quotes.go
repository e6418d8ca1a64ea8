package dto

import (
	"time"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

// CreateQuoteRequest is the body of POST /api/v1/quotes.
type CreateQuoteRequest struct {
	Text   string   `json:"text"   validate:"required,notblank,max=2000"`
	Author string   `json:"author" validate:"required,notblank,max=200"`
	Tags   []string `json:"tags"   validate:"omitempty,max=25,dive,notblank,max=64"`

	// AllowDuplicate confirms a create that was rejected as a likely duplicate.
	AllowDuplicate bool `json:"allowDuplicate"`
}

// UpdateQuoteRequest is the body of PUT /api/v1/quotes/:id. Omitted fields keep
// their stored value; an empty tags list clears the tags.
type UpdateQuoteRequest struct {
	Text   *string   `json:"text"   validate:"omitempty,notblank,max=2000"`
	Author *string   `json:"author" validate:"omitempty,notblank,max=200"`
	Tags   *[]string `json:"tags"   validate:"omitempty,max=25,dive,notblank,max=64"`
}

// Validate requires at least one field.
func (r *UpdateQuoteRequest) Validate() error {
	if r.Text == nil && r.Author == nil && r.Tags == nil {
		return &FieldError{Field: "body", Message: "must set at least one of text, author, tags"}
	}

	return nil
}

// SearchRequest is the query of GET /api/v1/quotes/search.
type SearchRequest struct {
	PaginationRequest

	Query string `form:"q" json:"q" validate:"required,notblank,max=200"`
}

// QuoteResponse is the HTTP representation of a quote.
type QuoteResponse struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
	UpdatedBy string    `json:"updatedBy,omitempty"`
}

// NewQuoteResponse converts a domain quote.
func NewQuoteResponse(q *domain.Quote) QuoteResponse {
	tags := q.Tags
	if tags == nil {
		tags = []string{}
	}

	return QuoteResponse{
		ID:        q.ID,
		Text:      q.Text,
		Author:    q.Author,
		Tags:      tags,
		CreatedAt: q.CreatedAt,
		UpdatedAt: q.UpdatedAt,
		CreatedBy: q.CreatedBy,
		UpdatedBy: q.UpdatedBy,
	}
}

// AddTagRequest is the body of POST /api/v1/tags.
type AddTagRequest struct {
	Name string `json:"name" validate:"required,notblank,max=64"`
}

// RenameTagRequest is the body of PUT /api/v1/tags/:name.
type RenameTagRequest struct {
	Name string `json:"name" validate:"required,notblank,max=64"`
}

// TagResponse is the HTTP representation of tag metadata.
type TagResponse struct {
	Name       string     `json:"name"`
	QuoteCount int64      `json:"quoteCount"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// NewTagResponse converts domain tag metadata.
func NewTagResponse(t *domain.Tag) TagResponse {
	resp := TagResponse{
		Name:       t.Name,
		QuoteCount: t.QuoteCount,
		CreatedAt:  t.CreatedAt,
	}

	if !t.LastUsedAt.IsZero() {
		lastUsed := t.LastUsedAt
		resp.LastUsedAt = &lastUsed
	}

	return resp
}

// TagCascadeResponse reports a finished rename or delete.
type TagCascadeResponse struct {
	Tag      string `json:"tag"`
	Affected int    `json:"affected"`
}

// CleanupResponse lists the tags removed by a cleanup.
type CleanupResponse struct {
	Deleted []string `json:"deleted"`
}

// AuthorResponse is the derived aggregate for one author.
type AuthorResponse struct {
	Author       string    `json:"author"`
	QuoteCount   int       `json:"quoteCount"`
	Tags         []string  `json:"tags"`
	FirstQuoteAt time.Time `json:"firstQuoteAt"`
	LastQuoteAt  time.Time `json:"lastQuoteAt"`
}

// NewAuthorResponse converts an author aggregate.
func NewAuthorResponse(a *domain.AuthorAggregate) AuthorResponse {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}

	return AuthorResponse{
		Author:       a.Author,
		QuoteCount:   a.QuoteCount,
		Tags:         tags,
		FirstQuoteAt: a.FirstQuoteAt,
		LastQuoteAt:  a.LastQuoteAt,
	}
}

// ExportResponse is a consistent dump of the catalogue.
type ExportResponse struct {
	Quotes      []QuoteResponse  `json:"quotes"`
	Tags        []TagResponse    `json:"tags"`
	Authors     []string         `json:"authors"`
	AuthorStats []AuthorResponse `json:"authorStats"`
	ExportedAt  time.Time        `json:"exportedAt"`
	ExportedBy  string           `json:"exportedBy"`
}

// NewExportResponse converts a domain export.
func NewExportResponse(e *domain.Export) ExportResponse {
	return ExportResponse{
		Quotes:      Map(e.Quotes, NewQuoteResponse),
		Tags:        Map(e.Tags, NewTagResponse),
		Authors:     append([]string{}, e.Authors...),
		AuthorStats: Map(e.AuthorStats, NewAuthorResponse),
		ExportedAt:  e.ExportedAt,
		ExportedBy:  e.ExportedBy,
	}
}

// Map converts every element of in, never returning nil.
func Map[T, R any](in []T, conv func(T) R) []R {
	out := make([]R, 0, len(in))
	for _, v := range in {
		out = append(out, conv(v))
	}

	return out
}

// NewDuplicateCandidates converts detector candidates for an error response.
func NewDuplicateCandidates(in []domain.DuplicateCandidate) []DuplicateCandidate {
	return Map(in, func(c domain.DuplicateCandidate) DuplicateCandidate {
		return DuplicateCandidate{
			QuoteID:     c.QuoteID,
			Text:        c.Text,
			Author:      c.Author,
			Rule:        c.Rule,
			TextScore:   c.TextScore,
			AuthorScore: c.AuthorScore,
		}
	})
}
