package dto

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func ptr[T any](v T) *T { return &v }

func TestNewErrorResponseWithDetails(t *testing.T) {
	resp := NewErrorResponseWithDetails(ErrorCodeValidation, "request validation failed", map[string]string{"text": "this field is required"})

	assert.Equal(t, ErrorCodeValidation, resp.Error.Code)
	assert.Equal(t, "this field is required", resp.Error.Details["text"])
	assert.Empty(t, resp.TraceID)
}

func TestWithTraceID(t *testing.T) {
	assert.Empty(t, NewErrorResponse(ErrorCodeInternal, "boom").WithTraceID(context.Background()).TraceID)

	provider := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	ctx, span := provider.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	resp := NewErrorResponse(ErrorCodeInternal, "boom").WithTraceID(ctx)
	assert.Equal(t, span.SpanContext().TraceID().String(), resp.TraceID)
}

func TestHTTPStatusFromCode(t *testing.T) {
	tests := map[string]int{
		ErrorCodeNotFound:       http.StatusNotFound,
		ErrorCodeConflict:       http.StatusConflict,
		ErrorCodeDuplicate:      http.StatusConflict,
		ErrorCodeValidation:     http.StatusBadRequest,
		ErrorCodeBadRequest:     http.StatusBadRequest,
		ErrorCodeForbidden:      http.StatusForbidden,
		ErrorCodeThrottled:      http.StatusTooManyRequests,
		ErrorCodeUnavailable:    http.StatusServiceUnavailable,
		ErrorCodeTimeout:        http.StatusGatewayTimeout,
		ErrorCodePartialCascade: http.StatusInternalServerError,
		"SOMETHING_ELSE":        http.StatusInternalServerError,
	}

	for code, want := range tests {
		assert.Equal(t, want, HTTPStatusFromCode(code), code)
	}
}

func TestPaginationRequest_PageRequest(t *testing.T) {
	assert.Equal(t, domain.PageRequest{Limit: domain.DefaultPageLimit}, (&PaginationRequest{}).PageRequest())
	assert.Equal(t, domain.PageRequest{Limit: 5, Cursor: "abc"}, (&PaginationRequest{Limit: 5, Cursor: "abc"}).PageRequest())
	assert.Equal(t, domain.MaxPageLimit, (&PaginationRequest{Limit: 1000}).PageRequest().Limit)
}

func TestNewPaginatedResponse(t *testing.T) {
	page := domain.Page[*domain.Quote]{
		Items:      []*domain.Quote{{ID: "q2", Text: "Second."}, {ID: "q1", Text: "First."}},
		NextCursor: "next",
		HasMore:    true,
	}

	resp := NewPaginatedResponse(page, NewQuoteResponse)

	require.Len(t, resp.Items, 2)
	assert.Equal(t, "q2", resp.Items[0].ID)
	assert.Equal(t, []string{}, resp.Items[0].Tags)
	assert.Equal(t, "next", resp.NextCursor)
	assert.True(t, resp.HasMore)

	empty := NewPaginatedResponse(domain.Page[*domain.Quote]{}, NewQuoteResponse)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}

func TestNewTagResponse(t *testing.T) {
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	resp := NewTagResponse(&domain.Tag{Name: "Humor", Key: "humor", QuoteCount: 3, CreatedAt: created})
	assert.Equal(t, "Humor", resp.Name)
	assert.Equal(t, int64(3), resp.QuoteCount)
	assert.Nil(t, resp.LastUsedAt)

	resp = NewTagResponse(&domain.Tag{Name: "Humor", LastUsedAt: created.Add(time.Hour)})
	require.NotNil(t, resp.LastUsedAt)
	assert.Equal(t, created.Add(time.Hour), *resp.LastUsedAt)
}

func TestNewExportResponse(t *testing.T) {
	export := &domain.Export{
		Quotes:      []*domain.Quote{{ID: "q1", Tags: []string{"Life"}}},
		Tags:        []*domain.Tag{{Name: "Life", QuoteCount: 1}},
		Authors:     []string{"Mark Twain"},
		AuthorStats: []*domain.AuthorAggregate{{Author: "Mark Twain", QuoteCount: 1}},
		ExportedBy:  "admin-1",
	}

	resp := NewExportResponse(export)

	assert.Len(t, resp.Quotes, 1)
	assert.Len(t, resp.Tags, 1)
	assert.Equal(t, []string{"Mark Twain"}, resp.Authors)
	assert.Equal(t, []string{}, resp.AuthorStats[0].Tags)
	assert.Equal(t, "admin-1", resp.ExportedBy)
}

func TestNewDuplicateCandidates(t *testing.T) {
	got := NewDuplicateCandidates([]domain.DuplicateCandidate{{QuoteID: "q1", Rule: 2, TextScore: 0.98, AuthorScore: 1}})

	require.Len(t, got, 1)
	assert.Equal(t, DuplicateCandidate{QuoteID: "q1", Rule: 2, TextScore: 0.98, AuthorScore: 1}, got[0])
	assert.NotNil(t, NewDuplicateCandidates(nil))
}

func TestValidate_CreateQuoteRequest(t *testing.T) {
	tests := []struct {
		name   string
		req    CreateQuoteRequest
		fields map[string]string
	}{
		{
			name: "valid",
			req:  CreateQuoteRequest{Text: "Stay hungry.", Author: "Steve Jobs", Tags: []string{"Life"}},
		},
		{
			name:   "missing text",
			req:    CreateQuoteRequest{Author: "Steve Jobs"},
			fields: map[string]string{"text": "this field is required"},
		},
		{
			name:   "blank author",
			req:    CreateQuoteRequest{Text: "Stay hungry.", Author: "   "},
			fields: map[string]string{"author": "must not be blank"},
		},
		{
			name:   "text too long",
			req:    CreateQuoteRequest{Text: strings.Repeat("a", 2001), Author: "Steve Jobs"},
			fields: map[string]string{"text": "must be at most 2000 characters"},
		},
		{
			name:   "blank tag",
			req:    CreateQuoteRequest{Text: "Stay hungry.", Author: "Steve Jobs", Tags: []string{"Life", " "}},
			fields: map[string]string{"tags[1]": "must not be blank"},
		},
		{
			name:   "too many tags",
			req:    CreateQuoteRequest{Text: "Stay hungry.", Author: "Steve Jobs", Tags: make([]string, 26)},
			fields: map[string]string{"tags": "must be at most 25 items"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.req)
			if tt.fields == nil {
				require.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.fields, ValidationErrors(err))
		})
	}
}

func TestValidate_UpdateQuoteRequest(t *testing.T) {
	err := Validate(&UpdateQuoteRequest{})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, map[string]string{"body": "must set at least one of text, author, tags"}, ValidationErrors(err))

	require.NoError(t, Validate(&UpdateQuoteRequest{Tags: &[]string{}}))
	require.NoError(t, Validate(&UpdateQuoteRequest{Text: ptr("New text.")}))

	err = Validate(&UpdateQuoteRequest{Author: ptr(" ")})
	require.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "must not be blank", ValidationErrors(err)["author"])
}

func TestBindAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "valid", body: `{"text":"Stay hungry.","author":"Steve Jobs"}`},
		{name: "malformed json", body: `{"text":`, wantErr: ErrBinding},
		{name: "wrong type", body: `{"text":1,"author":"x"}`, wantErr: ErrBinding},
		{name: "invalid", body: `{"text":"","author":"x"}`, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/quotes", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req CreateQuoteRequest
			err := BindAndValidate(c, &req)

			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "Steve Jobs", req.Author)
				return
			}

			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBindQueryAndValidate(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		wantErr error
		want    SearchRequest
	}{
		{
			name:  "query with paging",
			query: "q=hungry&limit=5&cursor=abc",
			want:  SearchRequest{Query: "hungry", PaginationRequest: PaginationRequest{Limit: 5, Cursor: "abc"}},
		},
		{name: "missing query", query: "limit=5", wantErr: ErrValidation},
		{name: "limit out of range", query: "q=x&limit=500", wantErr: ErrValidation},
		{name: "non-numeric limit", query: "q=x&limit=many", wantErr: ErrBinding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/quotes/search?"+tt.query, nil)

			var req SearchRequest
			err := BindQueryAndValidate(c, &req)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, req)
		})
	}
}

func TestMinMaxMessage(t *testing.T) {
	assert.Equal(t, "must be at least 3 characters", minMaxMessage("min", "3", reflect.String))
	assert.Equal(t, "must be at most 25 items", minMaxMessage("max", "25", reflect.Slice))
	assert.Equal(t, "must be at most 9", minMaxMessage("max", "9", reflect.Int))
}
