package dto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotevault/internal/domain"
)

func TestMapDomainError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "not found", err: domain.NewNotFoundError("quote", "q1"), wantStatus: http.StatusNotFound, wantCode: ErrorCodeNotFound},
		{name: "conflict", err: domain.NewConflictError("tag", "already exists"), wantStatus: http.StatusConflict, wantCode: ErrorCodeConflict},
		{name: "duplicate", err: domain.NewDuplicateError(nil), wantStatus: http.StatusConflict, wantCode: ErrorCodeDuplicate},
		{name: "validation", err: domain.NewValidationError("text", "is required"), wantStatus: http.StatusBadRequest, wantCode: ErrorCodeValidation},
		{name: "forbidden", err: domain.NewForbiddenError("add_tag", "anonymous caller"), wantStatus: http.StatusForbidden, wantCode: ErrorCodeForbidden},
		{name: "throttled", err: domain.NewThrottledError("put_quote", 5, errors.New("conflict")), wantStatus: http.StatusTooManyRequests, wantCode: ErrorCodeThrottled},
		{name: "unavailable", err: domain.NewUnavailableError("store", "database closed"), wantStatus: http.StatusServiceUnavailable, wantCode: ErrorCodeUnavailable},
		{name: "partial cascade", err: domain.NewPartialCascadeError("rename", "work", 3, 5, errors.New("conflict")), wantStatus: http.StatusInternalServerError, wantCode: ErrorCodePartialCascade},
		{name: "deadline", err: fmt.Errorf("listing: %w", context.DeadlineExceeded), wantStatus: http.StatusGatewayTimeout, wantCode: ErrorCodeTimeout},
		{name: "wrapped not found", err: fmt.Errorf("loading: %w", domain.NewNotFoundError("tag", "x")), wantStatus: http.StatusNotFound, wantCode: ErrorCodeNotFound},
		{name: "unknown", err: errors.New("disk on fire"), wantStatus: http.StatusInternalServerError, wantCode: ErrorCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := MapDomainError(tt.err)

			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}

	status, resp := MapDomainError(nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Nil(t, resp)
}

func TestMapDomainError_Details(t *testing.T) {
	_, resp := MapDomainError(domain.NewDuplicateError([]domain.DuplicateCandidate{{QuoteID: "q1", Rule: 1, TextScore: 1, AuthorScore: 1}}))
	require.Len(t, resp.Error.Candidates, 1)
	assert.Equal(t, "q1", resp.Error.Candidates[0].QuoteID)

	_, resp = MapDomainError(domain.NewPartialCascadeError("delete", "life", 2, 7, errors.New("throttled")))
	require.NotNil(t, resp.Error.Cascade)
	assert.Equal(t, CascadeProgress{Operation: "delete", Tag: "life", Affected: 2, Total: 7}, *resp.Error.Cascade)

	_, resp = MapDomainError(domain.NewValidationError("author", "is required"))
	assert.Equal(t, map[string]string{"author": "is required"}, resp.Error.Details)

	_, resp = MapDomainError(domain.NewThrottledError("put_quote", 5, nil))
	assert.Equal(t, 1, resp.Error.RetryAfterSeconds)

	_, resp = MapDomainError(errors.New("secret connection string"))
	assert.NotContains(t, resp.Error.Message, "secret")
}

func TestRespondWithError_RetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/quotes", nil)

	RespondWithError(c, domain.NewThrottledError("put_quote", 5, nil))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestRespondWithRequestError(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/tags", nil)

	RespondWithRequestError(c, Validate(&AddTagRequest{}))

	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrorCodeValidation, resp.Error.Code)
	assert.Equal(t, "this field is required", resp.Error.Details["name"])

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/tags", nil)

	RespondWithRequestError(c, fmt.Errorf("%w: unexpected EOF", ErrBinding))

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrorCodeBadRequest, resp.Error.Code)
	assert.Empty(t, resp.Error.Details)
}
