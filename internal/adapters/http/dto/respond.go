package dto

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quotevault/internal/domain"
	"github.com/jsamuelsen/quotevault/internal/platform/logging"
)

// throttledRetryAfter is the Retry-After hint sent with 429 responses.
const throttledRetryAfter = 1

// MapDomainError maps a domain error to an HTTP status code and error response.
// Unknown errors are mapped to 500 Internal Server Error with a generic message.
func MapDomainError(err error) (int, *ErrorResponse) {
	if err == nil {
		return http.StatusOK, nil
	}

	switch {
	case domain.IsDuplicate(err):
		resp := NewErrorResponse(ErrorCodeDuplicate, err.Error())

		var dup *domain.DuplicateError
		if errors.As(err, &dup) {
			resp.Error.Candidates = NewDuplicateCandidates(dup.Candidates)
		}

		return http.StatusConflict, resp

	case domain.IsPartialCascade(err):
		resp := NewErrorResponse(ErrorCodePartialCascade, err.Error())

		var partial *domain.PartialCascadeError
		if errors.As(err, &partial) {
			resp.Error.Cascade = &CascadeProgress{
				Operation: partial.Operation,
				Tag:       partial.Tag,
				Affected:  partial.Affected,
				Total:     partial.Total,
			}
		}

		return http.StatusInternalServerError, resp

	case domain.IsNotFound(err):
		return http.StatusNotFound, NewErrorResponse(ErrorCodeNotFound, err.Error())

	case domain.IsConflict(err):
		return http.StatusConflict, NewErrorResponse(ErrorCodeConflict, err.Error())

	case domain.IsValidation(err):
		resp := NewErrorResponse(ErrorCodeValidation, err.Error())

		var validationErr *domain.ValidationError
		if errors.As(err, &validationErr) && validationErr.Field != "" {
			resp.Error.Details = map[string]string{
				validationErr.Field: validationErr.Message,
			}
		}

		return http.StatusBadRequest, resp

	case domain.IsForbidden(err):
		return http.StatusForbidden, NewErrorResponse(ErrorCodeForbidden, err.Error())

	case domain.IsThrottled(err):
		resp := NewErrorResponse(ErrorCodeThrottled, err.Error())
		resp.Error.RetryAfterSeconds = throttledRetryAfter

		return http.StatusTooManyRequests, resp

	case domain.IsUnavailable(err):
		return http.StatusServiceUnavailable, NewErrorResponse(ErrorCodeUnavailable, err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, NewErrorResponse(ErrorCodeTimeout, "request timeout exceeded")

	default:
		return http.StatusInternalServerError, NewErrorResponse(ErrorCodeInternal, "an internal error occurred")
	}
}

// RespondWithError writes an error response to the gin.Context.
// It maps domain errors to HTTP responses and includes the trace ID if available.
func RespondWithError(c *gin.Context, err error) {
	status, errResp := MapDomainError(err)
	errResp.WithTraceID(c.Request.Context())

	switch {
	case status == http.StatusTooManyRequests:
		c.Header("Retry-After", strconv.Itoa(throttledRetryAfter))
	case status >= http.StatusInternalServerError:
		logging.FromContext(c.Request.Context()).Error("request failed",
			slog.String("error", err.Error()),
			slog.String("trace_id", errResp.TraceID),
		)
	}

	c.JSON(status, errResp)
}

// RespondWithRequestError writes a 400 for a body or query that failed
// binding or validation.
func RespondWithRequestError(c *gin.Context, err error) {
	var errResp *ErrorResponse

	if fields := ValidationErrors(err); len(fields) > 0 {
		errResp = NewErrorResponseWithDetails(ErrorCodeValidation, "request validation failed", fields)
	} else {
		errResp = NewErrorResponse(ErrorCodeBadRequest, "malformed request")
	}

	c.JSON(http.StatusBadRequest, errResp.WithTraceID(c.Request.Context()))
}
