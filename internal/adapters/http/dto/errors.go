// Package dto provides Data Transfer Objects for HTTP request/response handling.
package dto

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// ErrorResponse is the standard error envelope for all error responses.
type ErrorResponse struct {
	Error   ErrorDetail `json:"error"`
	TraceID string      `json:"traceId,omitempty"`
}

// ErrorDetail contains the error information.
type ErrorDetail struct {
	// Code is a machine-readable error code (e.g., "NOT_FOUND", "DUPLICATE_QUOTE").
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Details holds field-level validation messages.
	Details map[string]string `json:"details,omitempty"`

	// Candidates lists the stored quotes that made a create look like a duplicate.
	Candidates []DuplicateCandidate `json:"candidates,omitempty"`

	// Cascade reports how far an interrupted tag rename or delete got.
	Cascade *CascadeProgress `json:"cascade,omitempty"`

	// RetryAfterSeconds is set on throttled responses.
	RetryAfterSeconds int `json:"retryAfterSeconds,omitempty"`
}

// DuplicateCandidate is one stored quote matched by the duplicate detector.
type DuplicateCandidate struct {
	QuoteID     string  `json:"quoteId"`
	Text        string  `json:"text"`
	Author      string  `json:"author"`
	Rule        int     `json:"rule"`
	TextScore   float64 `json:"textScore"`
	AuthorScore float64 `json:"authorScore"`
}

// CascadeProgress is the progress of a tag cascade that stopped early.
// Repeating the same request resumes it.
type CascadeProgress struct {
	Operation string `json:"operation"`
	Tag       string `json:"tag"`
	Affected  int    `json:"affected"`
	Total     int    `json:"total"`
}

// Error codes for machine-readable error identification.
const (
	ErrorCodeNotFound       = "NOT_FOUND"
	ErrorCodeConflict       = "CONFLICT"
	ErrorCodeDuplicate      = "DUPLICATE_QUOTE"
	ErrorCodeValidation     = "VALIDATION_ERROR"
	ErrorCodeForbidden      = "FORBIDDEN"
	ErrorCodeThrottled      = "THROTTLED"
	ErrorCodePartialCascade = "PARTIAL_CASCADE"
	ErrorCodeUnavailable    = "SERVICE_UNAVAILABLE"
	ErrorCodeInternal       = "INTERNAL_ERROR"
	ErrorCodeTimeout        = "TIMEOUT"
	ErrorCodeBadRequest     = "BAD_REQUEST"
)

// NewErrorResponse creates a new error response with the given code and message.
func NewErrorResponse(code, message string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

// NewErrorResponseWithDetails creates an error response with field details.
func NewErrorResponseWithDetails(code, message string, details map[string]string) *ErrorResponse {
	resp := NewErrorResponse(code, message)
	resp.Error.Details = details

	return resp
}

// WithTraceID copies the active span's trace id, if any, into the response.
func (e *ErrorResponse) WithTraceID(ctx context.Context) *ErrorResponse {
	if span := trace.SpanFromContext(ctx); span.SpanContext().HasTraceID() {
		e.TraceID = span.SpanContext().TraceID().String()
	}

	return e
}

// HTTPStatusFromCode maps error codes to HTTP status codes.
func HTTPStatusFromCode(code string) int {
	switch code {
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeConflict, ErrorCodeDuplicate:
		return http.StatusConflict
	case ErrorCodeValidation, ErrorCodeBadRequest:
		return http.StatusBadRequest
	case ErrorCodeForbidden:
		return http.StatusForbidden
	case ErrorCodeThrottled:
		return http.StatusTooManyRequests
	case ErrorCodeUnavailable:
		return http.StatusServiceUnavailable
	case ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
