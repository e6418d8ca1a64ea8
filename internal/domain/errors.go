// Package domain contains the quote catalogue's entities, value types and errors.
// Domain errors represent business-level failures, NOT HTTP errors.
// They are infrastructure-agnostic and can be mapped to HTTP/CLI output by adapters.
package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a state conflict such as an existing tag or a lost write race.
	ErrConflict = errors.New("conflict")

	// ErrDuplicate indicates a new quote was rejected as a duplicate of stored quotes.
	ErrDuplicate = fmt.Errorf("duplicate quote: %w", ErrConflict)

	// ErrValidation indicates business rule validation failed.
	ErrValidation = errors.New("validation failed")

	// ErrForbidden indicates the caller may not perform the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable indicates a required dependency is unavailable.
	ErrUnavailable = errors.New("unavailable")

	// ErrThrottled indicates the store kept refusing work after bounded retries.
	ErrThrottled = errors.New("throttled")

	// ErrPartialCascade indicates a tag cascade stopped before reaching every quote.
	ErrPartialCascade = errors.New("partial cascade failure")
)

// NotFoundError provides context for not found errors.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with id %q not found", e.Entity, e.ID)
	}

	return e.Entity + " not found"
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a not found error with context.
func NewNotFoundError(entity, id string) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError provides context for conflict errors.
type ConflictError struct {
	Entity  string
	Reason  string
	Details string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s conflict: %s (%s)", e.Entity, e.Reason, e.Details)
	}

	return fmt.Sprintf("%s conflict: %s", e.Entity, e.Reason)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

// NewConflictError creates a conflict error with context.
func NewConflictError(entity, reason string) error {
	return &ConflictError{Entity: entity, Reason: reason}
}

// NewConflictErrorWithDetails creates a conflict error with additional details.
func NewConflictErrorWithDetails(entity, reason, details string) error {
	return &ConflictError{Entity: entity, Reason: reason, Details: details}
}

// DuplicateCandidate is a stored quote that matched an incoming one.
type DuplicateCandidate struct {
	QuoteID     string
	Text        string
	Author      string
	Rule        int
	TextScore   float64
	AuthorScore float64
}

// DuplicateError is returned when quote creation is refused by the duplicate detector.
// Candidates lists the stored quotes that matched, best match first.
type DuplicateError struct {
	Candidates []DuplicateCandidate
}

// Error implements the error interface.
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("quote rejected: matches %d existing quote(s)", len(e.Candidates))
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *DuplicateError) Unwrap() error {
	return ErrDuplicate
}

// NewDuplicateError creates a duplicate rejection carrying the matched candidates.
func NewDuplicateError(candidates []DuplicateCandidate) error {
	return &DuplicateError{Candidates: candidates}
}

// ValidationError provides context for validation errors.
type ValidationError struct {
	Field   string
	Message string
	Value   any
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}

	return "validation failed: " + e.Message
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a validation error with context.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewValidationErrorWithValue creates a validation error including the invalid value.
func NewValidationErrorWithValue(field, message string, value any) error {
	return &ValidationError{Field: field, Message: message, Value: value}
}

// ForbiddenError provides context for forbidden errors.
type ForbiddenError struct {
	Operation string
	Reason    string
}

// Error implements the error interface.
func (e *ForbiddenError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("operation %q forbidden: %s", e.Operation, e.Reason)
	}

	return fmt.Sprintf("operation %q forbidden", e.Operation)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// NewForbiddenError creates a forbidden error with context.
func NewForbiddenError(operation, reason string) error {
	return &ForbiddenError{Operation: operation, Reason: reason}
}

// UnavailableError provides context for unavailable errors.
type UnavailableError struct {
	Service string
	Reason  string
}

// Error implements the error interface.
func (e *UnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("service %q unavailable: %s", e.Service, e.Reason)
	}

	return fmt.Sprintf("service %q unavailable", e.Service)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *UnavailableError) Unwrap() error {
	return ErrUnavailable
}

// NewUnavailableError creates an unavailable error with context.
func NewUnavailableError(service, reason string) error {
	return &UnavailableError{Service: service, Reason: reason}
}

// ThrottledError is surfaced once store retries are exhausted.
type ThrottledError struct {
	Operation string
	Attempts  int
	Cause     error
}

// Error implements the error interface.
func (e *ThrottledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s throttled after %d attempt(s): %v", e.Operation, e.Attempts, e.Cause)
	}

	return fmt.Sprintf("%s throttled after %d attempt(s)", e.Operation, e.Attempts)
}

// Unwrap returns the sentinel error for errors.Is() support.
func (e *ThrottledError) Unwrap() error {
	return ErrThrottled
}

// NewThrottledError creates a throttled error.
func NewThrottledError(operation string, attempts int, cause error) error {
	return &ThrottledError{Operation: operation, Attempts: attempts, Cause: cause}
}

// PartialCascadeError reports a tag cascade that updated only some quotes.
// Re-running the same operation resumes where it stopped.
type PartialCascadeError struct {
	Operation string
	Tag       string
	Affected  int
	Total     int
	Cause     error
}

// Error implements the error interface.
func (e *PartialCascadeError) Error() string {
	msg := fmt.Sprintf("%s %q: updated %d of %d quotes", e.Operation, e.Tag, e.Affected, e.Total)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

// Unwrap exposes both the sentinel and the first underlying failure.
func (e *PartialCascadeError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrPartialCascade}
	}

	return []error{ErrPartialCascade, e.Cause}
}

// NewPartialCascadeError creates a partial cascade error.
func NewPartialCascadeError(operation, tag string, affected, total int, cause error) error {
	return &PartialCascadeError{
		Operation: operation,
		Tag:       tag,
		Affected:  affected,
		Total:     total,
		Cause:     cause,
	}
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if an error is a conflict error.
// Duplicate rejections are conflicts too.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsDuplicate checks if an error is a duplicate rejection.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsForbidden checks if an error is a forbidden error.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// IsUnavailable checks if an error is an unavailable error.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsThrottled checks if an error is a throttled error.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsPartialCascade checks if an error is a partial cascade failure.
func IsPartialCascade(err error) bool {
	return errors.Is(err, ErrPartialCascade)
}
