// Package apperrors defines the error taxonomy of the ingestion and
// aggregation pipeline and its mapping to HTTP status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUpstream represents Custobar API fetch failures
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryDateParse represents malformed timestamp payloads
	CategoryDateParse ErrorCategory = "date_parse"
	// CategoryAggregation represents metric computation failures
	CategoryAggregation ErrorCategory = "aggregation"
	// CategoryDatabase represents entity store failures
	CategoryDatabase ErrorCategory = "database"
	// CategoryValidation represents invalid request input
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents missing resources
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflicting concurrent operations
	CategoryConflict ErrorCategory = "conflict"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// NewUpstreamError creates an error for a failed Custobar fetch: non-success
// HTTP status or an undecodable response body. Fatal to the fetch call, not
// to previously committed stages.
func NewUpstreamError(kind string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("failed to fetch %s from Custobar", kind),
		Cause:      cause,
	}
}

// NewDateParseError creates an error for a malformed timestamp field
func NewDateParseError(field, value string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDateParse,
		StatusCode: http.StatusUnprocessableEntity,
		Code:       "DATE_PARSE_ERROR",
		Message:    fmt.Sprintf("invalid %s value %q", field, value),
		Cause:      cause,
	}
}

// NewAggregationError creates an error for a failed metric computation
func NewAggregationError(metric string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAggregation,
		StatusCode: http.StatusInternalServerError,
		Code:       "AGGREGATION_ERROR",
		Message:    fmt.Sprintf("failed to compute %s", metric),
		Cause:      cause,
	}
}

// NewDatabaseError creates an entity store error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       "DATABASE_ERROR",
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
	}
}

// NewValidationError creates an invalid input error
func NewValidationError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    message,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewPipelineLockedError signals that a pipeline run is already in progress
// for the integration
func NewPipelineLockedError(integrationID string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       "PIPELINE_LOCKED",
		Message:    fmt.Sprintf("a pipeline run is already in progress for integration %s", integrationID),
	}
}

// StageError wraps a pipeline stage failure with the failing stage name and
// the stages that committed before it.
type StageError struct {
	Stage     string
	Completed []string
	Err       error
}

// Error implements the error interface
func (e *StageError) Error() string {
	return fmt.Sprintf("pipeline stage %q failed: %v", e.Stage, e.Err)
}

// Unwrap returns the underlying stage error
func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a pipeline stage failure
func NewStageError(stage string, completed []string, err error) *StageError {
	return &StageError{Stage: stage, Completed: completed, Err: err}
}

// IsRetryable reports whether a whole pipeline run may safely be retried
// after this error. Commits are idempotent per stage, so upstream, database
// and aggregation failures are all retryable.
func IsRetryable(err error) bool {
	var catErr *CategorizedError
	if !errors.As(err, &catErr) {
		return false
	}
	switch catErr.Category {
	case CategoryUpstream, CategoryDatabase, CategoryAggregation:
		return true
	default:
		return false
	}
}

// IsCategory reports whether err carries the given category
func IsCategory(err error, category ErrorCategory) bool {
	var catErr *CategorizedError
	return errors.As(err, &catErr) && catErr.Category == category
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}
