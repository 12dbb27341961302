package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents different types of errors in the system
type ErrorType string

const (
	// ErrorTypeNotFound indicates a resource was not found
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation indicates a record violated a storage contract
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeConflict indicates merge inputs disagreed; resolved by a merge rule
	ErrorTypeConflict ErrorType = "CONFLICT"

	// ErrorTypeInternal indicates an internal error
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal indicates an error from an external collaborator
	ErrorTypeExternal ErrorType = "EXTERNAL"

	// ErrorTypeNetwork indicates a retryable transport failure or timeout
	ErrorTypeNetwork ErrorType = "NETWORK"

	// ErrorTypeRateLimit indicates the upstream asked us to slow down (HTTP 429)
	ErrorTypeRateLimit ErrorType = "RATE_LIMIT"

	// ErrorTypeParse indicates a file or chunk could not be parsed
	ErrorTypeParse ErrorType = "PARSE"

	// ErrorTypePersistence indicates a batch write failed and was rolled back
	ErrorTypePersistence ErrorType = "PERSISTENCE"
)

// AppError represents an application error
type AppError struct {
	Type    ErrorType
	Message string
	Err     error

	// RetryAfter is set by rate-limited upstreams that send a Retry-After header.
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// IsType reports whether err wraps an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

// TypeOf returns the AppError type wrapped by err, or ErrorTypeInternal.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeValidation,
		Message: message,
	}
}

// NewConflictError creates a new conflict error
func NewConflictError(message string) *AppError {
	return &AppError{
		Type:    ErrorTypeConflict,
		Message: message,
	}
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Err:     err,
	}
}

// NewExternalError creates a new external service error
func NewExternalError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeExternal,
		Message: message,
		Err:     err,
	}
}

// NewNetworkError creates a new retryable network error
func NewNetworkError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeNetwork,
		Message: message,
		Err:     err,
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Type:       ErrorTypeRateLimit,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// NewParseError creates a new parse error
func NewParseError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypeParse,
		Message: message,
		Err:     err,
	}
}

// NewPersistenceError creates a new persistence error
func NewPersistenceError(message string, err error) *AppError {
	return &AppError{
		Type:    ErrorTypePersistence,
		Message: message,
		Err:     err,
	}
}
