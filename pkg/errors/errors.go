package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Validation errors
	ErrCodeValidation   ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	ErrCodeMissingField ErrorCode = "MISSING_FIELD"

	// Not found errors
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeCallNotFound    ErrorCode = "CALL_NOT_FOUND"
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// Conflict errors
	ErrCodeConflict     ErrorCode = "CONFLICT"
	ErrCodeCallConflict ErrorCode = "CALL_CONFLICT"

	// Stale-state errors
	ErrCodeStaleTransition ErrorCode = "STALE_TRANSITION"
	ErrCodeSnapshotExpired ErrorCode = "SNAPSHOT_EXPIRED"

	// Exhaustion errors
	ErrCodeReconnectExhausted ErrorCode = "RECONNECT_EXHAUSTED"
	ErrCodeInitExhausted      ErrorCode = "INIT_EXHAUSTED"
	ErrCodeInitTimeout        ErrorCode = "INIT_TIMEOUT"

	// Platform capability errors
	ErrCodePresentationFailed ErrorCode = "PRESENTATION_FAILED"

	// Internal errors
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeStorage        ErrorCode = "STORAGE_ERROR"
	ErrCodeServiceUnavail ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError represents a structured application error with code, message, and HTTP status
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"-"`
	Details    any       `json:"details,omitempty"`
	Err        error     `json:"-"`
}

// Error implements the error interface, returning a formatted error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the given code and message
// The status code defaults to 500 Internal Server Error
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// NewWithStatus creates a new AppError with a specific HTTP status code
func NewWithStatus(code ErrorCode, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap wraps an existing error with an AppError, preserving the original error
// The status code defaults to 500 Internal Server Error
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// WithDetails adds additional details to an AppError for debugging
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// Validation errors
func ValidationError(message string) *AppError {
	return NewWithStatus(ErrCodeValidation, message, http.StatusBadRequest)
}

func InvalidInputError(message string) *AppError {
	return NewWithStatus(ErrCodeInvalidInput, message, http.StatusBadRequest)
}

func MissingFieldError(field string) *AppError {
	return NewWithStatus(ErrCodeMissingField, fmt.Sprintf("Missing required field: %s", field), http.StatusBadRequest)
}

// Not found errors
func NotFoundError(resource string) *AppError {
	return NewWithStatus(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func CallNotFoundError(callID string) *AppError {
	return NewWithStatus(ErrCodeCallNotFound, fmt.Sprintf("Call %s not found", callID), http.StatusNotFound)
}

// Conflict errors
func ConflictError(message string) *AppError {
	return NewWithStatus(ErrCodeConflict, message, http.StatusConflict)
}

// CallConflictError reports that an incoming call was rejected because another
// call session is already in a non-terminal state
func CallConflictError(activeCallID string) *AppError {
	return NewWithStatus(ErrCodeCallConflict, "Another call is already in progress", http.StatusConflict).
		WithDetails(map[string]string{"active_call_id": activeCallID})
}

// Stale-state errors
func StaleTransitionError(callID, from, to string) *AppError {
	return NewWithStatus(ErrCodeStaleTransition,
		fmt.Sprintf("Transition %s -> %s ignored for call %s", from, to, callID),
		http.StatusConflict)
}

func SnapshotExpiredError(message string) *AppError {
	return NewWithStatus(ErrCodeSnapshotExpired, message, http.StatusGone)
}

// Exhaustion errors
func ReconnectExhaustedError(attempts int) *AppError {
	return New(ErrCodeReconnectExhausted, fmt.Sprintf("Reconnection failed after %d attempts", attempts))
}

func InitExhaustedError(resourceID string, attempts int) *AppError {
	return New(ErrCodeInitExhausted, fmt.Sprintf("Initialization of %s failed after %d attempts", resourceID, attempts))
}

func InitTimeoutError(resourceID string) *AppError {
	return New(ErrCodeInitTimeout, fmt.Sprintf("Initialization of %s timed out", resourceID))
}

// Platform capability errors
func PresentationFailedError(callID string) *AppError {
	return New(ErrCodePresentationFailed, fmt.Sprintf("No presentation mechanism could display call %s", callID))
}

// Internal errors
func InternalError(message string) *AppError {
	return NewWithStatus(ErrCodeInternal, message, http.StatusInternalServerError)
}

func StorageError(err error) *AppError {
	return Wrap(ErrCodeStorage, "Storage error", err)
}

func ServiceUnavailableError(message string) *AppError {
	return NewWithStatus(ErrCodeServiceUnavail, message, http.StatusServiceUnavailable)
}

// IsAppError checks if an error is an AppError type
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// HasCode reports whether err carries the given error code anywhere in its chain
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetAppError extracts AppError from an error, wrapping non-AppErrors as InternalError
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return InternalError(err.Error())
}
