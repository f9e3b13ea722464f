package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a categorized error type
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"

	// Token issuance failures
	ErrCodeAuth ErrorCode = "AUTH"

	// Session startup failures; fatal to that session instance
	ErrCodeInit ErrorCode = "INIT"

	// Transport or media I/O failures, scoped to one operation
	ErrCodeSend  ErrorCode = "SEND"
	ErrCodeMedia ErrorCode = "MEDIA"

	// Reply handling failures
	ErrCodeValidation ErrorCode = "VALIDATION"
	ErrCodeDispatch   ErrorCode = "DISPATCH"

	// Internal errors
	ErrCodeInternal ErrorCode = "INTERNAL"
)

// AppError represents a structured application error
type AppError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Detail returns the message of the underlying cause, or the error's own
// message when there is none. Used for user-visible error responses.
func (e *AppError) Detail() string {
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Message
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// GetCode extracts the error code from an error chain
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// IsCode reports whether any error in the chain carries the given code
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// HTTPStatus maps an error code to the status surfaced to HTTP callers.
// Validation failures are the caller's fault; everything else is ours.
func HTTPStatus(code ErrorCode) int {
	if code == ErrCodeValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
