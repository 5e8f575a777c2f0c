// Package errors provides typed application errors with classification
// and HTTP status mapping.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents an application error code.
type Code string

// Error codes for different error categories.
const (
	// Validation errors
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeInvalidInput  Code = "INVALID_INPUT"
	CodeMissingField  Code = "MISSING_FIELD"
	CodeInvalidFormat Code = "INVALID_FORMAT"

	// Resource errors
	CodeNotFound  Code = "NOT_FOUND"
	CodeConflict  Code = "CONFLICT"
	CodeCacheMiss Code = "CACHE_MISS"

	// External service errors
	CodeVendor         Code = "VENDOR_ERROR"
	CodeCircuitOpen    Code = "CIRCUIT_OPEN"
	CodeTimeout        Code = "TIMEOUT"
	CodeWebhookInvalid Code = "WEBHOOK_INVALID"

	// State machine errors
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// Internal errors
	CodeInternal Code = "INTERNAL_ERROR"
	CodeDatabase Code = "DATABASE_ERROR"
	CodeConfig   Code = "CONFIG_ERROR"
)

// Kind classifies errors for handling decisions.
type Kind int

const (
	// KindUnknown is an unknown error kind.
	KindUnknown Kind = iota
	// KindUser indicates a caller-caused error (bad input, unknown resource).
	KindUser
	// KindSystem indicates a system error (database down, config broken).
	KindSystem
	// KindTransient indicates a temporary error that may succeed on retry.
	KindTransient
)

// Error is the base application error type.
type Error struct {
	// Code is the machine-readable error code.
	Code Code `json:"code"`
	// Message is the human-readable error message.
	Message string `json:"message"`
	// Kind classifies the error for handling decisions.
	Kind Kind `json:"-"`
	// Op is the operation being performed (e.g., "caller.Dispatch").
	Op string `json:"-"`
	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeValidation, CodeInvalidInput, CodeMissingField, CodeInvalidFormat:
		return http.StatusBadRequest
	case CodeNotFound, CodeCacheMiss:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidTransition:
		return http.StatusConflict
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeVendor, CodeCircuitOpen, CodeWebhookInvalid:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRetriable returns true if the error may succeed on retry.
func (e *Error) IsRetriable() bool {
	return e.Kind == KindTransient
}

// ErrorResponse represents the JSON response for API errors.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error details in API responses.
type ErrorDetail struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToResponse converts an Error to an API response.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error: ErrorDetail{
			Code:    e.Code,
			Message: e.Message,
		},
	}
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, op string, code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
		Op:      op,
		Err:     err,
	}
}

// kindForCode returns the default Kind for a given Code.
func kindForCode(code Code) Kind {
	switch code {
	case CodeValidation, CodeInvalidInput, CodeMissingField, CodeInvalidFormat,
		CodeNotFound, CodeConflict, CodeCacheMiss, CodeInvalidTransition,
		CodeWebhookInvalid:
		return KindUser
	case CodeTimeout, CodeCircuitOpen, CodeVendor:
		return KindTransient
	default:
		return KindSystem
	}
}

// Sentinel errors for common cases.
var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = New(CodeNotFound, "resource not found")

	// ErrCacheMiss indicates a call result is absent or expired.
	ErrCacheMiss = New(CodeCacheMiss, "call result not cached")

	// ErrCircuitOpen indicates the vendor circuit breaker is open.
	ErrCircuitOpen = New(CodeCircuitOpen, "vendor temporarily unavailable")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = New(CodeTimeout, "operation timed out")
)

// NotFound creates a not found error for a specific resource.
func NotFound(resource string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Kind:    KindUser,
	}
}

// ValidationFailed creates a validation error with details.
func ValidationFailed(message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: message,
		Kind:    KindUser,
	}
}

// MissingField creates a missing field validation error.
func MissingField(field string) *Error {
	return &Error{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Kind:    KindUser,
	}
}

// InvalidTransition creates a state machine violation error.
func InvalidTransition(from, to string) *Error {
	return &Error{
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("invalid status transition %s -> %s", from, to),
		Kind:    KindUser,
	}
}

// DatabaseError creates a database error with the underlying cause.
func DatabaseError(op string, err error) *Error {
	return &Error{
		Code:    CodeDatabase,
		Message: "database operation failed",
		Kind:    KindSystem,
		Op:      op,
		Err:     err,
	}
}

// VendorError creates a voice vendor error.
func VendorError(op string, err error) *Error {
	return &Error{
		Code:    CodeVendor,
		Message: "voice vendor error",
		Kind:    KindTransient,
		Op:      op,
		Err:     err,
	}
}

// WebhookError creates a webhook payload error.
func WebhookError(message string) *Error {
	return &Error{
		Code:    CodeWebhookInvalid,
		Message: message,
		Kind:    KindUser,
	}
}

// InternalError creates a generic internal error.
func InternalError(message string, err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: message,
		Kind:    KindSystem,
		Err:     err,
	}
}

// GetCode extracts the error code, returning CodeInternal for non-app errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status, returning 500 for non-app errors.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsRetriable checks if an error is retriable.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetriable()
	}
	return false
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeNotFound || e.Code == CodeCacheMiss
	}
	return false
}

// IsInvalidTransition checks for state machine violations.
func IsInvalidTransition(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeInvalidTransition
	}
	return false
}
