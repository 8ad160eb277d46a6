package errors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorType classifies an error for handling and reporting.
type ErrorType string

const (
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeAlreadyExists ErrorType = "ALREADY_EXISTS"
	ErrorTypeUnauthorized  ErrorType = "UNAUTHORIZED"
	ErrorTypeInternal      ErrorType = "INTERNAL"
	ErrorTypeDatabase      ErrorType = "DATABASE"
	ErrorTypeConfig        ErrorType = "CONFIG"
	ErrorTypeRateLimit     ErrorType = "RATE_LIMIT"

	// Delivery outcome kinds. The retryable split drives the dispatcher's
	// retry policy: preflight rejections and queue overflow are final,
	// transport-level failures are worth another attempt.
	ErrorTypeDisallowedScheme  ErrorType = "DISALLOWED_SCHEME"
	ErrorTypePayloadTooLarge   ErrorType = "PAYLOAD_TOO_LARGE"
	ErrorTypeTimeout           ErrorType = "TIMEOUT"
	ErrorTypeNetwork           ErrorType = "NETWORK"
	ErrorTypeHTTP              ErrorType = "HTTP_ERROR"
	ErrorTypeUnexpected        ErrorType = "UNEXPECTED"
	ErrorTypeQueueFull         ErrorType = "QUEUE_FULL"
	ErrorTypeAutoDisableFailed ErrorType = "AUTO_DISABLE_FAILED"
)

// Error represents a structured error with context
type Error struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Retryable  bool                   `json:"retryable"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetails adds a detail entry to the error
func (e *Error) WithDetails(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// New creates a new error with the given type and message
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		StackTrace: getStackTrace(),
		Retryable:  IsRetryableType(errType),
	}
}

// Newf creates a new error with a formatted message
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return New(errType, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with additional context. Wrapping an *Error
// keeps its type and retry classification.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	if e, ok := err.(*Error); ok {
		wrapped := *e
		wrapped.Message = fmt.Sprintf("%s: %s", message, e.Message)
		return &wrapped
	}

	return &Error{
		Type:       errType,
		Message:    message,
		Cause:      err,
		StackTrace: getStackTrace(),
		Retryable:  IsRetryableType(errType),
	}
}

// Wrapf wraps an error with a formatted message
func Wrapf(err error, errType ErrorType, format string, args ...interface{}) *Error {
	return Wrap(err, errType, fmt.Sprintf(format, args...))
}

// Is checks if an error is of a specific type
func Is(err error, errType ErrorType) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == errType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetType returns the error type if it's a structured error
func GetType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeInternal
}

// IsRetryableType reports whether a delivery with this outcome kind should
// be attempted again.
func IsRetryableType(errType ErrorType) bool {
	switch errType {
	case ErrorTypeTimeout, ErrorTypeNetwork, ErrorTypeHTTP, ErrorTypeUnexpected:
		return true
	default:
		return false
	}
}

// getStackTrace captures the current stack trace
func getStackTrace() string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(3, pcs[:])

	var sb strings.Builder
	frames := runtime.CallersFrames(pcs[:n])

	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			sb.WriteString(fmt.Sprintf("%s:%d %s\n", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}

	return sb.String()
}

// ValidationError creates a validation error
func ValidationError(message string) *Error {
	return New(ErrorTypeValidation, message)
}

// NotFoundError creates a not found error
func NotFoundError(resource string) *Error {
	return Newf(ErrorTypeNotFound, "%s not found", resource)
}

// AlreadyExistsError creates a conflict error
func AlreadyExistsError(resource string) *Error {
	return Newf(ErrorTypeAlreadyExists, "%s already exists", resource)
}

// UnauthorizedError creates an unauthorized error
func UnauthorizedError(message string) *Error {
	return New(ErrorTypeUnauthorized, message)
}

// InternalError creates an internal error
func InternalError(message string) *Error {
	return New(ErrorTypeInternal, message)
}

// ConfigError creates a configuration error
func ConfigError(message string) *Error {
	return New(ErrorTypeConfig, message)
}
