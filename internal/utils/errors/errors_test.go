package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		errType  ErrorType
		message  string
		expected string
	}{
		{
			name:     "validation error",
			errType:  ErrorTypeValidation,
			message:  "invalid input",
			expected: "VALIDATION: invalid input",
		},
		{
			name:     "not found error",
			errType:  ErrorTypeNotFound,
			message:  "webhook not found",
			expected: "NOT_FOUND: webhook not found",
		},
		{
			name:     "disallowed scheme",
			errType:  ErrorTypeDisallowedScheme,
			message:  "scheme ftp not allowed",
			expected: "DISALLOWED_SCHEME: scheme ftp not allowed",
		},
		{
			name:     "queue full",
			errType:  ErrorTypeQueueFull,
			message:  "queue full",
			expected: "QUEUE_FULL: queue full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.errType, tt.message)

			if err == nil {
				t.Fatal("expected error, got nil")
			}

			if err.Type != tt.errType {
				t.Errorf("expected type %v, got %v", tt.errType, err.Type)
			}

			if err.Message != tt.message {
				t.Errorf("expected message %q, got %q", tt.message, err.Message)
			}

			if !strings.Contains(err.Error(), tt.expected) {
				t.Errorf("expected error string to contain %q, got %q", tt.expected, err.Error())
			}

			if err.StackTrace == "" {
				t.Error("expected stack trace to be captured")
			}
		})
	}
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeValidation, "field %s is required", "url")

	if err == nil {
		t.Fatal("expected error, got nil")
	}

	expectedMessage := "field url is required"
	if err.Message != expectedMessage {
		t.Errorf("expected message %q, got %q", expectedMessage, err.Message)
	}
}

func TestWrap(t *testing.T) {
	originalErr := errors.New("original error")

	tests := []struct {
		name          string
		err           error
		errType       ErrorType
		message       string
		expectNil     bool
		expectedCause error
	}{
		{
			name:          "wrap standard error",
			err:           originalErr,
			errType:       ErrorTypeDatabase,
			message:       "wrapped error",
			expectNil:     false,
			expectedCause: originalErr,
		},
		{
			name:      "wrap nil error",
			err:       nil,
			errType:   ErrorTypeInternal,
			message:   "wrapped error",
			expectNil: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := Wrap(tt.err, tt.errType, tt.message)

			if tt.expectNil {
				if wrapped != nil {
					t.Errorf("expected nil, got %v", wrapped)
				}
				return
			}

			if wrapped == nil {
				t.Fatal("expected error, got nil")
			}

			if tt.expectedCause != nil && wrapped.Cause != tt.expectedCause {
				t.Errorf("expected cause %v, got %v", tt.expectedCause, wrapped.Cause)
			}

			if !strings.Contains(wrapped.Error(), tt.message) {
				t.Errorf("expected error to contain %q, got %q", tt.message, wrapped.Error())
			}
		})
	}
}

func TestWrapPreservesType(t *testing.T) {
	inner := New(ErrorTypeTimeout, "request timed out")
	wrapped := Wrap(inner, ErrorTypeInternal, "delivery failed")

	if wrapped.Type != ErrorTypeTimeout {
		t.Errorf("expected wrapped error to keep type TIMEOUT, got %v", wrapped.Type)
	}
	if !wrapped.Retryable {
		t.Error("expected wrapped timeout to stay retryable")
	}
	if !strings.Contains(wrapped.Message, "delivery failed") {
		t.Errorf("expected message prefix, got %q", wrapped.Message)
	}

	// Wrapping must not mutate the inner error.
	if inner.Message != "request timed out" {
		t.Errorf("inner error mutated: %q", inner.Message)
	}
}

func TestWrapf(t *testing.T) {
	originalErr := errors.New("connection refused")
	wrapped := Wrapf(originalErr, ErrorTypeDatabase, "failed to open %s", "webhooks.db")

	if wrapped == nil {
		t.Fatal("expected error, got nil")
	}

	expectedMessage := "failed to open webhooks.db"
	if wrapped.Message != expectedMessage {
		t.Errorf("expected message %q, got %q", expectedMessage, wrapped.Message)
	}

	if wrapped.Cause != originalErr {
		t.Errorf("expected cause to be original error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		errType  ErrorType
		expected bool
	}{
		{
			name:     "matching error type",
			err:      New(ErrorTypeNotFound, "test"),
			errType:  ErrorTypeNotFound,
			expected: true,
		},
		{
			name:     "non-matching error type",
			err:      New(ErrorTypeNotFound, "test"),
			errType:  ErrorTypeInternal,
			expected: false,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			errType:  ErrorTypeInternal,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			errType:  ErrorTypeInternal,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Is(tt.err, tt.errType)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestRetryableKinds(t *testing.T) {
	retryable := []ErrorType{
		ErrorTypeTimeout,
		ErrorTypeNetwork,
		ErrorTypeHTTP,
		ErrorTypeUnexpected,
	}
	terminal := []ErrorType{
		ErrorTypeDisallowedScheme,
		ErrorTypePayloadTooLarge,
		ErrorTypeQueueFull,
		ErrorTypeAutoDisableFailed,
		ErrorTypeValidation,
		ErrorTypeNotFound,
		ErrorTypeDatabase,
	}

	for _, kind := range retryable {
		if !IsRetryableType(kind) {
			t.Errorf("expected %s to be retryable", kind)
		}
		if !IsRetryable(New(kind, "x")) {
			t.Errorf("expected error of kind %s to be retryable", kind)
		}
	}
	for _, kind := range terminal {
		if IsRetryableType(kind) {
			t.Errorf("expected %s to be terminal", kind)
		}
	}

	if IsRetryable(errors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
	if IsRetryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestGetType(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorType
	}{
		{
			name:     "custom error",
			err:      New(ErrorTypePayloadTooLarge, "test"),
			expected: ErrorTypePayloadTooLarge,
		},
		{
			name:     "standard error",
			err:      errors.New("standard error"),
			expected: ErrorTypeInternal,
		},
		{
			name:     "nil error",
			err:      nil,
			expected: ErrorTypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := GetType(tt.err)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrorTypeValidation, "validation failed")

	err.WithDetails("field", "url").
		WithDetails("value", "ftp://example.com")

	if err.Details == nil {
		t.Fatal("expected details to be set")
	}

	if err.Details["field"] != "url" {
		t.Errorf("expected field to be 'url', got %v", err.Details["field"])
	}

	if err.Details["value"] != "ftp://example.com" {
		t.Errorf("expected value to be 'ftp://example.com', got %v", err.Details["value"])
	}
}

func TestHelperFunctions(t *testing.T) {
	t.Run("ValidationError", func(t *testing.T) {
		err := ValidationError("invalid input")
		if err.Type != ErrorTypeValidation {
			t.Errorf("expected validation error type, got %v", err.Type)
		}
	})

	t.Run("NotFoundError", func(t *testing.T) {
		err := NotFoundError("webhook")
		if err.Type != ErrorTypeNotFound {
			t.Errorf("expected not found error type, got %v", err.Type)
		}
		if err.Message != "webhook not found" {
			t.Errorf("expected message 'webhook not found', got %q", err.Message)
		}
	})

	t.Run("AlreadyExistsError", func(t *testing.T) {
		err := AlreadyExistsError("webhook hook-a")
		if err.Type != ErrorTypeAlreadyExists {
			t.Errorf("expected already exists error type, got %v", err.Type)
		}
		if err.Message != "webhook hook-a already exists" {
			t.Errorf("unexpected message %q", err.Message)
		}
	})

	t.Run("UnauthorizedError", func(t *testing.T) {
		err := UnauthorizedError("invalid token")
		if err.Type != ErrorTypeUnauthorized {
			t.Errorf("expected unauthorized error type, got %v", err.Type)
		}
	})

	t.Run("InternalError", func(t *testing.T) {
		err := InternalError("server error")
		if err.Type != ErrorTypeInternal {
			t.Errorf("expected internal error type, got %v", err.Type)
		}
	})

	t.Run("ConfigError", func(t *testing.T) {
		err := ConfigError("missing configuration")
		if err.Type != ErrorTypeConfig {
			t.Errorf("expected config error type, got %v", err.Type)
		}
	})
}

func TestUnwrap(t *testing.T) {
	originalErr := errors.New("original error")
	wrapped := Wrap(originalErr, ErrorTypeInternal, "wrapped")

	unwrapped := wrapped.Unwrap()
	if unwrapped != originalErr {
		t.Errorf("expected unwrapped error to be original error")
	}

	err := New(ErrorTypeValidation, "test")
	if err.Unwrap() != nil {
		t.Error("expected nil when unwrapping error without cause")
	}
}

func TestStackTrace(t *testing.T) {
	err := New(ErrorTypeInternal, "test error")

	if err.StackTrace == "" {
		t.Error("expected stack trace to be captured")
	}

	if !strings.Contains(err.StackTrace, "TestStackTrace") {
		t.Error("expected stack trace to contain test function name")
	}
}

func BenchmarkNew(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = New(ErrorTypeInternal, "benchmark error")
	}
}

func BenchmarkWrap(b *testing.B) {
	originalErr := errors.New("original error")
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = Wrap(originalErr, ErrorTypeInternal, "wrapped error")
	}
}
