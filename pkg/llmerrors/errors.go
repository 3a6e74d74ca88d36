// Package llmerrors provides structured error classification for model API interactions.
package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType represents different categories of model errors.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content.
	ErrorTypeEmptyResponse

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (too long, violates policy).
	ErrorTypeBadPrompt
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown

	// ErrorTypeServiceUnavailable is emitted by the retry middleware once attempts are exhausted.
	ErrorTypeServiceUnavailable
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// Error represents a classified model error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error for error unwrapping.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns whether this error type may succeed on a later attempt.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable:
		return false
	default:
		return true
	}
}

// Is checks if an error is of a specific type.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// NewError creates a new classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{
		Type:    errorType,
		Message: message,
	}
}

// NewErrorWithStatus creates a new classified error with HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, cause error, message string) *Error {
	return &Error{
		Type:       errorType,
		StatusCode: statusCode,
		Err:        cause,
		Message:    message,
	}
}

// NewErrorWithCause creates a new classified error wrapping another error.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{
		Type:    errorType,
		Err:     cause,
		Message: message,
	}
}

// NewServiceUnavailableError marks a retryable failure whose attempts are exhausted.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts", attempts),
	}
}

// IsServiceUnavailable checks if the error indicates persistent service unavailability.
func IsServiceUnavailable(err error) bool {
	return Is(err, ErrorTypeServiceUnavailable)
}

//nolint:gochecknoglobals // Compiled once
var statusPattern = regexp.MustCompile(`(?i)(?:status(?: code)?:?|http|code)\s*([1-5]\d\d)\b`)

// ExtractStatusCode pulls an HTTP status out of an SDK error string. Returns 0 when none is found.
func ExtractStatusCode(errStr string) int {
	m := statusPattern.FindStringSubmatch(errStr)
	if len(m) < 2 {
		return 0
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return code
}

// FromStatus maps an HTTP status to a classified error. Returns nil for statuses it does not know.
func FromStatus(statusCode int, cause error) *Error {
	switch {
	case statusCode == 401:
		return NewErrorWithStatus(ErrorTypeAuth, statusCode, cause, "authentication failed - check API key")
	case statusCode == 403:
		return NewErrorWithStatus(ErrorTypeAuth, statusCode, cause, "permission denied - check API access")
	case statusCode == 429:
		return NewErrorWithStatus(ErrorTypeRateLimit, statusCode, cause, "rate limit exceeded")
	case statusCode == 400 || statusCode == 404 || statusCode == 413 || statusCode == 422:
		return NewErrorWithStatus(ErrorTypeBadPrompt, statusCode, cause, "bad request - check prompt format and parameters")
	case statusCode >= 500 && statusCode <= 599:
		return NewErrorWithStatus(ErrorTypeTransient, statusCode, cause, "server error")
	default:
		return nil
	}
}

// Classify maps a provider SDK error to a classified error. Already classified errors pass through.
// provider is only used to label the message.
func Classify(provider string, err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, provider+" request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeTransient, err, provider+" request canceled")
	}

	errStr := err.Error()
	if classified := FromStatus(ExtractStatusCode(errStr), err); classified != nil {
		return classified
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "timeout") ||
		strings.Contains(lower, "connection") ||
		strings.Contains(lower, "network") ||
		strings.Contains(lower, "temporary") ||
		strings.Contains(lower, "eof") ||
		strings.Contains(lower, "reset"):
		return NewErrorWithCause(ErrorTypeTransient, err, provider+" network or connection error")
	case strings.Contains(lower, "rate") ||
		strings.Contains(lower, "quota") ||
		strings.Contains(lower, "resource_exhausted"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, provider+" rate limiting detected")
	case strings.Contains(lower, "api key") ||
		strings.Contains(lower, "unauthorized") ||
		strings.Contains(lower, "permission"):
		return NewErrorWithCause(ErrorTypeAuth, err, provider+" authentication error")
	case strings.Contains(lower, "invalid") ||
		strings.Contains(lower, "malformed") ||
		strings.Contains(lower, "too large"):
		return NewErrorWithCause(ErrorTypeBadPrompt, err, provider+" prompt or request error")
	default:
		return NewErrorWithCause(ErrorTypeUnknown, err, provider+" API call failed")
	}
}
