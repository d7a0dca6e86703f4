package apiclient

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Error codes carried by APIError.Code. HTTP failures use CodeForStatus.
const (
	CodeNetworkError    = "NETWORK_ERROR"
	CodeTimeout         = "TIMEOUT"
	CodeCancelled       = "CANCELLED"
	CodeCacheMiss       = "CACHE_MISS"
	CodeValidationError = "VALIDATION_ERROR"
	CodeCircuitOpen     = "CIRCUIT_OPEN"
	CodeRateLimited     = "RATE_LIMITED"
	CodeDecodeError     = "DECODE_ERROR"
)

// CodeForStatus maps a non-2xx HTTP status to its error code, e.g. HTTP_404.
func CodeForStatus(status int) string {
	return "HTTP_" + strconv.Itoa(status)
}

// APIError is the typed failure envelope attached to every error response.
// Instances are immutable once constructed; build them with NewAPIError and
// the With* helpers, which copy.
type APIError struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	UserMessage string         `json:"userMessage,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Status      int            `json:"status,omitempty"`
	Field       string         `json:"field,omitempty"`
	RequestID   string         `json:"requestId,omitempty"`
	Timestamp   time.Time      `json:"timestamp,omitempty"`

	Cause error `json:"-"`
}

// NewAPIError constructs an APIError with the current timestamp.
func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithStatus returns a copy carrying the HTTP status.
func (e *APIError) WithStatus(status int) *APIError {
	clone := *e
	clone.Status = status
	return &clone
}

// WithRequestID returns a copy carrying the originating request id.
func (e *APIError) WithRequestID(id string) *APIError {
	clone := *e
	clone.RequestID = id
	return &clone
}

// WithCause returns a copy wrapping the underlying error.
func (e *APIError) WithCause(cause error) *APIError {
	clone := *e
	clone.Cause = cause
	return &clone
}

// WithField returns a copy naming the field a validation failure refers to.
func (e *APIError) WithField(field string) *APIError {
	clone := *e
	clone.Field = field
	return &clone
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error codes for errors.Is.
func (e *APIError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*APIError); ok {
		return e.Code == targetErr.Code
	}
	return false
}

// IsCode reports whether err is an APIError carrying the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// IsTransient determines if an error represents a transient failure that might
// succeed on retry. Returns true for network errors, timeouts, 5xx server
// responses and rate limiting (429). Returns false for other 4xx client
// errors, cancellation and cache misses.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	switch apiErr.Code {
	case CodeNetworkError, CodeTimeout, CodeRateLimited:
		return true
	case CodeCancelled, CodeCacheMiss, CodeValidationError, CodeCircuitOpen, CodeDecodeError:
		return false
	}

	if apiErr.Status >= 500 {
		return true
	}
	return apiErr.Status == 429
}
