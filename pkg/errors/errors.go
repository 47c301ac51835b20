package errors

import (
	"errors"
	"fmt"
)

// Type classifies pipeline errors for retry and reporting decisions.
type Type string

const (
	// Extraction-stage errors, recoverable per post.
	TypeUnsupportedSource Type = "unsupported_source"
	TypeResolutionFailed  Type = "resolution_failed"

	// Download-stage errors, recoverable per asset.
	TypeFetchExhausted    Type = "fetch_exhausted"
	TypeFetchTooLarge     Type = "fetch_too_large"
	TypeFetchKindMismatch Type = "fetch_kind_mismatch"

	// Per-target error: the listing endpoint stayed unreachable after the
	// retry budget was spent. Aborts the target, not the run.
	TypeListingUnavailable Type = "listing_unavailable"

	// Fatal errors that abort the whole run.
	TypeConfigInvalid    Type = "config_invalid"
	TypeStoreUnavailable Type = "store_unavailable"

	// Transport classifications used by the retry layer.
	TypeNetwork     Type = "network"
	TypeRateLimit   Type = "rate_limit"
	TypeServerError Type = "server_error"
	TypeNotFound    Type = "not_found"
	TypeParsing     Type = "parsing"
	TypeUnknown     Type = "unknown"
)

// Error represents a typed pipeline error.
type Error struct {
	Type    Type
	Message string
	Code    int // HTTP status code when applicable
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a typed error without a cause.
func New(t Type, message string) *Error {
	return &Error{Type: t, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(t Type, format string, args ...interface{}) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a typed error wrapping an underlying cause.
func Wrap(t Type, message string, err error) *Error {
	return &Error{Type: t, Message: message, Err: err}
}

// WithCode creates a typed error carrying an HTTP status code.
func WithCode(t Type, message string, code int) *Error {
	return &Error{Type: t, Message: message, Code: code}
}

// TypeOf returns the classification of err, or TypeUnknown when no typed
// error exists anywhere in its chain.
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return TypeUnknown
}

// Is reports whether the first typed error in err's chain has the given type.
func Is(err error, t Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// IsFatal reports whether an error must terminate the run immediately.
func IsFatal(err error) bool {
	switch TypeOf(err) {
	case TypeConfigInvalid, TypeStoreUnavailable:
		return true
	default:
		return false
	}
}

// IsRetryable checks if an error type should be retried.
func IsRetryable(errorType Type) bool {
	switch errorType {
	case TypeNetwork, TypeRateLimit, TypeServerError:
		return true
	default:
		return false
	}
}

// IsRetryableStatusCode checks if an HTTP status code indicates a retryable error.
func IsRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case 0: // Network error
		return true
	case 429: // Too Many Requests
		return true
	case 500, 502, 503, 504: // Server errors
		return true
	case 401, 403, 404: // Client errors that won't change
		return false
	default:
		return statusCode >= 500 // Retry all 5xx errors
	}
}
