package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ahrav/go-evoprompt/internal/ports"
)

// Errors returned by providers before or after the remote call.
var (
	// ErrEmptyAPIKey indicates a hosted provider was configured without a key.
	ErrEmptyAPIKey = errors.New("API key cannot be empty")
	// ErrEmptyResponse indicates the provider returned no usable body.
	ErrEmptyResponse = errors.New("empty response from API")
	// ErrNoResponseChoice indicates the provider returned no choices.
	ErrNoResponseChoice = errors.New("no response choices returned")
)

// ErrorType classifies a provider failure.
type ErrorType int

const (
	// ErrorTypeUnknown is an unclassified failure.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeAuthentication is a rejected or missing credential.
	ErrorTypeAuthentication
	// ErrorTypeRateLimit is a 429 or provider quota error.
	ErrorTypeRateLimit
	// ErrorTypeBadRequest is a malformed request.
	ErrorTypeBadRequest
	// ErrorTypeNotFound is usually a model the endpoint does not serve.
	ErrorTypeNotFound
	// ErrorTypeServerError is a 5xx from the provider.
	ErrorTypeServerError
	// ErrorTypeContentPolicy is a safety block.
	ErrorTypeContentPolicy
	// ErrorTypeNetwork is a transport failure.
	ErrorTypeNetwork
	// ErrorTypeTimeout is a deadline hit while waiting for the provider.
	ErrorTypeTimeout
)

var errorTypeNames = map[ErrorType]string{
	ErrorTypeAuthentication: "authentication",
	ErrorTypeRateLimit:      "rate_limit",
	ErrorTypeBadRequest:     "bad_request",
	ErrorTypeNotFound:       "not_found",
	ErrorTypeServerError:    "server_error",
	ErrorTypeContentPolicy:  "content_policy",
	ErrorTypeNetwork:        "network",
	ErrorTypeTimeout:        "timeout",
}

// String returns the snake_case name of the type, or "unknown".
func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ProviderError is a normalized failure from one provider.
type ProviderError struct {
	Type       ErrorType
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	msg := e.Provider + " error"
	if e.StatusCode > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	if e.Type != ErrorTypeUnknown {
		msg += " [" + e.Type.String() + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// IsRetryable reports whether the failure is transient.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout:
		return true
	default:
		return false
	}
}

// sentinel returns the ports error matching the failure type, or nil.
func (e *ProviderError) sentinel() error {
	switch e.Type {
	case ErrorTypeRateLimit:
		return ports.ErrRateLimited
	case ErrorTypeServerError, ErrorTypeNetwork:
		return ports.ErrServiceUnavailable
	case ErrorTypeTimeout:
		return ports.ErrTimeout
	case ErrorTypeNotFound:
		return ports.ErrModelNotFound
	default:
		return nil
	}
}

// NewProviderError creates a ProviderError.
func NewProviderError(provider string, errType ErrorType, statusCode int, message string, wrapped error) *ProviderError {
	return &ProviderError{
		Type:       errType,
		Provider:   provider,
		StatusCode: statusCode,
		Message:    message,
		Err:        wrapped,
	}
}

// ErrorClassifier turns transport-level failures into ProviderErrors for a
// single provider.
type ErrorClassifier struct {
	Provider string
}

// ClassifyHTTPError classifies a failure by HTTP status code.
func (ec *ErrorClassifier) ClassifyHTTPError(statusCode int, message string, err error) *ProviderError {
	var errType ErrorType
	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		errType = ErrorTypeAuthentication
		message = ec.Provider + " authentication failed"
	case statusCode == http.StatusTooManyRequests:
		errType = ErrorTypeRateLimit
		message = ec.Provider + " rate limit exceeded"
	case statusCode == http.StatusNotFound:
		errType = ErrorTypeNotFound
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		errType = ErrorTypeTimeout
	case statusCode >= 500:
		errType = ErrorTypeServerError
	case statusCode >= 400:
		errType = ErrorTypeBadRequest
	default:
		errType = ErrorTypeUnknown
	}
	return NewProviderError(ec.Provider, errType, statusCode, message, err)
}

// ClassifyTransportError classifies an error returned before any HTTP
// status was received.
func (ec *ErrorClassifier) ClassifyTransportError(err error) *ProviderError {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewProviderError(ec.Provider, ErrorTypeTimeout, 0, "deadline exceeded", err)
	case errors.Is(err, context.Canceled):
		return NewProviderError(ec.Provider, ErrorTypeUnknown, 0, "request canceled", err)
	default:
		return NewProviderError(ec.Provider, ErrorTypeNetwork, 0, "", err)
	}
}
