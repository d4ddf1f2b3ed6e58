package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ErrorType classifies oracle failures.
type ErrorType string

const (
	ErrorTypeNone      ErrorType = ""
	ErrorTypeEndpoint  ErrorType = "endpoint"
	ErrorTypeAuth      ErrorType = "auth"
	ErrorTypeModel     ErrorType = "model"
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeResponse  ErrorType = "response"
	ErrorTypeCircuit   ErrorType = "circuit_open"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// Error represents a structured oracle error with classification.
type Error struct {
	Type       ErrorType // Classification of the error
	Message    string    // Human-readable message
	Retryable  bool      // Whether the operation can be retried
	Cause      error     // Underlying error
	StatusCode int       // HTTP status code if applicable
	Model      string    // Model name if known
	Endpoint   string    // Endpoint URL if known
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	parts = append(parts, string(e.Type))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("HTTP %d", e.StatusCode))
	}
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if host := endpointHost(e.Endpoint); host != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", host))
	}

	parts = append(parts, e.Message)

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Cause)
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable reports whether the same request may succeed if sent again.
func (e *Error) IsRetryable() bool {
	return e.Retryable
}

// NewError creates a structured oracle error.
func NewError(errType ErrorType, message string, retryable bool, cause error) *Error {
	return &Error{
		Type:      errType,
		Message:   message,
		Retryable: retryable,
		Cause:     cause,
	}
}

// NewErrorWithContext creates a structured oracle error carrying the model,
// endpoint and HTTP status of the failed call.
func NewErrorWithContext(errType ErrorType, message string, retryable bool, cause error, model, endpoint string, statusCode int) *Error {
	return &Error{
		Type:       errType,
		Message:    message,
		Retryable:  retryable,
		Cause:      cause,
		Model:      model,
		Endpoint:   endpoint,
		StatusCode: statusCode,
	}
}

// statusCodePattern finds an HTTP status code embedded in an SDK error message,
// e.g. "error, status code: 429, message: ...".
var statusCodePattern = regexp.MustCompile(`\b([45]\d\d)\b`)

// classifyRule maps a provider error to an ErrorType. Rules are tried in order.
type classifyRule struct {
	errType   ErrorType
	message   string
	retryable bool
	match     func(lower string, status int) bool
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

var classifyRules = []classifyRule{
	{ErrorTypeAuth, "authentication failed", false, func(lower string, status int) bool {
		return status == 401 || status == 403 || containsAny(lower, "unauthorized", "invalid api key", "invalid x-api-key")
	}},
	{ErrorTypeModel, "model not found", false, func(lower string, _ int) bool {
		return strings.Contains(lower, "model") && containsAny(lower, "not found", "does not exist")
	}},
	{ErrorTypeEndpoint, "endpoint not found", false, func(_ string, status int) bool {
		return status == 404
	}},
	{ErrorTypeEndpoint, "connection failed", true, func(lower string, _ int) bool {
		return containsAny(lower, "connection refused", "no such host", "connection reset")
	}},
	{ErrorTypeTimeout, "request timeout", true, func(lower string, status int) bool {
		return status == 408 || containsAny(lower, "timeout", "deadline exceeded")
	}},
	{ErrorTypeRateLimit, "rate limited", true, func(lower string, status int) bool {
		return status == 429 || strings.Contains(lower, "rate limit")
	}},
	// Anthropic answers 529 overloaded_error under load.
	{ErrorTypeRateLimit, "provider overloaded", true, func(lower string, status int) bool {
		return status == 529 || strings.Contains(lower, "overloaded")
	}},
	{ErrorTypeEndpoint, "server error", true, func(_ string, status int) bool {
		return status >= 500
	}},
}

// ClassifyError categorizes an error and returns a structured Error. An error
// that already wraps an *Error is returned as is.
func ClassifyError(err error) *Error {
	if err == nil {
		return nil
	}

	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(ErrorTypeTimeout, "request timeout", true, err)
	case errors.Is(err, context.Canceled):
		return NewError(ErrorTypeTimeout, "request canceled", false, err)
	}

	msg := err.Error()
	status := 0
	if m := statusCodePattern.FindStringSubmatch(msg); m != nil {
		status, _ = strconv.Atoi(m[1])
	}

	lower := strings.ToLower(msg)
	for _, rule := range classifyRules {
		if rule.match(lower, status) {
			classified := NewError(rule.errType, rule.message, rule.retryable, err)
			classified.StatusCode = status
			return classified
		}
	}

	classified := NewError(ErrorTypeUnknown, "oracle error", false, err)
	classified.StatusCode = status
	return classified
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

// GetErrorType extracts the ErrorType from an error.
func GetErrorType(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// endpointHost reduces an endpoint URL to its host so paths and keys in query
// strings never reach logs.
func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
