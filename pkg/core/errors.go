package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of a connection or exchange error.
type ErrorType int

// Error type constants categorize errors for retry and reconnect decisions.
const (
	// ErrorTypeUnknown indicates an unclassified error.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeNetwork indicates a dial or socket failure.
	ErrorTypeNetwork
	// ErrorTypeTimeout indicates a request or heartbeat exceeded its deadline.
	ErrorTypeTimeout
	// ErrorTypeProtocol indicates a frame that could not be decoded or encoded.
	ErrorTypeProtocol
	// ErrorTypeLiveness indicates a watchdog forced the connection down.
	ErrorTypeLiveness
	// ErrorTypeAuthentication indicates a rejected login or token fetch.
	ErrorTypeAuthentication
	// ErrorTypeSubscription indicates a rejected subscribe or unsubscribe.
	ErrorTypeSubscription
	// ErrorTypeRateLimit indicates a rate limit was exceeded.
	ErrorTypeRateLimit
	// ErrorTypeExchange indicates an exchange-reported operational error.
	ErrorTypeExchange
	// ErrorTypeUsage indicates caller misuse of the client API.
	ErrorTypeUsage
	// ErrorTypeUnsupported indicates a venue or market without an adapter.
	ErrorTypeUnsupported
)

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	return [...]string{
		"UNKNOWN",
		"NETWORK",
		"TIMEOUT",
		"PROTOCOL",
		"LIVENESS",
		"AUTHENTICATION",
		"SUBSCRIPTION",
		"RATE_LIMIT",
		"EXCHANGE",
		"USAGE",
		"UNSUPPORTED",
	}[t]
}

// Sentinel errors for common error conditions.
var (
	// ErrClientClosed is returned when attempting to use a closed client.
	ErrClientClosed = errors.New("client is closed")
	// ErrAlreadyRunning is returned when Run is called on a running client.
	ErrAlreadyRunning = errors.New("client is already running")
	// ErrNotConnected is returned when the websocket is not connected.
	ErrNotConnected = errors.New("websocket not connected")
	// ErrDisconnected is returned to requests in flight when the
	// connection drops before their response arrives.
	ErrDisconnected = errors.New("websocket disconnected")
	// ErrRequestTimeout is returned when a request receives no response
	// within the configured request timeout.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrDuplicateRequest is returned when a request id is already
	// awaiting a response.
	ErrDuplicateRequest = errors.New("duplicate request id")
	// ErrUnsupported is returned for venue/market combinations without a
	// registered adapter or default endpoint.
	ErrUnsupported = errors.New("unsupported exchange or market")
	// ErrNoCredentials is returned when no API credentials are configured.
	ErrNoCredentials = errors.New("no credentials configured")
)

// ExchangeError represents a structured error from a venue or from the
// connection machinery in front of it. It provides detailed context for
// debugging and error handling.
type ExchangeError struct {
	// Type categorizes the error for programmatic handling.
	Type ErrorType `json:"type"`
	// StatusCode is the HTTP status code when the error came from a REST
	// call, zero otherwise.
	StatusCode int `json:"status_code"`
	// Code is the exchange-specific error code.
	Code string `json:"code"`
	// Message is the human-readable error description.
	Message string `json:"message"`
	// RawError contains the original error response for debugging.
	RawError any `json:"raw_error,omitempty"`
	// Exchange identifies which exchange the error belongs to.
	Exchange string `json:"exchange"`
	// Timestamp is when the error occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Error formats as "[exchange] TYPE (status/code): message", dropping the
// code segment when the venue reported none.
func (e *ExchangeError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s (%d/%s): %s",
			e.Exchange, e.Type, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%d): %s",
		e.Exchange, e.Type, e.StatusCode, e.Message)
}

// NewExchangeError builds a classified error stamped with the current
// time.
func NewExchangeError(exchange string, errorType ErrorType, statusCode int, message string) *ExchangeError {
	return &ExchangeError{
		Type:       errorType,
		StatusCode: statusCode,
		Message:    message,
		Exchange:   exchange,
		Timestamp:  time.Now(),
	}
}

// NewExchangeErrorWithCode builds a classified error that carries the
// venue's own error code alongside the message.
func NewExchangeErrorWithCode(exchange string, errorType ErrorType, statusCode int, code, message string) *ExchangeError {
	e := NewExchangeError(exchange, errorType, statusCode, message)
	e.Code = code
	return e
}

// typeOf extracts the classification from err, unwrapping as needed.
func typeOf(err error) (ErrorType, bool) {
	var e *ExchangeError
	if errors.As(err, &e) {
		return e.Type, true
	}
	return ErrorTypeUnknown, false
}

// IsNetworkError reports whether err is a network connectivity failure.
// Network errors are retryable and grow the reconnect backoff.
func IsNetworkError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeNetwork
}

// IsTimeoutError reports whether err is a timeout. Timeouts are retryable
// and leave the reconnect backoff unchanged.
func IsTimeoutError(err error) bool {
	if errors.Is(err, ErrRequestTimeout) {
		return true
	}
	t, ok := typeOf(err)
	return ok && t == ErrorTypeTimeout
}

// IsAuthenticationError reports whether err is a rejected login or token
// fetch. These do not heal on retry without new credentials.
func IsAuthenticationError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeAuthentication
}

// IsSubscriptionError reports whether err is a rejected subscribe or
// unsubscribe acknowledgement.
func IsSubscriptionError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeSubscription
}

// IsRateLimitError reports whether err is a rate limit violation.
func IsRateLimitError(err error) bool {
	t, ok := typeOf(err)
	return ok && t == ErrorTypeRateLimit
}

// IsTransientError reports whether the reconnect loop absorbs err on its
// own: network failures, timeouts, and liveness resets.
func IsTransientError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrorTypeNetwork || t == ErrorTypeTimeout || t == ErrorTypeLiveness)
}

// IsFatalError reports whether err will not succeed on retry and must
// surface to the caller.
func IsFatalError(err error) bool {
	t, ok := typeOf(err)
	return ok && (t == ErrorTypeAuthentication || t == ErrorTypeUsage || t == ErrorTypeUnsupported)
}
