package core

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorType_String(t *testing.T) {
	tests := []struct {
		errType  ErrorType
		expected string
	}{
		{ErrorTypeUnknown, "UNKNOWN"},
		{ErrorTypeNetwork, "NETWORK"},
		{ErrorTypeTimeout, "TIMEOUT"},
		{ErrorTypeProtocol, "PROTOCOL"},
		{ErrorTypeLiveness, "LIVENESS"},
		{ErrorTypeAuthentication, "AUTHENTICATION"},
		{ErrorTypeSubscription, "SUBSCRIPTION"},
		{ErrorTypeRateLimit, "RATE_LIMIT"},
		{ErrorTypeExchange, "EXCHANGE"},
		{ErrorTypeUsage, "USAGE"},
		{ErrorTypeUnsupported, "UNSUPPORTED"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.errType.String())
		})
	}
}

func TestExchangeError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *ExchangeError
		expected string
	}{
		{
			name: "with code",
			err: &ExchangeError{
				Type:       ErrorTypeSubscription,
				StatusCode: 0,
				Code:       "60012",
				Message:    "invalid channel",
				Exchange:   "okx",
			},
			expected: "[okx] SUBSCRIPTION (0/60012): invalid channel",
		},
		{
			name: "without code",
			err: &ExchangeError{
				Type:       ErrorTypeNetwork,
				StatusCode: 0,
				Message:    "dial failed",
				Exchange:   "binance",
			},
			expected: "[binance] NETWORK (0): dial failed",
		},
		{
			name: "rest status code",
			err: &ExchangeError{
				Type:       ErrorTypeAuthentication,
				StatusCode: 401,
				Code:       "-2015",
				Message:    "invalid api key",
				Exchange:   "binance",
			},
			expected: "[binance] AUTHENTICATION (401/-2015): invalid api key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestNewExchangeError(t *testing.T) {
	err := NewExchangeError("bybit", ErrorTypeTimeout, 0, "heartbeat timed out")

	require.NotNil(t, err)
	assert.Equal(t, "bybit", err.Exchange)
	assert.Equal(t, ErrorTypeTimeout, err.Type)
	assert.Equal(t, 0, err.StatusCode)
	assert.Equal(t, "heartbeat timed out", err.Message)
	assert.Empty(t, err.Code)
	assert.False(t, err.Timestamp.IsZero())
}

func TestNewExchangeErrorWithCode(t *testing.T) {
	err := NewExchangeErrorWithCode("coinex", ErrorTypeExchange, 0, "20001", "invalid market")

	require.NotNil(t, err)
	assert.Equal(t, "coinex", err.Exchange)
	assert.Equal(t, ErrorTypeExchange, err.Type)
	assert.Equal(t, "20001", err.Code)
	assert.Equal(t, "invalid market", err.Message)
	assert.False(t, err.Timestamp.IsZero())
}

func TestErrorClassification(t *testing.T) {
	netErr := NewExchangeError("binance", ErrorTypeNetwork, 0, "dial failed")
	timeoutErr := NewExchangeError("binance", ErrorTypeTimeout, 0, "no response")
	livenessErr := NewExchangeError("binance", ErrorTypeLiveness, 0, "heartbeat failures")
	authErr := NewExchangeError("okx", ErrorTypeAuthentication, 0, "bad signature")
	subErr := NewExchangeError("bybit", ErrorTypeSubscription, 0, "bad topic")
	rateErr := NewExchangeError("gate", ErrorTypeRateLimit, 429, "too many requests")
	usageErr := NewExchangeError("deribit", ErrorTypeUsage, 0, "client reused")

	assert.True(t, IsNetworkError(netErr))
	assert.False(t, IsNetworkError(timeoutErr))

	assert.True(t, IsTimeoutError(timeoutErr))
	assert.True(t, IsTimeoutError(ErrRequestTimeout))
	assert.True(t, IsTimeoutError(fmt.Errorf("request 7: %w", ErrRequestTimeout)))
	assert.False(t, IsTimeoutError(netErr))

	assert.True(t, IsAuthenticationError(authErr))
	assert.False(t, IsAuthenticationError(subErr))

	assert.True(t, IsSubscriptionError(subErr))
	assert.False(t, IsSubscriptionError(authErr))

	assert.True(t, IsRateLimitError(rateErr))
	assert.False(t, IsRateLimitError(netErr))

	assert.True(t, IsTransientError(netErr))
	assert.True(t, IsTransientError(timeoutErr))
	assert.True(t, IsTransientError(livenessErr))
	assert.False(t, IsTransientError(authErr))
	assert.False(t, IsTransientError(errors.New("plain")))

	assert.True(t, IsFatalError(authErr))
	assert.True(t, IsFatalError(usageErr))
	assert.False(t, IsFatalError(netErr))
	assert.False(t, IsFatalError(nil))
}
