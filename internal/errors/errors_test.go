package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockNetError struct {
	msg     string
	timeout bool
}

func (e mockNetError) Error() string   { return e.msg }
func (e mockNetError) Timeout() bool   { return e.timeout }
func (e mockNetError) Temporary() bool { return false }

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedType ErrorType
		expectedExit int
	}{
		{
			name:         "nil error",
			err:          nil,
			expectedType: "",
			expectedExit: ExitSuccess,
		},
		{
			name:         "http status",
			err:          NewNetworkError(503, "http://x", []byte("unavailable")),
			expectedType: ErrorTypeNetwork,
			expectedExit: ExitConnectionErr,
		},
		{
			name:         "transport",
			err:          NewTransportError("GET klines", fmt.Errorf("connection refused")),
			expectedType: ErrorTypeTransport,
			expectedExit: ExitConnectionErr,
		},
		{
			name:         "malformed",
			err:          &MalformedResponseError{Index: 2, Reason: "expected 11 fields, got 9"},
			expectedType: ErrorTypeMalformedResponse,
			expectedExit: ExitDataError,
		},
		{
			name:         "insufficient data",
			err:          &InsufficientDataError{Need: 1, Got: 0},
			expectedType: ErrorTypeInsufficientData,
			expectedExit: ExitDataError,
		},
		{
			name:         "division by zero",
			err:          &DivisionByZeroError{Operation: "average price"},
			expectedType: ErrorTypeDivisionByZero,
			expectedExit: ExitDataError,
		},
		{
			name:         "canceled",
			err:          fmt.Errorf("fetch: %w", context.Canceled),
			expectedType: ErrorTypeCanceled,
			expectedExit: ExitInterrupt,
		},
		{
			name:         "canceled inside transport error",
			err:          fmt.Errorf("fetch candles: %w", NewTransportError("GET /api/v3/klines", context.Canceled)),
			expectedType: ErrorTypeCanceled,
			expectedExit: ExitInterrupt,
		},
		{
			name:         "plain error",
			err:          fmt.Errorf("boom"),
			expectedType: ErrorTypeUnknown,
			expectedExit: ExitUsageError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedType, GetErrorType(tt.err))
			assert.Equal(t, tt.expectedExit, ExitCode(tt.err))
		})
	}
}

func TestClassificationSurvivesWrapping(t *testing.T) {
	base := &InsufficientDataError{Need: 1, Got: 0}
	wrapped := WrapError(fmt.Errorf("run: %w", base), "pipeline", "Run", "backtest failed")

	assert.Equal(t, ErrorTypeInsufficientData, GetErrorType(wrapped))

	var target *InsufficientDataError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, 0, target.Got)
	assert.Contains(t, wrapped.Error(), "backtest failed in pipeline.Run")
}

func TestWrapErrorNil(t *testing.T) {
	assert.NoError(t, WrapError(nil, "c", "o", "m"))
}

func TestNetworkError(t *testing.T) {
	t.Run("keeps status code", func(t *testing.T) {
		err := NewNetworkError(429, "http://x", []byte(`{"code":-1003}`))
		assert.Equal(t, 429, err.StatusCode)
		assert.Equal(t, `http error: status 429: {"code":-1003}`, err.Error())
	})

	t.Run("truncates long bodies", func(t *testing.T) {
		err := NewNetworkError(500, "http://x", []byte(strings.Repeat("a", 1000)))
		assert.Len(t, err.Body, maxBodySnippet+3)
		assert.True(t, strings.HasSuffix(err.Body, "..."))
	})

	t.Run("empty body", func(t *testing.T) {
		err := NewNetworkError(404, "http://x", nil)
		assert.Equal(t, "http error: status 404", err.Error())
	})
}

func TestTransportErrorTimeout(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		timeout bool
	}{
		{"deadline exceeded", fmt.Errorf("do: %w", context.DeadlineExceeded), true},
		{"net timeout", mockNetError{msg: "i/o timeout", timeout: true}, true},
		{"net non-timeout", mockNetError{msg: "connection reset"}, false},
		{"plain", fmt.Errorf("no such host"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTransportError("GET", tt.err)
			assert.Equal(t, tt.timeout, err.Timeout())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestMalformedResponseErrorMessage(t *testing.T) {
	whole := &MalformedResponseError{Index: -1, Reason: "body is not a JSON array"}
	assert.Equal(t, "malformed response: body is not a JSON array", whole.Error())

	cause := fmt.Errorf("bad decimal")
	elem := &MalformedResponseError{Index: 3, Reason: "invalid candle", Err: cause}
	assert.Equal(t, "malformed response at element 3: invalid candle: bad decimal", elem.Error())
	assert.ErrorIs(t, elem, cause)
}
