// Package errors defines the error taxonomy shared by the fetcher, the backtester
// and the CLI. Every error carries an ErrorType so the top level can decide how
// to report it and which exit code to use, even after it has been wrapped.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorType represents the classification of an error
type ErrorType string

const (
	ErrorTypeNetwork           ErrorType = "network"            // Non-success HTTP status from the provider
	ErrorTypeTransport         ErrorType = "transport"          // Request could not be sent or completed
	ErrorTypeMalformedResponse ErrorType = "malformed_response" // Response body does not match the kline shape
	ErrorTypeInsufficientData  ErrorType = "insufficient_data"  // Empty candle sequence
	ErrorTypeDivisionByZero    ErrorType = "division_by_zero"   // A ratio with a zero denominator was requested
	ErrorTypeValidation        ErrorType = "validation"         // Bad input or configuration
	ErrorTypeCanceled          ErrorType = "canceled"           // Context canceled by the caller

	ErrorTypeUnknown ErrorType = "unknown"
)

// Exit codes following standard conventions
const (
	ExitSuccess       = 0
	ExitUsageError    = 1
	ExitConfigError   = 2
	ExitConnectionErr = 3
	ExitDataError     = 4
	ExitInterrupt     = 130
)

// maxBodySnippet bounds how much of an error response body is kept.
const maxBodySnippet = 256

// NetworkError reports a non-success HTTP status.
type NetworkError struct {
	StatusCode int
	URL        string
	Body       string
}

// NewNetworkError builds a NetworkError, truncating the body snippet.
func NewNetworkError(statusCode int, url string, body []byte) *NetworkError {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > maxBodySnippet {
		snippet = snippet[:maxBodySnippet] + "..."
	}
	return &NetworkError{StatusCode: statusCode, URL: url, Body: snippet}
}

func (e *NetworkError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("http error: status %d: %s", e.StatusCode, e.Body)
}

// Type implements Typed.
func (e *NetworkError) Type() ErrorType { return ErrorTypeNetwork }

// TransportError reports a request that never produced an HTTP response
// (DNS failure, refused connection, timeout, broken body read).
type TransportError struct {
	Op      string
	Err     error
	timeout bool
}

// NewTransportError wraps err, remembering whether it was a timeout.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, timeout: isTimeoutError(err)}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Type implements Typed.
func (e *TransportError) Type() ErrorType { return ErrorTypeTransport }

// Timeout reports whether the underlying fault was a deadline or net timeout.
func (e *TransportError) Timeout() bool { return e.timeout }

// MalformedResponseError reports a response whose shape or content is not a
// valid kline list. Index is the offending element, or -1 for the whole body.
type MalformedResponseError struct {
	Index  int
	Reason string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	msg := "malformed response"
	if e.Index >= 0 {
		msg = fmt.Sprintf("%s at element %d", msg, e.Index)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// Type implements Typed.
func (e *MalformedResponseError) Type() ErrorType { return ErrorTypeMalformedResponse }

// InsufficientDataError reports that a computation needed more candles than it got.
type InsufficientDataError struct {
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d candle(s), got %d", e.Need, e.Got)
}

// Type implements Typed.
func (e *InsufficientDataError) Type() ErrorType { return ErrorTypeInsufficientData }

// DivisionByZeroError names the ratio that could not be computed.
type DivisionByZeroError struct {
	Operation string
}

func (e *DivisionByZeroError) Error() string {
	return fmt.Sprintf("division by zero computing %s", e.Operation)
}

// Type implements Typed.
func (e *DivisionByZeroError) Type() ErrorType { return ErrorTypeDivisionByZero }

// Typed is implemented by every error in this package.
type Typed interface {
	error
	Type() ErrorType
}

// GetErrorType extracts the error type from anywhere in the wrap chain.
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	// Cancellation wins over the transport error it usually arrives in.
	if errors.Is(err, context.Canceled) {
		return ErrorTypeCanceled
	}
	var typed Typed
	if errors.As(err, &typed) {
		return typed.Type()
	}
	return ErrorTypeUnknown
}

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	switch GetErrorType(err) {
	case "":
		return ExitSuccess
	case ErrorTypeNetwork, ErrorTypeTransport:
		return ExitConnectionErr
	case ErrorTypeMalformedResponse, ErrorTypeInsufficientData, ErrorTypeDivisionByZero:
		return ExitDataError
	case ErrorTypeValidation:
		return ExitConfigError
	case ErrorTypeCanceled:
		return ExitInterrupt
	default:
		return ExitUsageError
	}
}

// WrapError wraps an error with additional context
func WrapError(err error, component, operation, message string) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%s in %s.%s: %w", message, component, operation, err)
}

// isTimeoutError checks if the error is timeout-related
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
