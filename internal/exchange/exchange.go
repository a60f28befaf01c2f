// Package exchange defines the interfaces and request types for market-data
// providers, and the Binance implementation of them.
package exchange

import (
	"context"
	"time"

	apperrors "github.com/johnayoung/go-value-averager/internal/errors"
	"github.com/johnayoung/go-value-averager/internal/models"
)

// MaxCandlesPerRequest is the largest page the provider will return.
const MaxCandlesPerRequest = 1000

// DefaultCandlesPerRequest is the page size the provider uses when no limit is sent.
const DefaultCandlesPerRequest = 500

// CandleFetcher retrieves kline data from a provider.
type CandleFetcher interface {
	// FetchCandles retrieves the candles covering [req.Start, req.End) in one
	// request. The provider may cap the page; FetchResponse.Truncated reports
	// when the cap was reached. An empty range yields an empty slice and no error.
	FetchCandles(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// HealthChecker provides a lightweight reachability probe.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RateLimitInfo exposes the client-side request throttle.
type RateLimitInfo interface {
	GetLimits() RateLimit
	WaitForLimit(ctx context.Context) error
}

// ExchangeAdapter combines all provider capabilities.
type ExchangeAdapter interface {
	CandleFetcher
	HealthChecker
	RateLimitInfo
}

// FetchRequest specifies parameters for fetching kline data.
type FetchRequest struct {
	// Symbol is the trading pair symbol (e.g., "SOLUSDT")
	Symbol string `json:"symbol"`

	// Interval specifies the candle interval (e.g., "1m", "1h", "1d")
	Interval string `json:"interval"`

	// Start is the beginning of the time range to fetch (inclusive)
	Start time.Time `json:"start"`

	// End is the end of the time range to fetch (exclusive)
	End time.Time `json:"end"`

	// Limit caps the page size; 0 means the provider default
	Limit int `json:"limit,omitempty"`
}

// FetchResponse contains the results of a candle fetch.
type FetchResponse struct {
	// Candles are ordered by open time, oldest first
	Candles []models.Candle `json:"candles"`

	// Truncated is true when the page cap was reached and later candles in
	// the range may be missing
	Truncated bool `json:"truncated"`
}

// RateLimit defines the client-side throttle configuration.
type RateLimit struct {
	RequestsPerSecond int `json:"requests_per_second"`
	BurstSize         int `json:"burst_size"`
}

// Validate checks if the FetchRequest has valid parameters.
func (r *FetchRequest) Validate() error {
	if r.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}

	if r.Interval == "" {
		return &ValidationError{Field: "interval", Message: "interval cannot be empty"}
	}

	if !models.IsSupportedInterval(r.Interval) {
		return &ValidationError{Field: "interval", Message: "unsupported interval " + r.Interval}
	}

	if r.Start.IsZero() {
		return &ValidationError{Field: "start", Message: "start time cannot be zero"}
	}

	if r.End.IsZero() {
		return &ValidationError{Field: "end", Message: "end time cannot be zero"}
	}

	if !r.End.After(r.Start) {
		return &ValidationError{Field: "end", Message: "end time must be after start time"}
	}

	if r.Limit < 0 || r.Limit > MaxCandlesPerRequest {
		return &ValidationError{Field: "limit", Message: "limit must be between 0 and 1000"}
	}

	return nil
}

// EffectiveLimit returns the page cap the provider will apply.
func (r *FetchRequest) EffectiveLimit() int {
	if r.Limit > 0 {
		return r.Limit
	}
	return DefaultCandlesPerRequest
}

// Duration returns the time span of the fetch request.
func (r *FetchRequest) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// ValidationError represents a validation error for exchange types.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation error for field " + e.Field + ": " + e.Message
}

// Type classifies the error for exit-code mapping.
func (e *ValidationError) Type() apperrors.ErrorType {
	return apperrors.ErrorTypeValidation
}
