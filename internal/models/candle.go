// Package models provides data structures and validation for kline market data.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	apperrors "github.com/johnayoung/go-value-averager/internal/errors"
)

// Candle is one kline as returned by the provider. Price and volume fields are
// kept as the provider's exact decimal strings and parsed only at point of use.
type Candle struct {
	OpenTime                 int64  `json:"open_time"`  // milliseconds since epoch
	Open                     string `json:"open"`
	High                     string `json:"high"`
	Low                      string `json:"low"`
	Close                    string `json:"close"`
	Volume                   string `json:"volume"`
	CloseTime                int64  `json:"close_time"` // milliseconds since epoch
	QuoteAssetVolume         string `json:"quote_asset_volume"`
	NumberOfTrades           int64  `json:"number_of_trades"`
	TakerBuyBaseAssetVolume  string `json:"taker_buy_base_asset_volume"`
	TakerBuyQuoteAssetVolume string `json:"taker_buy_quote_asset_volume"`

	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
}

// ValidationError represents a candle validation error with specific field context.
type ValidationError struct {
	Field   string // Field is the name of the field that failed validation
	Message string // Message explains the failure
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field %s: %s", e.Field, e.Message)
}

// Type classifies the error for exit-code mapping.
func (e *ValidationError) Type() apperrors.ErrorType {
	return apperrors.ErrorTypeValidation
}

// Validate checks timestamps, decimal formats, positivity of prices,
// non-negativity of volumes and the OHLC envelope.
func (c *Candle) Validate() error {
	if c.OpenTime <= 0 {
		return &ValidationError{Field: "open_time", Message: "open time must be a positive millisecond timestamp"}
	}
	if c.CloseTime <= c.OpenTime {
		return &ValidationError{
			Field:   "close_time",
			Message: fmt.Sprintf("close time (%d) must be after open time (%d)", c.CloseTime, c.OpenTime),
		}
	}

	prices := make(map[string]decimal.Decimal, 4)
	for _, f := range []struct {
		name  string
		value string
	}{
		{"open", c.Open},
		{"high", c.High},
		{"low", c.Low},
		{"close", c.Close},
	} {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return &ValidationError{Field: f.name, Message: fmt.Sprintf("invalid %s price format: %v", f.name, err)}
		}
		if !d.IsPositive() {
			return &ValidationError{Field: f.name, Message: fmt.Sprintf("%s price must be greater than 0", f.name)}
		}
		prices[f.name] = d
	}

	for _, f := range []struct {
		name  string
		value string
	}{
		{"volume", c.Volume},
		{"quote_asset_volume", c.QuoteAssetVolume},
		{"taker_buy_base_asset_volume", c.TakerBuyBaseAssetVolume},
		{"taker_buy_quote_asset_volume", c.TakerBuyQuoteAssetVolume},
	} {
		d, err := decimal.NewFromString(f.value)
		if err != nil {
			return &ValidationError{Field: f.name, Message: fmt.Sprintf("invalid %s format: %v", f.name, err)}
		}
		if d.IsNegative() {
			return &ValidationError{Field: f.name, Message: fmt.Sprintf("%s must be greater than or equal to 0", f.name)}
		}
	}

	if c.NumberOfTrades < 0 {
		return &ValidationError{Field: "number_of_trades", Message: "number of trades cannot be negative"}
	}

	open, high, low, close := prices["open"], prices["high"], prices["low"], prices["close"]

	// High >= max(Open, Close)
	maxOpenClose := decimal.Max(open, close)
	if high.LessThan(maxOpenClose) {
		return &ValidationError{
			Field:   "high",
			Message: fmt.Sprintf("high price (%s) must be greater than or equal to max(open, close) (%s)", high, maxOpenClose),
		}
	}

	// Low <= min(Open, Close)
	minOpenClose := decimal.Min(open, close)
	if low.GreaterThan(minOpenClose) {
		return &ValidationError{
			Field:   "low",
			Message: fmt.Sprintf("low price (%s) must be less than or equal to min(open, close) (%s)", low, minOpenClose),
		}
	}

	if c.Symbol == "" {
		return &ValidationError{Field: "symbol", Message: "symbol cannot be empty"}
	}
	if c.Interval == "" {
		return &ValidationError{Field: "interval", Message: "interval cannot be empty"}
	}

	return nil
}

// GetOpenDecimal returns the open price as a decimal.Decimal for precise calculations.
func (c *Candle) GetOpenDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Open)
}

// GetHighDecimal returns the high price as a decimal.Decimal.
func (c *Candle) GetHighDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.High)
}

// GetLowDecimal returns the low price as a decimal.Decimal.
func (c *Candle) GetLowDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Low)
}

// GetCloseDecimal returns the close price as a decimal.Decimal for precise calculations.
func (c *Candle) GetCloseDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Close)
}

// GetVolumeDecimal returns the base asset volume as a decimal.Decimal.
func (c *Candle) GetVolumeDecimal() (decimal.Decimal, error) {
	return decimal.NewFromString(c.Volume)
}

// OpenAt returns OpenTime as a UTC time.
func (c *Candle) OpenAt() time.Time {
	return time.UnixMilli(c.OpenTime).UTC()
}

// CloseAt returns CloseTime as a UTC time.
func (c *Candle) CloseAt() time.Time {
	return time.UnixMilli(c.CloseTime).UTC()
}

// String returns a human-readable string representation of the candle.
func (c *Candle) String() string {
	return fmt.Sprintf("Candle{Symbol: %s, Interval: %s, Open: %s, O: %s, H: %s, L: %s, C: %s, V: %s, Trades: %d}",
		c.Symbol, c.Interval, c.OpenAt().Format(time.RFC3339), c.Open, c.High, c.Low, c.Close, c.Volume, c.NumberOfTrades)
}

// CheckSequence verifies candles are in strictly ascending OpenTime order.
// Consumers rely on this ordering and never re-sort.
func CheckSequence(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].OpenTime, candles[i].OpenTime
		switch {
		case cur == prev:
			return &SequenceError{Index: i, Message: fmt.Sprintf("duplicate open time %d", cur)}
		case cur < prev:
			return &SequenceError{Index: i, Message: fmt.Sprintf("open time %d precedes previous %d", cur, prev)}
		}
	}
	return nil
}

// SequenceError reports the first out-of-order or duplicate candle.
type SequenceError struct {
	Index   int
	Message string
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("candle %d out of sequence: %s", e.Index, e.Message)
}
