package models

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/johnayoung/go-value-averager/internal/errors"
)

const (
	testOpenTime  = int64(1672531200000) // 2023-01-01 00:00:00 UTC
	testCloseTime = testOpenTime + 86400000 - 1
)

func validCandle() Candle {
	return Candle{
		OpenTime:                 testOpenTime,
		Open:                     "9.97000000",
		High:                     "11.00000000",
		Low:                      "9.90000000",
		Close:                    "10.50000000",
		Volume:                   "123456.78000000",
		CloseTime:                testCloseTime,
		QuoteAssetVolume:         "1250000.12345678",
		NumberOfTrades:           4321,
		TakerBuyBaseAssetVolume:  "60000.00000000",
		TakerBuyQuoteAssetVolume: "610000.00000000",
		Symbol:                   "SOLUSDT",
		Interval:                 "1d",
	}
}

func TestCandle_Validate_Valid(t *testing.T) {
	c := validCandle()
	assert.NoError(t, c.Validate())
}

func TestCandle_Validate_Invalid(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(c *Candle)
		expectedField string
	}{
		{"zero open time", func(c *Candle) { c.OpenTime = 0 }, "open_time"},
		{"close before open", func(c *Candle) { c.CloseTime = c.OpenTime }, "close_time"},
		{"bad open format", func(c *Candle) { c.Open = "abc" }, "open"},
		{"zero close", func(c *Candle) { c.Close = "0" }, "close"},
		{"negative low", func(c *Candle) { c.Low = "-1" }, "low"},
		{"bad volume", func(c *Candle) { c.Volume = "" }, "volume"},
		{"negative quote volume", func(c *Candle) { c.QuoteAssetVolume = "-0.1" }, "quote_asset_volume"},
		{"negative trades", func(c *Candle) { c.NumberOfTrades = -1 }, "number_of_trades"},
		{"high below close", func(c *Candle) { c.High = "10.00000000" }, "high"},
		{"low above open", func(c *Candle) { c.Low = "10.00000000" }, "low"},
		{"missing symbol", func(c *Candle) { c.Symbol = "" }, "symbol"},
		{"missing interval", func(c *Candle) { c.Interval = "" }, "interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validCandle()
			tt.mutate(&c)

			err := c.Validate()
			require.Error(t, err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.expectedField, vErr.Field)
			assert.Equal(t, apperrors.ErrorTypeValidation, apperrors.GetErrorType(err))
		})
	}
}

func TestCandle_Validate_ZeroVolumeAllowed(t *testing.T) {
	c := validCandle()
	c.Volume = "0"
	c.NumberOfTrades = 0
	assert.NoError(t, c.Validate())
}

func TestCandle_GetDecimalMethods(t *testing.T) {
	c := validCandle()

	open, err := c.GetOpenDecimal()
	require.NoError(t, err)
	assert.True(t, open.Equal(decimal.RequireFromString("9.97")))

	high, err := c.GetHighDecimal()
	require.NoError(t, err)
	assert.True(t, high.Equal(decimal.NewFromInt(11)))

	low, err := c.GetLowDecimal()
	require.NoError(t, err)
	assert.True(t, low.Equal(decimal.RequireFromString("9.9")))

	close, err := c.GetCloseDecimal()
	require.NoError(t, err)
	assert.True(t, close.Equal(decimal.RequireFromString("10.5")))

	vol, err := c.GetVolumeDecimal()
	require.NoError(t, err)
	assert.Equal(t, "123456.78", vol.String())

	c.Close = "x"
	_, err = c.GetCloseDecimal()
	assert.Error(t, err)
}

func TestCandle_Times(t *testing.T) {
	c := validCandle()
	assert.Equal(t, "2023-01-01T00:00:00Z", c.OpenAt().Format("2006-01-02T15:04:05Z07:00"))
	assert.Equal(t, "2023-01-01T23:59:59.999Z", c.CloseAt().Format("2006-01-02T15:04:05.000Z07:00"))
}

func TestCandle_String(t *testing.T) {
	c := validCandle()
	s := c.String()
	assert.Contains(t, s, "Symbol: SOLUSDT")
	assert.Contains(t, s, "C: 10.50000000")
	assert.Contains(t, s, "Trades: 4321")
}

func TestCheckSequence(t *testing.T) {
	mk := func(times ...int64) []Candle {
		out := make([]Candle, len(times))
		for i, ts := range times {
			out[i] = Candle{OpenTime: ts}
		}
		return out
	}

	t.Run("empty and single are ordered", func(t *testing.T) {
		assert.NoError(t, CheckSequence(nil))
		assert.NoError(t, CheckSequence(mk(1)))
	})

	t.Run("ascending", func(t *testing.T) {
		assert.NoError(t, CheckSequence(mk(1, 2, 5, 9)))
	})

	t.Run("duplicate", func(t *testing.T) {
		err := CheckSequence(mk(1, 2, 2))
		var sErr *SequenceError
		require.True(t, errors.As(err, &sErr))
		assert.Equal(t, 2, sErr.Index)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("descending", func(t *testing.T) {
		err := CheckSequence(mk(3, 1))
		var sErr *SequenceError
		require.True(t, errors.As(err, &sErr))
		assert.Equal(t, 1, sErr.Index)
		assert.Contains(t, err.Error(), "precedes")
	})
}
