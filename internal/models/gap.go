package models

import (
	"fmt"
	"time"
)

// Gap represents missing periods between two consecutive candles of a fetched sequence.
type Gap struct {
	// Symbol is the trading pair symbol (e.g., "SOLUSDT")
	Symbol string `json:"symbol"`

	// Interval is the candle interval the gap was measured against (e.g., "1d")
	Interval string `json:"interval"`

	// StartTime is the open time of the first missing candle, in UTC
	StartTime time.Time `json:"start_time"`

	// EndTime is the open time of the candle that ends the gap, in UTC
	EndTime time.Time `json:"end_time"`

	// Missing is the number of whole periods absent between the two candles
	Missing int `json:"missing"`
}

// Duration returns the span of the gap.
func (g *Gap) Duration() time.Duration {
	return g.EndTime.Sub(g.StartTime)
}

// String returns a human-readable description of the gap.
func (g *Gap) String() string {
	return fmt.Sprintf("Gap{Symbol: %s, Interval: %s, Start: %s, End: %s, Missing: %d}",
		g.Symbol, g.Interval, g.StartTime.Format(time.RFC3339), g.EndTime.Format(time.RFC3339), g.Missing)
}
