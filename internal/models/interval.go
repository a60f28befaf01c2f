package models

import "time"

// supportedIntervals lists the kline intervals the provider accepts, mapped to
// their fixed length. Calendar months have no fixed length and map to zero.
var supportedIntervals = map[string]time.Duration{
	"1s":  time.Second,
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
	"1M":  0,
}

// IsSupportedInterval reports whether the provider accepts interval.
// Intervals are case sensitive: "1m" is a minute, "1M" a month.
func IsSupportedInterval(interval string) bool {
	_, ok := supportedIntervals[interval]
	return ok
}

// IntervalDuration returns the fixed length of interval. The boolean is false
// for unknown intervals and for calendar months.
func IntervalDuration(interval string) (time.Duration, bool) {
	d, ok := supportedIntervals[interval]
	if !ok || d == 0 {
		return 0, false
	}
	return d, true
}
