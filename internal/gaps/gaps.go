// Package gaps detects missing periods in a fetched candle sequence.
//
// The provider silently omits klines for periods without trading (exchange
// maintenance, delistings). A backtest counts each candle as one period, so a
// gap shifts the value path. Gaps are reported, never filled.
package gaps

import (
	"log/slog"
	"time"

	"github.com/johnayoung/go-value-averager/internal/models"
)

// Detector finds gaps in candle sequences.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a detector. A nil logger falls back to slog.Default().
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

// Detect returns every gap between consecutive candles whose open times are
// more than one interval apart. Candles must already be in ascending order.
// Intervals without a fixed length (calendar months) are not checked.
func (d *Detector) Detect(candles []models.Candle, interval string) []models.Gap {
	if len(candles) < 2 {
		return nil
	}

	step, ok := models.IntervalDuration(interval)
	if !ok {
		d.logger.Debug("skipping gap detection for variable-length interval", "interval", interval)
		return nil
	}

	var gaps []models.Gap
	for i := 0; i < len(candles)-1; i++ {
		current := candles[i].OpenAt()
		next := candles[i+1].OpenAt()

		expectedNext := current.Add(step)
		if !next.After(expectedNext) {
			continue
		}

		gap := models.Gap{
			Symbol:    candles[i].Symbol,
			Interval:  interval,
			StartTime: expectedNext,
			EndTime:   next,
			Missing:   int(next.Sub(expectedNext) / step),
		}
		if gap.Missing == 0 {
			// Misaligned open time inside one period; not a whole missing candle.
			continue
		}
		gaps = append(gaps, gap)
	}

	if len(gaps) > 0 {
		d.logger.Warn("gaps detected in candle sequence",
			"interval", interval,
			"gaps", len(gaps),
			"missing_periods", TotalMissing(gaps))
	}

	return gaps
}

// TotalMissing sums the missing periods over gaps.
func TotalMissing(gaps []models.Gap) int {
	total := 0
	for _, g := range gaps {
		total += g.Missing
	}
	return total
}

// Span returns the earliest start and latest end over gaps.
func Span(gaps []models.Gap) (time.Time, time.Time) {
	if len(gaps) == 0 {
		return time.Time{}, time.Time{}
	}
	start, end := gaps[0].StartTime, gaps[0].EndTime
	for _, g := range gaps[1:] {
		if g.StartTime.Before(start) {
			start = g.StartTime
		}
		if g.EndTime.After(end) {
			end = g.EndTime
		}
	}
	return start, end
}
