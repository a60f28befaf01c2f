// Package pipeline wires the fetch, data-quality, backtest and report stages
// into one run.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/johnayoung/go-value-averager/internal/backtest"
	"github.com/johnayoung/go-value-averager/internal/exchange"
	"github.com/johnayoung/go-value-averager/internal/gaps"
	"github.com/johnayoung/go-value-averager/internal/metrics"
	"github.com/johnayoung/go-value-averager/internal/models"
	"github.com/johnayoung/go-value-averager/internal/report"
	"github.com/johnayoung/go-value-averager/internal/validator"
)

// Request describes one backtest run.
type Request struct {
	RunID        string
	Symbol       string
	Interval     string
	Start        time.Time
	End          time.Time
	Limit        int
	GrowthTarget decimal.Decimal
}

// Outcome carries the result of a run together with what was learned about
// the input data.
type Outcome struct {
	Run       *models.Run
	Result    *backtest.Result
	Gaps      []models.Gap
	Anomalies []models.Anomaly
}

// Runner executes runs against one provider, writing reports to out.
type Runner struct {
	fetcher   exchange.CandleFetcher
	detector  *gaps.Detector
	validator *validator.Validator
	reporter  *report.Reporter
	metrics   *metrics.Collector
	out       io.Writer
	logger    *slog.Logger
}

// Option customises a Runner.
type Option func(*Runner)

// WithValidator replaces the default anomaly scanner.
func WithValidator(v *validator.Validator) Option {
	return func(r *Runner) { r.validator = v }
}

// WithMetrics records stage timings and counts into c.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Runner) { r.metrics = c }
}

// New creates a Runner. A nil logger falls back to slog.Default().
func New(fetcher exchange.CandleFetcher, reporter *report.Reporter, out io.Writer, logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Runner{
		fetcher:   fetcher,
		detector:  gaps.NewDetector(logger),
		validator: validator.New(validator.Config{}, logger),
		reporter:  reporter,
		metrics:   metrics.NewCollector(),
		out:       out,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fetches candles, checks them, runs the backtest and writes the report.
// Fetch and backtest errors are returned unchanged in their chain; nothing is
// written to the output unless the backtest succeeds.
func (r *Runner) Run(ctx context.Context, req Request) (*Outcome, error) {
	run := models.NewRun(req.RunID, req.Symbol, req.Interval, req.Start, req.End)
	if err := run.Start(); err != nil {
		return nil, err
	}
	outcome := &Outcome{Run: run}

	fail := func(err error) (*Outcome, error) {
		_ = run.Fail(err.Error())
		r.metrics.RecordError(metrics.RunErrors, string(run.Stage))
		r.logger.Error("run failed",
			"stage", run.Stage,
			"error", err,
			"elapsed", run.Elapsed())
		return outcome, err
	}

	// Fetch
	_ = run.Enter(models.StageFetch)
	done := r.metrics.Time(string(models.StageFetch))
	resp, err := r.fetcher.FetchCandles(ctx, exchange.FetchRequest{
		Symbol:   req.Symbol,
		Interval: req.Interval,
		Start:    req.Start,
		End:      req.End,
		Limit:    req.Limit,
	})
	done()
	if err != nil {
		return fail(fmt.Errorf("fetch candles: %w", err))
	}
	r.metrics.RecordGauge(metrics.CandlesFetched, float64(len(resp.Candles)), "candles returned by the provider")
	run.RecordFetch(len(resp.Candles), resp.Truncated)
	if resp.Truncated {
		r.metrics.RecordCounter(metrics.CandlesTruncated, 1, "fetches that hit the page cap")
		r.logger.Warn("candle range truncated by provider page cap; backtest covers a prefix of the requested range",
			"candles", len(resp.Candles))
	}

	// Data quality
	_ = run.Enter(models.StageGaps)
	done = r.metrics.Time(string(models.StageGaps))
	outcome.Gaps = r.detector.Detect(resp.Candles, req.Interval)
	run.RecordGaps(outcome.Gaps)
	r.metrics.RecordGauge(metrics.GapsFound, float64(len(outcome.Gaps)), "gaps between consecutive candles")
	r.metrics.RecordGauge(metrics.MissingCandles, float64(gaps.TotalMissing(outcome.Gaps)), "candles missing inside gaps")

	anomalies, err := r.validator.Scan(ctx, resp.Candles)
	done()
	if err != nil {
		return fail(fmt.Errorf("scan candles: %w", err))
	}
	outcome.Anomalies = anomalies
	r.metrics.RecordGauge(metrics.AnomaliesFound, float64(len(anomalies)), "price spikes and volume surges")

	// Backtest
	_ = run.Enter(models.StageBacktest)
	bt, err := backtest.New(backtest.Config{
		Symbol:                req.Symbol,
		GrowthTargetPerPeriod: req.GrowthTarget,
	}, r.logger)
	if err != nil {
		return fail(err)
	}
	done = r.metrics.Time(string(models.StageBacktest))
	result, err := bt.Run(resp.Candles)
	done()
	if err != nil {
		return fail(fmt.Errorf("backtest: %w", err))
	}
	outcome.Result = result
	r.metrics.RecordCounter(metrics.BuysExecuted, float64(result.Summary.BuyCount), "purchases made by the strategy")

	// Render
	_ = run.Enter(models.StageRender)
	var buf bytes.Buffer
	if err := r.reporter.Render(&buf, result); err != nil {
		return fail(fmt.Errorf("render report: %w", err))
	}
	if _, err := buf.WriteTo(r.out); err != nil {
		return fail(fmt.Errorf("write report: %w", err))
	}

	_ = run.Complete()
	r.logger.Info(run.Summary(), "elapsed", run.Elapsed(), "anomalies", len(anomalies))
	r.metrics.LogSnapshot(r.logger)

	return outcome, nil
}
