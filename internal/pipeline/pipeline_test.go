package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/johnayoung/go-value-averager/internal/errors"
	"github.com/johnayoung/go-value-averager/internal/exchange"
	"github.com/johnayoung/go-value-averager/internal/metrics"
	"github.com/johnayoung/go-value-averager/internal/models"
	"github.com/johnayoung/go-value-averager/internal/report"
)

var jan1 = time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

type stubFetcher struct {
	resp  *exchange.FetchResponse
	err   error
	calls int
	last  exchange.FetchRequest
}

func (s *stubFetcher) FetchCandles(ctx context.Context, req exchange.FetchRequest) (*exchange.FetchResponse, error) {
	s.calls++
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("disk full") }

func createTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func candlesAt(dayOffsets []int, closes []string) []models.Candle {
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		open := jan1.AddDate(0, 0, dayOffsets[i])
		out[i] = models.Candle{
			OpenTime:  open.UnixMilli(),
			Open:      closes[0],
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    "100",
			CloseTime: open.AddDate(0, 0, 1).UnixMilli() - 1,
			Symbol:    "SOLUSDT",
			Interval:  "1d",
		}
	}
	return out
}

func testRequest() Request {
	return Request{
		RunID:        "run-test",
		Symbol:       "SOLUSDT",
		Interval:     "1d",
		Start:        jan1,
		End:          jan1.AddDate(0, 0, 3),
		GrowthTarget: decimal.NewFromInt(10),
	}
}

func newRunner(t *testing.T, fetcher exchange.CandleFetcher, out io.Writer) *Runner {
	t.Helper()
	reporter, err := report.New(report.Options{Timezone: "UTC"})
	require.NoError(t, err)
	return New(fetcher, reporter, out, createTestLogger())
}

func TestRunner_Success(t *testing.T) {
	fetcher := &stubFetcher{resp: &exchange.FetchResponse{Candles: candlesAt([]int{0, 1, 2}, []string{"10", "20", "5"})}}
	var out bytes.Buffer

	outcome, err := newRunner(t, fetcher, &out).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls)
	assert.Equal(t, "SOLUSDT", fetcher.last.Symbol)
	assert.Equal(t, jan1.AddDate(0, 0, 3), fetcher.last.End)

	require.NotNil(t, outcome.Result)
	assert.Equal(t, 2, outcome.Result.Summary.BuyCount)
	assert.Empty(t, outcome.Gaps)
	assert.True(t, outcome.Run.IsComplete())
	assert.Equal(t, 3, outcome.Run.CandlesFetched)

	assert.True(t, strings.HasPrefix(out.String(), "Bought 1.000000 SOLUSDT at $10 with $10.00 on 2023-01-01\n"))
	assert.Contains(t, out.String(), "Number of buys: 2\n")
}

func TestRunner_ReportsGapsAndTruncation(t *testing.T) {
	fetcher := &stubFetcher{resp: &exchange.FetchResponse{
		Candles:   candlesAt([]int{0, 1, 4}, []string{"10", "11", "12"}),
		Truncated: true,
	}}

	outcome, err := newRunner(t, fetcher, io.Discard).Run(context.Background(), testRequest())
	require.NoError(t, err)

	require.Len(t, outcome.Gaps, 1)
	assert.Equal(t, 2, outcome.Gaps[0].Missing)
	assert.Equal(t, 1, outcome.Run.GapsFound)
	assert.Equal(t, 2, outcome.Run.MissingCandles)
	assert.True(t, outcome.Run.Truncated)
}

func TestRunner_ReportsAnomalies(t *testing.T) {
	fetcher := &stubFetcher{resp: &exchange.FetchResponse{Candles: candlesAt([]int{0, 1}, []string{"10", "80"})}}

	outcome, err := newRunner(t, fetcher, io.Discard).Run(context.Background(), testRequest())
	require.NoError(t, err)
	require.Len(t, outcome.Anomalies, 1)
	assert.Equal(t, models.AnomalyTypePriceSpike, outcome.Anomalies[0].Type)
}

func TestRunner_FetchErrorPropagates(t *testing.T) {
	fetchErr := apperrors.NewNetworkError(http.StatusTooManyRequests, "/api/v3/klines", []byte("slow down"))
	fetcher := &stubFetcher{err: fetchErr}
	var out bytes.Buffer

	outcome, err := newRunner(t, fetcher, &out).Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, fetchErr)
	assert.Equal(t, apperrors.ExitConnectionErr, apperrors.ExitCode(err))

	assert.Empty(t, out.String())
	assert.Nil(t, outcome.Result)
	assert.True(t, outcome.Run.IsFailed())
	assert.Equal(t, models.StageFetch, outcome.Run.Stage)
}

func TestRunner_EmptyRangeFailsWithoutOutput(t *testing.T) {
	fetcher := &stubFetcher{resp: &exchange.FetchResponse{Candles: []models.Candle{}}}
	var out bytes.Buffer

	outcome, err := newRunner(t, fetcher, &out).Run(context.Background(), testRequest())
	require.Error(t, err)

	var insufficient *apperrors.InsufficientDataError
	assert.True(t, errors.As(err, &insufficient))
	assert.Empty(t, out.String())
	assert.Equal(t, models.StageBacktest, outcome.Run.Stage)
}

func TestRunner_InvalidGrowth(t *testing.T) {
	fetcher := &stubFetcher{resp: &exchange.FetchResponse{Candles: candlesAt([]int{0}, []string{"10"})}}
	req := testRequest()
	req.GrowthTarget = decimal.Zero

	_, err := newRunner(t, fetcher, io.Discard).Run(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ExitConfigError, apperrors.ExitCode(err))
}

func TestRunner_WriteFailure(t *testing.T) {
	fetcher := &stubFetcher{resp: &exchange.FetchResponse{Candles: candlesAt([]int{0}, []string{"10"})}}

	outcome, err := newRunner(t, fetcher, failingWriter{}).Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, models.StageRender, outcome.Run.Stage)
	assert.NotNil(t, outcome.Result)
}

func TestRunner_RecordsMetrics(t *testing.T) {
	fetcher := &stubFetcher{resp: &exchange.FetchResponse{
		Candles:   candlesAt([]int{0, 1, 4}, []string{"10", "20", "5"}),
		Truncated: true,
	}}
	reporter, err := report.New(report.Options{Timezone: "UTC"})
	require.NoError(t, err)

	collector := metrics.NewCollector()
	runner := New(fetcher, reporter, io.Discard, createTestLogger(), WithMetrics(collector))
	_, err = runner.Run(context.Background(), testRequest())
	require.NoError(t, err)

	snap := collector.GetSnapshot()
	assert.Equal(t, 3.0, snap.Metrics[metrics.CandlesFetched].Value)
	assert.Equal(t, 1.0, snap.Metrics[metrics.CandlesTruncated].Value)
	assert.Equal(t, 1.0, snap.Metrics[metrics.GapsFound].Value)
	assert.Equal(t, 2.0, snap.Metrics[metrics.MissingCandles].Value)
	assert.Equal(t, 2.0, snap.Metrics[metrics.BuysExecuted].Value)
	assert.Contains(t, snap.Metrics, "fetch_duration_ms")
	assert.Contains(t, snap.Metrics, "backtest_duration_ms")
	assert.Zero(t, snap.Errors)
}

func TestRunner_RecordsErrorStage(t *testing.T) {
	fetcher := &stubFetcher{err: errors.New("connection reset")}
	reporter, err := report.New(report.Options{Timezone: "UTC"})
	require.NoError(t, err)

	collector := metrics.NewCollector()
	_, err = New(fetcher, reporter, io.Discard, createTestLogger(), WithMetrics(collector)).
		Run(context.Background(), testRequest())
	require.Error(t, err)

	snap := collector.GetSnapshot()
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, "fetch", snap.Metrics[metrics.RunErrors].Labels["stage"])
}

func TestRunner_EndToEndWithBinanceAdapter(t *testing.T) {
	row := func(day int, close string) string {
		open := jan1.AddDate(0, 0, day)
		return fmt.Sprintf(`[%d,"10","30","4","%s","1000",%d,"10000",42,"500","5000","0"]`,
			open.UnixMilli(), close, open.AddDate(0, 0, 1).UnixMilli()-1)
	}
	body := "[" + strings.Join([]string{row(0, "10"), row(1, "20"), row(2, "5")}, ",") + "]"

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	adapter := exchange.NewBinanceAdapterWithConfig(exchange.AdapterConfig{BaseURL: server.URL}, createTestLogger())
	var out bytes.Buffer

	outcome, err := newRunner(t, adapter, &out).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "-14.29", outcome.Result.Summary.ProfitAndLossPercent.StringFixed(2))
	assert.Contains(t, out.String(), "Average Price SOLUSDT: 5.833333\n")
	assert.Contains(t, out.String(), "Hodl PNL: -50.00%\n")
}
