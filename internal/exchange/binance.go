package exchange

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	apperrors "github.com/johnayoung/go-value-averager/internal/errors"
	"github.com/johnayoung/go-value-averager/internal/models"
)

const (
	// Binance spot REST API base URL
	binanceBaseURL = "https://api.binance.com"

	// API endpoints
	klinesEndpoint = "/api/v3/klines"
	pingEndpoint   = "/api/v3/ping"

	// Rate limiting configuration
	defaultRequestsPerSecond = 10
	rateLimitBurst           = 1

	// Request configuration
	defaultRequestTimeout = 30 * time.Second
	healthCheckTimeout    = 5 * time.Second
	maxResponseBytes      = 8 << 20

	// klineFields is the number of positional fields in one kline tuple.
	klineFields = 11
)

// AdapterConfig configures a BinanceAdapter. Zero values select defaults.
type AdapterConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond int
	UserAgent         string
}

// BinanceAdapter implements ExchangeAdapter against the Binance spot klines API.
// It performs exactly one request per fetch: no retries, no caching, no pagination.
type BinanceAdapter struct {
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	baseURL     string
	userAgent   string
	rps         int
	logger      *slog.Logger
}

// NewBinanceAdapter creates an adapter with default configuration.
func NewBinanceAdapter() *BinanceAdapter {
	return NewBinanceAdapterWithConfig(AdapterConfig{}, nil)
}

// NewBinanceAdapterWithConfig creates an adapter from cfg and a logger.
// A nil logger falls back to slog.Default().
func NewBinanceAdapterWithConfig(cfg AdapterConfig, logger *slog.Logger) *BinanceAdapter {
	if cfg.BaseURL == "" {
		cfg.BaseURL = binanceBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRequestTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = defaultRequestsPerSecond
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "go-value-averager/1.0"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &BinanceAdapter{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), rateLimitBurst),
		baseURL:     cfg.BaseURL,
		userAgent:   cfg.UserAgent,
		rps:         cfg.RequestsPerSecond,
		logger:      logger,
	}
}

// FetchCandles implements the CandleFetcher interface.
func (b *BinanceAdapter) FetchCandles(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}

	b.logger.Debug("fetching candles from Binance",
		"symbol", req.Symbol,
		"interval", req.Interval,
		"start", req.Start,
		"end", req.End)

	if err := b.WaitForLimit(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	body, err := b.get(ctx, b.klinesURL(req))
	if err != nil {
		return nil, err
	}

	candles, err := parseKlines(body, req.Symbol, req.Interval)
	if err != nil {
		return nil, err
	}

	truncated := len(candles) >= req.EffectiveLimit()
	if truncated {
		b.logger.Warn("provider page cap reached, later candles in range may be missing",
			"symbol", req.Symbol,
			"count", len(candles),
			"limit", req.EffectiveLimit(),
			"last_open", candles[len(candles)-1].OpenAt())
	}

	b.logger.Debug("successfully fetched candles",
		"count", len(candles),
		"truncated", truncated)

	return &FetchResponse{Candles: candles, Truncated: truncated}, nil
}

// HealthCheck implements the HealthChecker interface.
func (b *BinanceAdapter) HealthCheck(ctx context.Context) error {
	healthCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if _, err := b.get(healthCtx, b.baseURL+pingEndpoint); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	b.logger.Debug("health check passed")
	return nil
}

// GetLimits implements the RateLimitInfo interface.
func (b *BinanceAdapter) GetLimits() RateLimit {
	return RateLimit{
		RequestsPerSecond: b.rps,
		BurstSize:         rateLimitBurst,
	}
}

// WaitForLimit implements the RateLimitInfo interface.
func (b *BinanceAdapter) WaitForLimit(ctx context.Context) error {
	return b.rateLimiter.Wait(ctx)
}

// klinesURL builds the query. The provider treats endTime as inclusive, so
// the exclusive End is sent as End-1ms.
func (b *BinanceAdapter) klinesURL(req FetchRequest) string {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("interval", req.Interval)
	params.Set("startTime", strconv.FormatInt(req.Start.UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(req.End.UnixMilli()-1, 10))
	if req.Limit > 0 {
		params.Set("limit", strconv.Itoa(req.Limit))
	}
	return b.baseURL + klinesEndpoint + "?" + params.Encode()
}

// get performs one GET and classifies every failure.
func (b *BinanceAdapter) get(ctx context.Context, requestURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, apperrors.NewTransportError("build request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", b.userAgent)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, fmt.Errorf("request canceled: %w", ctx.Err())
		}
		return nil, apperrors.NewTransportError("GET "+req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.NewTransportError("read response body", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b.logger.Warn("provider returned error status",
			"status", resp.StatusCode,
			"path", req.URL.Path)
		return nil, apperrors.NewNetworkError(resp.StatusCode, req.URL.Path, body)
	}

	return body, nil
}

// parseKlines decodes a JSON array of kline tuples. Each tuple carries at
// least eleven positional fields; trailing fields (the provider's unused
// "ignore" column) are skipped.
func parseKlines(body []byte, symbol, interval string) ([]models.Candle, error) {
	if !gjson.ValidBytes(body) {
		return nil, &apperrors.MalformedResponseError{Index: -1, Reason: "body is not valid JSON"}
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		return nil, &apperrors.MalformedResponseError{Index: -1, Reason: "body is not a JSON array"}
	}

	rows := root.Array()
	candles := make([]models.Candle, 0, len(rows))
	for i, row := range rows {
		candle, err := parseKline(row, symbol, interval)
		if err != nil {
			return nil, &apperrors.MalformedResponseError{Index: i, Reason: err.Error()}
		}
		if err := candle.Validate(); err != nil {
			return nil, &apperrors.MalformedResponseError{Index: i, Reason: "invalid candle", Err: err}
		}
		candles = append(candles, candle)
	}

	if err := models.CheckSequence(candles); err != nil {
		var seqErr *models.SequenceError
		index := -1
		if errors.As(err, &seqErr) {
			index = seqErr.Index
		}
		return nil, &apperrors.MalformedResponseError{Index: index, Reason: "candles not in ascending order", Err: err}
	}

	return candles, nil
}

func parseKline(row gjson.Result, symbol, interval string) (models.Candle, error) {
	if !row.IsArray() {
		return models.Candle{}, fmt.Errorf("element is not an array")
	}
	f := row.Array()
	if len(f) < klineFields {
		return models.Candle{}, fmt.Errorf("expected %d fields, got %d", klineFields, len(f))
	}

	ints := make(map[int]int64, 3)
	for _, pos := range []int{0, 6, 8} {
		if f[pos].Type != gjson.Number {
			return models.Candle{}, fmt.Errorf("field %d: expected integer, got %s", pos, f[pos].Type)
		}
		v, err := strconv.ParseInt(f[pos].Raw, 10, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("field %d: expected integer, got %s", pos, f[pos].Raw)
		}
		ints[pos] = v
	}

	for _, pos := range []int{1, 2, 3, 4, 5, 7, 9, 10} {
		if f[pos].Type != gjson.String {
			return models.Candle{}, fmt.Errorf("field %d: expected decimal string, got %s", pos, f[pos].Type)
		}
	}

	return models.Candle{
		OpenTime:                 ints[0],
		Open:                     f[1].Str,
		High:                     f[2].Str,
		Low:                      f[3].Str,
		Close:                    f[4].Str,
		Volume:                   f[5].Str,
		CloseTime:                ints[6],
		QuoteAssetVolume:         f[7].Str,
		NumberOfTrades:           ints[8],
		TakerBuyBaseAssetVolume:  f[9].Str,
		TakerBuyQuoteAssetVolume: f[10].Str,
		Symbol:                   symbol,
		Interval:                 interval,
	}, nil
}
