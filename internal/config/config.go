// Package config provides configuration management for the value-averaging backtester.
// Configuration is layered from defaults, a JSON file, a .env file and VA_* environment
// variables, then validated as a whole.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	apperrors "github.com/johnayoung/go-value-averager/internal/errors"
	"github.com/johnayoung/go-value-averager/internal/exchange"
	"github.com/johnayoung/go-value-averager/internal/models"
	"github.com/johnayoung/go-value-averager/internal/report"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "VA_"

// DateLayout is the calendar-date form accepted for the backtest range.
const DateLayout = "2006-01-02"

// DefaultConfigPath and DefaultEnvPath are read when present.
const (
	DefaultConfigPath = "vabacktest.json"
	DefaultEnvPath    = ".env"
)

// AppConfig represents the complete application configuration
type AppConfig struct {
	// Application metadata
	AppName string `json:"app_name" env:"VA_APP_NAME"`
	Version string `json:"version" env:"VA_VERSION"`

	// Market data provider configuration
	Exchange ExchangeConfig `json:"exchange"`

	// Strategy and range configuration
	Backtest BacktestConfig `json:"backtest"`

	// Console output configuration
	Report ReportConfig `json:"report"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`
}

// ExchangeConfig configures the klines provider
type ExchangeConfig struct {
	BaseURL   string `json:"base_url" env:"VA_BASE_URL"`     // Provider REST base URL
	Timeout   string `json:"timeout" env:"VA_HTTP_TIMEOUT"`  // HTTP request timeout
	RateLimit int    `json:"rate_limit" env:"VA_RATE_LIMIT"` // Requests per second
}

// BacktestConfig configures the simulated strategy
type BacktestConfig struct {
	Symbol       string `json:"symbol" env:"VA_SYMBOL"`               // Trading pair, e.g. SOLUSDT
	Interval     string `json:"interval" env:"VA_INTERVAL"`           // Candle interval, e.g. 1d
	Start        string `json:"start" env:"VA_START"`                 // Range start (inclusive), YYYY-MM-DD or RFC 3339
	End          string `json:"end" env:"VA_END"`                     // Range end (exclusive), YYYY-MM-DD or RFC 3339
	TargetGrowth string `json:"target_growth" env:"VA_TARGET_GROWTH"` // Target value increase per period
	Limit        int    `json:"limit" env:"VA_LIMIT"`                 // Provider page size, 0 for the provider default
}

// ReportConfig configures console output
type ReportConfig struct {
	Format     string `json:"format" env:"VA_FORMAT"`           // text, table or json
	Timezone   string `json:"timezone" env:"VA_TIMEZONE"`       // IANA zone name or Local
	DateLayout string `json:"date_layout" env:"VA_DATE_LAYOUT"` // Go time layout for dates
}

// LoggingConfig configures structured logging
type LoggingConfig struct {
	Level      string `json:"level" env:"VA_LOG_LEVEL"`             // Log level: debug, info, warn, error
	Format     string `json:"format" env:"VA_LOG_FORMAT"`           // Log format: json, text
	Output     string `json:"output" env:"VA_LOG_OUTPUT"`           // Output: stdout, stderr, file
	FilePath   string `json:"file_path" env:"VA_LOG_FILE_PATH"`     // Log file path
	MaxSize    int    `json:"max_size" env:"VA_LOG_MAX_SIZE"`       // Maximum log file size in MB
	MaxBackups int    `json:"max_backups" env:"VA_LOG_MAX_BACKUPS"` // Maximum log file backups
	MaxAge     int    `json:"max_age" env:"VA_LOG_MAX_AGE"`         // Maximum log file age in days
	Compress   bool   `json:"compress" env:"VA_LOG_COMPRESS"`       // Compress old log files
}

// ValidationError lists every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation errors:\n- %s", strings.Join(e.Problems, "\n- "))
}

// Type classifies the error for exit-code mapping.
func (e *ValidationError) Type() apperrors.ErrorType {
	return apperrors.ErrorTypeValidation
}

// Override mutates a loaded configuration before validation.
type Override func(*AppConfig)

// ConfigManager handles configuration loading and validation
type ConfigManager struct {
	config     *AppConfig
	configPath string
	envPath    string
	logger     *slog.Logger
}

// NewConfigManager creates a new configuration manager. The .env file is
// read from DefaultEnvPath.
func NewConfigManager(configPath string, logger *slog.Logger) *ConfigManager {
	if logger == nil {
		logger = slog.Default()
	}

	return &ConfigManager{
		configPath: configPath,
		envPath:    DefaultEnvPath,
		logger:     logger,
	}
}

// SetEnvPath changes the .env file location. An empty path disables it.
func (cm *ConfigManager) SetEnvPath(path string) {
	cm.envPath = path
}

// LoadConfig loads configuration from multiple sources with priority order:
// 1. Environment variables (highest priority)
// 2. .env file
// 3. Configuration file
// 4. Default values (lowest priority)
//
// Overrides, typically command-line flags, are applied last and the merged
// result is validated once.
func (cm *ConfigManager) LoadConfig(ctx context.Context, overrides ...Override) (*AppConfig, error) {
	config := DefaultConfig()

	if cm.configPath != "" {
		if err := cm.loadFromFile(config); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := cm.loadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	if err := cm.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	for _, override := range overrides {
		override(config)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	cm.config = config
	cm.logger.Debug("configuration loaded",
		"config_path", cm.configPath,
		"symbol", config.Backtest.Symbol,
		"interval", config.Backtest.Interval,
		"log_level", config.Logging.Level)

	return config, nil
}

// loadFromFile loads configuration from a JSON file
func (cm *ConfigManager) loadFromFile(config *AppConfig) error {
	data, err := os.ReadFile(cm.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		cm.logger.Debug("config file does not exist, using defaults", "path", cm.configPath)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cm.configPath, err)
	}

	if err := json.Unmarshal(data, config); err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("failed to parse config file %s: %v", cm.configPath, err)}}
	}

	cm.logger.Debug("loaded configuration from file", "path", cm.configPath)
	return nil
}

// loadDotEnv copies .env entries into the process environment. Variables
// that are already set win over the file.
func (cm *ConfigManager) loadDotEnv() error {
	if cm.envPath == "" {
		return nil
	}
	err := godotenv.Load(cm.envPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &ValidationError{Problems: []string{fmt.Sprintf("failed to parse %s: %v", cm.envPath, err)}}
	}
	cm.logger.Debug("loaded environment file", "path", cm.envPath)
	return nil
}

// loadFromEnv loads configuration from VA_* environment variables
func (cm *ConfigManager) loadFromEnv(config *AppConfig) error {
	var problems []string

	setString := func(name string, dst *string) {
		if val, ok := os.LookupEnv(EnvPrefix + name); ok && val != "" {
			*dst = val
		}
	}
	setInt := func(name string, dst *int) {
		val, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || val == "" {
			return
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s%s must be an integer, got %q", EnvPrefix, name, val))
			return
		}
		*dst = n
	}
	setBool := func(name string, dst *bool) {
		val, ok := os.LookupEnv(EnvPrefix + name)
		if !ok || val == "" {
			return
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s%s must be a boolean, got %q", EnvPrefix, name, val))
			return
		}
		*dst = b
	}

	setString("APP_NAME", &config.AppName)
	setString("VERSION", &config.Version)

	setString("BASE_URL", &config.Exchange.BaseURL)
	setString("HTTP_TIMEOUT", &config.Exchange.Timeout)
	setInt("RATE_LIMIT", &config.Exchange.RateLimit)

	setString("SYMBOL", &config.Backtest.Symbol)
	setString("INTERVAL", &config.Backtest.Interval)
	setString("START", &config.Backtest.Start)
	setString("END", &config.Backtest.End)
	setString("TARGET_GROWTH", &config.Backtest.TargetGrowth)
	setInt("LIMIT", &config.Backtest.Limit)

	setString("FORMAT", &config.Report.Format)
	setString("TIMEZONE", &config.Report.Timezone)
	setString("DATE_LAYOUT", &config.Report.DateLayout)

	setString("LOG_LEVEL", &config.Logging.Level)
	setString("LOG_FORMAT", &config.Logging.Format)
	setString("LOG_OUTPUT", &config.Logging.Output)
	setString("LOG_FILE_PATH", &config.Logging.FilePath)
	setInt("LOG_MAX_SIZE", &config.Logging.MaxSize)
	setInt("LOG_MAX_BACKUPS", &config.Logging.MaxBackups)
	setInt("LOG_MAX_AGE", &config.Logging.MaxAge)
	setBool("LOG_COMPRESS", &config.Logging.Compress)

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	cm.logger.Debug("loaded configuration from environment variables")
	return nil
}

// Validate checks the configuration for consistency and required fields.
// All problems are reported together.
func (c *AppConfig) Validate() error {
	var problems []string

	if c.AppName == "" {
		problems = append(problems, "app_name is required")
	}

	// Exchange
	if u, err := url.Parse(c.Exchange.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		problems = append(problems, "exchange.base_url must be an absolute http(s) URL")
	}
	if d, err := time.ParseDuration(c.Exchange.Timeout); err != nil || d <= 0 {
		problems = append(problems, "exchange.timeout must be a positive duration")
	}
	if c.Exchange.RateLimit <= 0 {
		problems = append(problems, "exchange.rate_limit must be greater than 0")
	}

	// Backtest
	if c.Backtest.Symbol == "" {
		problems = append(problems, "backtest.symbol is required")
	}
	if !models.IsSupportedInterval(c.Backtest.Interval) {
		problems = append(problems, fmt.Sprintf("backtest.interval %q is not supported", c.Backtest.Interval))
	}
	start, startErr := ParseDate(c.Backtest.Start)
	if startErr != nil {
		problems = append(problems, fmt.Sprintf("backtest.start: %v", startErr))
	}
	end, endErr := ParseDate(c.Backtest.End)
	if endErr != nil {
		problems = append(problems, fmt.Sprintf("backtest.end: %v", endErr))
	}
	if startErr == nil && endErr == nil && !end.After(start) {
		problems = append(problems, "backtest.end must be after backtest.start")
	}
	if g, err := decimal.NewFromString(c.Backtest.TargetGrowth); err != nil || !g.IsPositive() {
		problems = append(problems, "backtest.target_growth must be a number greater than 0")
	}
	if c.Backtest.Limit < 0 || c.Backtest.Limit > exchange.MaxCandlesPerRequest {
		problems = append(problems, fmt.Sprintf("backtest.limit must be between 0 and %d", exchange.MaxCandlesPerRequest))
	}

	// Report
	if !report.IsSupportedFormat(c.Report.Format) {
		problems = append(problems, "report.format must be one of: text, table, json")
	}
	if _, err := report.LoadLocation(c.Report.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("report.timezone %q is not a known zone", c.Report.Timezone))
	}

	// Logging
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		problems = append(problems, "logging.level must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		problems = append(problems, "logging.format must be one of: json, text")
	}

	validOutputs := map[string]bool{"stdout": true, "stderr": true, "file": true}
	if !validOutputs[c.Logging.Output] {
		problems = append(problems, "logging.output must be one of: stdout, stderr, file")
	}
	if c.Logging.Output == "file" && c.Logging.FilePath == "" {
		problems = append(problems, "logging.file_path is required when logging.output is file")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	return nil
}

// GetConfig returns the current configuration
func (cm *ConfigManager) GetConfig() *AppConfig {
	return cm.config
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		AppName: "vabacktest",
		Version: "1.0.0",
		Exchange: ExchangeConfig{
			BaseURL:   "https://api.binance.com",
			Timeout:   "30s",
			RateLimit: 10,
		},
		Backtest: BacktestConfig{
			Symbol:       "SOLUSDT",
			Interval:     "1d",
			Start:        "2023-01-01",
			End:          "2024-01-08",
			TargetGrowth: "10",
			Limit:        0,
		},
		Report: ReportConfig{
			Format:     string(report.FormatText),
			Timezone:   "Local",
			DateLayout: report.DefaultDateLayout,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			FilePath:   "",
			MaxSize:    100, // 100MB
			MaxBackups: 5,
			MaxAge:     30, // 30 days
			Compress:   true,
		},
	}
}

// ParseDate accepts YYYY-MM-DD (midnight UTC) or an RFC 3339 timestamp.
func ParseDate(value string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, value); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD or RFC 3339", value)
	}
	return t.UTC(), nil
}

// StartTime returns the parsed range start. Call after Validate.
func (c *BacktestConfig) StartTime() time.Time {
	t, _ := ParseDate(c.Start)
	return t
}

// EndTime returns the parsed range end. Call after Validate.
func (c *BacktestConfig) EndTime() time.Time {
	t, _ := ParseDate(c.End)
	return t
}

// GrowthTarget returns the parsed target growth. Call after Validate.
func (c *BacktestConfig) GrowthTarget() decimal.Decimal {
	g, _ := decimal.NewFromString(c.TargetGrowth)
	return g
}

// TimeoutDuration returns the parsed HTTP timeout. Call after Validate.
func (c *ExchangeConfig) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// String returns the configuration as indented JSON
func (c *AppConfig) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
