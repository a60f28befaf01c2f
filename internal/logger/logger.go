// Package logger provides structured logging for the backtester.
// Every logger it hands out carries the run ID of the invocation; file output
// rotates through lumberjack.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/johnayoung/go-value-averager/internal/config"
)

// ContextKey names a logging attribute carried on a context.
type ContextKey string

const (
	// RunIDKey is the context key for the invocation run ID
	RunIDKey ContextKey = "run_id"
	// OperationKey is the context key for operation name
	OperationKey ContextKey = "operation"
	// SymbolKey is the context key for trading pair
	SymbolKey ContextKey = "symbol"
	// IntervalKey is the context key for candle interval
	IntervalKey ContextKey = "interval"
)

// LoggerManager owns the log destination and hands out derived loggers.
type LoggerManager struct {
	baseLogger *slog.Logger
	config     config.LoggingConfig
	writer     io.WriteCloser
	runID      string

	mu             sync.Mutex
	componentCache map[string]*slog.Logger
}

// ComponentLogger is a logger tagged with component=<name>.
type ComponentLogger struct {
	*slog.Logger
	component string
}

// NewLoggerManager builds a manager writing to the destination named in cfg.
func NewLoggerManager(cfg config.LoggingConfig) (*LoggerManager, error) {
	return NewLoggerManagerWithWriter(cfg, nil)
}

// NewLoggerManagerWithWriter is NewLoggerManager with the stdout/stderr
// destination replaced by w. File output ignores w.
func NewLoggerManagerWithWriter(cfg config.LoggingConfig, w io.Writer) (*LoggerManager, error) {
	writer, err := createWriter(cfg, w)
	if err != nil {
		return nil, fmt.Errorf("failed to create log writer: %w", err)
	}

	opts := &slog.HandlerOptions{
		Level:     parseLogLevel(cfg.Level),
		AddSource: cfg.Level == "debug",
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.TimeKey:
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339Nano))
				}
			case slog.LevelKey:
				if level, ok := a.Value.Any().(slog.Level); ok {
					a.Value = slog.StringValue(strings.ToUpper(level.String()))
				}
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	runID := uuid.NewString()
	baseLogger := slog.New(handler).With(slog.String(string(RunIDKey), runID))

	return &LoggerManager{
		baseLogger:     baseLogger,
		config:         cfg,
		writer:         writer,
		runID:          runID,
		componentCache: make(map[string]*slog.Logger),
	}, nil
}

// createWriter picks the log destination. Console output never closes the
// underlying stream.
func createWriter(cfg config.LoggingConfig, override io.Writer) (io.WriteCloser, error) {
	if cfg.Output == "file" {
		if cfg.FilePath == "" {
			return nil, fmt.Errorf("file path is required when output is 'file'")
		}
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize, // MB
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge, // days
			Compress:   cfg.Compress,
		}, nil
	}

	switch {
	case override != nil:
		return nopWriteCloser{override}, nil
	case cfg.Output == "stdout":
		return nopWriteCloser{os.Stdout}, nil
	default:
		return nopWriteCloser{os.Stderr}, nil
	}
}

// nopWriteCloser adapts a console stream to io.WriteCloser.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// parseLogLevel maps a configured level name to slog; unknown names mean info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogger returns the run-scoped base logger.
func (lm *LoggerManager) GetLogger() *slog.Logger {
	return lm.baseLogger
}

// RunID returns the identifier attached to every record of this manager.
func (lm *LoggerManager) RunID() string {
	return lm.runID
}

// GetComponentLogger returns the cached logger for component, creating it on first use.
func (lm *LoggerManager) GetComponentLogger(component string) *ComponentLogger {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if cached, exists := lm.componentCache[component]; exists {
		return &ComponentLogger{Logger: cached, component: component}
	}

	componentLogger := lm.baseLogger.With(slog.String("component", component))
	lm.componentCache[component] = componentLogger

	return &ComponentLogger{Logger: componentLogger, component: component}
}

// WithContext returns the base logger extended with the ContextKey values on ctx.
func (lm *LoggerManager) WithContext(ctx context.Context) *slog.Logger {
	attrs := extractContextAttributes(ctx)
	if len(attrs) == 0 {
		return lm.baseLogger
	}
	return lm.baseLogger.With(attrs...)
}

// extractContextAttributes collects the non-empty ContextKey values on ctx.
func extractContextAttributes(ctx context.Context) []any {
	var attrs []any
	for _, key := range []ContextKey{OperationKey, SymbolKey, IntervalKey} {
		if v, ok := ctx.Value(key).(string); ok && v != "" {
			attrs = append(attrs, slog.String(string(key), v))
		}
	}
	return attrs
}

// Close flushes and closes a rotating log file. Console writers are left open.
func (lm *LoggerManager) Close() error {
	if lm.writer != nil {
		return lm.writer.Close()
	}
	return nil
}

// WithOperation adds an operation name to the context
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, OperationKey, operation)
}

// WithSymbol adds a trading pair to the context
func WithSymbol(ctx context.Context, symbol string) context.Context {
	return context.WithValue(ctx, SymbolKey, symbol)
}

// WithInterval adds a candle interval to the context
func WithInterval(ctx context.Context, interval string) context.Context {
	return context.WithValue(ctx, IntervalKey, interval)
}

// Component returns the component name.
func (cl *ComponentLogger) Component() string {
	return cl.component
}

// LogOperation runs fn, logging its start and outcome with the elapsed time.
func (cl *ComponentLogger) LogOperation(ctx context.Context, operation string, fn func() error) error {
	attrs := extractContextAttributes(ctx)
	start := time.Now()
	cl.Debug("operation started", append(attrs, slog.String("operation", operation))...)

	err := fn()
	duration := time.Since(start)

	if err != nil {
		cl.Error("operation failed", append(attrs,
			slog.String("operation", operation),
			slog.Duration("duration", duration),
			slog.Any("error", err))...)
		return err
	}

	cl.Debug("operation completed", append(attrs,
		slog.String("operation", operation),
		slog.Duration("duration", duration))...)

	return nil
}
