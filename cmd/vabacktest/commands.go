package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/johnayoung/go-value-averager/internal/config"
	"github.com/johnayoung/go-value-averager/internal/exchange"
	"github.com/johnayoung/go-value-averager/internal/logger"
	"github.com/johnayoung/go-value-averager/internal/pipeline"
	"github.com/johnayoung/go-value-averager/internal/report"
)

// options holds the raw flag values. A flag only overrides configuration
// when it was set on the command line.
type options struct {
	configPath string
	envPath    string

	baseURL string
	timeout time.Duration

	symbol       string
	interval     string
	start        string
	end          string
	targetGrowth string
	limit        int

	format   string
	timezone string

	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	defaults := config.DefaultConfig()

	root := &cobra.Command{
		Use:   AppName,
		Short: "Backtest a buy-only value-averaging strategy on Binance klines",
		Long: `Downloads daily (or other interval) klines for one symbol, raises a target
portfolio value by a fixed amount every period and buys whatever is needed to
reach it at the period's close. Prints every purchase and a summary comparing
the result with buying and holding from the first open.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd, opts)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", config.DefaultConfigPath, "JSON configuration file (ignored when missing)")
	pf.StringVar(&opts.envPath, "env-file", config.DefaultEnvPath, "dotenv file with VA_* variables (ignored when missing, empty to disable)")
	pf.StringVar(&opts.baseURL, "base-url", defaults.Exchange.BaseURL, "Binance REST base URL")
	pf.DurationVar(&opts.timeout, "timeout", defaults.Exchange.TimeoutDuration(), "HTTP request timeout")
	pf.StringVar(&opts.logLevel, "log-level", defaults.Logging.Level, "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", defaults.Logging.Format, "log format: text, json")

	pf.StringVar(&opts.symbol, "symbol", defaults.Backtest.Symbol, "trading pair symbol")
	pf.StringVar(&opts.interval, "interval", defaults.Backtest.Interval, "candle interval")
	pf.StringVar(&opts.start, "start", defaults.Backtest.Start, "range start, inclusive (YYYY-MM-DD or RFC 3339)")
	pf.StringVar(&opts.end, "end", defaults.Backtest.End, "range end, exclusive (YYYY-MM-DD or RFC 3339)")
	pf.StringVar(&opts.targetGrowth, "target-growth", defaults.Backtest.TargetGrowth, "target portfolio value increase per period")
	pf.IntVar(&opts.limit, "limit", defaults.Backtest.Limit, "provider page size (0 for the provider default, max 1000)")
	pf.StringVar(&opts.format, "format", defaults.Report.Format, "output format: text, table, json")
	pf.StringVar(&opts.timezone, "timezone", defaults.Report.Timezone, "timezone for printed dates (IANA name or Local)")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the backtest (default command)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runBacktest(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "ping",
			Short: "Check that the Binance API is reachable",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runPing(cmd, opts)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", AppName, Version)
				return err
			},
		},
	)

	return root
}

// overrides applies the flags the user actually set.
func (o *options) overrides(cmd *cobra.Command) config.Override {
	changed := cmd.Flags().Changed
	return func(c *config.AppConfig) {
		if changed("base-url") {
			c.Exchange.BaseURL = o.baseURL
		}
		if changed("timeout") {
			c.Exchange.Timeout = o.timeout.String()
		}
		if changed("symbol") {
			c.Backtest.Symbol = o.symbol
		}
		if changed("interval") {
			c.Backtest.Interval = o.interval
		}
		if changed("start") {
			c.Backtest.Start = o.start
		}
		if changed("end") {
			c.Backtest.End = o.end
		}
		if changed("target-growth") {
			c.Backtest.TargetGrowth = o.targetGrowth
		}
		if changed("limit") {
			c.Backtest.Limit = o.limit
		}
		if changed("format") {
			c.Report.Format = o.format
		}
		if changed("timezone") {
			c.Report.Timezone = o.timezone
		}
		if changed("log-level") {
			c.Logging.Level = o.logLevel
		}
		if changed("log-format") {
			c.Logging.Format = o.logFormat
		}
	}
}

// environment is the loaded configuration plus the services built from it.
type environment struct {
	cfg     *config.AppConfig
	logs    *logger.LoggerManager
	adapter *exchange.BinanceAdapter
}

func setup(cmd *cobra.Command, opts *options) (*environment, error) {
	cm := config.NewConfigManager(opts.configPath, nil)
	cm.SetEnvPath(opts.envPath)

	cfg, err := cm.LoadConfig(cmd.Context(), opts.overrides(cmd))
	if err != nil {
		return nil, err
	}

	logWriter := cmd.ErrOrStderr()
	if cfg.Logging.Output == "stdout" {
		logWriter = cmd.OutOrStdout()
	}
	logs, err := logger.NewLoggerManagerWithWriter(cfg.Logging, logWriter)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	adapter := exchange.NewBinanceAdapterWithConfig(exchange.AdapterConfig{
		BaseURL:           cfg.Exchange.BaseURL,
		Timeout:           cfg.Exchange.TimeoutDuration(),
		RequestsPerSecond: cfg.Exchange.RateLimit,
		UserAgent:         fmt.Sprintf("%s/%s", AppName, Version),
	}, logs.GetComponentLogger("exchange").Logger)

	return &environment{cfg: cfg, logs: logs, adapter: adapter}, nil
}

func runBacktest(cmd *cobra.Command, opts *options) error {
	env, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer env.logs.Close()

	reporter, err := report.New(report.Options{
		Format:     report.Format(env.cfg.Report.Format),
		Timezone:   env.cfg.Report.Timezone,
		DateLayout: env.cfg.Report.DateLayout,
	})
	if err != nil {
		return err
	}

	bt := env.cfg.Backtest
	ctx := logger.WithOperation(cmd.Context(), "run")
	ctx = logger.WithSymbol(ctx, bt.Symbol)
	ctx = logger.WithInterval(ctx, bt.Interval)
	env.logs.WithContext(ctx).Debug("starting backtest",
		"start", bt.Start,
		"end", bt.End,
		"target_growth", bt.TargetGrowth)

	runner := pipeline.New(env.adapter, reporter, cmd.OutOrStdout(), env.logs.GetComponentLogger("pipeline").Logger)
	_, err = runner.Run(ctx, pipeline.Request{
		RunID:        env.logs.RunID(),
		Symbol:       bt.Symbol,
		Interval:     bt.Interval,
		Start:        bt.StartTime(),
		End:          bt.EndTime(),
		Limit:        bt.Limit,
		GrowthTarget: bt.GrowthTarget(),
	})
	return err
}

func runPing(cmd *cobra.Command, opts *options) error {
	env, err := setup(cmd, opts)
	if err != nil {
		return err
	}
	defer env.logs.Close()

	cl := env.logs.GetComponentLogger("exchange")
	if err := cl.LogOperation(cmd.Context(), "ping", func() error {
		return env.adapter.HealthCheck(cmd.Context())
	}); err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok %s\n", env.cfg.Exchange.BaseURL)
	return err
}
