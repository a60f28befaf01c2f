// Value-averaging backtester CLI
// This application downloads historical klines from Binance, simulates a
// buy-only value-averaging strategy over them and prints every purchase
// followed by a performance summary.
//
// Usage:
//
//	vabacktest --symbol SOLUSDT --interval 1d --start 2023-01-01 --end 2024-01-08 --target-growth 10
//	vabacktest run --format table --timezone UTC
//	vabacktest ping
//	vabacktest version
//
// For detailed help on any command, use: vabacktest <command> --help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	apperrors "github.com/johnayoung/go-value-averager/internal/errors"
)

// CLI version information
const (
	Version = "1.0.0"
	AppName = "vabacktest"
)

// main is the entry point for the CLI application
func main() {
	os.Exit(run())
}

func run() int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return apperrors.ExitCode(err)
	}
	return apperrors.ExitSuccess
}
