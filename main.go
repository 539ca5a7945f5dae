// Package main implements the execintel command line tool.
//
// execintel converts raw test automation logs (and optional application
// logs) into classified, evidence-backed failure analyses: every failed
// test is labeled as a product defect, automation defect, environment
// issue, or configuration issue, with a calibrated confidence and the
// code site that failed. CI pipelines gate on the result document.
//
// Configuration comes from a YAML file (--config or EXECINTEL_CONFIG),
// EXECINTEL_* environment variables, and command line flags, in rising
// precedence. Reports go to stdout; logs and diagnostics go to stderr.
//
// Example usage:
//
//	execintel analyze --log-dir ./test-logs --app-log ./checkout.log \
//	    --source-root . --fail-on PRODUCT_DEFECT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/tareqmamari/execintel/internal/cli"
	"github.com/tareqmamari/execintel/internal/errors"
)

// Build information - set at build time via ldflags
// For GoReleaser builds: -X main.version={{.Version}} -X main.commit={{.Commit}} ...
// For manual builds: make build VERSION=0.5.0
var (
	version = "dev"     // e.g., "v0.3.0" or "dev"
	commit  = "unknown" // Git commit SHA
	builtBy = "manual"  // "goreleaser" or "manual"
)

func main() {
	os.Exit(run())
}

// run exists so deferred cleanups execute before the process exits.
func run() int {
	// Load .env file if it exists (optional, for development)
	_ = godotenv.Load()

	logger, err := initLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return errors.ExitInternal
	}
	defer func() {
		_ = logger.Sync() // Ignore error on cleanup
	}()

	// Ctrl-C cancels the batch; already-finished analyses still reach the
	// report, the rest come back as cancelled ERROR results.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	info := cli.BuildInfo{Version: version, Commit: commit, BuiltBy: builtBy}
	return cli.Execute(ctx, info, logger, os.Args[1:])
}

// initLogger returns a quiet JSON logger unless ENVIRONMENT=development
// asks for the verbose console one. Logs go to stderr either way; stdout
// belongs to the report.
func initLogger() (*zap.Logger, error) {
	if os.Getenv("ENVIRONMENT") == "development" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if raw := os.Getenv("EXECINTEL_LOG_LEVEL"); raw != "" {
		if level, err := zap.ParseAtomicLevel(raw); err == nil {
			cfg.Level = level
		}
	}
	return cfg.Build()
}
