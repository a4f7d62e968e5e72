// Coinledger - peer-to-peer coin transfers for the betting platform
package main

import (
	"context"
	"os"

	"github.com/spinhouse/coinledger/internal/config"
	"github.com/spinhouse/coinledger/internal/logging"
	"github.com/spinhouse/coinledger/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	logger := logging.New("info", "text")

	logger.Info("starting coinledger",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"daily_limit", cfg.Rules.DailyLimit,
		"max_transfer", cfg.Rules.MaxTransfer.String(),
	)

	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
