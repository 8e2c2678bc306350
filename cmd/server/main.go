// Peerflag - anomaly flagging over a social purchase graph
package main

import (
	"context"
	"os"

	"github.com/nwtnsqrd/peerflag/internal/config"
	"github.com/nwtnsqrd/peerflag/internal/logging"
	"github.com/nwtnsqrd/peerflag/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting peerflag",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"friend_degree", cfg.FriendDegree,
		"tracked_purchases", cfg.TrackedPurchases,
		"sigma", cfg.Sigma,
	)

	// Create and run server
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
