// Command replay runs the flagging pipeline offline over log files.
//
// Usage:
//
//	go run ./cmd/replay -batch batch_log.json -stream stream_log.json
//
// The batch log must begin with a parameter header such as
// {"D":"3", "T":"50"}. Flagged purchases are written in input order to
// the -out file; rejected records are appended verbatim to -invalid.
package main

import (
	"context"
	"flag"
	"os"

	"github.com/nwtnsqrd/peerflag/internal/config"
	"github.com/nwtnsqrd/peerflag/internal/logging"
	"github.com/nwtnsqrd/peerflag/internal/replay"
)

func main() {
	var (
		batchPath   = flag.String("batch", "batch_log.json", "batch log seeding the graph and ledger")
		streamPath  = flag.String("stream", "stream_log.json", "stream log to classify")
		flaggedPath = flag.String("out", "flagged_purchases.json", "flagged purchases output")
		invalidPath = flag.String("invalid", "invalid_entries.log", "rejected records output")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	sum, err := replay.Run(context.Background(), replay.Config{
		BatchPath:    *batchPath,
		StreamPath:   *streamPath,
		FlaggedPath:  *flaggedPath,
		InvalidPath:  *invalidPath,
		Sigma:        cfg.Sigma,
		SeedEligible: cfg.SeedHistoryEligible,
	}, logger)
	if err != nil {
		logger.Error("replay failed", "error", err)
		os.Exit(1)
	}

	logger.Info("done",
		"flagged", sum.Flagged,
		"invalid", sum.Invalid,
		"output", *flaggedPath,
	)
}
