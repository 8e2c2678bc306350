// Package replay runs the full flagging pipeline offline over a pair
// of JSON-lines log files: a batch log seeding the graph and ledger,
// then a stream log whose purchases are classified. Flagged purchases
// are written to one file in input order; rejected records go verbatim
// to an invalid-entries file.
package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/nwtnsqrd/peerflag/internal/events"
	"github.com/nwtnsqrd/peerflag/internal/purchases"
	"github.com/nwtnsqrd/peerflag/internal/socialgraph"
	"github.com/nwtnsqrd/peerflag/internal/stream"
)

// maxLineSize bounds one input record (1MB).
const maxLineSize = 1 << 20

// Config names the input and output files of one replay run.
type Config struct {
	BatchPath   string
	StreamPath  string
	FlaggedPath string
	InvalidPath string

	// Sigma is the detection sensitivity (k standard deviations).
	Sigma float64
	// SeedEligible makes batch history count as reference data.
	SeedEligible bool
}

// Summary reports what one run did.
type Summary struct {
	Params  events.Params
	Batch   int // applied batch events
	Stream  int // applied stream events
	Flagged int
	Invalid int
}

// Run executes one replay. The batch file must begin with a parameter
// header such as {"D":"3", "T":"50"}; extra processor options (a flag
// store, notifiers) pass straight through.
func Run(ctx context.Context, cfg Config, logger *slog.Logger, opts ...stream.Option) (Summary, error) {
	var sum Summary

	batch, err := os.Open(cfg.BatchPath)
	if err != nil {
		return sum, fmt.Errorf("open batch log: %w", err)
	}
	defer func() { _ = batch.Close() }()

	streamIn, err := os.Open(cfg.StreamPath)
	if err != nil {
		return sum, fmt.Errorf("open stream log: %w", err)
	}
	defer func() { _ = streamIn.Close() }()

	flaggedOut, err := os.Create(cfg.FlaggedPath)
	if err != nil {
		return sum, fmt.Errorf("create flagged output: %w", err)
	}
	defer func() { _ = flaggedOut.Close() }()

	invalidOut, err := os.Create(cfg.InvalidPath)
	if err != nil {
		return sum, fmt.Errorf("create invalid-entries output: %w", err)
	}
	defer func() { _ = invalidOut.Close() }()

	sum, err = run(ctx, cfg, batch, streamIn, flaggedOut, invalidOut, logger, opts...)
	if err != nil {
		return sum, err
	}

	if err := flaggedOut.Sync(); err != nil {
		return sum, fmt.Errorf("flush flagged output: %w", err)
	}
	return sum, nil
}

func run(ctx context.Context, cfg Config, batch, streamIn io.Reader, flaggedOut, invalidOut io.Writer, logger *slog.Logger, opts ...stream.Option) (Summary, error) {
	var sum Summary

	scanner := newLineScanner(batch)
	params, err := readParams(scanner)
	if err != nil {
		return sum, err
	}
	sum.Params = params

	invalid := bufio.NewWriter(invalidOut)
	opts = append(opts,
		stream.WithLogger(logger),
		stream.WithInvalidHandler(func(rej *events.Rejection) {
			sum.Invalid++
			if rej.Raw != "" {
				_, _ = invalid.WriteString(rej.Raw)
				_ = invalid.WriteByte('\n')
			}
		}),
	)

	proc, err := stream.New(stream.Config{
		Degree:       params.Degree,
		Tracked:      params.Tracked,
		Sigma:        cfg.Sigma,
		SeedEligible: cfg.SeedEligible,
	}, socialgraph.New(), purchases.NewLedger(), opts...)
	if err != nil {
		return sum, err
	}

	// Phase one: seed state from the batch log. Rejections are already
	// reported through the invalid handler; one bad record never aborts.
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if _, err := proc.ApplyRaw(ctx, line); err == nil {
			sum.Batch++
		}
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("read batch log: %w", err)
	}

	proc.StartStreaming()

	// Phase two: classify the live stream, flagged subset in input order.
	flagged := bufio.NewWriter(flaggedOut)
	enc := json.NewEncoder(flagged)
	scanner = newLineScanner(streamIn)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		ev, err := events.Parse(line)
		if err != nil {
			_, _ = proc.ApplyRaw(ctx, line) // route through the invalid handler
			continue
		}
		decision, err := proc.Apply(ctx, ev)
		if err != nil {
			continue
		}
		sum.Stream++
		if decision != nil && decision.Flagged {
			sum.Flagged++
			if err := enc.Encode(events.NewFlaggedRecord(ev, decision.Mean, decision.Stddev)); err != nil {
				return sum, fmt.Errorf("write flagged record: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return sum, fmt.Errorf("read stream log: %w", err)
	}

	proc.Finish()

	if err := flagged.Flush(); err != nil {
		return sum, fmt.Errorf("flush flagged output: %w", err)
	}
	if err := invalid.Flush(); err != nil {
		return sum, fmt.Errorf("flush invalid entries: %w", err)
	}

	logger.Info("replay complete",
		"degree", params.Degree,
		"tracked", params.Tracked,
		"batch_events", sum.Batch,
		"stream_events", sum.Stream,
		"flagged", sum.Flagged,
		"invalid", sum.Invalid,
	)
	return sum, nil
}

// readParams scans to the first non-empty line and parses it as the
// parameter header.
func readParams(scanner *bufio.Scanner) (events.Params, error) {
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		params, err := events.ParseParams(line)
		if err != nil {
			return events.Params{}, fmt.Errorf("batch log parameter header: %w", err)
		}
		return params, nil
	}
	if err := scanner.Err(); err != nil {
		return events.Params{}, fmt.Errorf("read batch log: %w", err)
	}
	return events.Params{}, fmt.Errorf("batch log is empty, expected a parameter header")
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return scanner
}
