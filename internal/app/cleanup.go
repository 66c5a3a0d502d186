package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tsesc/tw-homedog/internal/cleanup"
	"github.com/tsesc/tw-homedog/internal/cli"
	"github.com/tsesc/tw-homedog/internal/logging"
)

func runCleanup(args []string) int {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	apply := fs.Bool("apply", false, "Perform the merges; default plans only")
	batchSize := fs.Int("batch-size", 200, "Maximum fingerprint buckets per run")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, cfg, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	engine, err := cleanup.NewEngine(pool, logger, dedupParams(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build cleanup engine: %v\n", err)
		return 1
	}

	report, err := engine.Run(ctx, cleanup.Options{BatchSize: *batchSize, Apply: *apply})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(report); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(report.Groups))
	for _, group := range report.Groups {
		for i, dup := range group.Duplicates {
			rows = append(rows, []string{
				truncateForTable(group.Fingerprint, 12),
				group.Canonical.String(),
				dup.String(),
				fmt.Sprintf("%.4f", group.Scores[i]),
			})
		}
	}
	if err := writeTable([]string{"fingerprint", "canonical", "duplicate", "score"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}

	mode := "dry-run"
	if *apply {
		mode = "applied"
	}
	fmt.Printf("\n%s: %d buckets, %d groups, %d merged, %d failed\n",
		mode, report.BucketsScanned, len(report.Groups), report.Merged, len(report.Failed))
	for _, failed := range report.Failed {
		fmt.Fprintf(os.Stderr, "failed %s: %s\n", truncateForTable(failed.Fingerprint, 12), failed.Error)
	}
	if *apply && !report.Integrity.OK() {
		fmt.Fprintf(os.Stderr, "integrity: %d orphan read marks, %d orphan favorites, %d orphan notifications\n",
			report.Integrity.OrphanReadMarks, report.Integrity.OrphanFavorites, report.Integrity.OrphanNotifications)
		return 1
	}

	return 0
}
