package app

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tsesc/tw-homedog/internal/cli"
	"github.com/tsesc/tw-homedog/internal/ingest"
	"github.com/tsesc/tw-homedog/internal/logging"
	payloadschema "github.com/tsesc/tw-homedog/schema"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	source := fs.String("source", "", "Scraper source name, e.g. site_a")
	batchFile := fs.String("batch-file", "", "Path to a JSON array of listing payloads")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if strings.TrimSpace(*source) == "" {
		fmt.Fprintln(os.Stderr, "--source is required")
		return 2
	}
	if strings.TrimSpace(*batchFile) == "" {
		fmt.Fprintln(os.Stderr, "--batch-file is required")
		return 2
	}

	raw, err := os.ReadFile(*batchFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read batch file: %v\n", err)
		return 2
	}

	payloads, err := payloadschema.ValidateListingBatch(json.RawMessage(raw))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid batch: %v\n", err)
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

	runner, err := ingest.NewRunner(pool, logger, dedupParams(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build ingest runner: %v\n", err)
		return 1
	}

	report, err := runner.IngestBatch(ctx, strings.TrimSpace(*source), payloads)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	fmt.Printf("run_id=%d seen=%d added=%d skipped=%d invalid=%d\n",
		report.RunID, report.Seen, report.Added, report.Skipped, report.Invalid)
	for reason, count := range report.SkipReasons {
		fmt.Printf("skip_reason %s=%d\n", reason, count)
	}

	return 0
}
