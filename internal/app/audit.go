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
	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/dedup"
)

func runAudit(args []string) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	eventType := fs.String("event", "", "Filter by event type: ingest_skip or cleanup_merge")
	limit := fs.Int("limit", 50, "Maximum events to show")
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

	event := strings.TrimSpace(strings.ToLower(*eventType))
	switch event {
	case "", db.AuditEventIngestSkip, db.AuditEventCleanupMerge:
	default:
		fmt.Fprintln(os.Stderr, "--event must be ingest_skip or cleanup_merge")
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	audits, err := db.RecentAudits(ctx, pool, event, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query audits: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{"items": audits}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(audits))
	for i := range audits {
		a := &audits[i]
		score := ""
		if a.Score != nil {
			score = fmt.Sprintf("%.4f", *a.Score)
		}
		canonical := ""
		if a.CanonicalSource != nil && a.CanonicalListingID != nil {
			canonical = *a.CanonicalSource + ":" + *a.CanonicalListingID
		}
		signals := ""
		var breakdown dedup.ScoreResult
		if json.Unmarshal([]byte(a.MatchDetails), &breakdown) == nil && a.Score != nil {
			signals = breakdown.Components()
		}
		rows = append(rows, []string{
			a.CreatedAt.UTC().Format(time.RFC3339),
			a.EventType,
			a.Source + ":" + pointerStringOrEmpty(a.ListingID),
			canonical,
			pointerStringOrEmpty(a.Reason),
			score,
			signals,
		})
	}

	if err := writeTable([]string{"created_at", "event", "listing", "canonical", "reason", "score", "signals"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
