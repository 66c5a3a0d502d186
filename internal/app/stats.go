package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tsesc/tw-homedog/internal/cli"
	"github.com/tsesc/tw-homedog/internal/db"
)

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	stats, err := db.CollectStats(ctx, pool)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to collect stats: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(stats); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	sourceRows := make([][]string, 0, len(stats.BySource)+1)
	for _, row := range stats.BySource {
		sourceRows = append(sourceRows, []string{
			row.Source,
			fmt.Sprintf("%d", row.Total),
			fmt.Sprintf("%d", row.Unread),
		})
	}
	sourceRows = append(sourceRows, []string{
		"TOTAL",
		fmt.Sprintf("%d", stats.Listings.Total),
		fmt.Sprintf("%d", stats.Listings.Unread),
	})

	if err := writeTable([]string{"source", "listings", "unread"}, sourceRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render source table: %v\n", err)
		return 1
	}

	fmt.Println()
	counterRows := [][]string{
		{"favorites", fmt.Sprintf("%d", stats.Favorites)},
		{"enriched_listings", fmt.Sprintf("%d", stats.EnrichedCount)},
	}
	for event, count := range stats.AuditCounts {
		counterRows = append(counterRows, []string{"audit_" + event, fmt.Sprintf("%d", count)})
	}
	if err := writeTable([]string{"metric", "value"}, counterRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render counter table: %v\n", err)
		return 1
	}

	return 0
}
