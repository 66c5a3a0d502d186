package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tsesc/tw-homedog/internal/cli"
	"github.com/tsesc/tw-homedog/internal/globaltime"
	"github.com/tsesc/tw-homedog/internal/match"
)

func runMatches(args []string) int {
	fs := flag.NewFlagSet("matches", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	criteriaPath := fs.String("criteria", "", "Path to a YAML search criteria file")
	limit := fs.Int("limit", 50, "Page size")
	offset := fs.Int("offset", 0, "Page offset")
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

	filters := match.Filters{}
	if strings.TrimSpace(*criteriaPath) != "" {
		filters, err = match.LoadCriteria(strings.TrimSpace(*criteriaPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid criteria: %v\n", err)
			return 2
		}
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	page := match.Page{Offset: *offset, Limit: *limit}
	listings, total, err := match.FindUnreadMatches(ctx, pool, filters, page, globaltime.UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Match query failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{
			"total":  total,
			"offset": page.Offset,
			"limit":  page.Limit,
			"items":  listings,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	if err := writeTable(listingTableHeaders, listingTableRows(listings)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	fmt.Printf("\n%d of %d unread matches (offset %d)\n", len(listings), total, page.Offset)
	return 0
}
