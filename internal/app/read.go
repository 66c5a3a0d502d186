package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tsesc/tw-homedog/internal/cli"
	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/globaltime"
)

func runMarkRead(args []string) int {
	fs := flag.NewFlagSet("mark-read", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Command timeout")
	source := fs.String("source", "", "Listing source")
	listingID := fs.String("listing-id", "", "Listing identifier within the source")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	// Positional source:listing_id pairs mark several listings in one
	// transaction; the flag pair marks one.
	var ids []db.ListingIdentity
	for _, arg := range fs.Args() {
		parts := strings.SplitN(strings.TrimSpace(arg), ":", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			fmt.Fprintf(os.Stderr, "Invalid listing reference %q, want source:listing_id\n", arg)
			return 2
		}
		ids = append(ids, db.ListingIdentity{Source: parts[0], ListingID: parts[1]})
	}

	if len(ids) == 0 && (strings.TrimSpace(*source) == "" || strings.TrimSpace(*listingID) == "") {
		fmt.Fprintln(os.Stderr, "--source and --listing-id, or source:listing_id arguments, are required")
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	if len(ids) > 0 {
		marked, err := db.MarkListingsRead(ctx, pool, ids, globaltime.UTC())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to mark listings read: %v\n", err)
			return 1
		}
		fmt.Printf("marked %d of %d listings read\n", marked, len(ids))
		return 0
	}

	marked, err := db.MarkListingRead(ctx, pool, strings.TrimSpace(*source), strings.TrimSpace(*listingID), globaltime.UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to mark listing read: %v\n", err)
		return 1
	}
	if !marked {
		fmt.Fprintf(os.Stderr, "Listing %s:%s not found\n", *source, *listingID)
		return 1
	}

	fmt.Printf("marked %s:%s read\n", strings.TrimSpace(*source), strings.TrimSpace(*listingID))
	return 0
}

func runListings(args []string) int {
	fs := flag.NewFlagSet("listings", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	source := fs.String("source", "", "Restrict to one source")
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

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	items, err := db.ListingsWithReadState(ctx, pool, strings.TrimSpace(*source), *limit, *offset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list listings: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(map[string]any{"items": items}); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := make([][]string, 0, len(items))
	for i := range items {
		l := &items[i]
		readFlag := ""
		if l.IsRead {
			readFlag = "read"
		}
		rows = append(rows, []string{
			l.Source,
			l.ListingID,
			truncateForTable(pointerStringOrEmpty(l.Title), 40),
			pointerStringOrEmpty(l.District),
			formatPrice(l.Price),
			formatSize(l.SizePing),
			readFlag,
		})
	}

	if err := writeTable([]string{"source", "listing_id", "title", "district", "price", "size_ping", "state"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
