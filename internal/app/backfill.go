package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tsesc/tw-homedog/internal/cli"
	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/dedup"
)

func runBackfillFingerprints(args []string) int {
	fs := flag.NewFlagSet("backfill-fingerprints", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	batchSize := fs.Int("batch-size", 500, "Rows fetched per pass")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if *batchSize <= 0 {
		fmt.Fprintln(os.Stderr, "--batch-size must be > 0")
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	updated := 0
	skipped := 0
	for {
		listings, err := db.ListingsMissingFingerprint(ctx, pool, *batchSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to fetch listings: %v\n", err)
			return 1
		}
		if len(listings) == 0 {
			break
		}

		progressed := false
		for i := range listings {
			fingerprint := dedup.Fingerprint(&listings[i])
			if fingerprint == "" {
				// Not enough fields to identify the entity; leave it for a
				// later pass after enrichment.
				skipped++
				continue
			}
			if err := db.UpdateListingFingerprint(ctx, pool, listings[i].Source, listings[i].ListingID, fingerprint); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to update %s:%s: %v\n", listings[i].Source, listings[i].ListingID, err)
				return 1
			}
			updated++
			progressed = true
		}

		// Every remaining row lacks the fields for a fingerprint.
		if !progressed {
			break
		}
	}

	fmt.Printf("backfilled=%d skipped=%d\n", updated, skipped)
	return 0
}
