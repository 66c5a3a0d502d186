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
	"github.com/tsesc/tw-homedog/internal/match"
)

// runNotify prints a digest of unread matches not yet surfaced on the
// configured channel and records a notification mark for each, so the next
// run only shows what is new. Delivery itself is the operator's transport.
func runNotify(args []string) int {
	fs := flag.NewFlagSet("notify", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Second, "Command timeout")
	criteriaPath := fs.String("criteria", "", "Path to a YAML search criteria file")
	limit := fs.Int("limit", 20, "Maximum listings per digest")
	dryRun := fs.Bool("dry-run", false, "Print the digest without recording notification marks")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	filters := match.Filters{}
	var err error
	if strings.TrimSpace(*criteriaPath) != "" {
		filters, err = match.LoadCriteria(strings.TrimSpace(*criteriaPath))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid criteria: %v\n", err)
			return 2
		}
	}

	ctx, cancel, cfg, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	page := match.Page{Offset: 0, Limit: *limit}
	listings, total, err := match.FindUnreadMatches(ctx, pool, filters, page, globaltime.UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Match query failed: %v\n", err)
		return 1
	}

	channel := cfg.NotifyChannel
	notified := 0
	for i := range listings {
		l := &listings[i]

		already, err := db.IsNotified(ctx, pool, l.Source, l.ListingID, channel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to check notification mark: %v\n", err)
			return 1
		}
		if already {
			continue
		}

		fmt.Printf("%s:%s  %s  %s  %s/%s坪\n",
			l.Source, l.ListingID,
			truncateForTable(pointerStringOrEmpty(l.Title), 40),
			pointerStringOrEmpty(l.District),
			formatPrice(l.Price), formatSize(l.SizePing))

		if !*dryRun {
			if err := db.RecordNotification(ctx, pool, l.Source, l.ListingID, channel, globaltime.UTC()); err != nil {
				fmt.Fprintf(os.Stderr, "Failed to record notification: %v\n", err)
				return 1
			}
		}
		notified++
	}

	fmt.Printf("\nchannel=%s new=%d matched=%d dry_run=%t\n", channel, notified, total, *dryRun)
	return 0
}
