package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "matches":
		return runMatches(args[1:])
	case "mark-read":
		return runMarkRead(args[1:])
	case "listings":
		return runListings(args[1:])
	case "favorites":
		return runFavorites(args[1:])
	case "notify":
		return runNotify(args[1:])
	case "cleanup":
		return runCleanup(args[1:])
	case "backfill-fingerprints":
		return runBackfillFingerprints(args[1:])
	case "audit":
		return runAudit(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "homedog CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  homedog <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health                 Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  ingest                 Ingest a scraper batch JSON file through the dedup gate")
	fmt.Fprintln(os.Stderr, "  matches                List unread listings matching search criteria")
	fmt.Fprintln(os.Stderr, "  mark-read              Mark listings as read at their current content hash")
	fmt.Fprintln(os.Stderr, "  listings               List listings with their read state")
	fmt.Fprintln(os.Stderr, "  favorites              Manage favorites: list, add, remove")
	fmt.Fprintln(os.Stderr, "  notify                 Print a digest of new matches and record notification marks")
	fmt.Fprintln(os.Stderr, "  cleanup                Find and merge duplicate listings already in storage")
	fmt.Fprintln(os.Stderr, "  backfill-fingerprints  Compute entity fingerprints for rows missing one")
	fmt.Fprintln(os.Stderr, "  audit                  Show recent dedup audit events")
	fmt.Fprintln(os.Stderr, "  stats                  Show listing, favorite and audit counters")
	fmt.Fprintln(os.Stderr, "  serve                  Start the Echo operator API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"homedog <command> -h\" for command-specific flags.")
}
