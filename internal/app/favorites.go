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

func runFavorites(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "favorites requires a subcommand: list, add, remove")
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "list":
		return runFavoritesList(args[1:])
	case "add":
		return runFavoritesMutate("add", args[1:])
	case "remove":
		return runFavoritesMutate("remove", args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown favorites subcommand: %s\n", args[0])
		return 2
	}
}

func runFavoritesList(args []string) int {
	fs := flag.NewFlagSet("favorites list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", 100, "Maximum favorites to show")
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

	items, err := db.ListFavorites(ctx, pool, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list favorites: %v\n", err)
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
		f := &items[i]
		rows = append(rows, []string{
			f.Source,
			f.ListingID,
			truncateForTable(pointerStringOrEmpty(f.Title), 40),
			formatPrice(f.Price),
			f.AddedAt.UTC().Format(time.RFC3339),
		})
	}

	if err := writeTable([]string{"source", "listing_id", "title", "price", "added_at"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}

func runFavoritesMutate(action string, args []string) int {
	fs := flag.NewFlagSet("favorites "+action, flag.ContinueOnError)
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

	src := strings.TrimSpace(*source)
	id := strings.TrimSpace(*listingID)
	if src == "" || id == "" {
		fmt.Fprintln(os.Stderr, "--source and --listing-id are required")
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	var done bool
	switch action {
	case "add":
		done, err = db.AddFavorite(ctx, pool, src, id, globaltime.UTC())
	case "remove":
		done, err = db.RemoveFavorite(ctx, pool, src, id)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Favorite %s failed: %v\n", action, err)
		return 1
	}
	if !done {
		if action == "add" {
			fmt.Fprintf(os.Stderr, "Listing %s:%s not found\n", src, id)
		} else {
			fmt.Fprintf(os.Stderr, "Favorite %s:%s not found\n", src, id)
		}
		return 1
	}

	fmt.Printf("favorite %s %s:%s\n", action, src, id)
	return 0
}
