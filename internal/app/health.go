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

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel, cfg, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	counts, err := db.CountReadState(ctx, pool, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check query failed: %v\n", err)
		return 1
	}

	fmt.Printf("ok database=%s listings=%d unread=%d\n", cfg.DatabasePath, counts.Total, counts.Unread)
	return 0
}
