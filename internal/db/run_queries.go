package db

import (
	"context"
	"fmt"
	"time"
)

// StartScrapeRun opens a run ledger row for an ingestion batch and returns
// its run_id.
func StartScrapeRun(ctx context.Context, q Querier, source string, startedAt time.Time) (int64, error) {
	if source == "" {
		return 0, fmt.Errorf("source is required")
	}

	const query = `
INSERT INTO scrape_runs (source, started_at, status)
VALUES (?, ?, ?)
RETURNING run_id`

	var runID int64
	if err := q.QueryRow(ctx, query, source, startedAt.UTC(), RunStatusRunning).Scan(&runID); err != nil {
		return 0, fmt.Errorf("start scrape run: %w", err)
	}
	return runID, nil
}

// ScrapeRunResult carries the final accounting for a finished run.
type ScrapeRunResult struct {
	Status       string
	ItemsSeen    int
	ItemsAdded   int
	ItemsSkipped int
	ErrorMessage *string
}

// FinishScrapeRun closes a run ledger row with its counters.
func FinishScrapeRun(ctx context.Context, q Querier, runID int64, res ScrapeRunResult, finishedAt time.Time) error {
	if runID <= 0 {
		return fmt.Errorf("run id must be > 0")
	}
	if res.Status != RunStatusSucceeded && res.Status != RunStatusFailed {
		return fmt.Errorf("unknown run status %q", res.Status)
	}

	const query = `
UPDATE scrape_runs SET
	finished_at = ?, status = ?, items_seen = ?, items_added = ?,
	items_skipped = ?, error_message = ?
WHERE run_id = ?`

	tag, err := q.Exec(ctx, query,
		finishedAt.UTC(), res.Status, res.ItemsSeen, res.ItemsAdded,
		res.ItemsSkipped, res.ErrorMessage, runID,
	)
	if err != nil {
		return fmt.Errorf("finish scrape run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("scrape run %d not found", runID)
	}
	return nil
}

// RecentScrapeRuns lists the newest runs, optionally scoped to one source.
func RecentScrapeRuns(ctx context.Context, q Querier, source string, limit int) ([]ScrapeRun, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const query = `
SELECT
	run_id, source, started_at, finished_at, status, items_seen,
	items_added, items_skipped, error_message
FROM scrape_runs
WHERE (? = '' OR source = ?)
ORDER BY started_at DESC, run_id DESC
LIMIT ?`

	rows, err := q.Query(ctx, query, source, source, limit)
	if err != nil {
		return nil, fmt.Errorf("query scrape runs: %w", err)
	}
	defer rows.Close()

	var runs []ScrapeRun
	for rows.Next() {
		var r ScrapeRun
		if err := rows.Scan(
			&r.RunID, &r.Source, &r.StartedAt, &r.FinishedAt, &r.Status,
			&r.ItemsSeen, &r.ItemsAdded, &r.ItemsSkipped, &r.ErrorMessage,
		); err != nil {
			return nil, fmt.Errorf("scan scrape run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scrape run rows: %w", err)
	}
	return runs, nil
}
