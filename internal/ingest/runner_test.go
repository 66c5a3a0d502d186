package ingest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tsesc/tw-homedog/internal/config"
	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/dedup"
	payloadschema "github.com/tsesc/tw-homedog/schema"
)

func newTestRunner(t *testing.T) (*Runner, *db.Pool) {
	t.Helper()

	pool, err := db.NewPool(context.Background(), &config.Config{
		Environment:  "test",
		LogLevel:     "error",
		DatabasePath: ":memory:",
	})
	if err != nil {
		t.Fatalf("open test pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	runner, err := NewRunner(pool, zerolog.Nop(), dedup.DefaultParams())
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	return runner, pool
}

func ptrStr(s string) *string { return &s }

func TestIngestBatchAccounting(t *testing.T) {
	runner, pool := newTestRunner(t)
	ctx := context.Background()

	payloads := []payloadschema.ListingPayload{
		{
			Source:    "site_a",
			ListingID: "L-1",
			Title:     ptrStr("信義區兩房"),
			Price:     "45,000 元/月",
			Address:   ptrStr("松仁路100號"),
			District:  ptrStr("信義區"),
			SizePing:  20.0,
		},
		{
			// Exact repeat inside the batch.
			Source:    "site_a",
			ListingID: "L-1",
			Title:     ptrStr("信義區兩房"),
			Price:     "45,000 元/月",
			Address:   ptrStr("松仁路100號"),
			District:  ptrStr("信義區"),
			SizePing:  20.0,
		},
		{
			Source:    "site_a",
			ListingID: "L-2",
			Title:     ptrStr("北投區溫泉套房"),
			Price:     18000,
			Address:   ptrStr("石牌路二段99號"),
			District:  ptrStr("北投區"),
			SizePing:  8.0,
		},
	}

	report, err := runner.IngestBatch(ctx, "site_a", payloads)
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if report.Seen != 3 {
		t.Fatalf("seen = %d, want 3 (skipped candidates still count)", report.Seen)
	}
	if report.Added != 2 {
		t.Fatalf("added = %d, want 2", report.Added)
	}
	if report.Skipped != 1 {
		t.Fatalf("skipped = %d, want 1", report.Skipped)
	}

	runs, err := db.RecentScrapeRuns(ctx, pool, "site_a", 5)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Status != db.RunStatusSucceeded || runs[0].ItemsSeen != 3 || runs[0].ItemsAdded != 2 {
		t.Fatalf("ledger = %+v", runs[0])
	}
}

func TestIngestBatchInvalidPayloadDoesNotAbort(t *testing.T) {
	runner, _ := newTestRunner(t)
	ctx := context.Background()

	payloads := []payloadschema.ListingPayload{
		{Source: "site_a"}, // missing listing_id
		{Source: "site_a", ListingID: "L-1", Title: ptrStr("ok")},
	}

	report, err := runner.IngestBatch(ctx, "site_a", payloads)
	if err != nil {
		t.Fatalf("ingest batch: %v", err)
	}
	if report.Invalid != 1 {
		t.Fatalf("invalid = %d, want 1", report.Invalid)
	}
	if report.Added != 1 {
		t.Fatalf("added = %d, want 1", report.Added)
	}
}

func TestIngestBatchRequiresSource(t *testing.T) {
	runner, _ := newTestRunner(t)

	if _, err := runner.IngestBatch(context.Background(), "", nil); err == nil {
		t.Fatalf("empty source should fail")
	}
}

func TestIngestBatchEmptyPayloads(t *testing.T) {
	runner, pool := newTestRunner(t)
	ctx := context.Background()

	report, err := runner.IngestBatch(ctx, "site_a", nil)
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if report.Seen != 0 || report.Added != 0 {
		t.Fatalf("report = %+v", report)
	}

	runs, err := db.RecentScrapeRuns(ctx, pool, "site_a", 5)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != db.RunStatusSucceeded {
		t.Fatalf("empty batch should still close its ledger row: %+v", runs)
	}
}
