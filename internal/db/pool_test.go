package db

import (
	"context"
	"testing"
	"time"

	"github.com/tsesc/tw-homedog/internal/config"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()

	pool, err := NewPool(context.Background(), &config.Config{
		Environment:  "test",
		LogLevel:     "error",
		DatabasePath: ":memory:",
	})
	if err != nil {
		t.Fatalf("open test pool: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func testListing(source, listingID string) *Listing {
	title := "信義區兩房"
	address := "松仁路100號3樓"
	district := "信義區"
	price := int64(45000)
	size := 20.5
	published := time.Date(2026, 7, 15, 10, 0, 0, 0, time.UTC)

	return &Listing{
		Source:      source,
		ListingID:   listingID,
		Title:       &title,
		Address:     &address,
		District:    &district,
		Price:       &price,
		SizePing:    &size,
		PublishedAt: &published,
		RawHash:     "hash-" + source + "-" + listingID,
		Tags:        "[]",
		CreatedAt:   time.Date(2026, 7, 15, 11, 0, 0, 0, time.UTC),
	}
}

func mustInsert(t *testing.T, pool *Pool, l *Listing) {
	t.Helper()
	if err := InsertListing(context.Background(), pool, l); err != nil {
		t.Fatalf("insert listing %s/%s: %v", l.Source, l.ListingID, err)
	}
}

func TestNewPoolRejectsNilConfig(t *testing.T) {
	if _, err := NewPool(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestNewPoolRejectsEmptyPath(t *testing.T) {
	_, err := NewPool(context.Background(), &config.Config{DatabasePath: "  "})
	if err == nil {
		t.Fatalf("expected error for empty database path")
	}
}

func TestPoolMigratesSchema(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	for _, table := range []string{"listings", "listings_read", "favorites", "notifications_sent", "dedup_audit", "scrape_runs"} {
		var name string
		err := pool.QueryRow(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing after migration: %v", table, err)
		}
	}
}

func TestTransactionRollback(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()

	tx, err := pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if err := InsertListing(ctx, tx, testListing("site_a", "tx-1")); err != nil {
		t.Fatalf("insert in tx: %v", err)
	}
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}

	exists, err := ListingExists(ctx, pool, "site_a", "tx-1")
	if err != nil {
		t.Fatalf("exists check: %v", err)
	}
	if exists {
		t.Fatalf("rolled-back insert should not persist")
	}
}
