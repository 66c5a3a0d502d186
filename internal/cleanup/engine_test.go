package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tsesc/tw-homedog/internal/config"
	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/dedup"
)

func newTestEngine(t *testing.T) (*Engine, *db.Pool) {
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

	engine, err := NewEngine(pool, zerolog.Nop(), dedup.DefaultParams())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, pool
}

func insertEntityListing(t *testing.T, pool *db.Pool, source, listingID string, price int64, complete bool) db.Listing {
	t.Helper()

	title := "信義區豪宅出租"
	address := "松仁路100號3樓"
	district := "信義區"
	size := 25.0
	published := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	community := "御之苑"
	l := db.Listing{
		Source:        source,
		ListingID:     listingID,
		Title:         &title,
		Address:       &address,
		District:      &district,
		Price:         &price,
		SizePing:      &size,
		PublishedAt:   &published,
		CommunityName: &community,
		RawHash:       "hash-" + source + "-" + listingID,
		Tags:          "[]",
		CreatedAt:     time.Now().UTC(),
	}
	if complete {
		room := "3房2廳2衛"
		kind := "電梯大樓"
		direction := "朝南"
		l.Room = &room
		l.KindName = &kind
		l.Direction = &direction
	}
	l.EntityFingerprint = dedup.Fingerprint(&l)

	if err := db.InsertListing(context.Background(), pool, &l); err != nil {
		t.Fatalf("insert %s/%s: %v", source, listingID, err)
	}
	return l
}

func TestRunDryRunPlansWithoutMerging(t *testing.T) {
	engine, pool := newTestEngine(t)
	ctx := context.Background()

	insertEntityListing(t, pool, "site_a", "L-1", 50000, false)
	insertEntityListing(t, pool, "site_b", "L-2", 50500, true)

	report, err := engine.Run(ctx, Options{Apply: false})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !report.DryRun {
		t.Fatalf("report should flag dry run")
	}
	if len(report.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(report.Groups))
	}
	if report.Merged != 0 {
		t.Fatalf("dry run merged %d groups", report.Merged)
	}

	counts, err := db.CountReadState(ctx, pool, "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts.Total != 2 {
		t.Fatalf("dry run should leave both rows, got %d", counts.Total)
	}
}

func TestRunMergesDuplicateGroup(t *testing.T) {
	engine, pool := newTestEngine(t)
	ctx := context.Background()

	sparse := insertEntityListing(t, pool, "site_a", "L-sparse", 50000, false)
	rich := insertEntityListing(t, pool, "site_b", "L-rich", 50500, true)

	// Read mark and favorite live on the duplicate and must survive the merge.
	if _, err := db.MarkListingRead(ctx, pool, sparse.Source, sparse.ListingID, time.Now()); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if _, err := db.AddFavorite(ctx, pool, sparse.Source, sparse.ListingID, time.Now()); err != nil {
		t.Fatalf("add favorite: %v", err)
	}

	report, err := engine.Run(ctx, Options{Apply: true})
	if err != nil {
		t.Fatalf("apply run: %v", err)
	}
	if report.Merged != 1 {
		t.Fatalf("merged = %d, want 1", report.Merged)
	}
	if len(report.Groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(report.Groups))
	}

	group := report.Groups[0]
	if group.Canonical != rich.Identity() {
		t.Fatalf("canonical = %v, want the more complete listing %v", group.Canonical, rich.Identity())
	}

	// Duplicate row gone, canonical remains.
	exists, err := db.ListingExists(ctx, pool, sparse.Source, sparse.ListingID)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("duplicate should be deleted")
	}
	exists, err = db.ListingExists(ctx, pool, rich.Source, rich.ListingID)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatalf("canonical should survive")
	}

	// Relations migrated onto the canonical.
	fav, err := db.IsFavorite(ctx, pool, rich.Source, rich.ListingID)
	if err != nil {
		t.Fatalf("is favorite: %v", err)
	}
	if !fav {
		t.Fatalf("favorite should migrate to the canonical")
	}

	// Each merged pair audited.
	audits, err := db.RecentAudits(ctx, pool, db.AuditEventCleanupMerge, 10)
	if err != nil {
		t.Fatalf("audits: %v", err)
	}
	if len(audits) != 1 {
		t.Fatalf("audits = %d, want 1", len(audits))
	}
	if audits[0].CanonicalListingID == nil || *audits[0].CanonicalListingID != rich.ListingID {
		t.Fatalf("audit canonical = %v", audits[0].CanonicalListingID)
	}

	// The merge audit carries the pair's sub-score breakdown.
	var breakdown dedup.ScoreResult
	if err := json.Unmarshal([]byte(audits[0].MatchDetails), &breakdown); err != nil {
		t.Fatalf("decode match details %q: %v", audits[0].MatchDetails, err)
	}
	if breakdown.Fingerprint == nil || *breakdown.Fingerprint != 1 {
		t.Fatalf("breakdown fingerprint = %v, want 1", breakdown.Fingerprint)
	}
	if audits[0].Score == nil || breakdown.Score != *audits[0].Score {
		t.Fatalf("breakdown score %v != audit score %v", breakdown.Score, audits[0].Score)
	}

	if !report.Integrity.OK() {
		t.Fatalf("integrity check failed: %+v", report.Integrity)
	}
}

func TestRunIdempotent(t *testing.T) {
	engine, pool := newTestEngine(t)
	ctx := context.Background()

	insertEntityListing(t, pool, "site_a", "L-1", 50000, false)
	insertEntityListing(t, pool, "site_b", "L-2", 50500, true)

	if _, err := engine.Run(ctx, Options{Apply: true}); err != nil {
		t.Fatalf("first run: %v", err)
	}

	report, err := engine.Run(ctx, Options{Apply: true})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(report.Groups) != 0 || report.Merged != 0 {
		t.Fatalf("second run should find nothing: %+v", report)
	}

	counts, err := db.CountReadState(ctx, pool, "")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts.Total != 1 {
		t.Fatalf("listings = %d, want 1", counts.Total)
	}
}

func TestRunBucketMembershipAloneDoesNotMerge(t *testing.T) {
	engine, pool := newTestEngine(t)
	ctx := context.Background()

	// Same address key but wildly different price and size: shared bucket,
	// low pair score.
	a := insertEntityListing(t, pool, "site_a", "L-1", 20000, false)
	b := insertEntityListing(t, pool, "site_b", "L-2", 90000, false)
	if _, err := pool.Exec(ctx, `UPDATE listings SET size_ping = 8.0, title = '套房出租' WHERE source = ? AND listing_id = ?`, a.Source, a.ListingID); err != nil {
		t.Fatalf("update: %v", err)
	}
	_ = b

	report, err := engine.Run(ctx, Options{Apply: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.BucketsScanned != 1 {
		t.Fatalf("buckets = %d, want 1", report.BucketsScanned)
	}
	if len(report.Groups) != 0 {
		t.Fatalf("low-scoring bucket should produce no groups: %+v", report.Groups)
	}
}

func TestRunSingleFlight(t *testing.T) {
	engine, _ := newTestEngine(t)

	engine.running.Store(true)
	_, err := engine.Run(context.Background(), Options{})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}

	engine.running.Store(false)
	if _, err := engine.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("run after release: %v", err)
	}
}
