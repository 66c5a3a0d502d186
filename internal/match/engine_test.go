package match

import (
	"context"
	"testing"
	"time"

	"github.com/tsesc/tw-homedog/internal/config"
	"github.com/tsesc/tw-homedog/internal/db"
)

var testNow = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func ptr64(n int64) *int64    { return &n }
func ptrInt(n int) *int       { return &n }
func ptrF(f float64) *float64 { return &f }
func ptrStr(s string) *string { return &s }

func baseListing() *db.Listing {
	return &db.Listing{
		Source:    "site_a",
		ListingID: "L-1",
		Title:     ptrStr("信義區兩房出租"),
		Address:   ptrStr("松仁路100號"),
		District:  ptrStr("台北市信義區"),
		Price:     ptr64(45000),
		SizePing:  ptrF(20.0),
		RoomCount: ptrInt(2),
		BuildYear: ptrInt(2015),
		Tags:      `["可養寵物","近捷運"]`,
		RawHash:   "hash-1",
	}
}

func TestMatchesPriceRange(t *testing.T) {
	t.Parallel()

	l := baseListing()
	if !Matches(l, Filters{PriceMin: ptr64(40000), PriceMax: ptr64(50000)}, testNow) {
		t.Fatalf("price inside range should match")
	}
	if Matches(l, Filters{PriceMax: ptr64(40000)}, testNow) {
		t.Fatalf("price above max should not match")
	}
	if Matches(l, Filters{PriceMin: ptr64(50000)}, testNow) {
		t.Fatalf("price below min should not match")
	}

	l.Price = nil
	if !Matches(l, Filters{PriceMin: ptr64(40000)}, testNow) {
		t.Fatalf("missing price should be forgiven")
	}
}

func TestMatchesDistricts(t *testing.T) {
	t.Parallel()

	l := baseListing()
	// 台/臺 variants must match either way.
	if !Matches(l, Filters{Districts: []string{"臺北市信義區"}}, testNow) {
		t.Fatalf("variant district spelling should match")
	}
	if !Matches(l, Filters{Districts: []string{"大安區", "台北市信義區"}}, testNow) {
		t.Fatalf("district in the wanted set should match")
	}
	// Membership is exact: a partial district name is a different district.
	if Matches(l, Filters{Districts: []string{"信義區"}}, testNow) {
		t.Fatalf("partial district name should not match")
	}
	if Matches(l, Filters{Districts: []string{"大安區"}}, testNow) {
		t.Fatalf("other district should not match")
	}

	l.District = nil
	if !Matches(l, Filters{Districts: []string{"大安區"}}, testNow) {
		t.Fatalf("missing district should be forgiven")
	}
}

func TestMatchesSizeExcludesMissing(t *testing.T) {
	t.Parallel()

	l := baseListing()
	if !Matches(l, Filters{SizeMinPing: ptrF(15), SizeMaxPing: ptrF(30)}, testNow) {
		t.Fatalf("size inside range should match")
	}
	if Matches(l, Filters{SizeMinPing: ptrF(25)}, testNow) {
		t.Fatalf("size below min should not match")
	}

	// Size is the one field where missing data excludes.
	l.SizePing = nil
	if Matches(l, Filters{SizeMinPing: ptrF(15)}, testNow) {
		t.Fatalf("missing size with an active size filter should exclude")
	}
	if !Matches(l, Filters{PriceMax: ptr64(50000)}, testNow) {
		t.Fatalf("missing size with no size filter should pass")
	}
}

func TestMatchesRoomAndBathCounts(t *testing.T) {
	t.Parallel()

	l := baseListing()
	if !Matches(l, Filters{RoomCounts: []int{2, 3}}, testNow) {
		t.Fatalf("room count in set should match")
	}
	if Matches(l, Filters{RoomCounts: []int{3, 4}}, testNow) {
		t.Fatalf("room count outside set should not match")
	}

	l.RoomCount = nil
	if !Matches(l, Filters{RoomCounts: []int{3}}, testNow) {
		t.Fatalf("missing room count should be forgiven")
	}
}

func TestMatchesBuildYear(t *testing.T) {
	t.Parallel()

	l := baseListing()
	if !Matches(l, Filters{BuildYearMin: ptrInt(2010)}, testNow) {
		t.Fatalf("build year above min should match")
	}
	if Matches(l, Filters{BuildYearMin: ptrInt(2020)}, testNow) {
		t.Fatalf("build year below min should not match")
	}

	// Derived from house age when no explicit year is stored.
	l.BuildYear = nil
	l.HouseAge = ptrStr("5年")
	if !Matches(l, Filters{BuildYearMin: ptrInt(2020)}, testNow) {
		t.Fatalf("derived build year 2021 should pass min 2020")
	}
	if Matches(l, Filters{BuildYearMax: ptrInt(2015)}, testNow) {
		t.Fatalf("derived build year 2021 should fail max 2015")
	}

	l.HouseAge = nil
	if !Matches(l, Filters{BuildYearMin: ptrInt(2020)}, testNow) {
		t.Fatalf("missing build year should be forgiven")
	}
}

func TestMatchesKeywords(t *testing.T) {
	t.Parallel()

	l := baseListing()
	if !Matches(l, Filters{KeywordsInclude: []string{"寵物", "捷運"}}, testNow) {
		t.Fatalf("all include keywords present should match")
	}
	if Matches(l, Filters{KeywordsInclude: []string{"寵物", "車位"}}, testNow) {
		t.Fatalf("one missing include keyword should exclude")
	}
	if Matches(l, Filters{KeywordsExclude: []string{"頂樓加蓋", "寵物"}}, testNow) {
		t.Fatalf("any exclude keyword present should exclude")
	}
	if !Matches(l, Filters{KeywordsExclude: []string{"頂樓加蓋"}}, testNow) {
		t.Fatalf("absent exclude keyword should pass")
	}
	// Keyword matching covers the tag list too.
	if !Matches(l, Filters{KeywordsInclude: []string{"可養寵物"}}, testNow) {
		t.Fatalf("tag keyword should match")
	}
}

func TestFiltersValidate(t *testing.T) {
	t.Parallel()

	bad := Filters{PriceMin: ptr64(50000), PriceMax: ptr64(40000)}
	if err := bad.Validate(); err == nil {
		t.Fatalf("inverted price range should fail validation")
	}
	if err := (Filters{}).Validate(); err != nil {
		t.Fatalf("empty filters should validate: %v", err)
	}
}

func newMatchTestPool(t *testing.T) *db.Pool {
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
	return pool
}

func insertMatchListing(t *testing.T, pool *db.Pool, listingID string, price int64, publishedAt time.Time) {
	t.Helper()

	l := baseListing()
	l.ListingID = listingID
	l.Price = &price
	l.PublishedAt = &publishedAt
	l.RawHash = "hash-" + listingID
	if err := db.InsertListing(context.Background(), pool, l); err != nil {
		t.Fatalf("insert %s: %v", listingID, err)
	}
}

func TestFindUnreadMatchesPaging(t *testing.T) {
	pool := newMatchTestPool(t)
	ctx := context.Background()

	for i, id := range []string{"L-1", "L-2", "L-3", "L-4"} {
		insertMatchListing(t, pool, id, 45000, testNow.Add(-time.Duration(i)*time.Hour))
	}
	// One listing priced out of the filter.
	insertMatchListing(t, pool, "L-expensive", 90000, testNow)

	filters := Filters{PriceMax: ptr64(50000)}

	page1, total, err := FindUnreadMatches(ctx, pool, filters, Page{Offset: 0, Limit: 2}, testNow)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if total != 4 {
		t.Fatalf("total = %d, want 4", total)
	}
	if len(page1) != 2 || page1[0].ListingID != "L-1" || page1[1].ListingID != "L-2" {
		t.Fatalf("page 1 = %v", identities(page1))
	}

	page2, total2, err := FindUnreadMatches(ctx, pool, filters, Page{Offset: 2, Limit: 2}, testNow)
	if err != nil {
		t.Fatalf("page 2: %v", err)
	}
	if total2 != total {
		t.Fatalf("totals disagree across pages: %d vs %d", total2, total)
	}
	if len(page2) != 2 || page2[0].ListingID != "L-3" {
		t.Fatalf("page 2 = %v", identities(page2))
	}

	beyond, _, err := FindUnreadMatches(ctx, pool, filters, Page{Offset: 10, Limit: 2}, testNow)
	if err != nil {
		t.Fatalf("beyond: %v", err)
	}
	if len(beyond) != 0 {
		t.Fatalf("offset beyond total should be empty, got %v", identities(beyond))
	}
}

func TestFindUnreadMatchesSkipsRead(t *testing.T) {
	pool := newMatchTestPool(t)
	ctx := context.Background()

	insertMatchListing(t, pool, "L-1", 45000, testNow)
	insertMatchListing(t, pool, "L-2", 45000, testNow.Add(-time.Hour))
	if _, err := db.MarkListingRead(ctx, pool, "site_a", "L-1", testNow); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	matches, total, err := FindUnreadMatches(ctx, pool, Filters{}, Page{Offset: 0, Limit: 10}, testNow)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if total != 1 || len(matches) != 1 || matches[0].ListingID != "L-2" {
		t.Fatalf("matches = %v, total = %d", identities(matches), total)
	}

	// A content change resurrects the read listing.
	if _, err := pool.Exec(ctx, `UPDATE listings SET raw_hash = 'hash-drift' WHERE listing_id = 'L-1'`); err != nil {
		t.Fatalf("drift: %v", err)
	}
	_, total, err = FindUnreadMatches(ctx, pool, Filters{}, Page{Offset: 0, Limit: 10}, testNow)
	if err != nil {
		t.Fatalf("find after drift: %v", err)
	}
	if total != 2 {
		t.Fatalf("total after drift = %d, want 2", total)
	}
}

func identities(listings []db.Listing) []string {
	out := make([]string, 0, len(listings))
	for i := range listings {
		out = append(out, listings[i].ListingID)
	}
	return out
}
