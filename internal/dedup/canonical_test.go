package dedup

import (
	"testing"
	"time"

	"github.com/tsesc/tw-homedog/internal/db"
)

func TestChooseCanonicalPrefersCompleteness(t *testing.T) {
	t.Parallel()

	sparse := db.Listing{
		Source:    "site_a",
		ListingID: "1",
		Title:     strPtr("信義區豪宅"),
	}
	rich := db.Listing{
		Source:        "site_b",
		ListingID:     "2",
		Title:         strPtr("信義區豪宅"),
		Address:       strPtr("松仁路100號"),
		District:      strPtr("信義區"),
		Price:         int64Ptr(50000),
		SizePing:      floatPtr(25.0),
		CommunityName: strPtr("御之苑"),
	}

	if got := ChooseCanonical([]db.Listing{sparse, rich}); got != 1 {
		t.Fatalf("ChooseCanonical = %d, want 1 (more complete listing)", got)
	}
}

func TestChooseCanonicalTieBreaksOnPublishDate(t *testing.T) {
	t.Parallel()

	older := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	a := db.Listing{Source: "site_a", ListingID: "1", Title: strPtr("x"), PublishedAt: &older}
	b := db.Listing{Source: "site_a", ListingID: "2", Title: strPtr("x"), PublishedAt: &newer}

	if got := ChooseCanonical([]db.Listing{a, b}); got != 1 {
		t.Fatalf("ChooseCanonical = %d, want 1 (newer publish date)", got)
	}

	// A dated listing beats an undated one at equal completeness.
	c := db.Listing{Source: "site_a", ListingID: "3", Title: strPtr("x")}
	if got := ChooseCanonical([]db.Listing{c, a}); got != 1 {
		t.Fatalf("ChooseCanonical = %d, want 1 (dated listing)", got)
	}
}

func TestChooseCanonicalTieBreaksOnIdentity(t *testing.T) {
	t.Parallel()

	a := db.Listing{Source: "site_b", ListingID: "9"}
	b := db.Listing{Source: "site_a", ListingID: "9"}
	c := db.Listing{Source: "site_a", ListingID: "5"}

	if got := ChooseCanonical([]db.Listing{a, b, c}); got != 2 {
		t.Fatalf("ChooseCanonical = %d, want 2 (lowest identity)", got)
	}
}

func TestChooseCanonicalEmptyGroup(t *testing.T) {
	t.Parallel()

	if got := ChooseCanonical(nil); got != -1 {
		t.Fatalf("ChooseCanonical(nil) = %d, want -1", got)
	}
}

func TestChooseCanonicalDeterministic(t *testing.T) {
	t.Parallel()

	group := []db.Listing{
		{Source: "site_a", ListingID: "1", Title: strPtr("x")},
		{Source: "site_a", ListingID: "2", Title: strPtr("x")},
	}
	first := ChooseCanonical(group)
	for i := 0; i < 5; i++ {
		if got := ChooseCanonical(group); got != first {
			t.Fatalf("ChooseCanonical not deterministic: %d vs %d", got, first)
		}
	}
}
