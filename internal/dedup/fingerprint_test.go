package dedup

import (
	"testing"

	"github.com/tsesc/tw-homedog/internal/db"
)

func strPtr(s string) *string     { return &s }
func intPtr(i int) *int           { return &i }
func int64Ptr(i int64) *int64     { return &i }
func floatPtr(f float64) *float64 { return &f }

func TestFingerprintStable(t *testing.T) {
	t.Parallel()

	a := &db.Listing{
		District:      strPtr("信義區"),
		Address:       strPtr("松仁路100號3樓"),
		CommunityName: strPtr("御之苑"),
	}
	b := &db.Listing{
		District:      strPtr("信義區"),
		Address:       strPtr("松仁路100號5樓"),
		CommunityName: strPtr("御之苑"),
	}

	fpA, fpB := Fingerprint(a), Fingerprint(b)
	if fpA == "" {
		t.Fatalf("fingerprint should not be empty")
	}
	if fpA != fpB {
		t.Fatalf("different floors of the same address should share a fingerprint: %q vs %q", fpA, fpB)
	}
	if got := Fingerprint(a); got != fpA {
		t.Fatalf("fingerprint not deterministic: %q vs %q", got, fpA)
	}
}

func TestFingerprintTaiVariantsMatch(t *testing.T) {
	t.Parallel()

	a := &db.Listing{District: strPtr("台北市大安區"), Address: strPtr("和平東路二段")}
	b := &db.Listing{District: strPtr("臺北市大安區"), Address: strPtr("和平東路二段")}

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("台/臺 variants should share a fingerprint")
	}
}

func TestFingerprintEmptyWithoutSignals(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		listing *db.Listing
	}{
		{name: "nil listing", listing: nil},
		{name: "no fields", listing: &db.Listing{}},
		{name: "district only", listing: &db.Listing{District: strPtr("信義區")}},
		{name: "digits-only address", listing: &db.Listing{Address: strPtr("453")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Fingerprint(tc.listing); got != "" {
				t.Fatalf("Fingerprint = %q, want empty", got)
			}
		})
	}
}

func TestFingerprintCommunityChangesHash(t *testing.T) {
	t.Parallel()

	base := &db.Listing{District: strPtr("信義區"), Address: strPtr("松仁路")}
	withCommunity := &db.Listing{District: strPtr("信義區"), Address: strPtr("松仁路"), CommunityName: strPtr("御之苑")}

	if Fingerprint(base) == Fingerprint(withCommunity) {
		t.Fatalf("community name should contribute to the fingerprint")
	}
}
