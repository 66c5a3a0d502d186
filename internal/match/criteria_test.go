package match

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseCriteria(t *testing.T) {
	t.Parallel()

	raw := []byte(`
search:
  price_min: 20000
  price_max: 50000
  districts:
    - 信義區
    - 大安區
  size_min_ping: 15
  room_counts: [2, 3]
  keywords_exclude:
    - 頂樓加蓋
`)

	filters, err := ParseCriteria(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if filters.PriceMin == nil || *filters.PriceMin != 20000 {
		t.Fatalf("price_min = %v", filters.PriceMin)
	}
	if len(filters.Districts) != 2 {
		t.Fatalf("districts = %v", filters.Districts)
	}
	if filters.SizeMinPing == nil || *filters.SizeMinPing != 15 {
		t.Fatalf("size_min_ping = %v", filters.SizeMinPing)
	}
	if len(filters.RoomCounts) != 2 || filters.RoomCounts[0] != 2 {
		t.Fatalf("room_counts = %v", filters.RoomCounts)
	}
	if len(filters.KeywordsExclude) != 1 {
		t.Fatalf("keywords_exclude = %v", filters.KeywordsExclude)
	}
}

func TestParseCriteriaInvalidRange(t *testing.T) {
	t.Parallel()

	raw := []byte(`
search:
  price_min: 50000
  price_max: 20000
`)

	if _, err := ParseCriteria(raw); err == nil {
		t.Fatalf("inverted range should fail")
	}
}

func TestLoadCriteriaFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "search.yaml")
	if err := os.WriteFile(path, []byte("search:\n  price_max: 40000\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	filters, err := LoadCriteria(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if filters.PriceMax == nil || *filters.PriceMax != 40000 {
		t.Fatalf("price_max = %v", filters.PriceMax)
	}

	if _, err := LoadCriteria(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("missing file should fail")
	}
}
