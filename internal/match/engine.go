// Package match selects unread listings against user search criteria.
package match

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/normalize"
)

// Filters is one search's criteria. Nil and empty fields are inactive.
type Filters struct {
	PriceMin        *int64   `json:"price_min,omitempty" yaml:"price_min"`
	PriceMax        *int64   `json:"price_max,omitempty" yaml:"price_max"`
	Districts       []string `json:"districts,omitempty" yaml:"districts"`
	SizeMinPing     *float64 `json:"size_min_ping,omitempty" yaml:"size_min_ping"`
	SizeMaxPing     *float64 `json:"size_max_ping,omitempty" yaml:"size_max_ping"`
	RoomCounts      []int    `json:"room_counts,omitempty" yaml:"room_counts"`
	BathroomCounts  []int    `json:"bathroom_counts,omitempty" yaml:"bathroom_counts"`
	BuildYearMin    *int     `json:"build_year_min,omitempty" yaml:"build_year_min"`
	BuildYearMax    *int     `json:"build_year_max,omitempty" yaml:"build_year_max"`
	KeywordsInclude []string `json:"keywords_include,omitempty" yaml:"keywords_include"`
	KeywordsExclude []string `json:"keywords_exclude,omitempty" yaml:"keywords_exclude"`
}

func (f Filters) Validate() error {
	if f.PriceMin != nil && f.PriceMax != nil && *f.PriceMin > *f.PriceMax {
		return fmt.Errorf("price_min exceeds price_max")
	}
	if f.SizeMinPing != nil && f.SizeMaxPing != nil && *f.SizeMinPing > *f.SizeMaxPing {
		return fmt.Errorf("size_min_ping exceeds size_max_ping")
	}
	if f.BuildYearMin != nil && f.BuildYearMax != nil && *f.BuildYearMin > *f.BuildYearMax {
		return fmt.Errorf("build_year_min exceeds build_year_max")
	}
	return nil
}

// Page bounds one result window.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

func (p Page) Validate() error {
	if p.Offset < 0 {
		return fmt.Errorf("offset must be >= 0")
	}
	if p.Limit <= 0 {
		return fmt.Errorf("limit must be > 0")
	}
	return nil
}

// FindUnreadMatches returns the requested page of unread listings passing
// the filters plus the total match count. Count and page come from one
// predicate over one snapshot, so they always agree. Order: newest published
// first, undated last, ties on (source, listing_id).
func FindUnreadMatches(ctx context.Context, q db.Querier, f Filters, p Page, now time.Time) ([]db.Listing, int, error) {
	if err := f.Validate(); err != nil {
		return nil, 0, err
	}
	if err := p.Validate(); err != nil {
		return nil, 0, err
	}

	unread, err := db.UnreadListings(ctx, q)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]db.Listing, 0, len(unread))
	for i := range unread {
		if Matches(&unread[i], f, now) {
			matched = append(matched, unread[i])
		}
	}

	total := len(matched)
	if p.Offset >= total {
		return []db.Listing{}, total, nil
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return matched[p.Offset:end], total, nil
}

// Matches applies every active filter. Listings missing a filtered field
// pass, with one exception: an active size filter excludes listings without
// a size.
func Matches(l *db.Listing, f Filters, now time.Time) bool {
	if l == nil {
		return false
	}

	if f.PriceMin != nil && l.Price != nil && *l.Price < *f.PriceMin {
		return false
	}
	if f.PriceMax != nil && l.Price != nil && *l.Price > *f.PriceMax {
		return false
	}

	if len(f.Districts) > 0 && !districtMatches(l.District, f.Districts) {
		return false
	}

	if f.SizeMinPing != nil || f.SizeMaxPing != nil {
		if l.SizePing == nil {
			return false
		}
		if f.SizeMinPing != nil && *l.SizePing < *f.SizeMinPing {
			return false
		}
		if f.SizeMaxPing != nil && *l.SizePing > *f.SizeMaxPing {
			return false
		}
	}

	if len(f.RoomCounts) > 0 && l.RoomCount != nil && !containsInt(f.RoomCounts, *l.RoomCount) {
		return false
	}
	if len(f.BathroomCounts) > 0 && l.BathroomCount != nil && !containsInt(f.BathroomCounts, *l.BathroomCount) {
		return false
	}

	if f.BuildYearMin != nil || f.BuildYearMax != nil {
		if year := buildYear(l, now); year != nil {
			if f.BuildYearMin != nil && *year < *f.BuildYearMin {
				return false
			}
			if f.BuildYearMax != nil && *year > *f.BuildYearMax {
				return false
			}
		}
	}

	if len(f.KeywordsInclude) > 0 || len(f.KeywordsExclude) > 0 {
		text := searchText(l)
		for _, kw := range f.KeywordsInclude {
			if kw = canonKeyword(kw); kw != "" && !strings.Contains(text, kw) {
				return false
			}
		}
		for _, kw := range f.KeywordsExclude {
			if kw = canonKeyword(kw); kw != "" && strings.Contains(text, kw) {
				return false
			}
		}
	}

	return true
}

// districtMatches tests exact membership after canonicalization, so 信義區
// never picks up 大安區信義路 style near-misses.
func districtMatches(district *string, wanted []string) bool {
	if district == nil {
		return true
	}
	have := canonKeyword(*district)
	for _, w := range wanted {
		if w = canonKeyword(w); w != "" && w == have {
			return true
		}
	}
	return false
}

// buildYear reads the explicit build year or derives one from the house age.
func buildYear(l *db.Listing, now time.Time) *int {
	if l.BuildYear != nil {
		return l.BuildYear
	}
	if l.HouseAge != nil {
		return normalize.BuildYearFromHouseAge(*l.HouseAge, now)
	}
	return nil
}

// searchText concatenates every text field keyword filters look at.
func searchText(l *db.Listing) string {
	parts := []string{}
	for _, s := range []*string{
		l.Title, l.Address, l.District, l.CommunityName, l.KindName,
		l.Room, l.Fitment, l.ShapeName, l.Floor, l.ParkingDesc,
		l.ManagePriceDesc, l.Direction,
	} {
		if s != nil {
			parts = append(parts, *s)
		}
	}

	var tags []string
	if err := json.Unmarshal([]byte(l.Tags), &tags); err == nil {
		parts = append(parts, tags...)
	}

	return canonKeyword(strings.Join(parts, " "))
}

func canonKeyword(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "台", "臺"))
}

func containsInt(haystack []int, needle int) bool {
	for _, n := range haystack {
		if n == needle {
			return true
		}
	}
	return false
}
