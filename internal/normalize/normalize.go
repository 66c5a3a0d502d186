// Package normalize turns raw scraped listing payloads into storable
// records: price and size coercion from messy source strings, publish date
// parsing and the content hash used for change detection.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/tsesc/tw-homedog/internal/db"
	payloadschema "github.com/tsesc/tw-homedog/schema"
)

var (
	digitRunPattern = regexp.MustCompile(`[0-9]+`)
	roomPattern     = regexp.MustCompile(`([0-9]+)\s*房`)
	bathPattern     = regexp.MustCompile(`([0-9]+)\s*衛`)
	agePattern      = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)\s*年?`)
)

// ExtractPrice pulls an integer amount out of a scraped price value.
// "35,000 元/月" and "NT$35000" both yield 35000; values without any digits
// yield nil.
func ExtractPrice(v any) *int64 {
	switch p := v.(type) {
	case nil:
		return nil
	case json.Number:
		if f, err := p.Float64(); err == nil {
			n := int64(f)
			return &n
		}
		return nil
	case float64:
		n := int64(p)
		return &n
	case int64:
		n := p
		return &n
	case int:
		n := int64(p)
		return &n
	case string:
		digits := strings.Join(digitRunPattern.FindAllString(p, -1), "")
		if digits == "" {
			return nil
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

// ExtractFloat coerces a scraped numeric value (size, area) to a float.
func ExtractFloat(v any) *float64 {
	switch f := v.(type) {
	case nil:
		return nil
	case json.Number:
		if parsed, err := f.Float64(); err == nil {
			return &parsed
		}
		return nil
	case float64:
		val := f
		return &val
	case int64:
		val := float64(f)
		return &val
	case int:
		val := float64(f)
		return &val
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(f, ",", ""))
		s = strings.TrimSuffix(s, "坪")
		if s == "" {
			return nil
		}
		if parsed, err := strconv.ParseFloat(s, 64); err == nil {
			return &parsed
		}
		return nil
	default:
		return nil
	}
}

// CoerceString renders a scraped any-typed value as a trimmed string.
func CoerceString(v any) *string {
	var s string
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s = val
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	default:
		s = fmt.Sprintf("%v", val)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// ContentHash is the change-detection hash over the fields a reader actually
// sees: title, price and address joined with "|", SHA-256 hex. Missing
// fields hash as empty strings.
func ContentHash(title *string, price *int64, address *string) string {
	priceStr := ""
	if price != nil {
		priceStr = strconv.FormatInt(*price, 10)
	}
	payload := derefOr(title, "") + "|" + priceStr + "|" + derefOr(address, "")
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ParseRoomCounts reads room and bathroom counts from a layout string like
// "3房2廳2衛". Either count may be absent.
func ParseRoomCounts(room string) (rooms, baths *int) {
	if m := roomPattern.FindStringSubmatch(room); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			rooms = &n
		}
	}
	if m := bathPattern.FindStringSubmatch(room); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			baths = &n
		}
	}
	return rooms, baths
}

// BuildYearFromHouseAge derives a build year from an age string like "12年"
// relative to now. Unparseable ages yield nil.
func BuildYearFromHouseAge(houseage string, now time.Time) *int {
	m := agePattern.FindStringSubmatch(strings.TrimSpace(houseage))
	if m == nil {
		return nil
	}
	age, err := strconv.ParseFloat(m[1], 64)
	if err != nil || age < 0 || age > 200 {
		return nil
	}
	year := now.Year() - int(age)
	return &year
}

// ParsePublishedAt parses heterogeneous source date strings. Empty or
// unparseable values yield nil rather than an error: a bad date never blocks
// ingestion.
func ParsePublishedAt(raw *string) *time.Time {
	if raw == nil {
		return nil
	}
	s := strings.TrimSpace(*raw)
	if s == "" {
		return nil
	}
	parsed, err := dateparse.ParseAny(s)
	if err != nil {
		return nil
	}
	utc := parsed.UTC()
	return &utc
}

// Listing builds a storable record from a validated payload. The entity
// fingerprint is left empty; the ingest gate computes it after enrichment
// fields settle.
func Listing(p *payloadschema.ListingPayload, now time.Time) (*db.Listing, error) {
	if p == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	if strings.TrimSpace(p.Source) == "" || strings.TrimSpace(p.ListingID) == "" {
		return nil, fmt.Errorf("source and listing_id are required")
	}

	l := &db.Listing{
		Source:          strings.TrimSpace(p.Source),
		ListingID:       strings.TrimSpace(p.ListingID),
		Title:           trimPtr(p.Title),
		Price:           ExtractPrice(p.Price),
		Address:         trimPtr(p.Address),
		District:        trimPtr(p.District),
		SizePing:        ExtractFloat(p.SizePing),
		Floor:           trimPtr(p.Floor),
		URL:             trimPtr(p.URL),
		PublishedAt:     ParsePublishedAt(p.PublishedAt),
		HouseAge:        CoerceString(p.HouseAge),
		UnitPrice:       CoerceString(p.UnitPrice),
		KindName:        trimPtr(p.KindName),
		Room:            trimPtr(p.Room),
		ParkingDesc:     trimPtr(p.ParkingDesc),
		PublicRatio:     CoerceString(p.PublicRatio),
		ManagePriceDesc: trimPtr(p.ManagePriceDesc),
		Fitment:         trimPtr(p.Fitment),
		ShapeName:       trimPtr(p.ShapeName),
		CommunityName:   trimPtr(p.CommunityName),
		MainArea:        ExtractFloat(p.MainArea),
		Direction:       trimPtr(p.Direction),
		Tags:            encodeTags(p.Tags),
		CreatedAt:       now.UTC(),
	}

	if l.Room != nil {
		l.RoomCount, l.BathroomCount = ParseRoomCounts(*l.Room)
	}
	if l.HouseAge != nil {
		l.BuildYear = BuildYearFromHouseAge(*l.HouseAge, now)
	}

	l.RawHash = ContentHash(l.Title, l.Price, l.Address)
	return l, nil
}

func encodeTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			cleaned = append(cleaned, tag)
		}
	}
	encoded, err := json.Marshal(cleaned)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
