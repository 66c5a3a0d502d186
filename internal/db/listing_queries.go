package db

import (
	"context"
	"fmt"
	"strings"
)

// Querier is the read/write surface shared by Pool and Tx so query helpers
// can run either standalone or inside a transaction.
type Querier interface {
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
	Exec(ctx context.Context, query string, args ...any) (CommandTag, error)
}

const listingColumns = `
	id, source, listing_id, title, price, address, district, size_ping, floor,
	url, published_at, raw_hash, houseage, unit_price, kind_name, room,
	room_count, bathroom_count, build_year, tags, parking_desc, public_ratio,
	manage_price_desc, fitment, shape_name, community_name, main_area,
	direction, entity_fingerprint, is_enriched, created_at`

func scanListing(s interface{ Scan(...any) error }, l *Listing) error {
	return s.Scan(
		&l.ID, &l.Source, &l.ListingID, &l.Title, &l.Price, &l.Address,
		&l.District, &l.SizePing, &l.Floor, &l.URL, &l.PublishedAt, &l.RawHash,
		&l.HouseAge, &l.UnitPrice, &l.KindName, &l.Room, &l.RoomCount,
		&l.BathroomCount, &l.BuildYear, &l.Tags, &l.ParkingDesc, &l.PublicRatio,
		&l.ManagePriceDesc, &l.Fitment, &l.ShapeName, &l.CommunityName,
		&l.MainArea, &l.Direction, &l.EntityFingerprint, &l.IsEnriched,
		&l.CreatedAt,
	)
}

func scanListings(rows *Rows) ([]Listing, error) {
	var items []Listing
	for rows.Next() {
		var l Listing
		if err := scanListing(rows, &l); err != nil {
			return nil, fmt.Errorf("scan listing row: %w", err)
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing rows: %w", err)
	}
	return items, nil
}

// GetListing returns one listing by identity, or ErrNoRows.
func GetListing(ctx context.Context, q Querier, source, listingID string) (*Listing, error) {
	if source == "" || listingID == "" {
		return nil, fmt.Errorf("source and listing id are required")
	}

	query := `SELECT` + listingColumns + `
FROM listings
WHERE source = ? AND listing_id = ?`

	var l Listing
	if err := scanListing(q.QueryRow(ctx, query, source, listingID), &l); err != nil {
		if IsNoRows(err) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query listing: %w", err)
	}
	return &l, nil
}

// ListingExists reports whether a listing with the identity is stored.
func ListingExists(ctx context.Context, q Querier, source, listingID string) (bool, error) {
	const query = `SELECT 1 FROM listings WHERE source = ? AND listing_id = ? LIMIT 1`

	var one int
	err := q.QueryRow(ctx, query, source, listingID).Scan(&one)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("query listing exists: %w", err)
	}
	return true, nil
}

// FindListingByRawHash returns the identity of a stored listing with the same
// content hash, or ErrNoRows.
func FindListingByRawHash(ctx context.Context, q Querier, rawHash string) (ListingIdentity, error) {
	if rawHash == "" {
		return ListingIdentity{}, ErrNoRows
	}

	const query = `
SELECT source, listing_id
FROM listings
WHERE raw_hash = ?
ORDER BY source, listing_id
LIMIT 1`

	var id ListingIdentity
	err := q.QueryRow(ctx, query, rawHash).Scan(&id.Source, &id.ListingID)
	if err != nil {
		if IsNoRows(err) {
			return ListingIdentity{}, ErrNoRows
		}
		return ListingIdentity{}, fmt.Errorf("query listing by raw hash: %w", err)
	}
	return id, nil
}

// ListingsByFingerprint returns every listing carrying the fingerprint, in
// stable identity order. Empty fingerprints never bucket together.
func ListingsByFingerprint(ctx context.Context, q Querier, fingerprint string) ([]Listing, error) {
	if fingerprint == "" {
		return nil, nil
	}

	query := `SELECT` + listingColumns + `
FROM listings
WHERE entity_fingerprint = ?
ORDER BY source, listing_id`

	rows, err := q.Query(ctx, query, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("query listings by fingerprint: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// InsertListing stores a new listing row.
func InsertListing(ctx context.Context, q Querier, l *Listing) error {
	if l == nil {
		return fmt.Errorf("listing is nil")
	}
	if l.Source == "" || l.ListingID == "" {
		return fmt.Errorf("source and listing id are required")
	}

	tags := l.Tags
	if strings.TrimSpace(tags) == "" {
		tags = "[]"
	}

	const query = `
INSERT INTO listings (
	source, listing_id, title, price, address, district, size_ping, floor,
	url, published_at, raw_hash, houseage, unit_price, kind_name, room,
	room_count, bathroom_count, build_year, tags, parking_desc, public_ratio,
	manage_price_desc, fitment, shape_name, community_name, main_area,
	direction, entity_fingerprint, is_enriched, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.Exec(ctx, query,
		l.Source, l.ListingID, l.Title, l.Price, l.Address, l.District,
		l.SizePing, l.Floor, l.URL, l.PublishedAt, l.RawHash, l.HouseAge,
		l.UnitPrice, l.KindName, l.Room, l.RoomCount, l.BathroomCount,
		l.BuildYear, tags, l.ParkingDesc, l.PublicRatio, l.ManagePriceDesc,
		l.Fitment, l.ShapeName, l.CommunityName, l.MainArea, l.Direction,
		l.EntityFingerprint, l.IsEnriched, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

// ListingDetail carries the enrichment columns written by the detail pass.
type ListingDetail struct {
	HouseAge          *string
	UnitPrice         *string
	KindName          *string
	Room              *string
	RoomCount         *int
	BathroomCount     *int
	BuildYear         *int
	Tags              string
	ParkingDesc       *string
	PublicRatio       *string
	ManagePriceDesc   *string
	Fitment           *string
	ShapeName         *string
	CommunityName     *string
	MainArea          *float64
	Direction         *string
	EntityFingerprint string
}

// UpdateListingDetail writes the enrichment columns and marks the listing
// enriched. Returns false when the listing does not exist.
func UpdateListingDetail(ctx context.Context, q Querier, source, listingID string, d ListingDetail) (bool, error) {
	if source == "" || listingID == "" {
		return false, fmt.Errorf("source and listing id are required")
	}

	tags := d.Tags
	if strings.TrimSpace(tags) == "" {
		tags = "[]"
	}

	const query = `
UPDATE listings SET
	houseage = ?, unit_price = ?, kind_name = ?, room = ?, room_count = ?,
	bathroom_count = ?, build_year = ?, tags = ?, parking_desc = ?,
	public_ratio = ?, manage_price_desc = ?, fitment = ?, shape_name = ?,
	community_name = ?, main_area = ?, direction = ?, entity_fingerprint = ?,
	is_enriched = 1
WHERE source = ? AND listing_id = ?`

	tag, err := q.Exec(ctx, query,
		d.HouseAge, d.UnitPrice, d.KindName, d.Room, d.RoomCount,
		d.BathroomCount, d.BuildYear, tags, d.ParkingDesc, d.PublicRatio,
		d.ManagePriceDesc, d.Fitment, d.ShapeName, d.CommunityName,
		d.MainArea, d.Direction, d.EntityFingerprint,
		source, listingID,
	)
	if err != nil {
		return false, fmt.Errorf("update listing detail: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// UnenrichedListingIDs returns identities that still need the detail pass.
func UnenrichedListingIDs(ctx context.Context, q Querier, source string, limit int) ([]ListingIdentity, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const query = `
SELECT source, listing_id
FROM listings
WHERE is_enriched = 0 AND (? = '' OR source = ?)
ORDER BY created_at DESC, source, listing_id
LIMIT ?`

	rows, err := q.Query(ctx, query, source, source, limit)
	if err != nil {
		return nil, fmt.Errorf("query unenriched listings: %w", err)
	}
	defer rows.Close()

	var ids []ListingIdentity
	for rows.Next() {
		var id ListingIdentity
		if err := rows.Scan(&id.Source, &id.ListingID); err != nil {
			return nil, fmt.Errorf("scan unenriched listing row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unenriched listing rows: %w", err)
	}
	return ids, nil
}

// DuplicateFingerprints returns fingerprints shared by more than one stored
// listing, the cleanup engine's candidate buckets.
func DuplicateFingerprints(ctx context.Context, q Querier, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const query = `
SELECT entity_fingerprint
FROM listings
WHERE entity_fingerprint <> ''
GROUP BY entity_fingerprint
HAVING COUNT(*) > 1
ORDER BY entity_fingerprint
LIMIT ?`

	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query duplicate fingerprints: %w", err)
	}
	defer rows.Close()

	var fps []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan fingerprint row: %w", err)
		}
		fps = append(fps, fp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fingerprint rows: %w", err)
	}
	return fps, nil
}

// ListingsMissingFingerprint returns rows whose fingerprint was never
// computed, for backfill after fingerprint rule changes.
func ListingsMissingFingerprint(ctx context.Context, q Querier, limit int) ([]Listing, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	query := `SELECT` + listingColumns + `
FROM listings
WHERE entity_fingerprint = ''
ORDER BY source, listing_id
LIMIT ?`

	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query listings missing fingerprint: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

// UpdateListingFingerprint rewrites one listing's fingerprint.
func UpdateListingFingerprint(ctx context.Context, q Querier, source, listingID, fingerprint string) error {
	const query = `UPDATE listings SET entity_fingerprint = ? WHERE source = ? AND listing_id = ?`

	if _, err := q.Exec(ctx, query, fingerprint, source, listingID); err != nil {
		return fmt.Errorf("update listing fingerprint: %w", err)
	}
	return nil
}

// DeleteListing removes a listing row. Relation rows are migrated by the
// caller before deletion.
func DeleteListing(ctx context.Context, q Querier, source, listingID string) error {
	const query = `DELETE FROM listings WHERE source = ? AND listing_id = ?`

	if _, err := q.Exec(ctx, query, source, listingID); err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	return nil
}
