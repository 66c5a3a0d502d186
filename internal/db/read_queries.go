package db

import (
	"context"
	"fmt"
	"time"
)

// UnreadListings returns every listing with no read mark or whose content
// hash changed since it was read, newest published first. Rows without a
// published date sort last.
func UnreadListings(ctx context.Context, q Querier) ([]Listing, error) {
	query := `
SELECT` + listingColumnsPrefixed("l") + `
FROM listings l
LEFT JOIN listings_read r
	ON r.source = l.source AND r.listing_id = l.listing_id
WHERE r.listing_id IS NULL OR r.raw_hash IS NULL OR r.raw_hash <> l.raw_hash
ORDER BY l.published_at IS NULL, l.published_at DESC, l.source, l.listing_id`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query unread listings: %w", err)
	}
	defer rows.Close()

	return scanListings(rows)
}

func listingColumnsPrefixed(alias string) string {
	return `
	` + alias + `.id, ` + alias + `.source, ` + alias + `.listing_id, ` + alias + `.title, ` + alias + `.price, ` + alias + `.address, ` + alias + `.district, ` + alias + `.size_ping, ` + alias + `.floor,
	` + alias + `.url, ` + alias + `.published_at, ` + alias + `.raw_hash, ` + alias + `.houseage, ` + alias + `.unit_price, ` + alias + `.kind_name, ` + alias + `.room,
	` + alias + `.room_count, ` + alias + `.bathroom_count, ` + alias + `.build_year, ` + alias + `.tags, ` + alias + `.parking_desc, ` + alias + `.public_ratio,
	` + alias + `.manage_price_desc, ` + alias + `.fitment, ` + alias + `.shape_name, ` + alias + `.community_name, ` + alias + `.main_area,
	` + alias + `.direction, ` + alias + `.entity_fingerprint, ` + alias + `.is_enriched, ` + alias + `.created_at`
}

// MarkListingRead records the listing as read at its current content hash.
// Re-marking after hash drift refreshes the stored hash. Returns false when
// the listing does not exist.
func MarkListingRead(ctx context.Context, q Querier, source, listingID string, readAt time.Time) (bool, error) {
	if source == "" || listingID == "" {
		return false, fmt.Errorf("source and listing id are required")
	}

	const query = `
INSERT INTO listings_read (source, listing_id, raw_hash, read_at)
SELECT source, listing_id, raw_hash, ?
FROM listings
WHERE source = ? AND listing_id = ?
ON CONFLICT (source, listing_id) DO UPDATE SET
	raw_hash = excluded.raw_hash,
	read_at = excluded.read_at`

	tag, err := q.Exec(ctx, query, readAt.UTC(), source, listingID)
	if err != nil {
		return false, fmt.Errorf("mark listing read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkListingsRead marks every identity read at its current content hash in
// one transaction. Identities without a stored listing are skipped, not
// errors. Returns how many listings were marked.
func MarkListingsRead(ctx context.Context, pool *Pool, ids []ListingIdentity, readAt time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	for _, id := range ids {
		if id.Source == "" || id.ListingID == "" {
			return 0, fmt.Errorf("source and listing id are required")
		}
	}

	tx, err := pool.BeginTx(ctx, TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin mark-read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	marked := 0
	for _, id := range ids {
		ok, err := MarkListingRead(ctx, tx, id.Source, id.ListingID, readAt)
		if err != nil {
			return 0, err
		}
		if ok {
			marked++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit mark-read: %w", err)
	}
	return marked, nil
}

// ListingWithReadState pairs a listing with its read flag for list output.
type ListingWithReadState struct {
	Listing
	IsRead bool `json:"is_read"`
}

// ListingsWithReadState pages listings newest first, flagging each as read or
// unread under the same hash-drift rule as UnreadListings.
func ListingsWithReadState(ctx context.Context, q Querier, source string, limit, offset int) ([]ListingWithReadState, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must be >= 0")
	}

	query := `
SELECT` + listingColumnsPrefixed("l") + `,
	CASE WHEN r.listing_id IS NOT NULL AND r.raw_hash = l.raw_hash THEN 1 ELSE 0 END AS is_read
FROM listings l
LEFT JOIN listings_read r
	ON r.source = l.source AND r.listing_id = l.listing_id
WHERE (? = '' OR l.source = ?)
ORDER BY l.published_at IS NULL, l.published_at DESC, l.source, l.listing_id
LIMIT ? OFFSET ?`

	rows, err := q.Query(ctx, query, source, source, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query listings with read state: %w", err)
	}
	defer rows.Close()

	var items []ListingWithReadState
	for rows.Next() {
		var item ListingWithReadState
		if err := rows.Scan(
			&item.ID, &item.Source, &item.ListingID, &item.Title, &item.Price,
			&item.Address, &item.District, &item.SizePing, &item.Floor,
			&item.URL, &item.PublishedAt, &item.RawHash, &item.HouseAge,
			&item.UnitPrice, &item.KindName, &item.Room, &item.RoomCount,
			&item.BathroomCount, &item.BuildYear, &item.Tags, &item.ParkingDesc,
			&item.PublicRatio, &item.ManagePriceDesc, &item.Fitment,
			&item.ShapeName, &item.CommunityName, &item.MainArea,
			&item.Direction, &item.EntityFingerprint, &item.IsEnriched,
			&item.CreatedAt, &item.IsRead,
		); err != nil {
			return nil, fmt.Errorf("scan listing read-state row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listing read-state rows: %w", err)
	}
	return items, nil
}

// ReadStateCounts is the unread/total accounting shown by stats output.
type ReadStateCounts struct {
	Total  int `json:"total"`
	Unread int `json:"unread"`
}

// CountReadState returns total and unread listing counts, optionally scoped
// to one source.
func CountReadState(ctx context.Context, q Querier, source string) (ReadStateCounts, error) {
	const query = `
SELECT
	COUNT(*),
	SUM(CASE WHEN r.listing_id IS NULL OR r.raw_hash IS NULL OR r.raw_hash <> l.raw_hash THEN 1 ELSE 0 END)
FROM listings l
LEFT JOIN listings_read r
	ON r.source = l.source AND r.listing_id = l.listing_id
WHERE (? = '' OR l.source = ?)`

	var counts ReadStateCounts
	var unread *int
	if err := q.QueryRow(ctx, query, source, source).Scan(&counts.Total, &unread); err != nil {
		return ReadStateCounts{}, fmt.Errorf("count read state: %w", err)
	}
	if unread != nil {
		counts.Unread = *unread
	}
	return counts, nil
}

// MigrateReadState moves read marks from a duplicate onto its canonical
// listing. An existing canonical mark wins; the duplicate's row is removed
// either way.
func MigrateReadState(ctx context.Context, q Querier, from, to ListingIdentity) error {
	const insert = `
INSERT INTO listings_read (source, listing_id, raw_hash, read_at)
SELECT ?, ?, raw_hash, read_at
FROM listings_read
WHERE source = ? AND listing_id = ?
ON CONFLICT (source, listing_id) DO NOTHING`

	if _, err := q.Exec(ctx, insert, to.Source, to.ListingID, from.Source, from.ListingID); err != nil {
		return fmt.Errorf("migrate read state: %w", err)
	}

	const del = `DELETE FROM listings_read WHERE source = ? AND listing_id = ?`
	if _, err := q.Exec(ctx, del, from.Source, from.ListingID); err != nil {
		return fmt.Errorf("delete migrated read state: %w", err)
	}
	return nil
}
