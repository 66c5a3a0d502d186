package db

import (
	"context"
	"fmt"
	"time"
)

// AddFavorite marks a listing as a favorite. Returns false when the listing
// does not exist; re-adding an existing favorite keeps the original added_at.
func AddFavorite(ctx context.Context, q Querier, source, listingID string, addedAt time.Time) (bool, error) {
	if source == "" || listingID == "" {
		return false, fmt.Errorf("source and listing id are required")
	}

	exists, err := ListingExists(ctx, q, source, listingID)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	const query = `
INSERT INTO favorites (source, listing_id, added_at)
VALUES (?, ?, ?)
ON CONFLICT (source, listing_id) DO NOTHING`

	if _, err := q.Exec(ctx, query, source, listingID, addedAt.UTC()); err != nil {
		return false, fmt.Errorf("add favorite: %w", err)
	}
	return true, nil
}

// RemoveFavorite deletes a favorite mark. Returns false when none existed.
func RemoveFavorite(ctx context.Context, q Querier, source, listingID string) (bool, error) {
	if source == "" || listingID == "" {
		return false, fmt.Errorf("source and listing id are required")
	}

	const query = `DELETE FROM favorites WHERE source = ? AND listing_id = ?`

	tag, err := q.Exec(ctx, query, source, listingID)
	if err != nil {
		return false, fmt.Errorf("remove favorite: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// IsFavorite reports whether the listing carries a favorite mark.
func IsFavorite(ctx context.Context, q Querier, source, listingID string) (bool, error) {
	const query = `SELECT 1 FROM favorites WHERE source = ? AND listing_id = ? LIMIT 1`

	var one int
	err := q.QueryRow(ctx, query, source, listingID).Scan(&one)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("query favorite: %w", err)
	}
	return true, nil
}

// FavoriteListing is a favorite joined with its listing and read flag.
type FavoriteListing struct {
	Listing
	AddedAt time.Time `json:"added_at"`
	IsRead  bool      `json:"is_read"`
}

// ListFavorites returns favorites newest-added first with listing details and
// read state.
func ListFavorites(ctx context.Context, q Querier, limit int) ([]FavoriteListing, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	query := `
SELECT` + listingColumnsPrefixed("l") + `,
	f.added_at,
	CASE WHEN r.listing_id IS NOT NULL AND r.raw_hash = l.raw_hash THEN 1 ELSE 0 END AS is_read
FROM favorites f
JOIN listings l
	ON l.source = f.source AND l.listing_id = f.listing_id
LEFT JOIN listings_read r
	ON r.source = f.source AND r.listing_id = f.listing_id
ORDER BY f.added_at DESC, f.source, f.listing_id
LIMIT ?`

	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer rows.Close()

	var items []FavoriteListing
	for rows.Next() {
		var item FavoriteListing
		if err := rows.Scan(
			&item.ID, &item.Source, &item.ListingID, &item.Title, &item.Price,
			&item.Address, &item.District, &item.SizePing, &item.Floor,
			&item.URL, &item.PublishedAt, &item.RawHash, &item.HouseAge,
			&item.UnitPrice, &item.KindName, &item.Room, &item.RoomCount,
			&item.BathroomCount, &item.BuildYear, &item.Tags, &item.ParkingDesc,
			&item.PublicRatio, &item.ManagePriceDesc, &item.Fitment,
			&item.ShapeName, &item.CommunityName, &item.MainArea,
			&item.Direction, &item.EntityFingerprint, &item.IsEnriched,
			&item.CreatedAt, &item.AddedAt, &item.IsRead,
		); err != nil {
			return nil, fmt.Errorf("scan favorite row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate favorite rows: %w", err)
	}
	return items, nil
}

// MigrateFavorites moves favorite marks from a duplicate onto its canonical
// listing. An existing canonical favorite wins.
func MigrateFavorites(ctx context.Context, q Querier, from, to ListingIdentity) error {
	const insert = `
INSERT INTO favorites (source, listing_id, added_at)
SELECT ?, ?, added_at
FROM favorites
WHERE source = ? AND listing_id = ?
ON CONFLICT (source, listing_id) DO NOTHING`

	if _, err := q.Exec(ctx, insert, to.Source, to.ListingID, from.Source, from.ListingID); err != nil {
		return fmt.Errorf("migrate favorites: %w", err)
	}

	const del = `DELETE FROM favorites WHERE source = ? AND listing_id = ?`
	if _, err := q.Exec(ctx, del, from.Source, from.ListingID); err != nil {
		return fmt.Errorf("delete migrated favorite: %w", err)
	}
	return nil
}
