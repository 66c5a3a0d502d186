package db

import (
	"context"
	"fmt"
	"time"
)

// IsNotified reports whether the listing was already surfaced on the channel.
func IsNotified(ctx context.Context, q Querier, source, listingID, channel string) (bool, error) {
	const query = `
SELECT 1 FROM notifications_sent
WHERE source = ? AND listing_id = ? AND channel = ?
LIMIT 1`

	var one int
	err := q.QueryRow(ctx, query, source, listingID, channel).Scan(&one)
	if err != nil {
		if IsNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("query notification: %w", err)
	}
	return true, nil
}

// RecordNotification marks a listing as surfaced on the channel. Idempotent.
func RecordNotification(ctx context.Context, q Querier, source, listingID, channel string, notifiedAt time.Time) error {
	if source == "" || listingID == "" || channel == "" {
		return fmt.Errorf("source, listing id and channel are required")
	}

	const query = `
INSERT INTO notifications_sent (source, listing_id, channel, notified_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (source, listing_id, channel) DO NOTHING`

	if _, err := q.Exec(ctx, query, source, listingID, channel, notifiedAt.UTC()); err != nil {
		return fmt.Errorf("record notification: %w", err)
	}
	return nil
}

// CountUnnotified returns how many listings were never surfaced on the
// channel.
func CountUnnotified(ctx context.Context, q Querier, channel string) (int, error) {
	const query = `
SELECT COUNT(*)
FROM listings l
LEFT JOIN notifications_sent n
	ON n.source = l.source AND n.listing_id = l.listing_id AND n.channel = ?
WHERE n.listing_id IS NULL`

	var n int
	if err := q.QueryRow(ctx, query, channel).Scan(&n); err != nil {
		return 0, fmt.Errorf("count unnotified listings: %w", err)
	}
	return n, nil
}

// MigrateNotifications moves notification marks from a duplicate onto its
// canonical listing. Existing canonical marks win.
func MigrateNotifications(ctx context.Context, q Querier, from, to ListingIdentity) error {
	const insert = `
INSERT INTO notifications_sent (source, listing_id, channel, notified_at)
SELECT ?, ?, channel, notified_at
FROM notifications_sent
WHERE source = ? AND listing_id = ?
ON CONFLICT (source, listing_id, channel) DO NOTHING`

	if _, err := q.Exec(ctx, insert, to.Source, to.ListingID, from.Source, from.ListingID); err != nil {
		return fmt.Errorf("migrate notifications: %w", err)
	}

	const del = `DELETE FROM notifications_sent WHERE source = ? AND listing_id = ?`
	if _, err := q.Exec(ctx, del, from.Source, from.ListingID); err != nil {
		return fmt.Errorf("delete migrated notifications: %w", err)
	}
	return nil
}
