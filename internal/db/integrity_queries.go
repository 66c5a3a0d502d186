package db

import (
	"context"
	"fmt"
)

// IntegrityReport counts relation rows pointing at listings that no longer
// exist. All counts are zero after a clean merge run.
type IntegrityReport struct {
	OrphanReadMarks     int `json:"orphan_read_marks"`
	OrphanFavorites     int `json:"orphan_favorites"`
	OrphanNotifications int `json:"orphan_notifications"`
}

// OK reports whether the relation tables are free of orphans.
func (r IntegrityReport) OK() bool {
	return r.OrphanReadMarks == 0 && r.OrphanFavorites == 0 && r.OrphanNotifications == 0
}

// CheckIntegrity scans the relation tables for rows whose listing is gone.
func CheckIntegrity(ctx context.Context, q Querier) (IntegrityReport, error) {
	var report IntegrityReport

	checks := []struct {
		name  string
		query string
		dest  *int
	}{
		{
			name: "read marks",
			query: `
SELECT COUNT(*)
FROM listings_read r
LEFT JOIN listings l ON l.source = r.source AND l.listing_id = r.listing_id
WHERE l.id IS NULL`,
			dest: &report.OrphanReadMarks,
		},
		{
			name: "favorites",
			query: `
SELECT COUNT(*)
FROM favorites f
LEFT JOIN listings l ON l.source = f.source AND l.listing_id = f.listing_id
WHERE l.id IS NULL`,
			dest: &report.OrphanFavorites,
		},
		{
			name: "notifications",
			query: `
SELECT COUNT(*)
FROM notifications_sent n
LEFT JOIN listings l ON l.source = n.source AND l.listing_id = n.listing_id
WHERE l.id IS NULL`,
			dest: &report.OrphanNotifications,
		},
	}

	for _, check := range checks {
		if err := q.QueryRow(ctx, check.query).Scan(check.dest); err != nil {
			return IntegrityReport{}, fmt.Errorf("count orphan %s: %w", check.name, err)
		}
	}
	return report, nil
}
