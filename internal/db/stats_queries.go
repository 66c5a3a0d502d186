package db

import (
	"context"
	"fmt"
)

// SourceCounts is per-source listing accounting for stats output.
type SourceCounts struct {
	Source string `json:"source"`
	Total  int    `json:"total"`
	Unread int    `json:"unread"`
}

// Stats is the overview the stats command and the API health page render.
type Stats struct {
	Listings      ReadStateCounts `json:"listings"`
	BySource      []SourceCounts  `json:"by_source"`
	Favorites     int             `json:"favorites"`
	AuditCounts   map[string]int  `json:"audit_counts"`
	EnrichedCount int             `json:"enriched_count"`
}

// CollectStats gathers the overview counters in one pass.
func CollectStats(ctx context.Context, q Querier) (Stats, error) {
	var stats Stats

	counts, err := CountReadState(ctx, q, "")
	if err != nil {
		return Stats{}, err
	}
	stats.Listings = counts

	const bySource = `
SELECT
	l.source,
	COUNT(*),
	SUM(CASE WHEN r.listing_id IS NULL OR r.raw_hash IS NULL OR r.raw_hash <> l.raw_hash THEN 1 ELSE 0 END)
FROM listings l
LEFT JOIN listings_read r
	ON r.source = l.source AND r.listing_id = l.listing_id
GROUP BY l.source
ORDER BY l.source`

	rows, err := q.Query(ctx, bySource)
	if err != nil {
		return Stats{}, fmt.Errorf("query per-source stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sc SourceCounts
		var unread *int
		if err := rows.Scan(&sc.Source, &sc.Total, &unread); err != nil {
			return Stats{}, fmt.Errorf("scan per-source stats row: %w", err)
		}
		if unread != nil {
			sc.Unread = *unread
		}
		stats.BySource = append(stats.BySource, sc)
	}
	if err := rows.Err(); err != nil {
		return Stats{}, fmt.Errorf("iterate per-source stats rows: %w", err)
	}

	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM favorites`).Scan(&stats.Favorites); err != nil {
		return Stats{}, fmt.Errorf("count favorites: %w", err)
	}
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM listings WHERE is_enriched = 1`).Scan(&stats.EnrichedCount); err != nil {
		return Stats{}, fmt.Errorf("count enriched listings: %w", err)
	}

	auditCounts, err := CountAudits(ctx, q)
	if err != nil {
		return Stats{}, err
	}
	stats.AuditCounts = auditCounts

	return stats, nil
}
