package db

import (
	"context"
	"fmt"
	"strings"
)

// InsertAudit appends one dedup decision to the audit log.
func InsertAudit(ctx context.Context, q Querier, a *DedupAudit) error {
	if a == nil {
		return fmt.Errorf("audit record is nil")
	}
	if a.EventType == "" || a.Source == "" {
		return fmt.Errorf("event type and source are required")
	}

	candidates := a.CandidateIDs
	if strings.TrimSpace(candidates) == "" {
		candidates = "[]"
	}
	details := a.MatchDetails
	if strings.TrimSpace(details) == "" {
		details = "{}"
	}

	const query = `
INSERT INTO dedup_audit (
	event_type, source, listing_id, canonical_source, canonical_listing_id,
	candidate_ids, score, match_details, reason, entity_fingerprint, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := q.Exec(ctx, query,
		a.EventType, a.Source, a.ListingID, a.CanonicalSource,
		a.CanonicalListingID, candidates, a.Score, details, a.Reason,
		a.EntityFingerprint, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dedup audit: %w", err)
	}
	return nil
}

// RecentAudits lists the newest audit rows, optionally filtered by event type.
func RecentAudits(ctx context.Context, q Querier, eventType string, limit int) ([]DedupAudit, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const query = `
SELECT
	id, event_type, source, listing_id, canonical_source,
	canonical_listing_id, candidate_ids, score, match_details, reason,
	entity_fingerprint, created_at
FROM dedup_audit
WHERE (? = '' OR event_type = ?)
ORDER BY created_at DESC, id DESC
LIMIT ?`

	rows, err := q.Query(ctx, query, eventType, eventType, limit)
	if err != nil {
		return nil, fmt.Errorf("query dedup audits: %w", err)
	}
	defer rows.Close()

	var items []DedupAudit
	for rows.Next() {
		var a DedupAudit
		if err := rows.Scan(
			&a.ID, &a.EventType, &a.Source, &a.ListingID, &a.CanonicalSource,
			&a.CanonicalListingID, &a.CandidateIDs, &a.Score, &a.MatchDetails,
			&a.Reason, &a.EntityFingerprint, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dedup audit row: %w", err)
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dedup audit rows: %w", err)
	}
	return items, nil
}

// CountAudits returns audit row counts grouped by event type.
func CountAudits(ctx context.Context, q Querier) (map[string]int, error) {
	const query = `SELECT event_type, COUNT(*) FROM dedup_audit GROUP BY event_type`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var eventType string
		var n int
		if err := rows.Scan(&eventType, &n); err != nil {
			return nil, fmt.Errorf("scan audit count row: %w", err)
		}
		counts[eventType] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit count rows: %w", err)
	}
	return counts, nil
}
