// Package cleanup finds and merges duplicate listings already in storage:
// rows admitted before enrichment filled in the fields that reveal them as
// the same property.
package cleanup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/dedup"
	"github.com/tsesc/tw-homedog/internal/globaltime"
)

// ErrAlreadyRunning is returned when a cleanup run is started while another
// is in flight.
var ErrAlreadyRunning = errors.New("cleanup already running")

// Group is one set of duplicates slated for merging. Details holds the
// canonical-vs-duplicate sub-score breakdown at the same index as Duplicates.
type Group struct {
	Fingerprint string               `json:"fingerprint"`
	Canonical   db.ListingIdentity   `json:"canonical"`
	Duplicates  []db.ListingIdentity `json:"duplicates"`
	Scores      []float64            `json:"scores"`
	Details     []dedup.ScoreResult  `json:"details"`
}

// Report summarizes one cleanup run.
type Report struct {
	BucketsScanned int                `json:"buckets_scanned"`
	Groups         []Group            `json:"groups"`
	Merged         int                `json:"merged"`
	Failed         []FailedGroup      `json:"failed,omitempty"`
	Integrity      db.IntegrityReport `json:"integrity"`
	DryRun         bool               `json:"dry_run"`
}

// FailedGroup records a group whose merge transaction failed; the run
// continues past it and a later run retries.
type FailedGroup struct {
	Fingerprint string `json:"fingerprint"`
	Error       string `json:"error"`
}

// Options bounds one cleanup run.
type Options struct {
	// BatchSize caps how many fingerprint buckets one run examines.
	BatchSize int
	// Apply performs the merges; false plans only.
	Apply bool
}

// Engine plans and applies duplicate merges. Only one run may be in flight
// per Engine.
type Engine struct {
	pool    *db.Pool
	logger  zerolog.Logger
	params  dedup.Params
	running atomic.Bool
}

func NewEngine(pool *db.Pool, logger zerolog.Logger, params dedup.Params) (*Engine, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dedup params: %w", err)
	}
	return &Engine{
		pool:   pool,
		logger: logger.With().Str("component", "cleanup").Logger(),
		params: params,
	}, nil
}

// Run scans fingerprint buckets for duplicate groups and, when opts.Apply is
// set, merges each group in its own transaction. A failed group is reported
// and skipped; the run carries on. After applying, relation tables are
// checked for orphans.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}

	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer e.running.Store(false)

	report := &Report{DryRun: !opts.Apply}

	fingerprints, err := db.DuplicateFingerprints(ctx, e.pool, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	report.BucketsScanned = len(fingerprints)

	for _, fp := range fingerprints {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		groups, err := e.planBucket(ctx, fp)
		if err != nil {
			e.logger.Error().Err(err).Str("fingerprint", fp).Msg("failed to plan bucket")
			report.Failed = append(report.Failed, FailedGroup{Fingerprint: fp, Error: err.Error()})
			continue
		}

		for _, group := range groups {
			report.Groups = append(report.Groups, group)
			if !opts.Apply {
				continue
			}
			if err := e.applyGroup(ctx, group); err != nil {
				e.logger.Error().Err(err).
					Str("fingerprint", group.Fingerprint).
					Str("canonical", group.Canonical.String()).
					Msg("merge failed, group skipped")
				report.Failed = append(report.Failed, FailedGroup{Fingerprint: group.Fingerprint, Error: err.Error()})
				continue
			}
			report.Merged++
		}
	}

	if opts.Apply {
		integrity, err := db.CheckIntegrity(ctx, e.pool)
		if err != nil {
			return report, err
		}
		report.Integrity = integrity
		if !integrity.OK() {
			e.logger.Error().
				Int("orphan_read_marks", integrity.OrphanReadMarks).
				Int("orphan_favorites", integrity.OrphanFavorites).
				Int("orphan_notifications", integrity.OrphanNotifications).
				Msg("integrity check found orphans after cleanup")
		}
	}

	e.logger.Info().
		Int("buckets", report.BucketsScanned).
		Int("groups", len(report.Groups)).
		Int("merged", report.Merged).
		Int("failed", len(report.Failed)).
		Bool("dry_run", report.DryRun).
		Msg("cleanup run finished")

	return report, nil
}

// planBucket scores each pair in the bucket and joins confirmed matches into
// groups. Bucket membership alone never merges anything.
func (e *Engine) planBucket(ctx context.Context, fingerprint string) ([]Group, error) {
	listings, err := db.ListingsByFingerprint(ctx, e.pool, fingerprint)
	if err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, nil
	}

	uf := newUnionFind(len(listings))
	for i := 0; i < len(listings); i++ {
		for j := i + 1; j < len(listings); j++ {
			res := dedup.Score(&listings[i], &listings[j], e.params)
			if dedup.IsDuplicate(res, e.params) {
				uf.union(i, j)
			}
		}
	}

	var groups []Group
	for _, members := range uf.components() {
		if len(members) < 2 {
			continue
		}

		group := []db.Listing{}
		for _, idx := range members {
			group = append(group, listings[idx])
		}

		canonicalIdx := dedup.ChooseCanonical(group)
		canonical := group[canonicalIdx]

		g := Group{Fingerprint: fingerprint, Canonical: canonical.Identity()}
		for memberPos, idx := range members {
			if memberPos == canonicalIdx {
				continue
			}
			g.Duplicates = append(g.Duplicates, listings[idx].Identity())
			res := dedup.Score(&canonical, &listings[idx], e.params)
			g.Scores = append(g.Scores, res.Score)
			g.Details = append(g.Details, res)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// applyGroup merges one duplicate group atomically: migrate read state,
// favorites and notification marks onto the canonical, audit each pair,
// delete the duplicates.
func (e *Engine) applyGroup(ctx context.Context, group Group) error {
	tx, err := e.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin merge transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	candidateIDs := make([]string, 0, len(group.Duplicates))
	for _, dup := range group.Duplicates {
		candidateIDs = append(candidateIDs, dup.String())
	}
	encodedCandidates, err := json.Marshal(candidateIDs)
	if err != nil {
		return fmt.Errorf("encode candidate ids: %w", err)
	}

	for i, dup := range group.Duplicates {
		if err := db.MigrateReadState(ctx, tx, dup, group.Canonical); err != nil {
			return err
		}
		if err := db.MigrateFavorites(ctx, tx, dup, group.Canonical); err != nil {
			return err
		}
		if err := db.MigrateNotifications(ctx, tx, dup, group.Canonical); err != nil {
			return err
		}
		if err := db.DeleteListing(ctx, tx, dup.Source, dup.ListingID); err != nil {
			return err
		}

		score := group.Scores[i]
		reason := "merged_into_canonical"
		var details string
		if i < len(group.Details) {
			if encoded, err := json.Marshal(group.Details[i]); err == nil {
				details = string(encoded)
			}
		}
		if err := db.InsertAudit(ctx, tx, &db.DedupAudit{
			EventType:          db.AuditEventCleanupMerge,
			Source:             dup.Source,
			ListingID:          &dup.ListingID,
			CanonicalSource:    &group.Canonical.Source,
			CanonicalListingID: &group.Canonical.ListingID,
			CandidateIDs:       string(encodedCandidates),
			Score:              &score,
			MatchDetails:       details,
			Reason:             &reason,
			EntityFingerprint:  &group.Fingerprint,
			CreatedAt:          globaltime.UTC(),
		}); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}

	e.logger.Info().
		Str("fingerprint", group.Fingerprint).
		Str("canonical", group.Canonical.String()).
		Int("duplicates", len(group.Duplicates)).
		Msg("duplicate group merged")

	return nil
}
