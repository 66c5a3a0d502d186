// Package ingest admits normalized listings into storage, deduplicating
// against the current batch and persisted state.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tsesc/tw-homedog/internal/db"
	"github.com/tsesc/tw-homedog/internal/dedup"
	"github.com/tsesc/tw-homedog/internal/globaltime"
)

// Skip reasons recorded in the audit log. Batch-scoped skips carry the
// "batch:" prefix.
const (
	ReasonDuplicateListingID = "duplicate_listing_id"
	ReasonDuplicateRawHash   = "duplicate_raw_hash"
	ReasonDuplicateEntity    = "duplicate_entity"
	batchReasonPrefix        = "batch:"
)

// Decision is the gate's verdict for one candidate listing.
type Decision struct {
	Admitted  bool                `json:"admitted"`
	Reason    string              `json:"reason,omitempty"`
	Score     *float64            `json:"score,omitempty"`
	Canonical *db.ListingIdentity `json:"canonical,omitempty"`
}

// Gate decides whether incoming listings enter storage. Safe for concurrent
// use; writes for the same fingerprint serialize on a keyed lock.
type Gate struct {
	pool   *db.Pool
	logger zerolog.Logger
	params dedup.Params

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewGate(pool *db.Pool, logger zerolog.Logger, params dedup.Params) (*Gate, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dedup params: %w", err)
	}
	return &Gate{
		pool:   pool,
		logger: logger.With().Str("component", "ingest_gate").Logger(),
		params: params,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Batch tracks what one ingestion batch has already admitted so later
// candidates in the same batch dedup against earlier ones before anything is
// persisted. One Batch per worker; not safe for concurrent use.
type Batch struct {
	identities    map[db.ListingIdentity]struct{}
	rawHashes     map[string]db.ListingIdentity
	byFingerprint map[string][]db.Listing
}

func NewBatch() *Batch {
	return &Batch{
		identities:    make(map[db.ListingIdentity]struct{}),
		rawHashes:     make(map[string]db.ListingIdentity),
		byFingerprint: make(map[string][]db.Listing),
	}
}

func (b *Batch) remember(l *db.Listing) {
	b.identities[l.Identity()] = struct{}{}
	if l.RawHash != "" {
		if _, ok := b.rawHashes[l.RawHash]; !ok {
			b.rawHashes[l.RawHash] = l.Identity()
		}
	}
	if l.EntityFingerprint != "" {
		b.byFingerprint[l.EntityFingerprint] = append(b.byFingerprint[l.EntityFingerprint], *l)
	}
}

// Admit runs the dedup ladder for one candidate: batch identity, batch hash,
// batch entity, then persisted identity, hash and entity inside a
// transaction. Admitted listings are inserted; every skip is audited.
// Re-running the same batch against the same state yields the same decisions.
func (g *Gate) Admit(ctx context.Context, l *db.Listing, batch *Batch) (Decision, error) {
	if l == nil {
		return Decision{}, fmt.Errorf("listing is nil")
	}
	if batch == nil {
		return Decision{}, fmt.Errorf("batch is nil")
	}
	if l.Source == "" || l.ListingID == "" {
		return Decision{}, fmt.Errorf("source and listing id are required")
	}

	if l.EntityFingerprint == "" {
		l.EntityFingerprint = dedup.Fingerprint(l)
	}

	if decision, skipped := g.checkBatch(ctx, l, batch); skipped {
		return decision, nil
	}

	decision, err := g.admitPersisted(ctx, l)
	if err != nil {
		return Decision{}, err
	}
	if decision.Admitted {
		batch.remember(l)
	}
	return decision, nil
}

func (g *Gate) checkBatch(ctx context.Context, l *db.Listing, batch *Batch) (Decision, bool) {
	if _, ok := batch.identities[l.Identity()]; ok {
		return g.skip(ctx, l, batchReasonPrefix+ReasonDuplicateListingID, nil, nil, ""), true
	}

	if l.RawHash != "" {
		if canonical, ok := batch.rawHashes[l.RawHash]; ok {
			return g.skip(ctx, l, batchReasonPrefix+ReasonDuplicateRawHash, nil, &canonical, ""), true
		}
	}

	if l.EntityFingerprint != "" {
		for i := range batch.byFingerprint[l.EntityFingerprint] {
			candidate := &batch.byFingerprint[l.EntityFingerprint][i]
			res := dedup.Score(l, candidate, g.params)
			if dedup.IsDuplicate(res, g.params) {
				canonical := candidate.Identity()
				return g.skip(ctx, l, batchReasonPrefix+ReasonDuplicateEntity, &res.Score, &canonical, encodeScoreDetails(res)), true
			}
		}
	}

	return Decision{}, false
}

// admitPersisted holds the fingerprint lock across the check-then-insert so
// two workers carrying the same entity cannot both pass the entity check.
func (g *Gate) admitPersisted(ctx context.Context, l *db.Listing) (Decision, error) {
	key := l.EntityFingerprint
	if key == "" {
		key = l.Identity().String()
	}
	unlock := g.lockKey(key)
	defer unlock()

	tx, err := g.pool.BeginTx(ctx, db.TxOptions{})
	if err != nil {
		return Decision{}, fmt.Errorf("begin admit transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	exists, err := db.ListingExists(ctx, tx, l.Source, l.ListingID)
	if err != nil {
		return Decision{}, err
	}
	if exists {
		decision := g.skipInTx(ctx, tx, l, ReasonDuplicateListingID, nil, nil, "")
		if err := tx.Commit(ctx); err != nil {
			return Decision{}, fmt.Errorf("commit skip: %w", err)
		}
		return decision, nil
	}

	if l.RawHash != "" {
		canonical, err := db.FindListingByRawHash(ctx, tx, l.RawHash)
		if err != nil && !db.IsNoRows(err) {
			return Decision{}, err
		}
		if err == nil {
			decision := g.skipInTx(ctx, tx, l, ReasonDuplicateRawHash, nil, &canonical, "")
			if err := tx.Commit(ctx); err != nil {
				return Decision{}, fmt.Errorf("commit skip: %w", err)
			}
			return decision, nil
		}
	}

	if l.EntityFingerprint != "" {
		candidates, err := db.ListingsByFingerprint(ctx, tx, l.EntityFingerprint)
		if err != nil {
			// Fail open: an unreadable candidate set must not drop the
			// incoming listing.
			g.logger.Warn().Err(err).
				Str("source", l.Source).
				Str("listing_id", l.ListingID).
				Msg("entity candidate lookup failed, admitting listing")
		}
		for i := range candidates {
			res := dedup.Score(l, &candidates[i], g.params)
			if dedup.IsDuplicate(res, g.params) {
				canonical := candidates[i].Identity()
				decision := g.skipInTx(ctx, tx, l, ReasonDuplicateEntity, &res.Score, &canonical, encodeScoreDetails(res))
				if err := tx.Commit(ctx); err != nil {
					return Decision{}, fmt.Errorf("commit skip: %w", err)
				}
				return decision, nil
			}
		}
	}

	if err := db.InsertListing(ctx, tx, l); err != nil {
		return Decision{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Decision{}, fmt.Errorf("commit admit: %w", err)
	}

	g.logger.Debug().
		Str("source", l.Source).
		Str("listing_id", l.ListingID).
		Str("fingerprint", l.EntityFingerprint).
		Msg("listing admitted")

	return Decision{Admitted: true}, nil
}

// encodeScoreDetails serializes the sub-score breakdown for the audit row.
func encodeScoreDetails(res dedup.ScoreResult) string {
	encoded, err := json.Marshal(res)
	if err != nil {
		return ""
	}
	return string(encoded)
}

// skip records a batch-level skip outside any transaction.
func (g *Gate) skip(ctx context.Context, l *db.Listing, reason string, score *float64, canonical *db.ListingIdentity, matchDetails string) Decision {
	return g.skipInTx(ctx, g.pool, l, reason, score, canonical, matchDetails)
}

func (g *Gate) skipInTx(ctx context.Context, q db.Querier, l *db.Listing, reason string, score *float64, canonical *db.ListingIdentity, matchDetails string) Decision {
	decision := Decision{Reason: reason, Score: score, Canonical: canonical}

	audit := &db.DedupAudit{
		EventType:    db.AuditEventIngestSkip,
		Source:       l.Source,
		ListingID:    &l.ListingID,
		Reason:       &reason,
		Score:        score,
		MatchDetails: matchDetails,
		CreatedAt:    globaltime.UTC(),
	}
	if l.EntityFingerprint != "" {
		audit.EntityFingerprint = &l.EntityFingerprint
	}
	if canonical != nil {
		audit.CanonicalSource = &canonical.Source
		audit.CanonicalListingID = &canonical.ListingID
		if encoded, err := json.Marshal([]string{canonical.String()}); err == nil {
			audit.CandidateIDs = string(encoded)
		}
	}

	if err := db.InsertAudit(ctx, q, audit); err != nil {
		g.logger.Error().Err(err).
			Str("source", l.Source).
			Str("listing_id", l.ListingID).
			Str("reason", reason).
			Msg("failed to audit ingest skip")
	}

	g.logger.Debug().
		Str("source", l.Source).
		Str("listing_id", l.ListingID).
		Str("reason", reason).
		Msg("listing skipped")

	return decision
}

// lockKey serializes writers on the same key and returns the unlock func.
func (g *Gate) lockKey(key string) func() {
	g.mu.Lock()
	lock, ok := g.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		g.locks[key] = lock
	}
	g.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
