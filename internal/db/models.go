package db

import (
	"time"
)

// Listing maps the listings table: one scraped rental unit from one source.
// Identity is (source, listing_id). entity_fingerprint groups rows believed
// to describe the same physical property across sources.
type Listing struct {
	ID                int64      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Source            string     `gorm:"column:source;type:text;not null;uniqueIndex:idx_listings_identity,priority:1" json:"source"`
	ListingID         string     `gorm:"column:listing_id;type:text;not null;uniqueIndex:idx_listings_identity,priority:2" json:"listing_id"`
	Title             *string    `gorm:"column:title;type:text" json:"title,omitempty"`
	Price             *int64     `gorm:"column:price;type:integer" json:"price,omitempty"`
	Address           *string    `gorm:"column:address;type:text" json:"address,omitempty"`
	District          *string    `gorm:"column:district;type:text" json:"district,omitempty"`
	SizePing          *float64   `gorm:"column:size_ping;type:real" json:"size_ping,omitempty"`
	Floor             *string    `gorm:"column:floor;type:text" json:"floor,omitempty"`
	URL               *string    `gorm:"column:url;type:text" json:"url,omitempty"`
	PublishedAt       *time.Time `gorm:"column:published_at" json:"published_at,omitempty"`
	RawHash           string     `gorm:"column:raw_hash;type:text;not null;index:idx_listings_raw_hash" json:"raw_hash"`
	HouseAge          *string    `gorm:"column:houseage;type:text" json:"houseage,omitempty"`
	UnitPrice         *string    `gorm:"column:unit_price;type:text" json:"unit_price,omitempty"`
	KindName          *string    `gorm:"column:kind_name;type:text" json:"kind_name,omitempty"`
	Room              *string    `gorm:"column:room;type:text" json:"room,omitempty"`
	RoomCount         *int       `gorm:"column:room_count;type:integer" json:"room_count,omitempty"`
	BathroomCount     *int       `gorm:"column:bathroom_count;type:integer" json:"bathroom_count,omitempty"`
	BuildYear         *int       `gorm:"column:build_year;type:integer" json:"build_year,omitempty"`
	Tags              string     `gorm:"column:tags;type:text;not null;default:'[]'" json:"tags"`
	ParkingDesc       *string    `gorm:"column:parking_desc;type:text" json:"parking_desc,omitempty"`
	PublicRatio       *string    `gorm:"column:public_ratio;type:text" json:"public_ratio,omitempty"`
	ManagePriceDesc   *string    `gorm:"column:manage_price_desc;type:text" json:"manage_price_desc,omitempty"`
	Fitment           *string    `gorm:"column:fitment;type:text" json:"fitment,omitempty"`
	ShapeName         *string    `gorm:"column:shape_name;type:text" json:"shape_name,omitempty"`
	CommunityName     *string    `gorm:"column:community_name;type:text" json:"community_name,omitempty"`
	MainArea          *float64   `gorm:"column:main_area;type:real" json:"main_area,omitempty"`
	Direction         *string    `gorm:"column:direction;type:text" json:"direction,omitempty"`
	EntityFingerprint string     `gorm:"column:entity_fingerprint;type:text;not null;default:'';index:idx_listings_fingerprint" json:"entity_fingerprint,omitempty"`
	IsEnriched        bool       `gorm:"column:is_enriched;not null;default:false" json:"is_enriched"`
	CreatedAt         time.Time  `gorm:"column:created_at;not null" json:"created_at"`
}

func (Listing) TableName() string { return "listings" }

// Identity returns the stable (source, listing_id) key.
func (l *Listing) Identity() ListingIdentity {
	return ListingIdentity{Source: l.Source, ListingID: l.ListingID}
}

// ListingIdentity is the (source, listing_id) pair shared by every relation
// table that references a listing.
type ListingIdentity struct {
	Source    string `json:"source"`
	ListingID string `json:"listing_id"`
}

func (id ListingIdentity) String() string {
	return id.Source + ":" + id.ListingID
}

// Less orders identities lexicographically by source, then listing_id.
func (id ListingIdentity) Less(other ListingIdentity) bool {
	if id.Source != other.Source {
		return id.Source < other.Source
	}
	return id.ListingID < other.ListingID
}

// ListingRead maps the listings_read table. A listing counts as unread when no
// row exists or the stored raw_hash differs from the listing's current one.
type ListingRead struct {
	Source    string    `gorm:"column:source;type:text;primaryKey" json:"source"`
	ListingID string    `gorm:"column:listing_id;type:text;primaryKey" json:"listing_id"`
	RawHash   *string   `gorm:"column:raw_hash;type:text" json:"raw_hash,omitempty"`
	ReadAt    time.Time `gorm:"column:read_at;not null" json:"read_at"`
}

func (ListingRead) TableName() string { return "listings_read" }

// Favorite maps the favorites table.
type Favorite struct {
	Source    string    `gorm:"column:source;type:text;primaryKey" json:"source"`
	ListingID string    `gorm:"column:listing_id;type:text;primaryKey" json:"listing_id"`
	AddedAt   time.Time `gorm:"column:added_at;not null" json:"added_at"`
}

func (Favorite) TableName() string { return "favorites" }

// NotificationSent maps the notifications_sent table: one row per listing per
// delivery channel once the notifier has surfaced it.
type NotificationSent struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Source     string    `gorm:"column:source;type:text;not null;uniqueIndex:idx_notifications_identity,priority:1" json:"source"`
	ListingID  string    `gorm:"column:listing_id;type:text;not null;uniqueIndex:idx_notifications_identity,priority:2" json:"listing_id"`
	Channel    string    `gorm:"column:channel;type:text;not null;default:'telegram';uniqueIndex:idx_notifications_identity,priority:3" json:"channel"`
	NotifiedAt time.Time `gorm:"column:notified_at;not null" json:"notified_at"`
}

func (NotificationSent) TableName() string { return "notifications_sent" }

// DedupAudit maps the dedup_audit table: an append-only log of every dedup
// decision, both ingest-time skips and cleanup-time merges. Rows are never
// updated or deleted.
type DedupAudit struct {
	ID                 int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EventType          string    `gorm:"column:event_type;type:text;not null;index:idx_dedup_audit_event" json:"event_type"`
	Source             string    `gorm:"column:source;type:text;not null" json:"source"`
	ListingID          *string   `gorm:"column:listing_id;type:text" json:"listing_id,omitempty"`
	CanonicalSource    *string   `gorm:"column:canonical_source;type:text" json:"canonical_source,omitempty"`
	CanonicalListingID *string   `gorm:"column:canonical_listing_id;type:text" json:"canonical_listing_id,omitempty"`
	CandidateIDs       string    `gorm:"column:candidate_ids;type:text;not null;default:'[]'" json:"candidate_ids"`
	Score              *float64  `gorm:"column:score;type:real" json:"score,omitempty"`
	MatchDetails       string    `gorm:"column:match_details;type:text;not null;default:'{}'" json:"match_details"`
	Reason             *string   `gorm:"column:reason;type:text" json:"reason,omitempty"`
	EntityFingerprint  *string   `gorm:"column:entity_fingerprint;type:text" json:"entity_fingerprint,omitempty"`
	CreatedAt          time.Time `gorm:"column:created_at;not null;index:idx_dedup_audit_created" json:"created_at"`
}

func (DedupAudit) TableName() string { return "dedup_audit" }

// Audit event types.
const (
	AuditEventIngestSkip   = "ingest_skip"
	AuditEventCleanupMerge = "cleanup_merge"
)

// ScrapeRun maps the scrape_runs table: one row per ingestion batch with the
// seen/added/skipped accounting.
type ScrapeRun struct {
	RunID        int64      `gorm:"column:run_id;primaryKey;autoIncrement" json:"run_id"`
	Source       string     `gorm:"column:source;type:text;not null" json:"source"`
	StartedAt    time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt   *time.Time `gorm:"column:finished_at" json:"finished_at,omitempty"`
	Status       string     `gorm:"column:status;type:text;not null;default:'running'" json:"status"`
	ItemsSeen    int        `gorm:"column:items_seen;not null;default:0" json:"items_seen"`
	ItemsAdded   int        `gorm:"column:items_added;not null;default:0" json:"items_added"`
	ItemsSkipped int        `gorm:"column:items_skipped;not null;default:0" json:"items_skipped"`
	ErrorMessage *string    `gorm:"column:error_message;type:text" json:"error_message,omitempty"`
}

func (ScrapeRun) TableName() string { return "scrape_runs" }

// Scrape run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

func autoMigrateModels() []any {
	return []any{
		&Listing{},
		&ListingRead{},
		&Favorite{},
		&NotificationSent{},
		&DedupAudit{},
		&ScrapeRun{},
	}
}
