package dedup

import (
	"github.com/tsesc/tw-homedog/internal/db"
)

// ChooseCanonical picks the survivor of a duplicate group: the most complete
// listing, ties broken by most recent publish date, then lowest
// (source, listing_id). Returns -1 for an empty group.
func ChooseCanonical(group []db.Listing) int {
	best := -1
	for i := range group {
		if best == -1 || moreCanonical(&group[i], &group[best]) {
			best = i
		}
	}
	return best
}

func moreCanonical(a, b *db.Listing) bool {
	ca, cb := Completeness(a), Completeness(b)
	if ca != cb {
		return ca > cb
	}

	switch {
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return true
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return false
	case a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
		return a.PublishedAt.After(*b.PublishedAt)
	}

	return a.Identity().Less(b.Identity())
}

// Completeness counts how many descriptive fields a listing carries.
func Completeness(l *db.Listing) int {
	if l == nil {
		return 0
	}
	n := 0
	for _, present := range []bool{
		l.Title != nil,
		l.Address != nil,
		l.District != nil,
		l.Price != nil,
		l.SizePing != nil,
		l.Floor != nil,
		l.Room != nil,
		l.HouseAge != nil,
		l.CommunityName != nil,
		l.MainArea != nil,
		l.Direction != nil,
		l.UnitPrice != nil,
		l.KindName != nil,
	} {
		if present {
			n++
		}
	}
	return n
}
