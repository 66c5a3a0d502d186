package dedup

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/tsesc/tw-homedog/internal/db"
)

// Fingerprint derives the entity fingerprint for a listing: a SHA-1 over the
// normalized district, a coarse street-level address key and the normalized
// community name. Listings lacking both an address key and a community name
// get an empty fingerprint and never bucket with anything.
func Fingerprint(l *db.Listing) string {
	if l == nil {
		return ""
	}

	district := normalizeText(deref(l.District))
	addrKey := coarseAddressKey(deref(l.Address))
	community := normalizeText(deref(l.CommunityName))

	if addrKey == "" && community == "" {
		return ""
	}

	parts := []string{district, addrKey}
	if community != "" {
		parts = append(parts, community)
	}

	sum := sha1.Sum([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
