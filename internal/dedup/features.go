// Package dedup implements entity fingerprinting and pairwise similarity
// scoring for listings, the two signals the ingest gate and the cleanup
// engine share.
package dedup

import (
	"regexp"
	"strings"
)

var (
	// Latin/digit runs as whole tokens, CJK ideographs one per token.
	tokenPattern = regexp.MustCompile(`[0-9a-zA-Z]+|[\x{4e00}-\x{9fff}]`)

	keepPattern  = regexp.MustCompile(`[^0-9a-z\x{4e00}-\x{9fff}]+`)
	floorPattern = regexp.MustCompile(`[0-9]+樓`)
	digitPattern = regexp.MustCompile(`[0-9]+`)
)

const addressKeyMaxRunes = 24

// normalizeText canonicalizes free text for comparison: lowercase, the 台/臺
// variant unified, everything outside letters, digits and ideographs removed.
func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "台", "臺")
	return keepPattern.ReplaceAllString(s, "")
}

// coarseAddressKey reduces an address to a stable street-level key: floor
// suffixes and house numbers removed so "中山北路二段45號3樓" and
// "中山北路二段45號5樓" collapse together, capped to keep hash input bounded.
func coarseAddressKey(address string) string {
	key := normalizeText(address)
	key = floorPattern.ReplaceAllString(key, "")
	key = digitPattern.ReplaceAllString(key, "")
	runes := []rune(key)
	if len(runes) > addressKeyMaxRunes {
		runes = runes[:addressKeyMaxRunes]
	}
	return string(runes)
}

// tokenSet extracts the comparison token set from normalized-ish text.
func tokenSet(s string) map[string]struct{} {
	s = strings.ToLower(strings.ReplaceAll(s, "台", "臺"))
	matches := tokenPattern.FindAllString(s, -1)
	if len(matches) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(matches))
	for _, tok := range matches {
		set[tok] = struct{}{}
	}
	return set
}

// overlapCoefficient is |A∩B| / min(|A|, |B|); a token set fully contained
// in the other scores 1.
func overlapCoefficient(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	shared := 0
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}
