package dedup

import (
	"fmt"
	"math"
	"strings"

	"github.com/tsesc/tw-homedog/internal/db"
)

// Sub-score weights. Missing sub-scores are excluded and the remaining
// weights renormalized, so two listings are always comparable on whatever
// signals both carry. Mismatched fingerprints are not weighted in either;
// they discount the renormalized score instead, keeping the mismatch from
// deciding a pair whose other signals agree strongly.
const (
	weightFingerprint = 0.40
	weightText        = 0.25
	weightPrice       = 0.20
	weightSize        = 0.15

	// fingerprintMismatchPenalty is the discount applied when both sides
	// carry a fingerprint and they disagree. With every other signal at 1.0
	// the score still clears the default threshold.
	fingerprintMismatchPenalty = 0.90
)

// Params tunes duplicate detection.
type Params struct {
	Threshold      float64
	PriceTolerance float64
	SizeTolerance  float64
}

// DefaultParams returns the tuned production parameters.
func DefaultParams() Params {
	return Params{
		Threshold:      0.82,
		PriceTolerance: 0.05,
		SizeTolerance:  0.08,
	}
}

func (p Params) Validate() error {
	if p.Threshold <= 0 || p.Threshold > 1 {
		return fmt.Errorf("threshold must be in (0, 1]")
	}
	if p.PriceTolerance < 0 || p.PriceTolerance >= 1 {
		return fmt.Errorf("price tolerance must be in [0, 1)")
	}
	if p.SizeTolerance < 0 || p.SizeTolerance >= 1 {
		return fmt.Errorf("size tolerance must be in [0, 1)")
	}
	return nil
}

// ScoreResult is the composite similarity of one listing pair. Nil sub-score
// fields mean the signal was missing on at least one side and excluded.
type ScoreResult struct {
	Score          float64  `json:"score"`
	Fingerprint    *float64 `json:"fingerprint,omitempty"`
	TextOverlap    *float64 `json:"text_overlap,omitempty"`
	PriceCloseness *float64 `json:"price_closeness,omitempty"`
	SizeCloseness  *float64 `json:"size_closeness,omitempty"`
}

// Components names the sub-scores that contributed, for audit reasons.
func (r ScoreResult) Components() string {
	var parts []string
	if r.Fingerprint != nil {
		parts = append(parts, "fingerprint")
	}
	if r.TextOverlap != nil {
		parts = append(parts, "text")
	}
	if r.PriceCloseness != nil {
		parts = append(parts, "price")
	}
	if r.SizeCloseness != nil {
		parts = append(parts, "size")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Score computes the composite similarity of two listings in [0, 1]. It is
// symmetric and deterministic; with no shared signals the score is 0.
func Score(a, b *db.Listing, p Params) ScoreResult {
	var res ScoreResult
	if a == nil || b == nil {
		return res
	}

	var weighted, totalWeight float64
	add := func(value, weight float64, dest **float64) {
		v := value
		*dest = &v
		weighted += value * weight
		totalWeight += weight
	}

	mismatch := false
	if a.EntityFingerprint != "" && b.EntityFingerprint != "" {
		if a.EntityFingerprint == b.EntityFingerprint {
			add(1, weightFingerprint, &res.Fingerprint)
		} else {
			zero := 0.0
			res.Fingerprint = &zero
			mismatch = true
		}
	}

	tokensA := tokenSet(deref(a.Title) + " " + deref(a.Address))
	tokensB := tokenSet(deref(b.Title) + " " + deref(b.Address))
	if len(tokensA) > 0 && len(tokensB) > 0 {
		add(overlapCoefficient(tokensA, tokensB), weightText, &res.TextOverlap)
	}

	if a.Price != nil && b.Price != nil && *a.Price > 0 && *b.Price > 0 {
		add(closeness(float64(*a.Price), float64(*b.Price), p.PriceTolerance), weightPrice, &res.PriceCloseness)
	}

	if a.SizePing != nil && b.SizePing != nil && *a.SizePing > 0 && *b.SizePing > 0 {
		add(closeness(*a.SizePing, *b.SizePing, p.SizeTolerance), weightSize, &res.SizeCloseness)
	}

	if totalWeight == 0 {
		return res
	}

	score := weighted / totalWeight
	if mismatch {
		score *= fingerprintMismatchPenalty
	}
	res.Score = round4(score)
	return res
}

// IsDuplicate applies the threshold, inclusive.
func IsDuplicate(r ScoreResult, p Params) bool {
	return r.Score >= p.Threshold
}

// closeness maps a relative gap to [0, 1]: 1-gap inside the tolerance, 0
// beyond it.
func closeness(a, b, tolerance float64) float64 {
	gap := math.Abs(a-b) / math.Max(a, b)
	if gap > tolerance {
		return 0
	}
	return 1 - gap
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
