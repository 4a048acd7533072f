package loyalty

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIER TABLE
// =============================================================================

// Unbounded is the MaxPoints used for an open-ended top tier.
const Unbounded int64 = math.MaxInt64

// Tier is one level of a program's tier table.
type Tier struct {
	Name               string
	MinPoints          int64
	MaxPoints          int64
	DiscountPercentage decimal.Decimal
	Benefits           []string
}

// Contains reports whether points fall within [MinPoints, MaxPoints].
func (t Tier) Contains(points int64) bool {
	return t.MinPoints <= points && points <= t.MaxPoints
}

var hundred = decimal.NewFromInt(100)

// ValidateTiers checks a tier table and returns every violation found.
//
// Rules, in order: non-empty, unique names, per-tier bounds, then overlap
// between consecutive tiers sorted by MinPoints. A tier starting on the
// previous tier's MaxPoints is an overlap; gaps are allowed.
func ValidateTiers(tiers []Tier) error {
	violations := tierViolations(tiers)
	if len(violations) > 0 {
		return &ConfigError{Violations: violations}
	}
	return nil
}

func tierViolations(tiers []Tier) []Violation {
	if len(tiers) == 0 {
		return []Violation{{Field: "tiers", Message: "at least one tier is required"}}
	}

	var out []Violation
	seen := make(map[string]bool, len(tiers))
	for _, t := range tiers {
		if t.Name != "" && seen[t.Name] {
			out = append(out, Violation{Field: "tiers", Message: fmt.Sprintf("duplicate tier name %q", t.Name)})
		}
		seen[t.Name] = true
	}

	for i, t := range tiers {
		field := fmt.Sprintf("tiers[%d]", i)
		if t.Name == "" {
			out = append(out, Violation{Field: field + ".name", Message: "name is required"})
		}
		if t.MinPoints < 0 {
			out = append(out, Violation{Field: field + ".min_points", Message: "must be >= 0"})
		}
		if t.MaxPoints <= t.MinPoints {
			out = append(out, Violation{Field: field + ".max_points", Message: "must be greater than min_points"})
		}
		if t.DiscountPercentage.IsNegative() || t.DiscountPercentage.GreaterThan(hundred) {
			out = append(out, Violation{Field: field + ".discount_percentage", Message: "must be between 0 and 100"})
		}
	}

	sorted := sortedAscending(tiers)
	for i := 1; i < len(sorted); i++ {
		prev, next := sorted[i-1], sorted[i]
		if next.MinPoints <= prev.MaxPoints {
			out = append(out, Violation{
				Field:   "tiers",
				Message: fmt.Sprintf("tier %q (min %d) overlaps tier %q (max %d)", next.Name, next.MinPoints, prev.Name, prev.MaxPoints),
			})
		}
	}
	return out
}

func sortedAscending(tiers []Tier) []Tier {
	out := make([]Tier, len(tiers))
	copy(out, tiers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinPoints < out[j].MinPoints })
	return out
}

// FindTier returns the tier with the given name.
func FindTier(tiers []Tier, name string) (Tier, bool) {
	for _, t := range tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// =============================================================================
// TIER RESOLUTION
// =============================================================================

// ResolveTier returns the highest tier whose range contains points. When no
// range matches (a gap in the table) the lowest tier applies. An empty table
// yields the zero Tier.
func ResolveTier(points int64, tiers []Tier) Tier {
	if len(tiers) == 0 {
		return Tier{}
	}
	sorted := sortedAscending(tiers)
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Contains(points) {
			return sorted[i]
		}
	}
	return resolveFallback(sorted)
}

// resolveFallback picks the lowest tier for points outside every range.
func resolveFallback(sorted []Tier) Tier {
	return sorted[0]
}

// TierProgress describes how far a member is from the next tier.
type TierProgress struct {
	PointsToNextTier   int64
	NextTierName       *string
	ProgressPercentage float64
}

// Progress computes the progress from the current tier towards the next.
// An unknown current tier name is resolved from points first.
func Progress(points int64, tiers []Tier, currentTierName string) TierProgress {
	if len(tiers) == 0 {
		return TierProgress{ProgressPercentage: 100}
	}
	current, ok := FindTier(tiers, currentTierName)
	if !ok {
		current = ResolveTier(points, tiers)
	}

	sorted := sortedAscending(tiers)
	idx := 0
	for i, t := range sorted {
		if t.Name == current.Name {
			idx = i
			break
		}
	}
	if idx == len(sorted)-1 {
		return TierProgress{ProgressPercentage: 100}
	}

	next := sorted[idx+1]
	name := next.Name
	toNext := next.MinPoints - points
	if toNext < 0 {
		toNext = 0
	}

	span := float64(next.MinPoints - current.MinPoints)
	pct := 100.0
	if span > 0 {
		pct = float64(points-current.MinPoints) / span * 100
	}
	pct = math.Max(0, math.Min(100, pct))

	return TierProgress{
		PointsToNextTier:   toNext,
		NextTierName:       &name,
		ProgressPercentage: math.Round(pct*10) / 10,
	}
}

// TierChange is the classification of a move between two tiers.
type TierChange struct {
	From     string
	To       string
	Changed  bool
	Upgraded bool
}

// ClassifyChange compares two tier names within a table. A move is an upgrade
// when the new tier starts above the old one. An old tier missing from the
// table (replaced table) is treated as starting at zero.
func ClassifyChange(from, to string, tiers []Tier) TierChange {
	c := TierChange{From: from, To: to, Changed: from != to}
	if !c.Changed {
		return c
	}
	oldTier, _ := FindTier(tiers, from)
	newTier, _ := FindTier(tiers, to)
	c.Upgraded = newTier.MinPoints > oldTier.MinPoints
	return c
}
