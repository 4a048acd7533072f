package loyalty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PROGRAM CONFIG - Earning, redemption and tier rules per (hotel, channel)
// =============================================================================

// ProgramKey identifies a program. An empty Channel is the hotel-wide program.
type ProgramKey struct {
	HotelID string
	Channel string
}

func (k ProgramKey) String() string {
	if k.Channel == "" {
		return k.HotelID
	}
	return k.HotelID + "/" + k.Channel
}

// RedemptionRule controls how points convert back to money.
type RedemptionRule struct {
	// PointsPerCurrencyUnit is the points-to-money ratio: 100 means 100 points = 1.00.
	PointsPerCurrencyUnit decimal.Decimal
	Minimum               int64
	Maximum               *int64 // nil = unlimited
}

// ProgramConfig is the rule set of one loyalty program.
type ProgramConfig struct {
	HotelID string
	Channel string

	// HotelGroupID pools points across every hotel of the group when set.
	HotelGroupID string

	PointsPerCurrencyUnit  decimal.Decimal
	PointsPerNight         decimal.Decimal
	ServiceTypeMultipliers map[string]decimal.Decimal
	Redemption             RedemptionRule
	ExpirationMonths       int
	IsActive               bool
	Tiers                  []Tier

	Version   int64
	UpdatedAt time.Time
}

// Key returns the program key.
func (c ProgramConfig) Key() ProgramKey {
	return ProgramKey{HotelID: c.HotelID, Channel: c.Channel}
}

// Scope is the ledger scope of the program's members: the group when pooled,
// otherwise the hotel.
func (c ProgramConfig) Scope() string {
	if c.HotelGroupID != "" {
		return c.HotelGroupID
	}
	return c.HotelID
}

// MemberKey returns the ledger key of a guest under this program.
func (c ProgramConfig) MemberKey(guestID string) MemberKey {
	return MemberKey{GuestID: guestID, Scope: c.Scope(), Channel: c.Channel}
}

// Multiplier returns the earning multiplier for a service type, 1.0 when unset.
func (c ProgramConfig) Multiplier(serviceType string) decimal.Decimal {
	if m, ok := c.ServiceTypeMultipliers[serviceType]; ok {
		return m
	}
	return decimal.NewFromInt(1)
}

// PointsForSpend computes floor(amount * pointsPerCurrencyUnit * multiplier),
// never negative.
func (c ProgramConfig) PointsForSpend(amount decimal.Decimal, serviceType string) int64 {
	points := amount.Mul(c.PointsPerCurrencyUnit).Mul(c.Multiplier(serviceType)).Floor()
	if points.IsNegative() {
		return 0
	}
	return points.IntPart()
}

// PointsForNights computes floor(nights * pointsPerNight), never negative.
func (c ProgramConfig) PointsForNights(nights int) int64 {
	points := decimal.NewFromInt(int64(nights)).Mul(c.PointsPerNight).Floor()
	if points.IsNegative() {
		return 0
	}
	return points.IntPart()
}

// MonetaryValue converts points to money at the redemption ratio, rounded to cents.
func (c ProgramConfig) MonetaryValue(points int64) decimal.Decimal {
	if !c.Redemption.PointsPerCurrencyUnit.IsPositive() {
		return decimal.Zero
	}
	return decimal.NewFromInt(points).Div(c.Redemption.PointsPerCurrencyUnit).Round(2)
}

// CheckRedemption applies the redemption rules to a request against the
// available balance.
func (c ProgramConfig) CheckRedemption(points, available int64) error {
	r := c.Redemption
	switch {
	case points <= 0:
		return &InsufficientPointsError{Reason: ReasonInvalidAmount, Requested: points, Available: available}
	case points < r.Minimum:
		return &InsufficientPointsError{Reason: ReasonBelowMinimum, Requested: points, Available: available, Limit: r.Minimum}
	case points > available:
		return &InsufficientPointsError{Reason: ReasonInsufficientBalance, Requested: points, Available: available}
	case r.Maximum != nil && points > *r.Maximum:
		return &InsufficientPointsError{Reason: ReasonAboveMaximum, Requested: points, Available: available, Limit: *r.Maximum}
	}
	return nil
}

// DiscountFor returns the discount of the named tier, resolving from points
// when the name is unknown to the table.
func (c ProgramConfig) DiscountFor(tierName string, points int64) decimal.Decimal {
	t, ok := FindTier(c.Tiers, tierName)
	if !ok {
		t = ResolveTier(points, c.Tiers)
	}
	return t.DiscountPercentage
}

// Validate checks the rule set and the tier table, returning every violation.
func (c ProgramConfig) Validate() error {
	var out []Violation
	if c.HotelID == "" {
		out = append(out, Violation{Field: "hotel_id", Message: "is required"})
	}
	if c.PointsPerCurrencyUnit.IsNegative() {
		out = append(out, Violation{Field: "points_per_currency_unit", Message: "must be >= 0"})
	}
	if c.PointsPerNight.IsNegative() {
		out = append(out, Violation{Field: "points_per_night", Message: "must be >= 0"})
	}
	for st, m := range c.ServiceTypeMultipliers {
		if m.IsNegative() {
			out = append(out, Violation{Field: fmt.Sprintf("service_type_multipliers[%s]", st), Message: "must be >= 0"})
		}
	}
	if !c.Redemption.PointsPerCurrencyUnit.IsPositive() {
		out = append(out, Violation{Field: "redemption.points_per_currency_unit", Message: "must be > 0"})
	}
	if c.Redemption.Minimum < 0 {
		out = append(out, Violation{Field: "redemption.minimum", Message: "must be >= 0"})
	}
	if c.Redemption.Maximum != nil && *c.Redemption.Maximum < c.Redemption.Minimum {
		out = append(out, Violation{Field: "redemption.maximum", Message: "must be >= minimum"})
	}
	if c.ExpirationMonths < 0 {
		out = append(out, Violation{Field: "expiration_months", Message: "must be >= 0"})
	}
	out = append(out, tierViolations(c.Tiers)...)

	if len(out) > 0 {
		return &ConfigError{Violations: out}
	}
	return nil
}

// Clone returns a deep copy.
func (c ProgramConfig) Clone() ProgramConfig {
	out := c
	if c.ServiceTypeMultipliers != nil {
		out.ServiceTypeMultipliers = make(map[string]decimal.Decimal, len(c.ServiceTypeMultipliers))
		for k, v := range c.ServiceTypeMultipliers {
			out.ServiceTypeMultipliers[k] = v
		}
	}
	if c.Redemption.Maximum != nil {
		limit := *c.Redemption.Maximum
		out.Redemption.Maximum = &limit
	}
	out.Tiers = make([]Tier, len(c.Tiers))
	for i, t := range c.Tiers {
		out.Tiers[i] = t
		out.Tiers[i].Benefits = append([]string(nil), t.Benefits...)
	}
	return out
}

// TiersEqual reports whether two tier tables are identical.
func TiersEqual(a, b []Tier) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Name != b[i].Name ||
			a[i].MinPoints != b[i].MinPoints ||
			a[i].MaxPoints != b[i].MaxPoints ||
			!a[i].DiscountPercentage.Equal(b[i].DiscountPercentage) {
			return false
		}
	}
	return true
}
