package loyalty_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/loyalty"
)

func baseProgram() loyalty.ProgramConfig {
	return loyalty.ProgramConfig{
		HotelID:               "hotel-1",
		PointsPerCurrencyUnit: decimal.NewFromInt(1),
		PointsPerNight:        decimal.NewFromInt(100),
		ServiceTypeMultipliers: map[string]decimal.Decimal{
			"laundry": decimal.RequireFromString("1.2"),
			"dining":  decimal.RequireFromString("0.5"),
		},
		Redemption: loyalty.RedemptionRule{
			PointsPerCurrencyUnit: decimal.NewFromInt(100),
			Minimum:               100,
		},
		ExpirationMonths: 12,
		IsActive:         true,
		Tiers:            standardTiers(),
	}
}

func TestProgram_PointsForSpend(t *testing.T) {
	cfg := baseProgram()

	// Laundry: 50 * 1 * 1.2 = 60
	assert.Equal(t, int64(60), cfg.PointsForSpend(decimal.NewFromInt(50), "laundry"))
	// Unknown service type: multiplier 1.0
	assert.Equal(t, int64(50), cfg.PointsForSpend(decimal.NewFromInt(50), "spa"))
	// Floor: 19.99 * 0.5 = 9.995
	assert.Equal(t, int64(9), cfg.PointsForSpend(decimal.RequireFromString("19.99"), "dining"))
	// Negative amount clamps to zero
	assert.Equal(t, int64(0), cfg.PointsForSpend(decimal.NewFromInt(-10), "laundry"))
}

func TestProgram_PointsForNights(t *testing.T) {
	cfg := baseProgram()
	cfg.PointsPerNight = decimal.RequireFromString("12.5")
	assert.Equal(t, int64(37), cfg.PointsForNights(3))
	assert.Equal(t, int64(0), cfg.PointsForNights(0))
}

func TestProgram_MonetaryValue(t *testing.T) {
	cfg := baseProgram()
	assert.True(t, decimal.RequireFromString("2.50").Equal(cfg.MonetaryValue(250)))
	// 333 / 100 = 3.33
	assert.True(t, decimal.RequireFromString("3.33").Equal(cfg.MonetaryValue(333)))
}

func TestProgram_CheckRedemption(t *testing.T) {
	cfg := baseProgram()
	maxRedeem := int64(1000)
	cfg.Redemption.Maximum = &maxRedeem

	tests := []struct {
		name      string
		points    int64
		available int64
		reason    loyalty.ShortfallReason
	}{
		{"exactly minimum", 100, 100, ""},
		{"one below minimum", 99, 100, loyalty.ReasonBelowMinimum},
		{"above balance", 500, 400, loyalty.ReasonInsufficientBalance},
		{"above maximum", 1001, 5000, loyalty.ReasonAboveMaximum},
		{"exactly maximum", 1000, 5000, ""},
		{"zero", 0, 5000, loyalty.ReasonInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := cfg.CheckRedemption(tt.points, tt.available)
			if tt.reason == "" {
				assert.NoError(t, err)
				return
			}
			var ipe *loyalty.InsufficientPointsError
			require.ErrorAs(t, err, &ipe)
			assert.Equal(t, tt.reason, ipe.Reason)
			assert.ErrorIs(t, err, loyalty.ErrInsufficientPoints)
		})
	}
}

func TestProgram_Validate_CollectsRulesAndTiers(t *testing.T) {
	cfg := baseProgram()
	cfg.PointsPerNight = decimal.NewFromInt(-1)
	cfg.Redemption.PointsPerCurrencyUnit = decimal.Zero
	cfg.ExpirationMonths = -3
	cfg.Tiers = nil

	var cfgErr *loyalty.ConfigError
	require.ErrorAs(t, cfg.Validate(), &cfgErr)
	assert.Len(t, cfgErr.Violations, 4)
	assert.True(t, loyalty.IsClientError(cfgErr))
}

func TestProgram_ScopeAndKey(t *testing.T) {
	cfg := baseProgram()
	assert.Equal(t, "hotel-1", cfg.Scope())

	cfg.HotelGroupID = "group-1"
	cfg.Channel = "corporate"
	key := cfg.MemberKey("guest-1")
	assert.Equal(t, loyalty.MemberKey{GuestID: "guest-1", Scope: "group-1", Channel: "corporate"}, key)
	assert.Equal(t, "hotel-1/corporate", cfg.Key().String())
}

func TestProgram_CloneIsDeep(t *testing.T) {
	cfg := baseProgram()
	clone := cfg.Clone()
	clone.ServiceTypeMultipliers["laundry"] = decimal.NewFromInt(9)
	clone.Tiers[0].Name = "CHANGED"

	assert.True(t, cfg.Multiplier("laundry").Equal(decimal.RequireFromString("1.2")))
	assert.Equal(t, "BRONZE", cfg.Tiers[0].Name)
}
