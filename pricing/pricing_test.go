package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/pricing"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

// =============================================================================
// QUOTE
// =============================================================================

func TestQuote_MarkupThenDiscount(t *testing.T) {
	// GIVEN: 50.00 base, 20% markup, GOLD tier 10% discount
	// THEN: 60.00 with markup, 6.00 discount, 54.00 final

	q, err := pricing.Quote(pricing.QuoteInput{
		BasePrice:          d("50"),
		MarkupPercentage:   d("20"),
		DiscountPercentage: d("10"),
	})
	require.NoError(t, err)

	assertMoney(t, "10.00", q.MarkupAmount, "markup")
	assertMoney(t, "60.00", q.PriceWithMarkup, "with markup")
	assertMoney(t, "6.00", q.DiscountAmount, "discount")
	assertMoney(t, "54.00", q.FinalPrice, "final")
	assert.Equal(t, pricing.DefaultCurrency, q.Currency)
}

func TestQuote_RoundsHalfUp(t *testing.T) {
	// 10.005 * 1.00 => 10.01 (half away from zero, never banker's)
	q, err := pricing.Quote(pricing.QuoteInput{BasePrice: d("10.005")})
	require.NoError(t, err)
	assertMoney(t, "10.01", q.FinalPrice, "final")
}

// =============================================================================
// CALCULATE
// =============================================================================

func TestCalculate_WithoutDiscountMatchesPlainFormula(t *testing.T) {
	// GIVEN: 2 x 25.00 + 5.00 options + 3.00 add-ons + 2.00 delivery,
	//        15% markup, 8% tax, no loyalty discount
	// THEN: subtotal 60.00, markup 9.00, tax 5.52, total 74.52

	b, err := pricing.Calculate(pricing.Input{
		BasePrice:        d("25"),
		Quantity:         2,
		OptionsTotal:     d("5"),
		AddOnsTotal:      d("3"),
		DeliveryCharge:   d("2"),
		MarkupPercentage: d("15"),
		TaxRate:          d("8"),
		Currency:         "EUR",
	})
	require.NoError(t, err)

	assertMoney(t, "60.00", b.Subtotal, "subtotal")
	assertMoney(t, "9.00", b.MarkupAmount, "markup")
	assertMoney(t, "0", b.LoyaltyDiscountAmount, "discount")
	assertMoney(t, "5.52", b.TaxAmount, "tax")
	assertMoney(t, "74.52", b.TotalAmount, "total")
	assertMoney(t, "60.00", b.ProviderEarnings, "provider")
	assertMoney(t, "9.00", b.HotelEarnings, "hotel")
	assert.Equal(t, "EUR", b.Currency)
}

func TestCalculate_DiscountBeforeTax(t *testing.T) {
	// GIVEN: 100.00 subtotal, 20% markup, 10% loyalty, 10% tax
	// THEN: discount 12.00 on 120.00, tax on 108.00, hotel absorbs the discount

	b, err := pricing.Calculate(pricing.Input{
		BasePrice:                 d("100"),
		Quantity:                  1,
		MarkupPercentage:          d("20"),
		TaxRate:                   d("10"),
		LoyaltyDiscountPercentage: d("10"),
	})
	require.NoError(t, err)

	assertMoney(t, "12.00", b.LoyaltyDiscountAmount, "discount")
	assertMoney(t, "10.80", b.TaxAmount, "tax")
	assertMoney(t, "118.80", b.TotalAmount, "total")
	assertMoney(t, "100.00", b.ProviderEarnings, "provider")
	assertMoney(t, "8.00", b.HotelEarnings, "hotel")

	// Money is conserved: what the guest pays splits into provider, hotel and tax.
	assert.True(t, b.ProviderEarnings.Add(b.HotelEarnings).Add(b.TaxAmount).Equal(b.TotalAmount))
}

func TestCalculate_RoundTrip(t *testing.T) {
	// Property: recomputing a stored breakdown from its inputs reproduces
	// every amount within 0.01.
	inputs := []pricing.Input{
		{BasePrice: d("19.99"), Quantity: 3, OptionsTotal: d("4.35"), MarkupPercentage: d("12.5"), TaxRate: d("7.25"), LoyaltyDiscountPercentage: d("5")},
		{BasePrice: d("0.01"), Quantity: 1, MarkupPercentage: d("33.333"), TaxRate: d("19")},
		{BasePrice: d("1234.567"), Quantity: 7, AddOnsTotal: d("0.005"), DeliveryCharge: d("9.999"), MarkupPercentage: d("100"), TaxRate: d("0"), LoyaltyDiscountPercentage: d("100")},
	}
	tolerance := d("0.01")

	for _, in := range inputs {
		b, err := pricing.Calculate(in)
		require.NoError(t, err)

		again, err := pricing.Recalculate(b)
		require.NoError(t, err)

		pairs := map[string][2]decimal.Decimal{
			"subtotal": {b.Subtotal, again.Subtotal},
			"markup":   {b.MarkupAmount, again.MarkupAmount},
			"discount": {b.LoyaltyDiscountAmount, again.LoyaltyDiscountAmount},
			"tax":      {b.TaxAmount, again.TaxAmount},
			"total":    {b.TotalAmount, again.TotalAmount},
			"hotel":    {b.HotelEarnings, again.HotelEarnings},
		}
		for field, p := range pairs {
			assert.Truef(t, p[0].Sub(p[1]).Abs().LessThanOrEqual(tolerance), "%s drifted: %s vs %s", field, p[0], p[1])
		}
	}
}

func TestCalculate_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name string
		in   pricing.Input
	}{
		{"negative base", pricing.Input{BasePrice: d("-1"), Quantity: 1}},
		{"zero quantity", pricing.Input{BasePrice: d("10"), Quantity: 0}},
		{"tax over 100", pricing.Input{BasePrice: d("10"), Quantity: 1, TaxRate: d("101")}},
		{"negative discount", pricing.Input{BasePrice: d("10"), Quantity: 1, LoyaltyDiscountPercentage: d("-5")}},
		{"negative delivery", pricing.Input{BasePrice: d("10"), Quantity: 1, DeliveryCharge: d("-0.01")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pricing.Calculate(tt.in)
			assert.ErrorIs(t, err, pricing.ErrInvalidInput)
		})
	}
}

func TestSumLines(t *testing.T) {
	total, err := pricing.SumLines([]pricing.Line{
		{Name: "starch", Price: d("1.50"), Quantity: 2},
		{Name: "express", Price: d("4.99")},
	})
	require.NoError(t, err)
	assertMoney(t, "7.99", total, "lines")

	_, err = pricing.SumLines([]pricing.Line{{Name: "bad", Price: d("-1")}})
	assert.ErrorIs(t, err, pricing.ErrInvalidInput)
}
