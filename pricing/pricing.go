/*
Package pricing computes booking money breakdowns.

PURPOSE:
  Pure decimal arithmetic. No I/O, no clock, no state. Every intermediate
  amount is rounded to cents (half away from zero) as it is produced, so a
  stored breakdown can be recomputed from its own inputs.

TWO VIEWS:
  Quote:     guest-facing price for one unit, tier discount shown, no tax
             withMarkup = base * (1 + markup%)
             discount   = withMarkup * loyalty%
             final      = withMarkup - discount

  Calculate: authoritative breakdown persisted on the booking
             subtotal = base*qty + options + addOns + delivery
             markup   = subtotal * markup%
             discount = (subtotal + markup) * loyalty%
             taxable  = subtotal + markup - discount
             tax      = taxable * tax%
             total    = taxable + tax
             provider = subtotal
             hotel    = markup - discount

  With loyalty% = 0 the two agree on the pre-tax unit price.

SEE ALSO:
  - booking/booking.go: stores a Breakdown and re-prices on Modify
*/
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const DefaultCurrency = "USD"

// ErrInvalidInput is returned for negative prices, quantity below one, or
// percentages outside [0, 100].
var ErrInvalidInput = errors.New("invalid pricing input")

var hundred = decimal.NewFromInt(100)

// round2 rounds to cents, half away from zero.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func percentOf(amount, pct decimal.Decimal) decimal.Decimal {
	return round2(amount.Mul(pct).Div(hundred))
}

// =============================================================================
// QUOTE
// =============================================================================

type QuoteInput struct {
	BasePrice          decimal.Decimal
	MarkupPercentage   decimal.Decimal
	DiscountPercentage decimal.Decimal
	Currency           string
}

type QuoteBreakdown struct {
	BasePrice          decimal.Decimal
	MarkupPercentage   decimal.Decimal
	MarkupAmount       decimal.Decimal
	PriceWithMarkup    decimal.Decimal
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	FinalPrice         decimal.Decimal
	Currency           string
}

// Quote returns the guest-facing unit price with the tier discount applied.
func Quote(in QuoteInput) (QuoteBreakdown, error) {
	if err := validate(
		nonNegative("base_price", in.BasePrice),
		percentage("markup_percentage", in.MarkupPercentage),
		percentage("discount_percentage", in.DiscountPercentage),
	); err != nil {
		return QuoteBreakdown{}, err
	}

	base := round2(in.BasePrice)
	markup := percentOf(base, in.MarkupPercentage)
	withMarkup := round2(base.Add(markup))
	discount := percentOf(withMarkup, in.DiscountPercentage)

	return QuoteBreakdown{
		BasePrice:          base,
		MarkupPercentage:   in.MarkupPercentage,
		MarkupAmount:       markup,
		PriceWithMarkup:    withMarkup,
		DiscountPercentage: in.DiscountPercentage,
		DiscountAmount:     discount,
		FinalPrice:         round2(withMarkup.Sub(discount)),
		Currency:           currency(in.Currency),
	}, nil
}

// =============================================================================
// AUTHORITATIVE BREAKDOWN
// =============================================================================

// Input holds everything Calculate needs. A Breakdown carries the same
// fields, so Inputs() recovers it.
type Input struct {
	BasePrice                 decimal.Decimal
	Quantity                  int
	OptionsTotal              decimal.Decimal
	AddOnsTotal               decimal.Decimal
	DeliveryCharge            decimal.Decimal
	MarkupPercentage          decimal.Decimal
	TaxRate                   decimal.Decimal
	LoyaltyDiscountPercentage decimal.Decimal
	Currency                  string
}

type Breakdown struct {
	BasePrice                 decimal.Decimal
	Quantity                  int
	Subtotal                  decimal.Decimal
	OptionsTotal              decimal.Decimal
	AddOnsTotal               decimal.Decimal
	DeliveryCharge            decimal.Decimal
	MarkupPercentage          decimal.Decimal
	MarkupAmount              decimal.Decimal
	TaxRate                   decimal.Decimal
	TaxAmount                 decimal.Decimal
	LoyaltyDiscountPercentage decimal.Decimal
	LoyaltyDiscountAmount     decimal.Decimal
	TotalAmount               decimal.Decimal
	ProviderEarnings          decimal.Decimal
	HotelEarnings             decimal.Decimal
	Currency                  string
}

// Calculate produces the authoritative breakdown: markup, then discount, then tax.
func Calculate(in Input) (Breakdown, error) {
	if err := validate(
		nonNegative("base_price", in.BasePrice),
		positiveQuantity(in.Quantity),
		nonNegative("options_total", in.OptionsTotal),
		nonNegative("add_ons_total", in.AddOnsTotal),
		nonNegative("delivery_charge", in.DeliveryCharge),
		percentage("markup_percentage", in.MarkupPercentage),
		percentage("tax_rate", in.TaxRate),
		percentage("loyalty_discount_percentage", in.LoyaltyDiscountPercentage),
	); err != nil {
		return Breakdown{}, err
	}

	base := round2(in.BasePrice)
	options := round2(in.OptionsTotal)
	addOns := round2(in.AddOnsTotal)
	delivery := round2(in.DeliveryCharge)

	subtotal := round2(base.Mul(decimal.NewFromInt(int64(in.Quantity))).Add(options).Add(addOns).Add(delivery))
	markup := percentOf(subtotal, in.MarkupPercentage)
	discount := percentOf(subtotal.Add(markup), in.LoyaltyDiscountPercentage)
	taxable := round2(subtotal.Add(markup).Sub(discount))
	tax := percentOf(taxable, in.TaxRate)

	return Breakdown{
		BasePrice:                 base,
		Quantity:                  in.Quantity,
		Subtotal:                  subtotal,
		OptionsTotal:              options,
		AddOnsTotal:               addOns,
		DeliveryCharge:            delivery,
		MarkupPercentage:          in.MarkupPercentage,
		MarkupAmount:              markup,
		TaxRate:                   in.TaxRate,
		TaxAmount:                 tax,
		LoyaltyDiscountPercentage: in.LoyaltyDiscountPercentage,
		LoyaltyDiscountAmount:     discount,
		TotalAmount:               round2(taxable.Add(tax)),
		ProviderEarnings:          subtotal,
		HotelEarnings:             round2(markup.Sub(discount)),
		Currency:                  currency(in.Currency),
	}, nil
}

// Inputs recovers the inputs a breakdown was computed from.
func (b Breakdown) Inputs() Input {
	return Input{
		BasePrice:                 b.BasePrice,
		Quantity:                  b.Quantity,
		OptionsTotal:              b.OptionsTotal,
		AddOnsTotal:               b.AddOnsTotal,
		DeliveryCharge:            b.DeliveryCharge,
		MarkupPercentage:          b.MarkupPercentage,
		TaxRate:                   b.TaxRate,
		LoyaltyDiscountPercentage: b.LoyaltyDiscountPercentage,
		Currency:                  b.Currency,
	}
}

// Recalculate recomputes a breakdown from its own inputs.
func Recalculate(b Breakdown) (Breakdown, error) {
	return Calculate(b.Inputs())
}

// =============================================================================
// LINE ITEMS
// =============================================================================

// Line is a priced option or add-on.
type Line struct {
	Name     string
	Price    decimal.Decimal
	Quantity int // 0 is treated as 1
}

// SumLines totals price * quantity over lines, rounded to cents.
func SumLines(lines []Line) (decimal.Decimal, error) {
	total := decimal.Zero
	for i, l := range lines {
		if l.Price.IsNegative() {
			return decimal.Zero, fmt.Errorf("%w: line %d (%s) has negative price", ErrInvalidInput, i, l.Name)
		}
		if l.Quantity < 0 {
			return decimal.Zero, fmt.Errorf("%w: line %d (%s) has negative quantity", ErrInvalidInput, i, l.Name)
		}
		qty := l.Quantity
		if qty == 0 {
			qty = 1
		}
		total = total.Add(l.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return round2(total), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

func validate(problems ...string) error {
	var msgs []string
	for _, p := range problems {
		if p != "" {
			msgs = append(msgs, p)
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidInput, msgs)
}

func nonNegative(field string, d decimal.Decimal) string {
	if d.IsNegative() {
		return field + " must be >= 0"
	}
	return ""
}

func percentage(field string, d decimal.Decimal) string {
	if d.IsNegative() || d.GreaterThan(hundred) {
		return field + " must be between 0 and 100"
	}
	return ""
}

func positiveQuantity(q int) string {
	if q < 1 {
		return "quantity must be >= 1"
	}
	return ""
}

func currency(c string) string {
	if c == "" {
		return DefaultCurrency
	}
	return c
}
