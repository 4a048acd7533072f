/*
Package booking holds the booking aggregate and its lifecycle.

PURPOSE:
  A booking is one guest order for one hotel service. It carries its own
  authoritative price breakdown and an audit trail of status changes.

LIFECYCLE:
  pending -> confirmed -> assigned -> in-progress -> pickup-scheduled ->
  picked-up -> in-service -> delivery-scheduled -> completed

  - Forward skips are allowed, backward moves are not
  - refunded and disputed are reachable from any non-terminal status
  - cancelled only from pending, confirmed, assigned (through Cancel or
    Transition alike)
  - Modify only from pending, confirmed (re-prices the booking)
  - Terminal statuses reject everything

STATUS HISTORY:
  Every transition appends a StatusChange. EnsureStatusRecorded runs before
  each save and appends an automatic entry if the status was changed without
  one.

SEE ALSO:
  - status.go: transition table
  - service.go: load/mutate/save orchestration
  - settlement/settlement.go: payment outcome -> completion -> points
*/
package booking

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/pricing"
)

// =============================================================================
// TYPES
// =============================================================================

// StatusChange is one entry of the status history.
type StatusChange struct {
	Status    Status
	At        time.Time
	Actor     *string // nil for system changes
	Note      string
	Automatic bool
}

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "unpaid"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

type Payment struct {
	Status     PaymentStatus
	AmountPaid decimal.Decimal
	Currency   string
	PaidAt     *time.Time
	Reference  string
}

// PaymentOutcome is the result reported by the payment gateway.
type PaymentOutcome struct {
	BookingID  string
	Succeeded  bool
	AmountPaid decimal.Decimal
	Currency   string
	PaidAt     time.Time
	Reference  string
}

type Booking struct {
	ID          string
	GuestID     string
	HotelID     string
	Channel     string
	ServiceID   string
	ServiceType string
	Quantity    int
	Nights      int
	Options     []pricing.Line
	AddOns      []pricing.Line

	Pricing       pricing.Breakdown
	Status        Status
	StatusHistory []StatusChange
	Payment       Payment

	// PointsAwarded is the loyalty credit for this booking; LoyaltyAwarded
	// marks that settlement already ran.
	PointsAwarded  int64
	LoyaltyAwarded bool

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Request describes a new booking.
type Request struct {
	GuestID          string
	HotelID          string
	Channel          string
	ServiceID        string
	ServiceType      string
	BasePrice        decimal.Decimal
	Quantity         int
	Nights           int
	Options          []pricing.Line
	AddOns           []pricing.Line
	DeliveryCharge   decimal.Decimal
	MarkupPercentage decimal.Decimal
	TaxRate          decimal.Decimal
	Currency         string
}

// Modification changes a pending or confirmed booking. Nil fields are kept.
type Modification struct {
	Quantity       *int
	Nights         *int
	Options        *[]pricing.Line
	AddOns         *[]pricing.Line
	DeliveryCharge *decimal.Decimal
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

// New prices a request with the guest's loyalty discount and returns a
// pending booking.
func New(req Request, discountPercentage decimal.Decimal, now time.Time) (*Booking, error) {
	if req.GuestID == "" || req.HotelID == "" || req.ServiceID == "" {
		return nil, fmt.Errorf("%w: guest, hotel and service are required", ErrInvalidBooking)
	}
	if req.Nights < 0 {
		return nil, fmt.Errorf("%w: nights must be >= 0", ErrInvalidBooking)
	}

	b := &Booking{
		ID:          uuid.NewString(),
		GuestID:     req.GuestID,
		HotelID:     req.HotelID,
		Channel:     req.Channel,
		ServiceID:   req.ServiceID,
		ServiceType: req.ServiceType,
		Quantity:    req.Quantity,
		Nights:      req.Nights,
		Options:     req.Options,
		AddOns:      req.AddOns,
		Status:      StatusPending,
		Payment:     Payment{Status: PaymentUnpaid, AmountPaid: decimal.Zero},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	in := pricing.Input{
		BasePrice:                 req.BasePrice,
		Quantity:                  req.Quantity,
		DeliveryCharge:            req.DeliveryCharge,
		MarkupPercentage:          req.MarkupPercentage,
		TaxRate:                   req.TaxRate,
		LoyaltyDiscountPercentage: discountPercentage,
		Currency:                  req.Currency,
	}
	if err := b.price(in); err != nil {
		return nil, err
	}
	b.StatusHistory = []StatusChange{{Status: StatusPending, At: now, Note: "created"}}
	return b, nil
}

// price sums the line items into in and stores the breakdown.
func (b *Booking) price(in pricing.Input) error {
	options, err := pricing.SumLines(b.Options)
	if err != nil {
		return err
	}
	addOns, err := pricing.SumLines(b.AddOns)
	if err != nil {
		return err
	}
	in.Quantity = b.Quantity
	in.OptionsTotal = options
	in.AddOnsTotal = addOns

	breakdown, err := pricing.Calculate(in)
	if err != nil {
		return err
	}
	b.Pricing = breakdown
	return nil
}

// Clone returns a deep copy.
func (b *Booking) Clone() *Booking {
	out := *b
	out.Options = append([]pricing.Line(nil), b.Options...)
	out.AddOns = append([]pricing.Line(nil), b.AddOns...)
	out.StatusHistory = append([]StatusChange(nil), b.StatusHistory...)
	return &out
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func actorPtr(actor string) *string {
	if actor == "" {
		return nil
	}
	return &actor
}

// Transition moves the booking to status to and records it.
func (b *Booking) Transition(to Status, actor, note string, at time.Time) error {
	if !CanTransition(b.Status, to) {
		return &InvalidTransitionError{From: b.Status, To: to, Action: "transition"}
	}
	b.setStatus(to, actor, note, at)
	return nil
}

// Cancel cancels a booking that has not started service yet.
func (b *Booking) Cancel(actor, reason string, at time.Time) error {
	if !b.Status.CanCancel() {
		return &InvalidTransitionError{From: b.Status, To: StatusCancelled, Action: "cancel"}
	}
	b.setStatus(StatusCancelled, actor, reason, at)
	return nil
}

// Complete marks the booking completed.
func (b *Booking) Complete(actor string, at time.Time) error {
	return b.Transition(StatusCompleted, actor, "completed", at)
}

// AutoTransition applies a transition driven by the system rather than an
// operator. The history entry has no actor and is flagged automatic.
func (b *Booking) AutoTransition(to Status, note string, at time.Time) error {
	if !CanTransition(b.Status, to) {
		return &InvalidTransitionError{From: b.Status, To: to, Action: "transition"}
	}
	b.Status = to
	b.UpdatedAt = at
	b.StatusHistory = append(b.StatusHistory, StatusChange{
		Status:    to,
		At:        at,
		Note:      note,
		Automatic: true,
	})
	return nil
}

// Modify applies changes to a pending or confirmed booking and re-prices it
// with the markup, tax and loyalty discount it was created with.
func (b *Booking) Modify(mod Modification, actor string, at time.Time) error {
	if !b.Status.CanModify() {
		return &InvalidTransitionError{From: b.Status, To: b.Status, Action: "modify"}
	}

	next := b.Clone()
	in := b.Pricing.Inputs()
	if mod.Quantity != nil {
		next.Quantity = *mod.Quantity
	}
	if mod.Nights != nil {
		if *mod.Nights < 0 {
			return fmt.Errorf("%w: nights must be >= 0", ErrInvalidBooking)
		}
		next.Nights = *mod.Nights
	}
	if mod.Options != nil {
		next.Options = *mod.Options
	}
	if mod.AddOns != nil {
		next.AddOns = *mod.AddOns
	}
	if mod.DeliveryCharge != nil {
		in.DeliveryCharge = *mod.DeliveryCharge
	}
	if err := next.price(in); err != nil {
		return err
	}

	next.StatusHistory = append(next.StatusHistory, StatusChange{
		Status: b.Status,
		At:     at,
		Actor:  actorPtr(actor),
		Note:   "modified",
	})
	next.UpdatedAt = at
	*b = *next
	return nil
}

// RecordPayment stores a payment outcome. A failed payment leaves the status
// alone and never overwrites a paid record.
func (b *Booking) RecordPayment(o PaymentOutcome) {
	if !o.Succeeded {
		if b.Payment.Status == PaymentPaid {
			return
		}
		b.Payment.Status = PaymentFailed
		b.Payment.Reference = o.Reference
		return
	}
	paidAt := o.PaidAt
	b.Payment = Payment{
		Status:     PaymentPaid,
		AmountPaid: o.AmountPaid,
		Currency:   o.Currency,
		PaidAt:     &paidAt,
		Reference:  o.Reference,
	}
	if b.Payment.Currency == "" {
		b.Payment.Currency = b.Pricing.Currency
	}
}

func (b *Booking) setStatus(to Status, actor, note string, at time.Time) {
	b.Status = to
	b.UpdatedAt = at
	b.StatusHistory = append(b.StatusHistory, StatusChange{
		Status: to,
		At:     at,
		Actor:  actorPtr(actor),
		Note:   note,
	})
}

// EnsureStatusRecorded is the pre-persist hook: if the current status has no
// matching last history entry, an automatic one is appended.
func (b *Booking) EnsureStatusRecorded(now time.Time) {
	if n := len(b.StatusHistory); n > 0 && b.StatusHistory[n-1].Status == b.Status {
		return
	}
	b.StatusHistory = append(b.StatusHistory, StatusChange{
		Status:    b.Status,
		At:        now,
		Note:      "status change recorded automatically",
		Automatic: true,
	})
}
