/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model (loyalty, booking, pricing) from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Pricing:     QuoteRequest, QuoteDTO, BreakdownDTO, LineDTO
  Bookings:    CreateBookingRequest, TransitionRequest, CancelRequest,
               ModifyRequest, BookingDTO
  Payments:    PaymentOutcomeRequest, SettlementDTO
  Programs:    factory.ProgramSpec, ReplaceTiersRequest, ProgramSavedDTO
  Members:     MemberDTO, MemberStatusDTO, RedeemRequest, AdjustRequest
  Admin:       ExpireRequest, SweepDTO

MONEY:
  Amounts are decimal.Decimal and serialize as JSON strings ("118.8") so no
  precision is lost. Requests accept numbers or strings.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/program.go: ProgramSpec (program bodies)
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/booking"
	"github.com/warp/hotel-loyalty-engine/factory"
	"github.com/warp/hotel-loyalty-engine/ledger"
	"github.com/warp/hotel-loyalty-engine/loyalty"
	"github.com/warp/hotel-loyalty-engine/pricing"
	"github.com/warp/hotel-loyalty-engine/settlement"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error      string         `json:"error"`
	Details    string         `json:"details,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Violations []ViolationDTO `json:"violations,omitempty"`
}

type ViolationDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// =============================================================================
// PRICING
// =============================================================================

// QuoteRequest prices one unit for display. When DiscountPercentage is
// omitted and a guest and hotel are given, the guest's tier discount is used.
type QuoteRequest struct {
	BasePrice          decimal.Decimal  `json:"base_price"`
	MarkupPercentage   decimal.Decimal  `json:"markup_percentage"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty"`
	GuestID            string           `json:"guest_id,omitempty"`
	HotelID            string           `json:"hotel_id,omitempty"`
	Channel            string           `json:"channel,omitempty"`
	Currency           string           `json:"currency,omitempty"`
}

type QuoteDTO struct {
	BasePrice          decimal.Decimal `json:"base_price"`
	MarkupPercentage   decimal.Decimal `json:"markup_percentage"`
	MarkupAmount       decimal.Decimal `json:"markup_amount"`
	PriceWithMarkup    decimal.Decimal `json:"price_with_markup"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	FinalPrice         decimal.Decimal `json:"final_price"`
	Currency           string          `json:"currency"`
}

func toQuoteDTO(q pricing.QuoteBreakdown) QuoteDTO {
	return QuoteDTO{
		BasePrice:          q.BasePrice,
		MarkupPercentage:   q.MarkupPercentage,
		MarkupAmount:       q.MarkupAmount,
		PriceWithMarkup:    q.PriceWithMarkup,
		DiscountPercentage: q.DiscountPercentage,
		DiscountAmount:     q.DiscountAmount,
		FinalPrice:         q.FinalPrice,
		Currency:           q.Currency,
	}
}

type BreakdownDTO struct {
	BasePrice                 decimal.Decimal `json:"base_price"`
	Quantity                  int             `json:"quantity"`
	Subtotal                  decimal.Decimal `json:"subtotal"`
	OptionsTotal              decimal.Decimal `json:"options_total"`
	AddOnsTotal               decimal.Decimal `json:"add_ons_total"`
	DeliveryCharge            decimal.Decimal `json:"delivery_charge"`
	MarkupPercentage          decimal.Decimal `json:"markup_percentage"`
	MarkupAmount              decimal.Decimal `json:"markup_amount"`
	TaxRate                   decimal.Decimal `json:"tax_rate"`
	TaxAmount                 decimal.Decimal `json:"tax_amount"`
	LoyaltyDiscountPercentage decimal.Decimal `json:"loyalty_discount_percentage"`
	LoyaltyDiscountAmount     decimal.Decimal `json:"loyalty_discount_amount"`
	TotalAmount               decimal.Decimal `json:"total_amount"`
	ProviderEarnings          decimal.Decimal `json:"provider_earnings"`
	HotelEarnings             decimal.Decimal `json:"hotel_earnings"`
	Currency                  string          `json:"currency"`
}

func toBreakdownDTO(b pricing.Breakdown) BreakdownDTO {
	return BreakdownDTO{
		BasePrice:                 b.BasePrice,
		Quantity:                  b.Quantity,
		Subtotal:                  b.Subtotal,
		OptionsTotal:              b.OptionsTotal,
		AddOnsTotal:               b.AddOnsTotal,
		DeliveryCharge:            b.DeliveryCharge,
		MarkupPercentage:          b.MarkupPercentage,
		MarkupAmount:              b.MarkupAmount,
		TaxRate:                   b.TaxRate,
		TaxAmount:                 b.TaxAmount,
		LoyaltyDiscountPercentage: b.LoyaltyDiscountPercentage,
		LoyaltyDiscountAmount:     b.LoyaltyDiscountAmount,
		TotalAmount:               b.TotalAmount,
		ProviderEarnings:          b.ProviderEarnings,
		HotelEarnings:             b.HotelEarnings,
		Currency:                  b.Currency,
	}
}

type LineDTO struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity,omitempty"`
}

func toLines(in []LineDTO) []pricing.Line {
	if in == nil {
		return nil
	}
	out := make([]pricing.Line, len(in))
	for i, l := range in {
		out[i] = pricing.Line{Name: l.Name, Price: l.Price, Quantity: l.Quantity}
	}
	return out
}

func toLineDTOs(in []pricing.Line) []LineDTO {
	out := make([]LineDTO, len(in))
	for i, l := range in {
		out[i] = LineDTO{Name: l.Name, Price: l.Price, Quantity: l.Quantity}
	}
	return out
}

// =============================================================================
// BOOKINGS
// =============================================================================

type CreateBookingRequest struct {
	GuestID          string          `json:"guest_id"`
	HotelID          string          `json:"hotel_id"`
	Channel          string          `json:"channel,omitempty"`
	ServiceID        string          `json:"service_id"`
	ServiceType      string          `json:"service_type"`
	BasePrice        decimal.Decimal `json:"base_price"`
	Quantity         int             `json:"quantity"`
	Nights           int             `json:"nights,omitempty"`
	Options          []LineDTO       `json:"options,omitempty"`
	AddOns           []LineDTO       `json:"add_ons,omitempty"`
	DeliveryCharge   decimal.Decimal `json:"delivery_charge"`
	MarkupPercentage decimal.Decimal `json:"markup_percentage"`
	TaxRate          decimal.Decimal `json:"tax_rate"`
	Currency         string          `json:"currency,omitempty"`
}

func (r CreateBookingRequest) toDomain() booking.Request {
	return booking.Request{
		GuestID:          r.GuestID,
		HotelID:          r.HotelID,
		Channel:          r.Channel,
		ServiceID:        r.ServiceID,
		ServiceType:      r.ServiceType,
		BasePrice:        r.BasePrice,
		Quantity:         r.Quantity,
		Nights:           r.Nights,
		Options:          toLines(r.Options),
		AddOns:           toLines(r.AddOns),
		DeliveryCharge:   r.DeliveryCharge,
		MarkupPercentage: r.MarkupPercentage,
		TaxRate:          r.TaxRate,
		Currency:         r.Currency,
	}
}

type TransitionRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor,omitempty"`
	Note   string `json:"note,omitempty"`
}

type CancelRequest struct {
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ModifyRequest changes a pending or confirmed booking. Omitted fields are kept.
type ModifyRequest struct {
	Quantity       *int             `json:"quantity,omitempty"`
	Nights         *int             `json:"nights,omitempty"`
	Options        *[]LineDTO       `json:"options,omitempty"`
	AddOns         *[]LineDTO       `json:"add_ons,omitempty"`
	DeliveryCharge *decimal.Decimal `json:"delivery_charge,omitempty"`
	Actor          string           `json:"actor,omitempty"`
}

func (r ModifyRequest) toDomain() booking.Modification {
	mod := booking.Modification{
		Quantity:       r.Quantity,
		Nights:         r.Nights,
		DeliveryCharge: r.DeliveryCharge,
	}
	if r.Options != nil {
		lines := toLines(*r.Options)
		mod.Options = &lines
	}
	if r.AddOns != nil {
		lines := toLines(*r.AddOns)
		mod.AddOns = &lines
	}
	return mod
}

type StatusChangeDTO struct {
	Status    string    `json:"status"`
	At        time.Time `json:"at"`
	Actor     *string   `json:"actor"`
	Note      string    `json:"note,omitempty"`
	Automatic bool      `json:"automatic,omitempty"`
}

type PaymentDTO struct {
	Status     string          `json:"status"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Currency   string          `json:"currency,omitempty"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
	Reference  string          `json:"reference,omitempty"`
}

type BookingDTO struct {
	ID             string            `json:"id"`
	GuestID        string            `json:"guest_id"`
	HotelID        string            `json:"hotel_id"`
	Channel        string            `json:"channel,omitempty"`
	ServiceID      string            `json:"service_id"`
	ServiceType    string            `json:"service_type"`
	Quantity       int               `json:"quantity"`
	Nights         int               `json:"nights"`
	Options        []LineDTO         `json:"options"`
	AddOns         []LineDTO         `json:"add_ons"`
	Pricing        BreakdownDTO      `json:"pricing"`
	Status         string            `json:"status"`
	StatusHistory  []StatusChangeDTO `json:"status_history"`
	Payment        PaymentDTO        `json:"payment"`
	PointsAwarded  int64             `json:"points_awarded"`
	LoyaltyAwarded bool              `json:"loyalty_awarded"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Version        int64             `json:"version"`
}

func toBookingDTO(b *booking.Booking) BookingDTO {
	history := make([]StatusChangeDTO, len(b.StatusHistory))
	for i, c := range b.StatusHistory {
		history[i] = StatusChangeDTO{
			Status:    string(c.Status),
			At:        c.At,
			Actor:     c.Actor,
			Note:      c.Note,
			Automatic: c.Automatic,
		}
	}
	return BookingDTO{
		ID:            b.ID,
		GuestID:       b.GuestID,
		HotelID:       b.HotelID,
		Channel:       b.Channel,
		ServiceID:     b.ServiceID,
		ServiceType:   b.ServiceType,
		Quantity:      b.Quantity,
		Nights:        b.Nights,
		Options:       toLineDTOs(b.Options),
		AddOns:        toLineDTOs(b.AddOns),
		Pricing:       toBreakdownDTO(b.Pricing),
		Status:        string(b.Status),
		StatusHistory: history,
		Payment: PaymentDTO{
			Status:     string(b.Payment.Status),
			AmountPaid: b.Payment.AmountPaid,
			Currency:   b.Payment.Currency,
			PaidAt:     b.Payment.PaidAt,
			Reference:  b.Payment.Reference,
		},
		PointsAwarded:  b.PointsAwarded,
		LoyaltyAwarded: b.LoyaltyAwarded,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		Version:        b.Version,
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

type PaymentOutcomeRequest struct {
	BookingID  string          `json:"booking_id"`
	Succeeded  bool            `json:"succeeded"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Currency   string          `json:"currency,omitempty"`
	PaidAt     *time.Time      `json:"paid_at,omitempty"`
	Reference  string          `json:"reference,omitempty"`
}

func (r PaymentOutcomeRequest) toDomain() booking.PaymentOutcome {
	o := booking.PaymentOutcome{
		BookingID:  r.BookingID,
		Succeeded:  r.Succeeded,
		AmountPaid: r.AmountPaid,
		Currency:   r.Currency,
		Reference:  r.Reference,
	}
	if r.PaidAt != nil {
		o.PaidAt = *r.PaidAt
	}
	return o
}

type SettlementDTO struct {
	Result        string     `json:"result"`
	Booking       BookingDTO `json:"booking"`
	SpendPoints   int64      `json:"spend_points"`
	NightPoints   int64      `json:"night_points"`
	LoyaltyReason string     `json:"loyalty_reason,omitempty"`
}

func toSettlementDTO(o settlement.Outcome) SettlementDTO {
	dto := SettlementDTO{
		Result:      string(o.Result),
		Booking:     toBookingDTO(o.Booking),
		SpendPoints: o.SpendPoints,
		NightPoints: o.NightPoints,
	}
	if o.LoyaltyReason != nil {
		dto.LoyaltyReason = o.LoyaltyReason.Error()
	}
	return dto
}

// =============================================================================
// PROGRAMS
// =============================================================================

type ReplaceTiersRequest struct {
	Tiers []factory.TierSpec `json:"tiers"`
}

type SweepDTO struct {
	Members int   `json:"members"`
	Changed int   `json:"changed"`
	Failed  int   `json:"failed"`
	Points  int64 `json:"points,omitempty"`
}

func toSweepDTO(s loyalty.SweepResult) SweepDTO {
	return SweepDTO{Members: s.Members, Changed: s.Changed, Failed: s.Failed, Points: s.Points}
}

type ProgramSavedDTO struct {
	Program factory.ProgramSpec `json:"program"`
	Sweep   SweepDTO            `json:"sweep"`
}

// =============================================================================
// MEMBERS
// =============================================================================

type EntryDTO struct {
	ID               string     `json:"id"`
	Type             string     `json:"type"`
	Points           int64      `json:"points"`
	Unredeemed       int64      `json:"unredeemed,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	Expired          bool       `json:"expired,omitempty"`
	SourceBookingRef string     `json:"source_booking_ref,omitempty"`
	RewardRef        string     `json:"reward_ref,omitempty"`
	Note             string     `json:"note,omitempty"`
	Actor            string     `json:"actor,omitempty"`
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:               string(e.ID),
		Type:             string(e.Type),
		Points:           e.Points,
		Unredeemed:       e.Unredeemed,
		OccurredAt:       e.OccurredAt,
		ExpiresAt:        e.ExpiresAt,
		Expired:          e.Expired,
		SourceBookingRef: e.SourceBookingRef,
		RewardRef:        e.RewardRef,
		Note:             e.Note,
		Actor:            e.Actor,
	}
}

type TierChangeDTO struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
	Upgraded bool      `json:"upgraded"`
}

func toTierChangeDTO(r loyalty.TierChangeRecord) TierChangeDTO {
	return TierChangeDTO{From: r.From, To: r.To, Reason: r.Reason, At: r.At, Upgraded: r.Upgraded}
}

type MemberDTO struct {
	GuestID          string          `json:"guest_id"`
	Scope            string          `json:"scope"`
	Channel          string          `json:"channel,omitempty"`
	CurrentTier      string          `json:"current_tier"`
	TotalPoints      int64           `json:"total_points"`
	AvailablePoints  int64           `json:"available_points"`
	LifetimeSpending decimal.Decimal `json:"lifetime_spending"`
	LifetimeNights   int             `json:"lifetime_nights"`
	JoinDate         time.Time       `json:"join_date"`
	IsActive         bool            `json:"is_active"`
	Version          int64           `json:"version"`
	TierHistory      []TierChangeDTO `json:"tier_history"`
	Ledger           []EntryDTO      `json:"ledger,omitempty"`
}

func toMemberDTO(m *loyalty.Member, withLedger bool) MemberDTO {
	dto := MemberDTO{
		GuestID:          m.Key.GuestID,
		Scope:            m.Key.Scope,
		Channel:          m.Key.Channel,
		CurrentTier:      m.CurrentTier,
		TotalPoints:      m.TotalPoints,
		AvailablePoints:  m.AvailablePoints,
		LifetimeSpending: m.LifetimeSpending,
		LifetimeNights:   m.LifetimeNights,
		JoinDate:         m.JoinDate,
		IsActive:         m.IsActive,
		Version:          m.Version,
		TierHistory:      make([]TierChangeDTO, len(m.TierHistory)),
	}
	for i, r := range m.TierHistory {
		dto.TierHistory[i] = toTierChangeDTO(r)
	}
	if withLedger && m.Ledger != nil {
		for _, e := range m.Ledger.Entries() {
			dto.Ledger = append(dto.Ledger, toEntryDTO(e))
		}
	}
	return dto
}

type ProgressDTO struct {
	PointsToNextTier   int64   `json:"points_to_next_tier"`
	NextTierName       *string `json:"next_tier_name"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

type MemberStatusDTO struct {
	Member   MemberDTO       `json:"member"`
	Tier     string          `json:"tier"`
	Benefits []string        `json:"benefits,omitempty"`
	Progress ProgressDTO     `json:"progress"`
	Discount decimal.Decimal `json:"discount_percentage"`
}

func toMemberStatusDTO(s loyalty.MemberStatus) MemberStatusDTO {
	return MemberStatusDTO{
		Member:   toMemberDTO(s.Member, true),
		Tier:     s.Tier.Name,
		Benefits: s.Tier.Benefits,
		Progress: ProgressDTO{
			PointsToNextTier:   s.Progress.PointsToNextTier,
			NextTierName:       s.Progress.NextTierName,
			ProgressPercentage: s.Progress.ProgressPercentage,
		},
		Discount: s.Discount,
	}
}

type RedeemRequest struct {
	Points    int64  `json:"points"`
	RewardRef string `json:"reward_ref"`
}

type RedemptionDTO struct {
	Applicable     bool            `json:"applicable"`
	Reason         string          `json:"reason,omitempty"`
	EntryID        string          `json:"entry_id,omitempty"`
	Points         int64           `json:"points"`
	MonetaryValue  decimal.Decimal `json:"monetary_value"`
	RewardRef      string          `json:"reward_ref,omitempty"`
	RedeemedAt     time.Time       `json:"redeemed_at"`
	AvailableAfter int64           `json:"available_after"`
}

func toRedemptionDTO(r loyalty.RedemptionRecord) RedemptionDTO {
	return RedemptionDTO{
		Applicable:     r.Applicable,
		Reason:         reasonOf(r.Reason),
		EntryID:        string(r.EntryID),
		Points:         r.Points,
		MonetaryValue:  r.MonetaryValue,
		RewardRef:      r.RewardRef,
		RedeemedAt:     r.RedeemedAt,
		AvailableAfter: r.AvailableAfter,
	}
}

type AdjustRequest struct {
	Points int64  `json:"points"`
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

type AwardDTO struct {
	Applicable bool           `json:"applicable"`
	Reason     string         `json:"reason,omitempty"`
	Points     int64          `json:"points"`
	Enrolled   bool           `json:"enrolled,omitempty"`
	TierChange *TierChangeDTO `json:"tier_change,omitempty"`
	Member     *MemberDTO     `json:"member,omitempty"`
}

func toAwardDTO(r loyalty.AwardResult) AwardDTO {
	dto := AwardDTO{
		Applicable: r.Applicable,
		Reason:     reasonOf(r.Reason),
		Points:     r.Points,
		Enrolled:   r.Enrolled,
	}
	if r.TierChange != nil {
		tc := toTierChangeDTO(*r.TierChange)
		dto.TierChange = &tc
	}
	if r.Member != nil {
		m := toMemberDTO(r.Member, false)
		dto.Member = &m
	}
	return dto
}

func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// =============================================================================
// ADMIN
// =============================================================================

// ExpireRequest runs the expiry sweep. AsOf defaults to now.
type ExpireRequest struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}
