/*
Package settlement applies payment outcomes to bookings and loyalty ledgers.

FLOW (success):
  1. Record payment on the booking and move it to completed
  2. Award spend points (amount paid, service type) and night points
  3. Store the awarded points on the booking and mark it settled

FLOW (failure):
  Payment is marked failed. Status and ledger are untouched. A failure that
  arrives after the booking was paid or settled is ignored.

IDEMPOTENCY:
  Replaying an outcome never awards twice. A settled booking is skipped, and
  if a previous run stopped between steps 2 and 3 the ledger's per-booking
  idempotency keys return the original award instead of a new one.
*/
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/booking"
	"github.com/warp/hotel-loyalty-engine/loyalty"
	"github.com/warp/hotel-loyalty-engine/observability"
	"go.uber.org/zap"
)

// Awarder is the part of loyalty.Service used by settlement.
type Awarder interface {
	AwardForSpend(ctx context.Context, ref loyalty.MemberRef, amount decimal.Decimal, serviceType, bookingRef string) (loyalty.AwardResult, error)
	AwardForNights(ctx context.Context, ref loyalty.MemberRef, nights int, bookingRef string) (loyalty.AwardResult, error)
}

// Bookings is the part of booking.Service used by settlement.
type Bookings interface {
	Update(ctx context.Context, id string, fn func(b *booking.Booking) (bool, error)) (*booking.Booking, error)
}

type Result string

const (
	ResultSettled        Result = "settled"
	ResultAlreadySettled Result = "already_settled"
	ResultPaymentFailed  Result = "payment_failed"
)

// Outcome reports what ApplyPaymentOutcome did.
type Outcome struct {
	Result        Result
	Booking       *booking.Booking
	SpendPoints   int64
	NightPoints   int64
	LoyaltyReason error // set when loyalty did not apply (no program, inactive member)
}

type Service struct {
	bookings Bookings
	loyalty  Awarder
	logger   *zap.Logger
	metrics  *observability.Metrics
}

func NewService(bookings Bookings, awarder Awarder, logger *zap.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{bookings: bookings, loyalty: awarder, logger: logger, metrics: metrics}
}

// ApplyPaymentOutcome settles a booking from a payment gateway outcome.
func (s *Service) ApplyPaymentOutcome(ctx context.Context, o booking.PaymentOutcome) (Outcome, error) {
	if o.PaidAt.IsZero() {
		o.PaidAt = time.Now().UTC()
	}
	if !o.Succeeded {
		alreadyPaid := false
		b, err := s.bookings.Update(ctx, o.BookingID, func(b *booking.Booking) (bool, error) {
			if b.Payment.Status == booking.PaymentPaid || b.LoyaltyAwarded {
				alreadyPaid = true
				return false, nil
			}
			b.RecordPayment(o)
			return true, nil
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("record failed payment: %w", err)
		}
		if alreadyPaid {
			s.metrics.Settlement(string(ResultAlreadySettled))
			s.logger.Warn("failed payment outcome ignored, booking already paid",
				zap.String("booking", o.BookingID), zap.String("reference", o.Reference))
			return Outcome{Result: ResultAlreadySettled, Booking: b, SpendPoints: b.PointsAwarded}, nil
		}
		s.metrics.Settlement(string(ResultPaymentFailed))
		s.logger.Warn("payment failed", zap.String("booking", o.BookingID), zap.String("reference", o.Reference))
		return Outcome{Result: ResultPaymentFailed, Booking: b}, nil
	}

	alreadySettled := false
	b, err := s.bookings.Update(ctx, o.BookingID, func(b *booking.Booking) (bool, error) {
		if b.LoyaltyAwarded {
			alreadySettled = true
			return false, nil
		}
		b.RecordPayment(o)
		if b.Status != booking.StatusCompleted {
			if err := b.AutoTransition(booking.StatusCompleted, "payment received", o.PaidAt); err != nil {
				return false, err
			}
		}
		return true, nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("complete booking: %w", err)
	}
	if alreadySettled {
		s.metrics.Settlement(string(ResultAlreadySettled))
		return Outcome{Result: ResultAlreadySettled, Booking: b, SpendPoints: b.PointsAwarded}, nil
	}

	out := Outcome{Result: ResultSettled}
	ref := loyalty.MemberRef{GuestID: b.GuestID, HotelID: b.HotelID, Channel: b.Channel}

	spend, err := s.loyalty.AwardForSpend(ctx, ref, o.AmountPaid, b.ServiceType, b.ID)
	if err != nil {
		return Outcome{}, fmt.Errorf("award spend points: %w", err)
	}
	out.SpendPoints = spend.Points
	if !spend.Applicable {
		out.LoyaltyReason = spend.Reason
	}

	if b.Nights > 0 && spend.Applicable {
		nights, err := s.loyalty.AwardForNights(ctx, ref, b.Nights, b.ID)
		if err != nil {
			return Outcome{}, fmt.Errorf("award night points: %w", err)
		}
		out.NightPoints = nights.Points
	}

	b, err = s.bookings.Update(ctx, o.BookingID, func(b *booking.Booking) (bool, error) {
		if b.LoyaltyAwarded {
			return false, nil
		}
		b.PointsAwarded = out.SpendPoints + out.NightPoints
		b.LoyaltyAwarded = true
		return true, nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("mark booking settled: %w", err)
	}
	out.Booking = b

	s.metrics.Settlement(string(ResultSettled))
	s.logger.Info("booking settled",
		zap.String("booking", b.ID),
		zap.Stringer("amount_paid", o.AmountPaid),
		zap.Int64("spend_points", out.SpendPoints),
		zap.Int64("night_points", out.NightPoints))
	return out, nil
}
