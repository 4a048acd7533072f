package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/keylock"
	"github.com/warp/hotel-loyalty-engine/loyalty"
	"github.com/warp/hotel-loyalty-engine/observability"
	"go.uber.org/zap"
)

// Repository persists bookings.
type Repository interface {
	// GetBooking returns ErrBookingNotFound when the ID is unknown.
	GetBooking(ctx context.Context, id string) (*Booking, error)
	// SaveBooking stores b if the stored version equals b.Version (0 for a
	// new booking), then increments it. Returns ErrVersionConflict otherwise.
	SaveBooking(ctx context.Context, b *Booking) error
}

// DiscountSource supplies the guest's current tier discount. Read-only.
type DiscountSource interface {
	DiscountFor(ctx context.Context, ref loyalty.MemberRef) (decimal.Decimal, error)
}

type ServiceConfig struct {
	Repository Repository
	Discounts  DiscountSource
	Locker     keylock.Locker
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	Clock      func() time.Time
	MaxRetries int
}

// Service runs booking commands with the same lock -> load -> mutate -> save
// cycle as the loyalty service.
type Service struct {
	repo       Repository
	discounts  DiscountSource
	locker     keylock.Locker
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
	maxRetries int
}

func NewService(cfg ServiceConfig) *Service {
	s := &Service{
		repo:       cfg.Repository,
		discounts:  cfg.Discounts,
		locker:     cfg.Locker,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Clock,
		maxRetries: cfg.MaxRetries,
	}
	if s.locker == nil {
		s.locker = keylock.NewLocal()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.maxRetries <= 0 {
		s.maxRetries = 5
	}
	return s
}

// Create prices and stores a new pending booking. The loyalty discount is
// read once here and kept for the life of the booking.
func (s *Service) Create(ctx context.Context, req Request) (*Booking, error) {
	discount := decimal.Zero
	if s.discounts != nil {
		d, err := s.discounts.DiscountFor(ctx, loyalty.MemberRef{GuestID: req.GuestID, HotelID: req.HotelID, Channel: req.Channel})
		if err != nil {
			return nil, fmt.Errorf("loyalty discount: %w", err)
		}
		discount = d
	}

	b, err := New(req, discount, s.now())
	if err != nil {
		return nil, err
	}
	b.EnsureStatusRecorded(s.now())
	if err := s.repo.SaveBooking(ctx, b); err != nil {
		return nil, fmt.Errorf("save booking: %w", err)
	}
	s.metrics.BookingTransition(string(b.Status))
	s.logger.Info("booking created",
		zap.String("booking", b.ID),
		zap.String("guest", b.GuestID),
		zap.String("hotel", b.HotelID),
		zap.Stringer("total", b.Pricing.TotalAmount))
	return b, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// Update locks the booking and applies fn to a fresh copy, retrying on
// version conflicts. fn returns changed=false to skip the save.
func (s *Service) Update(ctx context.Context, id string, fn func(b *Booking) (changed bool, err error)) (*Booking, error) {
	unlock, err := s.locker.Lock(ctx, "booking:"+id)
	if err != nil {
		return nil, fmt.Errorf("lock booking %s: %w", id, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		b, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		before := b.Status

		changed, err := fn(b)
		if err != nil {
			return nil, err
		}
		if !changed {
			return b, nil
		}
		b.EnsureStatusRecorded(s.now())

		err = s.repo.SaveBooking(ctx, b)
		if errors.Is(err, ErrVersionConflict) && attempt < s.maxRetries {
			s.metrics.ConflictRetried("booking")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save booking %s: %w", id, err)
		}
		if b.Status != before {
			s.metrics.BookingTransition(string(b.Status))
			s.logger.Info("booking status changed",
				zap.String("booking", id),
				zap.String("from", string(before)),
				zap.String("to", string(b.Status)))
		}
		return b, nil
	}
}

func (s *Service) Transition(ctx context.Context, id string, to Status, actor, note string) (*Booking, error) {
	return s.Update(ctx, id, func(b *Booking) (bool, error) {
		return true, b.Transition(to, actor, note, s.now())
	})
}

func (s *Service) Cancel(ctx context.Context, id, actor, reason string) (*Booking, error) {
	return s.Update(ctx, id, func(b *Booking) (bool, error) {
		return true, b.Cancel(actor, reason, s.now())
	})
}

func (s *Service) Modify(ctx context.Context, id string, mod Modification, actor string) (*Booking, error) {
	return s.Update(ctx, id, func(b *Booking) (bool, error) {
		return true, b.Modify(mod, actor, s.now())
	})
}
