package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/booking"
	"github.com/warp/hotel-loyalty-engine/loyalty"
	"github.com/warp/hotel-loyalty-engine/store/memory"
)

type fixedDiscount struct {
	pct  decimal.Decimal
	err  error
	seen []loyalty.MemberRef
}

func (f *fixedDiscount) DiscountFor(_ context.Context, ref loyalty.MemberRef) (decimal.Decimal, error) {
	f.seen = append(f.seen, ref)
	return f.pct, f.err
}

func newService(repo booking.Repository, discounts booking.DiscountSource) *booking.Service {
	return booking.NewService(booking.ServiceConfig{
		Repository: repo,
		Discounts:  discounts,
		Clock:      func() time.Time { return t0 },
	})
}

func TestService_CreateAppliesLoyaltyDiscount(t *testing.T) {
	discounts := &fixedDiscount{pct: d("10")}
	svc := newService(memory.New(), discounts)
	ctx := context.Background()

	b, err := svc.Create(ctx, request())
	require.NoError(t, err)

	assertMoney(t, "118.80", b.Pricing.TotalAmount, "total")
	assert.Equal(t, int64(1), b.Version)
	require.Len(t, discounts.seen, 1)
	assert.Equal(t, "guest-1", discounts.seen[0].GuestID)

	stored, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, b.Pricing.TotalAmount.Equal(stored.Pricing.TotalAmount))
}

func TestService_CreateFailsWhenDiscountLookupFails(t *testing.T) {
	svc := newService(memory.New(), &fixedDiscount{err: errors.New("db down")})

	_, err := svc.Create(context.Background(), request())
	assert.Error(t, err)
}

func TestService_CancelGuard(t *testing.T) {
	svc := newService(memory.New(), nil)
	ctx := context.Background()

	b, err := svc.Create(ctx, request())
	require.NoError(t, err)
	_, err = svc.Transition(ctx, b.ID, booking.StatusInProgress, "staff-1", "")
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, b.ID, "guest-1", "changed mind")
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)

	stored, err := svc.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusInProgress, stored.Status)
}

func TestService_UpdateRecordsBypassedStatus(t *testing.T) {
	svc := newService(memory.New(), nil)
	ctx := context.Background()
	b, err := svc.Create(ctx, request())
	require.NoError(t, err)

	updated, err := svc.Update(ctx, b.ID, func(b *booking.Booking) (bool, error) {
		b.Status = booking.StatusConfirmed
		return true, nil
	})
	require.NoError(t, err)

	last := updated.StatusHistory[len(updated.StatusHistory)-1]
	assert.Equal(t, booking.StatusConfirmed, last.Status)
	assert.True(t, last.Automatic)
}

func TestService_UnknownBooking(t *testing.T) {
	svc := newService(memory.New(), nil)
	_, err := svc.Cancel(context.Background(), "missing", "", "")
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)
}

// conflictingRepo fails the first n saves of existing bookings.
type conflictingRepo struct {
	*memory.Store
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingRepo) SaveBooking(ctx context.Context, b *booking.Booking) error {
	r.mu.Lock()
	if b.Version > 0 && r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return booking.ErrVersionConflict
	}
	r.mu.Unlock()
	return r.Store.SaveBooking(ctx, b)
}

func TestService_UpdateRetriesConflicts(t *testing.T) {
	repo := &conflictingRepo{Store: memory.New(), conflicts: 2}
	svc := newService(repo, nil)
	ctx := context.Background()
	b, err := svc.Create(ctx, request())
	require.NoError(t, err)

	calls := 0
	updated, err := svc.Update(ctx, b.ID, func(b *booking.Booking) (bool, error) {
		calls++
		return true, b.Transition(booking.StatusConfirmed, "", "", t0)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, calls, "reloaded on each conflict")
	assert.Equal(t, booking.StatusConfirmed, updated.Status)
	assert.Equal(t, int64(2), updated.Version)
}

func TestService_ModifyKeepsOriginalDiscount(t *testing.T) {
	discounts := &fixedDiscount{pct: d("10")}
	svc := newService(memory.New(), discounts)
	ctx := context.Background()
	b, err := svc.Create(ctx, request())
	require.NoError(t, err)

	// Tier changes after creation do not affect the booking
	discounts.pct = d("15")
	qty := 2
	updated, err := svc.Modify(ctx, b.ID, booking.Modification{Quantity: &qty}, "guest-1")
	require.NoError(t, err)

	assertMoney(t, "10", updated.Pricing.LoyaltyDiscountPercentage, "discount pct")
	assertMoney(t, "237.60", updated.Pricing.TotalAmount, "total")
	assert.Len(t, discounts.seen, 1)
}
