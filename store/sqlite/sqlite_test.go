package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/booking"
	"github.com/warp/hotel-loyalty-engine/ledger"
	"github.com/warp/hotel-loyalty-engine/loyalty"
	"github.com/warp/hotel-loyalty-engine/pricing"
	"github.com/warp/hotel-loyalty-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

var now = time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

func testProgram() loyalty.ProgramConfig {
	maxRedeem := int64(5000)
	return loyalty.ProgramConfig{
		HotelID:                "hotel-1",
		PointsPerCurrencyUnit:  decimal.NewFromInt(1),
		PointsPerNight:         decimal.NewFromInt(100),
		ServiceTypeMultipliers: map[string]decimal.Decimal{"laundry": decimal.RequireFromString("1.2")},
		Redemption: loyalty.RedemptionRule{
			PointsPerCurrencyUnit: decimal.NewFromInt(100),
			Minimum:               100,
			Maximum:               &maxRedeem,
		},
		ExpirationMonths: 12,
		IsActive:         true,
		Tiers: []loyalty.Tier{
			{Name: "BRONZE", MinPoints: 0, MaxPoints: 999, DiscountPercentage: decimal.Zero},
			{Name: "SILVER", MinPoints: 1000, MaxPoints: loyalty.Unbounded, DiscountPercentage: decimal.NewFromInt(5), Benefits: []string{"late checkout"}},
		},
		UpdatedAt: now,
	}
}

// =============================================================================
// PROGRAMS
// =============================================================================

func TestSQLite_Program_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := testProgram()
	require.NoError(t, store.SaveProgram(ctx, &cfg))
	assert.Equal(t, int64(1), cfg.Version)

	got, err := store.GetProgram(ctx, loyalty.ProgramKey{HotelID: "hotel-1"})
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.Version)
	assert.True(t, got.IsActive)
	assert.True(t, got.Multiplier("laundry").Equal(decimal.RequireFromString("1.2")))
	require.NotNil(t, got.Redemption.Maximum)
	assert.Equal(t, int64(5000), *got.Redemption.Maximum)
	assert.True(t, loyalty.TiersEqual(cfg.Tiers, got.Tiers))
	assert.Equal(t, []string{"late checkout"}, got.Tiers[1].Benefits)

	_, err = store.GetProgram(ctx, loyalty.ProgramKey{HotelID: "hotel-1", Channel: "corporate"})
	assert.ErrorIs(t, err, loyalty.ErrProgramNotFound)
}

func TestSQLite_Program_StaleVersionRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := testProgram()
	require.NoError(t, store.SaveProgram(ctx, &cfg))

	stale := cfg
	stale.Version = 0
	assert.ErrorIs(t, store.SaveProgram(ctx, &stale), loyalty.ErrLedgerConflict)

	cfg.IsActive = false
	require.NoError(t, store.SaveProgram(ctx, &cfg))
	assert.Equal(t, int64(2), cfg.Version)

	programs, err := store.ListPrograms(ctx)
	require.NoError(t, err)
	require.Len(t, programs, 1)
	assert.False(t, programs[0].IsActive)
}

// =============================================================================
// MEMBERS
// =============================================================================

func newMemberWithPoints(t *testing.T, points int64) *loyalty.Member {
	key := loyalty.MemberKey{GuestID: "guest-1", Scope: "hotel-1"}
	m := loyalty.NewMember(key, testProgram().Tiers, now)
	require.NoError(t, m.Ledger.Append(ledger.Entry{
		Type:             ledger.EntryEarned,
		Points:           points,
		OccurredAt:       now,
		ExpiresAt:        ledger.ExpiryFrom(now, 12),
		SourceBookingRef: "b-1",
		IdempotencyKey:   "spend:b-1",
	}))
	m.TotalPoints = points
	m.AvailablePoints = points
	m.LifetimeSpending = decimal.RequireFromString("123.45")
	return m
}

func TestSQLite_Member_RoundTripWithLedger(t *testing.T) {
	// GIVEN: A new member with one EARNED entry
	// WHEN: Saved and loaded back
	// THEN: Counters, spending and entries survive, version is 1

	store := newTestStore(t)
	ctx := context.Background()

	m := newMemberWithPoints(t, 60)
	require.NoError(t, store.SaveMember(ctx, m))
	assert.Equal(t, int64(1), m.Version)

	got, err := store.GetMember(ctx, m.Key)
	require.NoError(t, err)

	assert.Equal(t, int64(60), got.TotalPoints)
	assert.Equal(t, "BRONZE", got.CurrentTier)
	assert.True(t, got.LifetimeSpending.Equal(decimal.RequireFromString("123.45")))
	assert.True(t, got.JoinDate.Equal(now))
	require.Equal(t, 1, got.Ledger.Len())
	e := got.Ledger.Entries()[0]
	assert.Equal(t, ledger.EntryEarned, e.Type)
	assert.Equal(t, "b-1", e.SourceBookingRef)
	require.NotNil(t, e.ExpiresAt)
	assert.True(t, got.Ledger.HasKey("spend:b-1"))
	assert.NoError(t, got.Verify())
}

func TestSQLite_Member_ConcurrentSaveConflicts(t *testing.T) {
	// GIVEN: Two writers load the same member at version 1
	// WHEN: Both save
	// THEN: The first wins, the second gets ErrLedgerConflict

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMember(ctx, newMemberWithPoints(t, 60)))
	key := loyalty.MemberKey{GuestID: "guest-1", Scope: "hotel-1"}

	a, err := store.GetMember(ctx, key)
	require.NoError(t, err)
	b, err := store.GetMember(ctx, key)
	require.NoError(t, err)

	a.CurrentTier = "SILVER"
	require.NoError(t, store.SaveMember(ctx, a))

	b.LifetimeNights = 3
	err = store.SaveMember(ctx, b)
	assert.ErrorIs(t, err, loyalty.ErrLedgerConflict)

	got, err := store.GetMember(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "SILVER", got.CurrentTier)
	assert.Equal(t, 0, got.LifetimeNights)
}

func TestSQLite_Member_DuplicateInsertConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveMember(ctx, newMemberWithPoints(t, 10)))
	err := store.SaveMember(ctx, newMemberWithPoints(t, 20))
	assert.ErrorIs(t, err, loyalty.ErrLedgerConflict)
}

func TestSQLite_Member_ExpiryFlagPersisted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := newMemberWithPoints(t, 60)
	require.NoError(t, store.SaveMember(ctx, m))

	asOf := now.AddDate(1, 0, 1)
	flagged := m.Ledger.MarkExpired(asOf)
	require.Equal(t, int64(60), flagged)
	require.NoError(t, m.Ledger.Append(ledger.Entry{Type: ledger.EntryExpired, Points: 60, Unredeemed: 60, OccurredAt: asOf}))
	m.TotalPoints, m.AvailablePoints = 0, 0
	require.NoError(t, store.SaveMember(ctx, m))

	got, err := store.GetMember(ctx, m.Key)
	require.NoError(t, err)
	entries := got.Ledger.Entries()
	require.Len(t, entries, 2)
	assert.True(t, entries[0].Expired)
	require.NotNil(t, entries[0].ExpiredAt)
	assert.Equal(t, ledger.EntryExpired, entries[1].Type)
	assert.Equal(t, int64(60), entries[1].Unredeemed)
	assert.NoError(t, got.Verify())
}

func TestSQLite_ListMembers_ByScope(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, guest := range []string{"g-2", "g-1"} {
		m := loyalty.NewMember(loyalty.MemberKey{GuestID: guest, Scope: "group-1"}, testProgram().Tiers, now)
		require.NoError(t, store.SaveMember(ctx, m))
	}
	other := loyalty.NewMember(loyalty.MemberKey{GuestID: "g-3", Scope: "hotel-9"}, testProgram().Tiers, now)
	require.NoError(t, store.SaveMember(ctx, other))

	members, err := store.ListMembers(ctx, "group-1", "")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "g-1", members[0].Key.GuestID)
	assert.NotNil(t, members[0].Ledger)

	_, err = store.GetMember(ctx, loyalty.MemberKey{GuestID: "nobody", Scope: "group-1"})
	assert.ErrorIs(t, err, loyalty.ErrMemberNotFound)
}

// =============================================================================
// BOOKINGS
// =============================================================================

func TestSQLite_Booking_RoundTripAndConflict(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b, err := booking.New(booking.Request{
		GuestID:          "guest-1",
		HotelID:          "hotel-1",
		ServiceID:        "svc-laundry",
		ServiceType:      "laundry",
		BasePrice:        decimal.NewFromInt(50),
		Quantity:         1,
		Options:          []pricing.Line{{Name: "starch", Price: decimal.RequireFromString("2.50")}},
		MarkupPercentage: decimal.NewFromInt(20),
		TaxRate:          decimal.NewFromInt(10),
	}, decimal.Zero, now)
	require.NoError(t, err)
	require.NoError(t, store.SaveBooking(ctx, b))

	got, err := store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.StatusPending, got.Status)
	assert.True(t, got.Pricing.TotalAmount.Equal(b.Pricing.TotalAmount))
	assert.Len(t, got.Options, 1)
	assert.Equal(t, int64(1), got.Version)

	stale := got.Clone()
	require.NoError(t, got.Transition(booking.StatusConfirmed, "ops", "", now))
	require.NoError(t, store.SaveBooking(ctx, got))

	require.NoError(t, stale.Cancel("guest", "changed plans", now))
	assert.ErrorIs(t, store.SaveBooking(ctx, stale), booking.ErrVersionConflict)

	_, err = store.GetBooking(ctx, "missing")
	assert.ErrorIs(t, err, booking.ErrBookingNotFound)
}

func TestSQLite_Reset_ClearsAllTables(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	cfg := testProgram()
	require.NoError(t, store.SaveProgram(ctx, &cfg))
	m := newMemberWithPoints(t, 60)
	require.NoError(t, store.SaveMember(ctx, m))

	require.NoError(t, store.Reset(ctx))

	_, err := store.GetProgram(ctx, cfg.Key())
	assert.ErrorIs(t, err, loyalty.ErrProgramNotFound)
	_, err = store.GetMember(ctx, m.Key)
	assert.ErrorIs(t, err, loyalty.ErrMemberNotFound)

	// A reset store accepts fresh inserts again.
	m2 := newMemberWithPoints(t, 10)
	require.NoError(t, store.SaveMember(ctx, m2))
	assert.Equal(t, int64(1), m2.Version)
}
