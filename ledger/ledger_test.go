package ledger_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/hotel-loyalty-engine/ledger"
)

var jan1 = time.Date(2025, time.January, 1, 10, 0, 0, 0, time.UTC)

func earned(points int64, at time.Time, months int) ledger.Entry {
	return ledger.Entry{
		Type:       ledger.EntryEarned,
		Points:     points,
		OccurredAt: at,
		ExpiresAt:  ledger.ExpiryFrom(at, months),
	}
}

// =============================================================================
// APPEND TESTS
// =============================================================================

func TestLedger_Append_AssignsIDAndKeepsOrder(t *testing.T) {
	l := ledger.New()

	require.NoError(t, l.Append(earned(100, jan1, 12)))
	require.NoError(t, l.Append(ledger.Entry{Type: ledger.EntryRedeemed, Points: 40, OccurredAt: jan1.Add(time.Hour)}))

	entries := l.Entries()
	require.Len(t, entries, 2)
	assert.NotEmpty(t, entries[0].ID)
	assert.Equal(t, ledger.EntryEarned, entries[0].Type)
	assert.Equal(t, ledger.EntryRedeemed, entries[1].Type)
}

func TestLedger_Append_DuplicateKeyRejected(t *testing.T) {
	// GIVEN: An entry recorded for booking b-1
	// WHEN: The same business event is appended again
	// THEN: DuplicateEntryError, ledger unchanged

	l := ledger.New()
	e := earned(60, jan1, 12)
	e.IdempotencyKey = "spend:b-1"
	require.NoError(t, l.Append(e))

	err := l.Append(e)

	var dup *ledger.DuplicateEntryError
	require.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, ledger.ErrDuplicateEntry)
	assert.Equal(t, "spend:b-1", dup.Key)
	assert.Equal(t, 1, l.Len())
	assert.True(t, l.HasKey("spend:b-1"))
}

func TestLedger_Append_ValidatesEntries(t *testing.T) {
	tests := []struct {
		name  string
		entry ledger.Entry
	}{
		{"unknown type", ledger.Entry{Type: "BONUS", Points: 10, OccurredAt: jan1}},
		{"zero earned", ledger.Entry{Type: ledger.EntryEarned, Points: 0, OccurredAt: jan1}},
		{"negative redeemed", ledger.Entry{Type: ledger.EntryRedeemed, Points: -5, OccurredAt: jan1}},
		{"zero adjust", ledger.Entry{Type: ledger.EntryAdjust, Points: 0, OccurredAt: jan1}},
		{"missing time", ledger.Entry{Type: ledger.EntryEarned, Points: 5}},
		{"expiry on redemption", ledger.Entry{Type: ledger.EntryRedeemed, Points: 5, OccurredAt: jan1, ExpiresAt: ledger.ExpiryFrom(jan1, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ledger.New().Append(tt.entry)
			assert.ErrorIs(t, err, ledger.ErrInvalidEntry)
		})
	}
}

func TestLedger_Append_NegativeAdjustAllowed(t *testing.T) {
	l := ledger.New()
	require.NoError(t, l.Append(ledger.Entry{Type: ledger.EntryAdjust, Points: -20, OccurredAt: jan1}))
	assert.Equal(t, int64(-20), l.Summarize().Adjusted)
}

// =============================================================================
// EXPIRY TESTS
// =============================================================================

func TestLedger_MarkExpired_FlagsOnlyDueEntries(t *testing.T) {
	// GIVEN: One entry expiring after 1 month, one after 12, one never
	// WHEN: Expiry runs two months later
	// THEN: Only the first is flagged

	l := ledger.New()
	require.NoError(t, l.Append(earned(100, jan1, 1)))
	require.NoError(t, l.Append(earned(200, jan1, 12)))
	require.NoError(t, l.Append(earned(300, jan1, 0)))

	asOf := jan1.AddDate(0, 2, 0)
	assert.Len(t, l.Due(asOf), 1)

	sum := l.MarkExpired(asOf)

	assert.Equal(t, int64(100), sum)
	entries := l.Entries()
	assert.True(t, entries[0].Expired)
	require.NotNil(t, entries[0].ExpiredAt)
	assert.False(t, entries[1].Expired)
	assert.False(t, entries[2].Expired)

	// Second run finds nothing
	assert.Equal(t, int64(0), l.MarkExpired(asOf))
}

func TestLedger_IsDue_StrictlyBefore(t *testing.T) {
	e := earned(10, jan1, 1)
	assert.False(t, e.IsDue(*e.ExpiresAt), "expiry at exactly asOf is not yet due")
	assert.True(t, e.IsDue(e.ExpiresAt.Add(time.Second)))
}

func TestExpiryFrom_ZeroMonthsNeverExpires(t *testing.T) {
	assert.Nil(t, ledger.ExpiryFrom(jan1, 0))
	exp := ledger.ExpiryFrom(jan1, 12)
	require.NotNil(t, exp)
	assert.Equal(t, time.Date(2026, time.January, 1, 10, 0, 0, 0, time.UTC), *exp)
}

// =============================================================================
// SUMMARY TESTS
// =============================================================================

func TestSummarize_Conservation(t *testing.T) {
	// GIVEN: A mix of every entry type
	// THEN: Total and Available follow the replay formulas

	l := ledger.New()
	require.NoError(t, l.Append(earned(500, jan1, 12)))
	require.NoError(t, l.Append(ledger.Entry{Type: ledger.EntryNights, Points: 300, OccurredAt: jan1}))
	require.NoError(t, l.Append(ledger.Entry{Type: ledger.EntryAdjust, Points: 50, OccurredAt: jan1}))
	require.NoError(t, l.Append(ledger.Entry{Type: ledger.EntryRedeemed, Points: 200, OccurredAt: jan1}))
	require.NoError(t, l.Append(ledger.Entry{Type: ledger.EntryExpired, Points: 100, Unredeemed: 40, OccurredAt: jan1}))

	s := l.Summarize()

	assert.Equal(t, int64(850), s.LifetimeEarned)
	assert.Equal(t, int64(100), s.Expired)
	assert.Equal(t, int64(40), s.ExpiredUnredeemed)
	assert.Equal(t, int64(750), s.Total())
	assert.Equal(t, int64(610), s.Available())
}

func TestLedger_Append_UnredeemedOnlyOnExpiredWithinPoints(t *testing.T) {
	l := ledger.New()

	err := l.Append(ledger.Entry{Type: ledger.EntryExpired, Points: 100, Unredeemed: 101, OccurredAt: jan1})
	assert.ErrorIs(t, err, ledger.ErrInvalidEntry)

	err = l.Append(ledger.Entry{Type: ledger.EntryExpired, Points: 100, Unredeemed: -1, OccurredAt: jan1})
	assert.ErrorIs(t, err, ledger.ErrInvalidEntry)

	err = l.Append(ledger.Entry{Type: ledger.EntryRedeemed, Points: 100, Unredeemed: 10, OccurredAt: jan1})
	assert.ErrorIs(t, err, ledger.ErrInvalidEntry)

	assert.NoError(t, l.Append(ledger.Entry{Type: ledger.EntryExpired, Points: 100, Unredeemed: 0, OccurredAt: jan1}))
	assert.Equal(t, 1, l.Len())
}

func TestFromEntries_RestoresKeysAndOrder(t *testing.T) {
	later := earned(10, jan1.Add(48*time.Hour), 0)
	first := earned(20, jan1, 0)
	first.IdempotencyKey = "k1"

	l := ledger.FromEntries([]ledger.Entry{later, first})

	assert.True(t, l.HasKey("k1"))
	assert.Equal(t, int64(20), l.Entries()[0].Points)

	clone := l.Clone()
	require.NoError(t, clone.Append(earned(5, jan1, 0)))
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 3, clone.Len())
}
