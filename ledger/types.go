/*
Package ledger provides the append-only points ledger for one loyalty member.

PURPOSE:
  Every point-affecting event for a (guest, hotel) pair is recorded here as an
  immutable Entry. Balances are never stored independently of the entries that
  produced them: Summary() replays the ledger, and the loyalty package checks
  its denormalized counters against that replay.

KEY CONCEPTS IN THIS FILE (types.go):
  - EntryType: EARNED, NIGHTS, REDEEMED, EXPIRED, ADJUST
  - Entry: one immutable point event with optional expiry
  - Points: signed integer point quantities

DESIGN PRINCIPLES:
  1. Immutability: entries are never edited or removed; expiration is a flag
     on the earning entry plus a separate EXPIRED entry
  2. Integer points: points are whole numbers, money lives in decimal.Decimal
  3. Idempotency: an entry may carry a key; the ledger rejects duplicates

USAGE:
  l := ledger.New()
  err := l.Append(ledger.Entry{
      Type:       ledger.EntryEarned,
      Points:     60,
      OccurredAt: now,
      ExpiresAt:  ledger.ExpiryFrom(now, 12),
  })

SEE ALSO:
  - ledger.go: Ledger append/expiry operations
  - summary.go: Aggregates derived by replay
  - loyalty/member.go: Member aggregate owning a Ledger
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ENTRY TYPES
// =============================================================================

type EntryType string

const (
	EntryEarned   EntryType = "EARNED"   // Points from spend
	EntryNights   EntryType = "NIGHTS"   // Points from nights stayed
	EntryRedeemed EntryType = "REDEEMED" // Points spent on a reward
	EntryExpired  EntryType = "EXPIRED"  // Ledger-level expiry adjustment
	EntryAdjust   EntryType = "ADJUST"   // Manual admin correction, signed
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryEarned, EntryNights, EntryRedeemed, EntryExpired, EntryAdjust:
		return true
	}
	return false
}

// Expirable reports whether entries of this type carry an expiry date.
func (t EntryType) Expirable() bool {
	return t == EntryEarned || t == EntryNights
}

// =============================================================================
// ENTRY - One immutable point event
// =============================================================================

type EntryID string

// NewEntryID returns a random entry identifier.
func NewEntryID() EntryID {
	return EntryID(uuid.NewString())
}

// Entry is a single point-affecting event.
//
// Points is always stored as a positive magnitude for EARNED, NIGHTS,
// REDEEMED and EXPIRED. ADJUST is the only signed type.
//
// An EXPIRED entry removes Points from the tier total and Unredeemed from the
// redeemable balance. Unredeemed is lower than Points when part of the expired
// earnings had already been spent.
type Entry struct {
	ID         EntryID
	Type       EntryType
	Points     int64
	Unredeemed int64
	OccurredAt time.Time
	ExpiresAt  *time.Time

	SourceBookingRef string
	RewardRef        string
	Note             string
	Actor            string

	// IdempotencyKey rejects a second append of the same business event.
	IdempotencyKey string

	// Status flag set by expiry; the only mutable part of an entry.
	Expired   bool
	ExpiredAt *time.Time
}

// IsDue reports whether the entry should expire at asOf.
func (e Entry) IsDue(asOf time.Time) bool {
	if !e.Type.Expirable() || e.Expired || e.ExpiresAt == nil {
		return false
	}
	return e.ExpiresAt.Before(asOf)
}

// ExpiryFrom computes the expiry date for an earning entry created at t.
// Zero months means the points never expire.
func ExpiryFrom(t time.Time, months int) *time.Time {
	if months <= 0 {
		return nil
	}
	exp := t.AddDate(0, months, 0)
	return &exp
}
