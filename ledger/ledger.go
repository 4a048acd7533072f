/*
ledger.go - Append-only point entry log

PURPOSE:
  The Ledger is the source of truth for a member's points. Earning,
  redemption, expiry and adjustments are all appended here; balances are
  derived by replaying entries (see summary.go).

CRITICAL INVARIANTS:
  1. APPEND-ONLY: entries are never removed or rewritten
  2. The Expired flag on EARNED/NIGHTS entries is the only mutation, and it
     is always paired with an EXPIRED entry carrying the removed amounts
  3. IDEMPOTENT: same idempotency key = rejected append

EXPIRATION:
  Expiry does not delete the earning entry. Instead:
  1. MarkExpired() flags the due EARNED/NIGHTS entries
  2. The caller appends an EXPIRED entry. Points is the amount removed from
     the tier total; Unredeemed is the part of it still available, which is
     all that leaves the redeemable balance

SEE ALSO:
  - types.go: Entry definition
  - summary.go: Replay aggregates
*/
package ledger

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the ordered list of entries for one member.
// It is not safe for concurrent use; callers serialize access per member key.
type Ledger struct {
	entries []Entry
	keys    map[string]bool
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{keys: make(map[string]bool)}
}

// FromEntries rebuilds a ledger from persisted entries.
func FromEntries(entries []Entry) *Ledger {
	l := New()
	l.entries = make([]Entry, len(entries))
	copy(l.entries, entries)
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].OccurredAt.Before(l.entries[j].OccurredAt)
	})
	for _, e := range l.entries {
		if e.IdempotencyKey != "" {
			l.keys[e.IdempotencyKey] = true
		}
	}
	return l
}

// Append validates and adds an entry. This is the ONLY way entries are created.
func (l *Ledger) Append(e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	if e.IdempotencyKey != "" && l.keys[e.IdempotencyKey] {
		return &DuplicateEntryError{Key: e.IdempotencyKey}
	}
	if e.ID == "" {
		e.ID = NewEntryID()
	}
	l.entries = append(l.entries, e)
	if e.IdempotencyKey != "" {
		l.keys[e.IdempotencyKey] = true
	}
	return nil
}

// HasKey reports whether an entry with this idempotency key exists.
func (l *Ledger) HasKey(key string) bool {
	return key != "" && l.keys[key]
}

// Entries returns a copy of all entries in chronological order.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int { return len(l.entries) }

// Clone returns an independent copy, used to stage a mutation before commit.
func (l *Ledger) Clone() *Ledger {
	return FromEntries(l.entries)
}

// =============================================================================
// EXPIRY
// =============================================================================

// Due returns the entries that should expire at asOf.
func (l *Ledger) Due(asOf time.Time) []Entry {
	var due []Entry
	for _, e := range l.entries {
		if e.IsDue(asOf) {
			due = append(due, e)
		}
	}
	return due
}

// MarkExpired flags every due entry as expired and returns the sum of their points.
func (l *Ledger) MarkExpired(asOf time.Time) int64 {
	var sum int64
	for i := range l.entries {
		if l.entries[i].IsDue(asOf) {
			at := asOf
			l.entries[i].Expired = true
			l.entries[i].ExpiredAt = &at
			sum += l.entries[i].Points
		}
	}
	return sum
}

// =============================================================================
// VALIDATION
// =============================================================================

func validateEntry(e Entry) error {
	if !e.Type.Valid() {
		return &InvalidEntryError{Type: e.Type, Reason: "unknown entry type"}
	}
	if e.OccurredAt.IsZero() {
		return &InvalidEntryError{Type: e.Type, Reason: "occurred_at is required"}
	}
	switch e.Type {
	case EntryAdjust:
		if e.Points == 0 {
			return &InvalidEntryError{Type: e.Type, Reason: "adjustment must be non-zero"}
		}
	default:
		if e.Points <= 0 {
			return &InvalidEntryError{Type: e.Type, Reason: fmt.Sprintf("points must be positive, got %d", e.Points)}
		}
	}
	if e.Type == EntryExpired {
		if e.Unredeemed < 0 || e.Unredeemed > e.Points {
			return &InvalidEntryError{Type: e.Type, Reason: fmt.Sprintf("unredeemed %d outside [0, %d]", e.Unredeemed, e.Points)}
		}
	} else if e.Unredeemed != 0 {
		return &InvalidEntryError{Type: e.Type, Reason: "only EXPIRED entries carry unredeemed points"}
	}
	if e.ExpiresAt != nil && !e.Type.Expirable() {
		return &InvalidEntryError{Type: e.Type, Reason: "only EARNED and NIGHTS entries expire"}
	}
	return nil
}
