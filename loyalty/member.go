package loyalty

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/ledger"
)

// =============================================================================
// MEMBER - Loyalty account of one guest within one program scope
// =============================================================================

// MemberKey identifies a ledger: guest within a hotel (or pooled group) and channel.
type MemberKey struct {
	GuestID string `json:"guest_id"`
	Scope   string `json:"scope"`
	Channel string `json:"channel,omitempty"`
}

func (k MemberKey) String() string {
	return "member:" + k.GuestID + ":" + k.Scope + ":" + k.Channel
}

// TierChangeRecord is one entry of a member's tier history.
type TierChangeRecord struct {
	From     string
	To       string
	Reason   string
	At       time.Time
	Upgraded bool
}

// Member is the loyalty aggregate. Counters are denormalized from the ledger
// and kept in step by the apply methods below:
//
//	TotalPoints     = LifetimeEarned - Expired
//	AvailablePoints = LifetimeEarned - Redeemed - ExpiredUnredeemed
type Member struct {
	Key              MemberKey
	CurrentTier      string
	TotalPoints      int64
	AvailablePoints  int64
	LifetimeSpending decimal.Decimal
	LifetimeNights   int
	TierHistory      []TierChangeRecord
	JoinDate         time.Time
	IsActive         bool
	Version          int64

	Ledger *ledger.Ledger
}

// NewMember enrolls a guest at the tier matching zero points.
func NewMember(key MemberKey, tiers []Tier, now time.Time) *Member {
	return &Member{
		Key:              key,
		CurrentTier:      ResolveTier(0, tiers).Name,
		LifetimeSpending: decimal.Zero,
		JoinDate:         now,
		IsActive:         true,
		Ledger:           ledger.New(),
	}
}

// Clone returns a deep copy.
func (m *Member) Clone() *Member {
	out := *m
	out.TierHistory = append([]TierChangeRecord(nil), m.TierHistory...)
	if m.Ledger != nil {
		out.Ledger = m.Ledger.Clone()
	} else {
		out.Ledger = ledger.New()
	}
	return &out
}

// Verify checks the counters against a replay of the ledger.
func (m *Member) Verify() error {
	s := m.Ledger.Summarize()
	if s.Total() != m.TotalPoints || s.Available() != m.AvailablePoints {
		return fmt.Errorf("member %s: counters total=%d available=%d, ledger replay total=%d available=%d",
			m.Key, m.TotalPoints, m.AvailablePoints, s.Total(), s.Available())
	}
	if m.AvailablePoints < 0 || m.AvailablePoints > m.TotalPoints {
		return fmt.Errorf("member %s: available %d outside [0, %d]", m.Key, m.AvailablePoints, m.TotalPoints)
	}
	return nil
}

// =============================================================================
// MUTATIONS - Each appends exactly one ledger entry
// =============================================================================

func (m *Member) earn(typ ledger.EntryType, points int64, at time.Time, expirationMonths int, bookingRef, key string) error {
	err := m.Ledger.Append(ledger.Entry{
		Type:             typ,
		Points:           points,
		OccurredAt:       at,
		ExpiresAt:        ledger.ExpiryFrom(at, expirationMonths),
		SourceBookingRef: bookingRef,
		IdempotencyKey:   key,
	})
	if err != nil {
		return err
	}
	m.TotalPoints += points
	m.AvailablePoints += points
	return nil
}

func (m *Member) redeem(points int64, at time.Time, rewardRef string) error {
	err := m.Ledger.Append(ledger.Entry{
		Type:       ledger.EntryRedeemed,
		Points:     points,
		OccurredAt: at,
		RewardRef:  rewardRef,
	})
	if err != nil {
		return err
	}
	m.AvailablePoints -= points
	return nil
}

func (m *Member) adjust(delta int64, at time.Time, reason, actor string) error {
	if delta == 0 {
		return &InsufficientPointsError{Reason: ReasonInvalidAmount, Requested: delta, Available: m.AvailablePoints}
	}
	if m.AvailablePoints+delta < 0 {
		return &InsufficientPointsError{Reason: ReasonInsufficientBalance, Requested: -delta, Available: m.AvailablePoints}
	}
	err := m.Ledger.Append(ledger.Entry{
		Type:       ledger.EntryAdjust,
		Points:     delta,
		OccurredAt: at,
		Note:       reason,
		Actor:      actor,
	})
	if err != nil {
		return err
	}
	m.TotalPoints += delta
	m.AvailablePoints += delta
	return nil
}

// expiry is the outcome of one expire call.
type expiry struct {
	flagged    int64 // sum of the entries flagged
	expired    int64 // removed from TotalPoints
	unredeemed int64 // removed from AvailablePoints
}

// expire flags due earnings. The flagged sum leaves TotalPoints and
// min(flagged, available) leaves AvailablePoints, both clamped at zero.
func (m *Member) expire(asOf time.Time) (expiry, error) {
	x := expiry{flagged: m.Ledger.MarkExpired(asOf)}
	if x.flagged == 0 {
		return x, nil
	}
	x.expired = max(0, min(x.flagged, m.TotalPoints))
	x.unredeemed = max(0, min(x.flagged, m.AvailablePoints))
	if x.expired == 0 {
		return x, nil
	}
	err := m.Ledger.Append(ledger.Entry{
		Type:       ledger.EntryExpired,
		Points:     x.expired,
		Unredeemed: x.unredeemed,
		OccurredAt: asOf,
		Note:       fmt.Sprintf("%d points due, %d unredeemed", x.flagged, x.unredeemed),
	})
	if err != nil {
		return expiry{flagged: x.flagged}, err
	}
	m.TotalPoints -= x.expired
	m.AvailablePoints -= x.unredeemed
	return x, nil
}

// retier re-resolves the tier from TotalPoints and records any change.
func (m *Member) retier(tiers []Tier, reason string, at time.Time) *TierChangeRecord {
	resolved := ResolveTier(m.TotalPoints, tiers)
	change := ClassifyChange(m.CurrentTier, resolved.Name, tiers)
	if !change.Changed {
		return nil
	}
	rec := TierChangeRecord{
		From:     change.From,
		To:       change.To,
		Reason:   reason,
		At:       at,
		Upgraded: change.Upgraded,
	}
	m.TierHistory = append(m.TierHistory, rec)
	m.CurrentTier = resolved.Name
	return &rec
}

// entryPoints returns the points of the entry recorded under an idempotency key.
func (m *Member) entryPoints(key string) int64 {
	for _, e := range m.Ledger.Entries() {
		if e.IdempotencyKey == key {
			return e.Points
		}
	}
	return 0
}
