package loyalty

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// EVENTS - Published after a member mutation commits
// =============================================================================

type EventType string

const (
	EventMemberEnrolled EventType = "member.enrolled"
	EventPointsAwarded  EventType = "points.awarded"
	EventTierChanged    EventType = "tier.changed"
	EventPointsExpired  EventType = "points.expired"
	EventRewardRedeemed EventType = "reward.redeemed"
)

// Event is the payload handed to a Publisher. Fields not relevant to the
// event type are left zero.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Member     MemberKey `json:"member"`

	OldTier  string `json:"old_tier,omitempty"`
	NewTier  string `json:"new_tier,omitempty"`
	Upgraded bool   `json:"upgraded,omitempty"`

	// Points awarded, redeemed or expired.
	Points        int64            `json:"points,omitempty"`
	BookingRef    string           `json:"booking_ref,omitempty"`
	RewardRef     string           `json:"reward_ref,omitempty"`
	MonetaryValue *decimal.Decimal `json:"monetary_value,omitempty"`
}

// Publisher receives loyalty events. Delivery failures are logged by the
// caller and never undo the mutation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

func newEvent(typ EventType, key MemberKey, at time.Time) Event {
	return Event{ID: uuid.NewString(), Type: typ, OccurredAt: at, Member: key}
}

func tierChangedEvent(key MemberKey, rec TierChangeRecord) Event {
	e := newEvent(EventTierChanged, key, rec.At)
	e.OldTier = rec.From
	e.NewTier = rec.To
	e.Upgraded = rec.Upgraded
	return e
}
