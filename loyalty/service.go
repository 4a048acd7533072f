/*
service.go - Loyalty member orchestration

PURPOSE:
  Service is the only writer of member ledgers. Every mutation follows the
  same cycle:

    lock(member key) -> load -> mutate -> save(version check) -> unlock
                                                  |
                                         publish events (after commit)

CONCURRENCY:
  The per-key lock serializes writers on one instance. The repository's
  version check catches writers on other instances (or a lock lost to TTL);
  ErrLedgerConflict triggers a reload and retry, up to MaxRetries.

NO ACTIVE PROGRAM:
  Loyalty never blocks a booking. When the hotel has no active program the
  operation returns Applicable=false with Reason=ErrNoActiveProgram and a nil
  error.

SEE ALSO:
  - member.go: Mutation methods on the aggregate
  - sweep.go: Expiry and tier recalculation across many members
  - store/sqlite, store/memory: Repository implementations
*/
package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/keylock"
	"github.com/warp/hotel-loyalty-engine/ledger"
	"github.com/warp/hotel-loyalty-engine/observability"
	"go.uber.org/zap"
)

const (
	DefaultMaxRetries       = 5
	DefaultSweepConcurrency = 8
)

// =============================================================================
// REPOSITORY
// =============================================================================

// ProgramRepository persists program configurations.
type ProgramRepository interface {
	// GetProgram returns ErrProgramNotFound when the key has no program.
	GetProgram(ctx context.Context, key ProgramKey) (ProgramConfig, error)
	ListPrograms(ctx context.Context) ([]ProgramConfig, error)
	// SaveProgram stores cfg if the stored version equals cfg.Version, then
	// increments it. Returns ErrLedgerConflict otherwise.
	SaveProgram(ctx context.Context, cfg *ProgramConfig) error
}

// MemberRepository persists members with their ledgers.
type MemberRepository interface {
	// GetMember returns ErrMemberNotFound when the key has no member.
	GetMember(ctx context.Context, key MemberKey) (*Member, error)
	ListMembers(ctx context.Context, scope, channel string) ([]*Member, error)
	// SaveMember stores the member and its entries atomically if the stored
	// version equals m.Version (0 for a new member), then increments it.
	// Returns ErrLedgerConflict otherwise.
	SaveMember(ctx context.Context, m *Member) error
}

// Repository is the persistence needed by Service.
type Repository interface {
	ProgramRepository
	MemberRepository
}

// =============================================================================
// SERVICE
// =============================================================================

// Config wires a Service. Only Repository is required.
type Config struct {
	Repository       Repository
	Locker           keylock.Locker
	Publisher        Publisher
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	Clock            func() time.Time
	MaxRetries       int
	SweepConcurrency int
}

type Service struct {
	repo             Repository
	locker           keylock.Locker
	publisher        Publisher
	logger           *zap.Logger
	metrics          *observability.Metrics
	now              func() time.Time
	maxRetries       int
	sweepConcurrency int
}

func NewService(cfg Config) *Service {
	s := &Service{
		repo:             cfg.Repository,
		locker:           cfg.Locker,
		publisher:        cfg.Publisher,
		logger:           cfg.Logger,
		metrics:          cfg.Metrics,
		now:              cfg.Clock,
		maxRetries:       cfg.MaxRetries,
		sweepConcurrency: cfg.SweepConcurrency,
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
		s.maxRetries = DefaultMaxRetries
	}
	if s.sweepConcurrency <= 0 {
		s.sweepConcurrency = DefaultSweepConcurrency
	}
	return s
}

// MemberRef addresses a guest at a hotel. The program decides the ledger
// scope (hotel or pooled group).
type MemberRef struct {
	GuestID string
	HotelID string
	Channel string
}

// Outcome says whether a loyalty operation applied. Reason is
// ErrNoActiveProgram or ErrMemberInactive when it did not.
type Outcome struct {
	Applicable bool
	Reason     error
}

// AwardResult is returned by AwardForSpend, AwardForNights and Adjust.
type AwardResult struct {
	Outcome
	Points     int64
	Duplicate  bool // booking was already awarded; Points repeats the original award
	Enrolled   bool
	TierChange *TierChangeRecord
	Member     *Member
}

// RedemptionRecord describes an accepted redemption.
type RedemptionRecord struct {
	Outcome
	EntryID        ledger.EntryID
	Member         MemberKey
	Points         int64
	MonetaryValue  decimal.Decimal
	RewardRef      string
	RedeemedAt     time.Time
	AvailableAfter int64
}

// ExpireResult reports one member's expiry run.
type ExpireResult struct {
	Outcome
	Flagged    int64 // sum of entries flagged as expired
	Expired    int64 // removed from the tier total
	Unredeemed int64 // removed from the redeemable balance: min(Flagged, available)
	TierChange *TierChangeRecord
	Member     *Member
}

// MemberStatus is a read-only snapshot for display and pricing.
type MemberStatus struct {
	Member   *Member
	Tier     Tier
	Progress TierProgress
	Discount decimal.Decimal
}

var notApplicable = Outcome{Applicable: false, Reason: ErrNoActiveProgram}

// =============================================================================
// PROGRAM RESOLUTION
// =============================================================================

// resolveProgram finds the program for (hotel, channel), falling back to the
// hotel-wide program when the channel has none.
func (s *Service) resolveProgram(ctx context.Context, hotelID, channel string) (ProgramConfig, error) {
	cfg, err := s.repo.GetProgram(ctx, ProgramKey{HotelID: hotelID, Channel: channel})
	if errors.Is(err, ErrProgramNotFound) && channel != "" {
		cfg, err = s.repo.GetProgram(ctx, ProgramKey{HotelID: hotelID})
	}
	return cfg, err
}

// activeProgram returns ok=false when no active program applies.
func (s *Service) activeProgram(ctx context.Context, ref MemberRef) (ProgramConfig, bool, error) {
	cfg, err := s.resolveProgram(ctx, ref.HotelID, ref.Channel)
	if errors.Is(err, ErrProgramNotFound) {
		return ProgramConfig{}, false, nil
	}
	if err != nil {
		return ProgramConfig{}, false, fmt.Errorf("resolve program %s/%s: %w", ref.HotelID, ref.Channel, err)
	}
	return cfg, cfg.IsActive, nil
}

// =============================================================================
// MUTATION CYCLE
// =============================================================================

// mutation is applied to a freshly loaded member and the program as read
// under the member lock. It returns the events to publish once the save
// commits; skip=true means nothing changed.
type mutation func(m *Member, cfg ProgramConfig) (events []Event, skip bool, err error)

// mutate runs lock -> load -> fn -> save, retrying on version conflicts.
// enroll creates the member when absent.
//
// The program is re-read after the lock is taken so a mutation never applies
// a tier table older than the one a concurrent sweep has already applied.
// Callers check the reloaded cfg.IsActive: a program deactivated after the
// first lookup must not take the write.
func (s *Service) mutate(ctx context.Context, cfg ProgramConfig, key MemberKey, enroll bool, fn mutation) (*Member, error) {
	unlock, err := s.locker.Lock(ctx, key.String())
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		if cfg.HotelID != "" {
			fresh, err := s.repo.GetProgram(ctx, cfg.Key())
			switch {
			case err == nil:
				cfg = fresh
			case !errors.Is(err, ErrProgramNotFound):
				return nil, fmt.Errorf("reload program %s: %w", cfg.Key(), err)
			}
		}

		var events []Event
		m, err := s.repo.GetMember(ctx, key)
		switch {
		case errors.Is(err, ErrMemberNotFound) && enroll:
			m = NewMember(key, cfg.Tiers, s.now())
			events = append(events, newEvent(EventMemberEnrolled, key, m.JoinDate))
		case err != nil:
			return nil, err
		}

		evs, skip, err := fn(m, cfg)
		if err != nil {
			return m, err
		}
		if skip {
			return m, nil
		}
		events = append(events, evs...)

		err = s.repo.SaveMember(ctx, m)
		if errors.Is(err, ErrLedgerConflict) && attempt < s.maxRetries {
			s.metrics.ConflictRetried("member")
			s.logger.Debug("member version conflict, retrying",
				zap.Stringer("member", key), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", key, err)
		}

		s.publish(ctx, events)
		return m, nil
	}
}

func (s *Service) publish(ctx context.Context, events []Event) {
	for _, e := range events {
		if e.Type == EventTierChanged {
			s.metrics.TierChanged(e.Upgraded)
		}
		if s.publisher == nil {
			continue
		}
		if err := s.publisher.Publish(ctx, e); err != nil {
			s.logger.Warn("publish loyalty event failed",
				zap.String("event", string(e.Type)),
				zap.Stringer("member", e.Member),
				zap.Error(err))
		}
	}
}

// retierEvents re-resolves the member's tier and returns the change event, if any.
func (s *Service) retierEvents(m *Member, tiers []Tier, reason string) (*TierChangeRecord, []Event) {
	rec := m.retier(tiers, reason, s.now())
	if rec == nil {
		return nil, nil
	}
	return rec, []Event{tierChangedEvent(m.Key, *rec)}
}

// =============================================================================
// EARNING
// =============================================================================

// AwardForSpend credits floor(amount * pointsPerCurrencyUnit * multiplier)
// points as an EARNED entry and adds amount to lifetime spending. A bookingRef
// makes the award idempotent per booking.
func (s *Service) AwardForSpend(ctx context.Context, ref MemberRef, amount decimal.Decimal, serviceType, bookingRef string) (AwardResult, error) {
	cfg, ok, err := s.activeProgram(ctx, ref)
	if err != nil || !ok {
		return AwardResult{Outcome: notApplicable}, err
	}

	points := cfg.PointsForSpend(amount, serviceType)
	if points == 0 {
		return AwardResult{Outcome: Outcome{Applicable: true}}, nil
	}

	key := ""
	if bookingRef != "" {
		key = "spend:" + bookingRef
	}
	res, err := s.award(ctx, cfg, ref.GuestID, ledger.EntryEarned, points, bookingRef, key, func(m *Member) {
		if amount.IsPositive() {
			m.LifetimeSpending = m.LifetimeSpending.Add(amount)
		}
	})
	if err == nil && res.Applicable && !res.Duplicate {
		s.logger.Info("points awarded for spend",
			zap.Stringer("member", cfg.MemberKey(ref.GuestID)),
			zap.Int64("points", points),
			zap.String("service_type", serviceType),
			zap.String("booking", bookingRef))
	}
	return res, err
}

// AwardForNights credits floor(nights * pointsPerNight) points as a NIGHTS entry.
func (s *Service) AwardForNights(ctx context.Context, ref MemberRef, nights int, bookingRef string) (AwardResult, error) {
	cfg, ok, err := s.activeProgram(ctx, ref)
	if err != nil || !ok {
		return AwardResult{Outcome: notApplicable}, err
	}

	points := cfg.PointsForNights(nights)
	if points == 0 {
		return AwardResult{Outcome: Outcome{Applicable: true}}, nil
	}

	key := ""
	if bookingRef != "" {
		key = "nights:" + bookingRef
	}
	return s.award(ctx, cfg, ref.GuestID, ledger.EntryNights, points, bookingRef, key, func(m *Member) {
		m.LifetimeNights += nights
	})
}

func (s *Service) award(ctx context.Context, cfg ProgramConfig, guestID string, typ ledger.EntryType, points int64, bookingRef, idemKey string, extra func(*Member)) (AwardResult, error) {
	res := AwardResult{Outcome: Outcome{Applicable: true}, Points: points}
	key := cfg.MemberKey(guestID)

	m, err := s.mutate(ctx, cfg, key, true, func(m *Member, cfg ProgramConfig) ([]Event, bool, error) {
		if !cfg.IsActive {
			res.Outcome = notApplicable
			res.Points = 0
			return nil, true, nil
		}
		res.Enrolled = m.Version == 0
		if !m.IsActive {
			res.Outcome = Outcome{Reason: ErrMemberInactive}
			res.Points = 0
			return nil, true, nil
		}
		if m.Ledger.HasKey(idemKey) {
			res.Duplicate = true
			res.Points = m.entryPoints(idemKey)
			return nil, true, nil
		}
		if err := m.earn(typ, points, s.now(), cfg.ExpirationMonths, bookingRef, idemKey); err != nil {
			return nil, false, err
		}
		extra(m)

		awarded := newEvent(EventPointsAwarded, key, s.now())
		awarded.Points = points
		awarded.BookingRef = bookingRef
		rec, tierEvents := s.retierEvents(m, cfg.Tiers, "points_earned")
		res.TierChange = rec
		return append([]Event{awarded}, tierEvents...), false, nil
	})
	if err != nil {
		return AwardResult{}, fmt.Errorf("award %s points: %w", typ, err)
	}
	if !res.Applicable && errors.Is(res.Reason, ErrNoActiveProgram) {
		return res, nil
	}
	res.Member = m
	if res.Applicable && !res.Duplicate {
		s.metrics.PointsAwarded(string(typ), points)
	}
	return res, nil
}

// =============================================================================
// REDEMPTION & ADJUSTMENT
// =============================================================================

// Redeem spends points on a reward. Rules are checked in order: minimum,
// balance, maximum.
func (s *Service) Redeem(ctx context.Context, ref MemberRef, points int64, rewardRef string) (RedemptionRecord, error) {
	cfg, ok, err := s.activeProgram(ctx, ref)
	if err != nil || !ok {
		return RedemptionRecord{Outcome: notApplicable}, err
	}

	key := cfg.MemberKey(ref.GuestID)
	rec := RedemptionRecord{Outcome: Outcome{Applicable: true}, Member: key, Points: points, RewardRef: rewardRef}

	_, err = s.mutate(ctx, cfg, key, false, func(m *Member, cfg ProgramConfig) ([]Event, bool, error) {
		if !cfg.IsActive {
			rec.Outcome = notApplicable
			return nil, true, nil
		}
		if !m.IsActive {
			rec.Outcome = Outcome{Reason: ErrMemberInactive}
			return nil, true, nil
		}
		if err := cfg.CheckRedemption(points, m.AvailablePoints); err != nil {
			return nil, false, err
		}
		rec.RedeemedAt = s.now()
		if err := m.redeem(points, rec.RedeemedAt, rewardRef); err != nil {
			return nil, false, err
		}
		entries := m.Ledger.Entries()
		rec.EntryID = entries[len(entries)-1].ID
		rec.MonetaryValue = cfg.MonetaryValue(points)
		rec.AvailableAfter = m.AvailablePoints

		e := newEvent(EventRewardRedeemed, key, rec.RedeemedAt)
		e.Points = points
		e.RewardRef = rewardRef
		value := rec.MonetaryValue
		e.MonetaryValue = &value
		return []Event{e}, false, nil
	})
	if err != nil {
		return RedemptionRecord{}, fmt.Errorf("redeem %d points for %s: %w", points, key, err)
	}
	if rec.Applicable {
		s.metrics.PointsRedeemed(points)
	}
	return rec, nil
}

// Adjust records an administrative correction. Negative adjustments skip the
// redemption minimum but may not take available points below zero.
func (s *Service) Adjust(ctx context.Context, ref MemberRef, delta int64, reason, actor string) (AwardResult, error) {
	cfg, ok, err := s.activeProgram(ctx, ref)
	if err != nil || !ok {
		return AwardResult{Outcome: notApplicable}, err
	}
	if delta == 0 {
		return AwardResult{}, &InsufficientPointsError{Reason: ReasonInvalidAmount}
	}

	key := cfg.MemberKey(ref.GuestID)
	res := AwardResult{Outcome: Outcome{Applicable: true}, Points: delta}
	m, err := s.mutate(ctx, cfg, key, delta > 0, func(m *Member, cfg ProgramConfig) ([]Event, bool, error) {
		if !cfg.IsActive {
			res = AwardResult{Outcome: notApplicable}
			return nil, true, nil
		}
		res.Enrolled = m.Version == 0
		if !m.IsActive {
			res.Outcome = Outcome{Reason: ErrMemberInactive}
			return nil, true, nil
		}
		if err := m.adjust(delta, s.now(), reason, actor); err != nil {
			return nil, false, err
		}
		rec, events := s.retierEvents(m, cfg.Tiers, "adjustment")
		res.TierChange = rec
		return events, false, nil
	})
	if err != nil {
		return AwardResult{}, fmt.Errorf("adjust %s by %d: %w", key, delta, err)
	}
	if !res.Applicable {
		return res, nil
	}
	res.Member = m
	s.logger.Info("points adjusted",
		zap.Stringer("member", key), zap.Int64("delta", delta),
		zap.String("reason", reason), zap.String("actor", actor))
	return res, nil
}

// =============================================================================
// EXPIRY
// =============================================================================

// ExpireDue expires the member's earnings whose expiry is before asOf.
func (s *Service) ExpireDue(ctx context.Context, ref MemberRef, asOf time.Time) (ExpireResult, error) {
	cfg, ok, err := s.activeProgram(ctx, ref)
	if err != nil || !ok {
		return ExpireResult{Outcome: notApplicable}, err
	}
	return s.expireMember(ctx, cfg, cfg.MemberKey(ref.GuestID), asOf)
}

func (s *Service) expireMember(ctx context.Context, cfg ProgramConfig, key MemberKey, asOf time.Time) (ExpireResult, error) {
	res := ExpireResult{Outcome: Outcome{Applicable: true}}
	m, err := s.mutate(ctx, cfg, key, false, func(m *Member, cfg ProgramConfig) ([]Event, bool, error) {
		if !cfg.IsActive {
			res.Outcome = notApplicable
			return nil, true, nil
		}
		if !m.IsActive {
			res.Outcome = Outcome{Reason: ErrMemberInactive}
			return nil, true, nil
		}
		x, err := m.expire(asOf)
		if err != nil {
			return nil, false, err
		}
		res.Flagged, res.Expired, res.Unredeemed = x.flagged, x.expired, x.unredeemed
		if x.flagged == 0 {
			return nil, true, nil
		}
		var events []Event
		if x.expired > 0 {
			e := newEvent(EventPointsExpired, key, asOf)
			e.Points = x.expired
			events = append(events, e)
		}
		rec, tierEvents := s.retierEvents(m, cfg.Tiers, "points_expired")
		res.TierChange = rec
		return append(events, tierEvents...), false, nil
	})
	if err != nil {
		return ExpireResult{}, fmt.Errorf("expire %s: %w", key, err)
	}
	res.Member = m
	s.metrics.PointsExpired(res.Expired)
	return res, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Deactivate stops a member from earning, redeeming and expiring.
func (s *Service) Deactivate(ctx context.Context, ref MemberRef) (*Member, error) {
	return s.setActive(ctx, ref, false)
}

// Reactivate reverses Deactivate.
func (s *Service) Reactivate(ctx context.Context, ref MemberRef) (*Member, error) {
	return s.setActive(ctx, ref, true)
}

func (s *Service) setActive(ctx context.Context, ref MemberRef, active bool) (*Member, error) {
	cfg, key, err := s.lookupKey(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, cfg, key, false, func(m *Member, cfg ProgramConfig) ([]Event, bool, error) {
		if m.IsActive == active {
			return nil, true, nil
		}
		m.IsActive = active
		return nil, false, nil
	})
}

// =============================================================================
// QUERIES
// =============================================================================

// lookupKey resolves the member key for ref whether or not the program is active.
func (s *Service) lookupKey(ctx context.Context, ref MemberRef) (ProgramConfig, MemberKey, error) {
	cfg, err := s.resolveProgram(ctx, ref.HotelID, ref.Channel)
	if errors.Is(err, ErrProgramNotFound) {
		return ProgramConfig{}, MemberKey{GuestID: ref.GuestID, Scope: ref.HotelID, Channel: ref.Channel}, nil
	}
	if err != nil {
		return ProgramConfig{}, MemberKey{}, err
	}
	return cfg, cfg.MemberKey(ref.GuestID), nil
}

// GetMember returns the member addressed by ref.
func (s *Service) GetMember(ctx context.Context, ref MemberRef) (*Member, error) {
	_, key, err := s.lookupKey(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.repo.GetMember(ctx, key)
}

// ListMembers returns every member of a scope and channel.
func (s *Service) ListMembers(ctx context.Context, scope, channel string) ([]*Member, error) {
	return s.repo.ListMembers(ctx, scope, channel)
}

// MemberStatus returns the member with its tier, progress and current discount.
func (s *Service) MemberStatus(ctx context.Context, ref MemberRef) (MemberStatus, error) {
	cfg, key, err := s.lookupKey(ctx, ref)
	if err != nil {
		return MemberStatus{}, err
	}
	m, err := s.repo.GetMember(ctx, key)
	if err != nil {
		return MemberStatus{}, err
	}
	tier, ok := FindTier(cfg.Tiers, m.CurrentTier)
	if !ok {
		tier = ResolveTier(m.TotalPoints, cfg.Tiers)
	}
	status := MemberStatus{
		Member:   m,
		Tier:     tier,
		Progress: Progress(m.TotalPoints, cfg.Tiers, m.CurrentTier),
		Discount: decimal.Zero,
	}
	if cfg.IsActive && m.IsActive {
		status.Discount = tier.DiscountPercentage
	}
	return status, nil
}

// DiscountFor returns the tier discount percentage to apply at pricing time,
// zero when loyalty does not apply. Read-only.
func (s *Service) DiscountFor(ctx context.Context, ref MemberRef) (decimal.Decimal, error) {
	cfg, ok, err := s.activeProgram(ctx, ref)
	if err != nil || !ok {
		return decimal.Zero, err
	}
	m, err := s.repo.GetMember(ctx, cfg.MemberKey(ref.GuestID))
	if errors.Is(err, ErrMemberNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	if !m.IsActive {
		return decimal.Zero, nil
	}
	return cfg.DiscountFor(m.CurrentTier, m.TotalPoints), nil
}

// GetProgram returns the program for (hotel, channel), with channel fallback.
func (s *Service) GetProgram(ctx context.Context, hotelID, channel string) (ProgramConfig, error) {
	return s.resolveProgram(ctx, hotelID, channel)
}

// ListPrograms returns every stored program.
func (s *Service) ListPrograms(ctx context.Context) ([]ProgramConfig, error) {
	return s.repo.ListPrograms(ctx)
}
