// Package memory provides in-memory repositories for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/hotel-loyalty-engine/booking"
	"github.com/warp/hotel-loyalty-engine/ledger"
	"github.com/warp/hotel-loyalty-engine/loyalty"
)

// =============================================================================
// MEMORY STORE - Implements loyalty.Repository and booking.Repository
// =============================================================================

// Store keeps deep copies of everything it is given, so callers can never
// mutate stored state without a Save.
type Store struct {
	mu       sync.RWMutex
	programs map[loyalty.ProgramKey]loyalty.ProgramConfig
	members  map[loyalty.MemberKey]*loyalty.Member
	bookings map[string]*booking.Booking
}

func New() *Store {
	return &Store{
		programs: make(map[loyalty.ProgramKey]loyalty.ProgramConfig),
		members:  make(map[loyalty.MemberKey]*loyalty.Member),
		bookings: make(map[string]*booking.Booking),
	}
}

// =============================================================================
// PROGRAMS
// =============================================================================

func (s *Store) GetProgram(_ context.Context, key loyalty.ProgramKey) (loyalty.ProgramConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.programs[key]
	if !ok {
		return loyalty.ProgramConfig{}, loyalty.ErrProgramNotFound
	}
	return cfg.Clone(), nil
}

func (s *Store) ListPrograms(_ context.Context) ([]loyalty.ProgramConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]loyalty.ProgramConfig, 0, len(s.programs))
	for _, cfg := range s.programs {
		out = append(out, cfg.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().String() < out[j].Key().String() })
	return out, nil
}

func (s *Store) SaveProgram(_ context.Context, cfg *loyalty.ProgramConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.programs[cfg.Key()]
	if (!ok && cfg.Version != 0) || (ok && stored.Version != cfg.Version) {
		return loyalty.ErrLedgerConflict
	}
	cfg.Version++
	s.programs[cfg.Key()] = cfg.Clone()
	return nil
}

// =============================================================================
// MEMBERS
// =============================================================================

func (s *Store) GetMember(_ context.Context, key loyalty.MemberKey) (*loyalty.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[key]
	if !ok {
		return nil, loyalty.ErrMemberNotFound
	}
	return m.Clone(), nil
}

func (s *Store) ListMembers(_ context.Context, scope, channel string) ([]*loyalty.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*loyalty.Member
	for k, m := range s.members {
		if k.Scope == scope && k.Channel == channel {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.GuestID < out[j].Key.GuestID })
	return out, nil
}

func (s *Store) SaveMember(_ context.Context, m *loyalty.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.members[m.Key]
	if (!ok && m.Version != 0) || (ok && stored.Version != m.Version) {
		return loyalty.ErrLedgerConflict
	}
	if m.Ledger == nil {
		m.Ledger = ledger.New()
	}
	m.Version++
	s.members[m.Key] = m.Clone()
	return nil
}

// =============================================================================
// BOOKINGS
// =============================================================================

func (s *Store) GetBooking(_ context.Context, id string) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	return b.Clone(), nil
}

func (s *Store) SaveBooking(_ context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.bookings[b.ID]
	if (!ok && b.Version != 0) || (ok && stored.Version != b.Version) {
		return booking.ErrVersionConflict
	}
	b.Version++
	s.bookings[b.ID] = b.Clone()
	return nil
}

// Ping satisfies the health check.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() error { return nil }
