package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/hotel-loyalty-engine/ledger"
	"github.com/warp/hotel-loyalty-engine/loyalty"
)

// =============================================================================
// MEMBERS (loyalty.MemberRepository)
// =============================================================================

const memberColumns = `guest_id, scope, channel, current_tier, total_points, available_points,
	lifetime_spending, lifetime_nights, tier_history_json, join_date, is_active, version`

const entryColumns = `id, entry_type, points, unredeemed, occurred_at, expires_at, source_booking_ref,
	reward_ref, note, actor, idempotency_key, expired, expired_at`

// GetMember loads a member with its full ledger.
func (s *Store) GetMember(ctx context.Context, key loyalty.MemberKey) (*loyalty.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE guest_id = ? AND scope = ? AND channel = ?",
		key.GuestID, key.Scope, key.Channel,
	)
	m, err := scanMember(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, loyalty.ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}

	entries, err := s.loadEntries(ctx, s.db, key)
	if err != nil {
		return nil, err
	}
	m.Ledger = ledger.FromEntries(entries)
	return m, nil
}

// ListMembers returns every member of a scope and channel, ledgers included.
func (s *Store) ListMembers(ctx context.Context, scope, channel string) ([]*loyalty.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+memberColumns+" FROM members WHERE scope = ? AND channel = ? ORDER BY guest_id",
		scope, channel,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}

	var members []*loyalty.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		members = append(members, m)
	}
	// Entries are loaded after the member cursor is closed: :memory: runs on
	// a single connection.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range members {
		entries, err := s.loadEntries(ctx, s.db, m.Key)
		if err != nil {
			return nil, err
		}
		m.Ledger = ledger.FromEntries(entries)
	}
	return members, nil
}

// SaveMember writes the member row and its entries in one transaction.
// New entries are inserted; existing ones only have their expiry flag updated.
func (s *Store) SaveMember(ctx context.Context, m *loyalty.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, err := json.Marshal(m.TierHistory)
	if err != nil {
		return fmt.Errorf("encode tier history: %w", err)
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	k := m.Key
	if m.Version == 0 {
		_, err = sqlTx.ExecContext(ctx, `
			INSERT INTO members (`+memberColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
			k.GuestID, k.Scope, k.Channel, m.CurrentTier, m.TotalPoints, m.AvailablePoints,
			m.LifetimeSpending.String(), m.LifetimeNights, string(history),
			formatTime(m.JoinDate), m.IsActive,
		)
		if isUniqueConstraintError(err) {
			return loyalty.ErrLedgerConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert member: %w", err)
		}
	} else {
		res, err := sqlTx.ExecContext(ctx, `
			UPDATE members SET
				current_tier = ?, total_points = ?, available_points = ?,
				lifetime_spending = ?, lifetime_nights = ?, tier_history_json = ?,
				is_active = ?, version = version + 1
			WHERE guest_id = ? AND scope = ? AND channel = ? AND version = ?`,
			m.CurrentTier, m.TotalPoints, m.AvailablePoints,
			m.LifetimeSpending.String(), m.LifetimeNights, string(history),
			m.IsActive, k.GuestID, k.Scope, k.Channel, m.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update member: %w", err)
		}
		if err := checkUpdated(res, loyalty.ErrLedgerConflict); err != nil {
			return err
		}
	}

	if m.Ledger != nil {
		for seq, e := range m.Ledger.Entries() {
			if err := upsertEntry(ctx, sqlTx, k, seq, e); err != nil {
				return err
			}
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return err
	}
	m.Version++
	return nil
}

func upsertEntry(ctx context.Context, db execer, k loyalty.MemberKey, seq int, e ledger.Entry) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO ledger_entries
		(seq, guest_id, scope, channel, `+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			expired = excluded.expired,
			expired_at = excluded.expired_at`,
		seq, k.GuestID, k.Scope, k.Channel,
		string(e.ID), string(e.Type), e.Points, e.Unredeemed, formatTime(e.OccurredAt), formatTimePtr(e.ExpiresAt),
		nullString(e.SourceBookingRef), nullString(e.RewardRef), nullString(e.Note), nullString(e.Actor),
		nullString(e.IdempotencyKey), e.Expired, formatTimePtr(e.ExpiredAt),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("entry %s: %w", e.ID, ledger.ErrDuplicateEntry)
	}
	if err != nil {
		return fmt.Errorf("failed to write ledger entry: %w", err)
	}
	return nil
}

func (s *Store) loadEntries(ctx context.Context, db querier, k loyalty.MemberKey) ([]ledger.Entry, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+entryColumns+" FROM ledger_entries WHERE guest_id = ? AND scope = ? AND channel = ? ORDER BY seq",
		k.GuestID, k.Scope, k.Channel,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanMember(row rowScanner) (*loyalty.Member, error) {
	var (
		m        loyalty.Member
		spending string
		history  string
		joinDate string
	)
	err := row.Scan(
		&m.Key.GuestID, &m.Key.Scope, &m.Key.Channel, &m.CurrentTier,
		&m.TotalPoints, &m.AvailablePoints, &spending, &m.LifetimeNights,
		&history, &joinDate, &m.IsActive, &m.Version,
	)
	if err != nil {
		return nil, err
	}

	m.LifetimeSpending, err = decimal.NewFromString(spending)
	if err != nil {
		return nil, fmt.Errorf("decode lifetime spending: %w", err)
	}
	if err := json.Unmarshal([]byte(history), &m.TierHistory); err != nil {
		return nil, fmt.Errorf("decode tier history: %w", err)
	}
	m.JoinDate = parseTime(joinDate)
	return &m, nil
}

func scanEntry(rows *sql.Rows) (ledger.Entry, error) {
	var (
		e                                        ledger.Entry
		id, typ, occurredAt                      string
		expiresAt, expiredAt                     sql.NullString
		bookingRef, rewardRef, note, actor, idem sql.NullString
	)
	err := rows.Scan(
		&id, &typ, &e.Points, &e.Unredeemed, &occurredAt, &expiresAt, &bookingRef,
		&rewardRef, &note, &actor, &idem, &e.Expired, &expiredAt,
	)
	if err != nil {
		return e, fmt.Errorf("failed to scan ledger entry: %w", err)
	}

	e.ID = ledger.EntryID(id)
	e.Type = ledger.EntryType(typ)
	e.OccurredAt = parseTime(occurredAt)
	e.ExpiresAt = parseTimePtr(expiresAt)
	e.ExpiredAt = parseTimePtr(expiredAt)
	e.SourceBookingRef = bookingRef.String
	e.RewardRef = rewardRef.String
	e.Note = note.String
	e.Actor = actor.String
	e.IdempotencyKey = idem.String
	return e, nil
}
