/*
Package sqlite provides a SQLite-backed implementation of the repositories.

PURPOSE:
  Implements loyalty.Repository (programs, members, ledger entries) and
  booking.Repository using SQLite. In production, the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  loyalty.ProgramRepository: Program configurations
  loyalty.MemberRepository:  Members and their ledgers
  booking.Repository:        Bookings

APPEND-ONLY LEDGER:
  ledger_entries rows are inserted once. The only column ever updated is
  the expired flag (and its timestamp). No DELETE on ledger_entries.

OPTIMISTIC CONCURRENCY:
  members, programs and bookings carry a version column. Saves update
  WHERE version = <loaded version>; zero rows affected means another writer
  got there first and the save returns a conflict error that the services
  retry.

KEY TABLES:
  programs:       One row per (hotel, channel), rules as JSON
  members:        Denormalized counters and tier history per ledger key
  ledger_entries: Immutable point events
  bookings:       Booking aggregate as JSON, status indexed

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - loyalty/service.go: Repository interfaces
  - store/memory: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store implements the repositories using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Program configurations
	CREATE TABLE IF NOT EXISTS programs (
		hotel_id TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT '',
		hotel_group_id TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		rules_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (hotel_id, channel)
	);

	-- Members (one per ledger key)
	CREATE TABLE IF NOT EXISTS members (
		guest_id TEXT NOT NULL,
		scope TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT '',
		current_tier TEXT NOT NULL,
		total_points INTEGER NOT NULL,
		available_points INTEGER NOT NULL,
		lifetime_spending TEXT NOT NULL,
		lifetime_nights INTEGER NOT NULL,
		tier_history_json TEXT NOT NULL,
		join_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		version INTEGER NOT NULL,
		PRIMARY KEY (guest_id, scope, channel),
		CHECK (available_points >= 0 AND available_points <= total_points)
	);

	CREATE INDEX IF NOT EXISTS idx_members_scope
		ON members(scope, channel);

	-- Ledger entries (append-only)
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL,
		guest_id TEXT NOT NULL,
		scope TEXT NOT NULL,
		channel TEXT NOT NULL DEFAULT '',
		entry_type TEXT NOT NULL,
		points INTEGER NOT NULL,
		unredeemed INTEGER NOT NULL DEFAULT 0,
		occurred_at TEXT NOT NULL,
		expires_at TEXT,
		source_booking_ref TEXT,
		reward_ref TEXT,
		note TEXT,
		actor TEXT,
		idempotency_key TEXT,
		expired BOOLEAN NOT NULL DEFAULT FALSE,
		expired_at TEXT,
		FOREIGN KEY (guest_id, scope, channel) REFERENCES members(guest_id, scope, channel)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_member
		ON ledger_entries(guest_id, scope, channel, seq);

	-- CRITICAL: one entry per business event per ledger
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_idempotency
		ON ledger_entries(guest_id, scope, channel, idempotency_key)
		WHERE idempotency_key IS NOT NULL;

	-- For expiry sweeps
	CREATE INDEX IF NOT EXISTS idx_entries_due
		ON ledger_entries(expires_at) WHERE expired = FALSE AND expires_at IS NOT NULL;

	-- Bookings
	CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		guest_id TEXT NOT NULL,
		hotel_id TEXT NOT NULL,
		status TEXT NOT NULL,
		data_json TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_bookings_guest
		ON bookings(guest_id, hotel_id);
	CREATE INDEX IF NOT EXISTS idx_bookings_status
		ON bookings(status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"ledger_entries", "members", "programs", "bookings"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}

// checkUpdated returns conflict when an optimistic update matched no row.
func checkUpdated(res sql.Result, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return conflict
	}
	return nil
}
