package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/warp/hotel-loyalty-engine/booking"
)

// =============================================================================
// BOOKINGS (booking.Repository)
// =============================================================================

// GetBooking retrieves a booking by ID.
func (s *Store) GetBooking(ctx context.Context, id string) (*booking.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		data    string
		version int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT data_json, version FROM bookings WHERE id = ?", id,
	).Scan(&data, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, booking.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}

	var b booking.Booking
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("decode booking %s: %w", id, err)
	}
	b.Version = version
	return &b, nil
}

// SaveBooking inserts or updates a booking with an optimistic version check.
func (s *Store) SaveBooking(ctx context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode booking: %w", err)
	}

	if b.Version == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO bookings (id, guest_id, hotel_id, status, data_json, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, 1, ?, ?)`,
			b.ID, b.GuestID, b.HotelID, string(b.Status), string(data),
			formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
		)
		if isUniqueConstraintError(err) {
			return booking.ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
	} else {
		res, err := s.db.ExecContext(ctx, `
			UPDATE bookings SET status = ?, data_json = ?, version = version + 1, updated_at = ?
			WHERE id = ? AND version = ?`,
			string(b.Status), string(data), formatTime(b.UpdatedAt), b.ID, b.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if err := checkUpdated(res, booking.ErrVersionConflict); err != nil {
			return err
		}
	}

	b.Version++
	return nil
}
