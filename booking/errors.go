package booking

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTransition is returned when a status change is not allowed
	// from the booking's current status.
	ErrInvalidTransition = errors.New("invalid booking transition")

	// ErrBookingNotFound is returned when no booking exists for an ID.
	ErrBookingNotFound = errors.New("booking not found")

	// ErrVersionConflict is returned by repositories when the booking changed
	// since it was loaded.
	ErrVersionConflict = errors.New("booking modified concurrently")

	// ErrInvalidBooking is returned when a new booking is missing required data.
	ErrInvalidBooking = errors.New("invalid booking")
)

// InvalidTransitionError names the current and attempted statuses.
type InvalidTransitionError struct {
	From   Status
	To     Status
	Action string // "transition", "cancel" or "modify"
}

func (e *InvalidTransitionError) Error() string {
	if e.Action == "modify" {
		return fmt.Sprintf("cannot modify booking in status %q", e.From)
	}
	return fmt.Sprintf("cannot %s booking from %q to %q", e.Action, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
