/*
errors.go - Error taxonomy for the loyalty subsystem

PURPOSE:
  Sentinels for errors.Is() plus structured errors that carry the detail a
  caller needs to correct a request.

PROPAGATION:
  - ErrConfigInvalid: returned synchronously with every violation
  - ErrNoActiveProgram: never returned; surfaces as Applicable=false
  - ErrInsufficientPoints: returned with the specific reason
  - ErrLedgerConflict: retried inside Service, only escapes when retries
    are exhausted

SEE ALSO:
  - booking/errors.go: ErrInvalidTransition
  - api/handlers.go: HTTP status mapping
*/
package loyalty

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfigInvalid is returned when a tier table or program rule set fails validation.
	ErrConfigInvalid = errors.New("invalid loyalty configuration")

	// ErrNoActiveProgram marks an operation skipped because the hotel has no
	// active program. Loyalty is optional, so this is reported through
	// Outcome.Reason rather than as an error.
	ErrNoActiveProgram = errors.New("no active loyalty program")

	// ErrMemberInactive marks an operation skipped because the member was deactivated.
	ErrMemberInactive = errors.New("loyalty member is inactive")

	// ErrInsufficientPoints is returned when a redemption or adjustment cannot be honoured.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrLedgerConflict is returned by repositories when the stored version
	// no longer matches the version that was loaded.
	ErrLedgerConflict = errors.New("ledger conflict: concurrent modification")

	// ErrMemberNotFound is returned when no member exists for the key.
	ErrMemberNotFound = errors.New("loyalty member not found")

	// ErrProgramNotFound is returned when no program exists for the hotel/channel.
	ErrProgramNotFound = errors.New("loyalty program not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// Violation is one failed validation rule.
type Violation struct {
	Field   string
	Message string
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return v.Field + ": " + v.Message
}

// ConfigError lists every violation found in a configuration.
type ConfigError struct {
	Violations []Violation
}

func (e *ConfigError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("invalid loyalty configuration: %s", strings.Join(parts, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrConfigInvalid }

// ShortfallReason says why points could not be spent.
type ShortfallReason string

const (
	ReasonBelowMinimum        ShortfallReason = "below_minimum"
	ReasonInsufficientBalance ShortfallReason = "insufficient_balance"
	ReasonAboveMaximum        ShortfallReason = "above_maximum"
	ReasonInvalidAmount       ShortfallReason = "invalid_amount"
)

// InsufficientPointsError provides details about a rejected redemption or adjustment.
type InsufficientPointsError struct {
	Reason    ShortfallReason
	Requested int64
	Available int64
	Limit     int64 // minimum or maximum, depending on Reason
}

func (e *InsufficientPointsError) Error() string {
	switch e.Reason {
	case ReasonBelowMinimum:
		return fmt.Sprintf("insufficient points: %d is below the minimum redemption of %d", e.Requested, e.Limit)
	case ReasonAboveMaximum:
		return fmt.Sprintf("insufficient points: %d is above the maximum redemption of %d", e.Requested, e.Limit)
	case ReasonInvalidAmount:
		return fmt.Sprintf("insufficient points: invalid amount %d", e.Requested)
	default:
		return fmt.Sprintf("insufficient points: requested %d, available %d", e.Requested, e.Available)
	}
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLedgerConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrConfigInvalid) ||
		errors.Is(err, ErrInsufficientPoints)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrProgramNotFound)
}
