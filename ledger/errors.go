package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateEntry is returned when an idempotency key was already used.
	// Expected on retries of the same business event.
	ErrDuplicateEntry = errors.New("duplicate ledger entry")

	// ErrInvalidEntry is returned when an entry fails structural validation.
	ErrInvalidEntry = errors.New("invalid ledger entry")
)

// DuplicateEntryError names the idempotency key that was reused.
type DuplicateEntryError struct {
	Key string
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("duplicate ledger entry: idempotency key %q already recorded", e.Key)
}

func (e *DuplicateEntryError) Unwrap() error { return ErrDuplicateEntry }

// InvalidEntryError describes why an entry was refused.
type InvalidEntryError struct {
	Type   EntryType
	Reason string
}

func (e *InvalidEntryError) Error() string {
	return fmt.Sprintf("invalid %s entry: %s", e.Type, e.Reason)
}

func (e *InvalidEntryError) Unwrap() error { return ErrInvalidEntry }
