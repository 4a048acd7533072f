package booking

// =============================================================================
// STATUS - Booking state machine
// =============================================================================

type Status string

const (
	StatusPending           Status = "pending"
	StatusConfirmed         Status = "confirmed"
	StatusAssigned          Status = "assigned"
	StatusInProgress        Status = "in-progress"
	StatusPickupScheduled   Status = "pickup-scheduled"
	StatusPickedUp          Status = "picked-up"
	StatusInService         Status = "in-service"
	StatusDeliveryScheduled Status = "delivery-scheduled"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusDisputed          Status = "disputed"
)

// happyPath is the forward order of a booking. Skipping ahead is allowed;
// moving back is not.
var happyPath = []Status{
	StatusPending,
	StatusConfirmed,
	StatusAssigned,
	StatusInProgress,
	StatusPickupScheduled,
	StatusPickedUp,
	StatusInService,
	StatusDeliveryScheduled,
	StatusCompleted,
}

// alternateTerminals end a booking off the happy path. Refunded and disputed
// are reachable from any non-terminal status; cancelled only from cancellable.
var alternateTerminals = map[Status]bool{
	StatusCancelled: true,
	StatusRefunded:  true,
	StatusDisputed:  true,
}

// cancellable statuses accept Cancel.
var cancellable = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
	StatusAssigned:  true,
}

// modifiable statuses accept Modify.
var modifiable = map[Status]bool{
	StatusPending:   true,
	StatusConfirmed: true,
}

func (s Status) position() int {
	for i, p := range happyPath {
		if p == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.position() >= 0 || alternateTerminals[s]
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || alternateTerminals[s]
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	if from.Terminal() || !to.Valid() || from == to {
		return false
	}
	if to == StatusCancelled {
		return from.CanCancel()
	}
	if alternateTerminals[to] {
		return true
	}
	return to.position() > from.position()
}

// CanCancel reports whether Cancel is allowed from s.
func (s Status) CanCancel() bool { return cancellable[s] }

// CanModify reports whether Modify is allowed from s.
func (s Status) CanModify() bool { return modifiable[s] }
