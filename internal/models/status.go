package models

// TransactionStatus is the lifecycle state of a transaction line
type TransactionStatus string

// Transaction statuses
const (
	StatusPending   TransactionStatus = "PENDING"
	StatusConfirmed TransactionStatus = "CONFIRMED"
	StatusShipped   TransactionStatus = "SHIPPED"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusCancelled TransactionStatus = "CANCELLED"
	StatusRefunded  TransactionStatus = "REFUNDED"
)

// AllStatuses lists every status in lifecycle order
var AllStatuses = []TransactionStatus{
	StatusPending,
	StatusConfirmed,
	StatusShipped,
	StatusCompleted,
	StatusCancelled,
	StatusRefunded,
}

var transitions = map[TransactionStatus][]TransactionStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusCompleted, StatusCancelled},
	StatusCompleted: {StatusRefunded},
	StatusCancelled: {},
	StatusRefunded:  {},
}

// Valid reports whether s is a known status
func (s TransactionStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s
func (s TransactionStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}

// HoldsStock reports whether a line in status s still owns reserved units,
// i.e. cancelling or deleting it must give the units back.
func (s TransactionStatus) HoldsStock() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusShipped:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to TransactionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from s in one step
func NextStatuses(s TransactionStatus) []TransactionStatus {
	next := transitions[s]
	out := make([]TransactionStatus, len(next))
	copy(out, next)
	return out
}
