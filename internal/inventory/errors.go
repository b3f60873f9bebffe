package inventory

import "errors"

// ErrNotFound is wrapped by store lookups that miss.
var ErrNotFound = errors.New("record not found")

// ErrInsufficientStock rejects a borrow or conversion whose quantity exceeds
// the current stock. The operation performs no mutation when this is
// returned.
var ErrInsufficientStock = errors.New("insufficient stock")

// ValidationError rejects an operation whose preconditions were not met,
// before any mutation happens.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}
