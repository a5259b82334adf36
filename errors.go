package virtsched

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrReentrantTick is returned when Tick, TickUntil, Run, or Resume is
	// called while a tick is already in progress. This indicates a caller
	// bug, not a recoverable runtime condition.
	ErrReentrantTick = errors.New("virtsched: tick is already in progress")

	// ErrNonPositiveInterval is returned when a Repeat event is scheduled
	// with an interval <= 0.
	ErrNonPositiveInterval = errors.New("virtsched: repeat interval must be positive")
)

// CallbackPanicError wraps a panic recovered from a firing callback, so
// that panics flow through the same exception-policy dispatch as returned
// errors.
type CallbackPanicError struct {
	// Value is the value the callback panicked with.
	Value any
}

// Error implements the error interface.
func (e *CallbackPanicError) Error() string {
	return fmt.Sprintf("virtsched: callback panicked: %v", e.Value)
}
