package virtsched

import "fmt"

// Time is a point on (or interval of) the scheduler's virtual timeline.
//
// The unit is whatever the caller ticks in - the engine only performs
// integer arithmetic on it. The original deployment used milliseconds.
type Time = int64

// Callback is invoked when an event fires. A non-nil error (or a panic,
// which is recovered and wrapped in a [CallbackPanicError]) is routed
// through the event's [ExceptionPolicy]. A nil Callback fires as a no-op.
type Callback func() error

// EventKind selects between one-shot and repeating events.
type EventKind uint8

const (
	// Once fires a single time and then releases its slot.
	Once EventKind = iota
	// Repeat fires every Interval until cancelled or cleared.
	Repeat
)

// String returns a human-readable representation of the kind.
func (k EventKind) String() string {
	switch k {
	case Once:
		return "Once"
	case Repeat:
		return "Repeat"
	default:
		return fmt.Sprintf("EventKind(%d)", uint8(k))
	}
}

// TimeMode controls how the `when` argument of [Scheduler.Schedule] is
// interpreted.
type TimeMode uint8

const (
	// Relative treats `when` as an offset from the scheduler's current time.
	Relative TimeMode = iota
	// Absolute treats `when` as a point on the virtual timeline.
	Absolute
)

// String returns a human-readable representation of the mode.
func (m TimeMode) String() string {
	switch m {
	case Relative:
		return "Relative"
	case Absolute:
		return "Absolute"
	default:
		return fmt.Sprintf("TimeMode(%d)", uint8(m))
	}
}

// ExceptionPolicy decides what happens to an event whose callback fails.
//
// Regardless of policy, the event's own lifecycle bookkeeping (reschedule
// for Repeat, slot recycling for Once) completes before the policy takes
// effect, so the scheduler is never left in an inconsistent state.
type ExceptionPolicy uint8

const (
	// PolicySwallow discards the error. The event continues its normal
	// lifecycle.
	PolicySwallow ExceptionPolicy = iota
	// PolicyCancelEvent cancels the event; it will not fire again,
	// regardless of kind.
	PolicyCancelEvent
	// PolicyRethrow surfaces the error as the return value of the
	// Tick/TickUntil/Run/Resume call that fired the event. The remainder
	// of that tick's due-scan is abandoned; deferred operations still
	// flush, and further ticks behave normally.
	PolicyRethrow
)

// String returns a human-readable representation of the policy.
func (p ExceptionPolicy) String() string {
	switch p {
	case PolicySwallow:
		return "Swallow"
	case PolicyCancelEvent:
		return "CancelEvent"
	case PolicyRethrow:
		return "Rethrow"
	default:
		return fmt.Sprintf("ExceptionPolicy(%d)", uint8(p))
	}
}

// Priority breaks ties between events due at the same time. Lower values
// fire first; for equal priorities the event with the lower slot index
// (approximately: scheduled earlier) fires first.
type Priority uint8

const (
	// PrioritySystem fires before all other priorities at the same time.
	PrioritySystem Priority = iota
	// PriorityUser is the priority used by the convenience constructors.
	PriorityUser
	// PriorityDebug fires after all other priorities at the same time.
	PriorityDebug
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PrioritySystem:
		return "System"
	case PriorityUser:
		return "User"
	case PriorityDebug:
		return "Debug"
	default:
		return fmt.Sprintf("Priority(%d)", uint8(p))
	}
}

// CatchUpPolicy decides how a Repeat event behaves when a single tick
// advances time past more than one of its intervals.
type CatchUpPolicy uint8

const (
	// CatchUpAll delivers every missed interval as a separate firing, in
	// chronological order, within the same tick.
	CatchUpAll CatchUpPolicy = iota
	// CatchUpLatest skips the intermediate firings: the event's next fire
	// time jumps to the most recent elapsed interval boundary and exactly
	// one firing occurs for the whole gap.
	CatchUpLatest
)

// String returns a human-readable representation of the policy.
func (p CatchUpPolicy) String() string {
	switch p {
	case CatchUpAll:
		return "All"
	case CatchUpLatest:
		return "Latest"
	default:
		return fmt.Sprintf("CatchUpPolicy(%d)", uint8(p))
	}
}

// EventDesc describes an event to schedule.
//
// Interval is only meaningful for Repeat events, where it must be
// positive. The zero values of OnError, Priority, and CatchUp are
// PolicySwallow, PrioritySystem, and CatchUpAll respectively.
type EventDesc struct {
	Kind     EventKind
	Interval Time // Repeat only; must be > 0
	Callback Callback
	OnError  ExceptionPolicy
	Priority Priority
	CatchUp  CatchUpPolicy
}

// validate checks the schedule-time preconditions.
func (d *EventDesc) validate() error {
	if d.Kind == Repeat && d.Interval <= 0 {
		return ErrNonPositiveInterval
	}
	return nil
}
