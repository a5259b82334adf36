package virtsched

import "sync/atomic"

// SchedulerState represents the tick engine's current phase.
//
// State Machine:
//
//	StateIdle (0) → StateTicking (1)   [Tick() / TickUntil() / Run() / Resume()]
//	StateTicking (1) → StateIdle (0)   [tick exit, after the deferred flush]
//
// The transition into StateTicking is the reentrancy guard: a second
// Tick/Run arriving while already Ticking is a caller bug and is
// rejected with [ErrReentrantTick]. The transition back to StateIdle is
// scope-bound - it happens on every exit path, including an error
// propagated by a PolicyRethrow callback.
type SchedulerState uint32

const (
	// StateIdle indicates no tick is in progress; mutations apply
	// immediately.
	StateIdle SchedulerState = iota
	// StateTicking indicates the tick engine is draining due events;
	// schedule/delay/clear requests are buffered until tick exit.
	StateTicking
)

// String returns a human-readable representation of the state.
func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateTicking:
		return "Ticking"
	default:
		return "Unknown"
	}
}

// tickState is the Idle/Ticking guard. The scheduler is single-threaded,
// but the guard uses atomics anyway so that State() is safely observable
// from other goroutines and a reentrant entry attempt is a single CAS.
type tickState struct {
	v atomic.Uint32
}

// Load returns the current state.
func (s *tickState) Load() SchedulerState {
	return SchedulerState(s.v.Load())
}

// Store unconditionally stores a new state. Only used for the
// scope-bound reset back to StateIdle.
func (s *tickState) Store(state SchedulerState) {
	s.v.Store(uint32(state))
}

// TryTransition attempts to atomically move from one state to another.
func (s *tickState) TryTransition(from, to SchedulerState) bool {
	return s.v.CompareAndSwap(uint32(from), uint32(to))
}
