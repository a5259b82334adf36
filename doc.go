// Package virtsched provides a deterministic, single-threaded event
// scheduler driven by an externally supplied virtual clock.
//
// Callers register callbacks to fire once or repeatedly at relative or
// absolute virtual times, then advance time themselves with
// [Scheduler.Tick] (or [Scheduler.TickUntil] / [Scheduler.Run]). This is
// the engine behind game loops, simulation clocks, and soft-realtime
// callback dispatch, where determinism, reentrancy, and cancellation
// safety matter more than wall-clock precision.
//
// # Architecture
//
// Events live in a generation-tagged slot arena: a [Handle] is an
// (index, generation) pair, so a handle held after its event ends goes
// verifiably stale instead of aliasing the slot's next occupant. A
// binary min-heap orders pending events by fire time, with priority
// class and slot index as deterministic tie-breaks. Cancellation is
// lazy: it flips a status flag, and the dead entry is discarded when it
// reaches the top of the heap - or in a wholesale rebuild once cancelled
// entries outnumber live events.
//
// # Reentrancy
//
// The concurrency hazard here is reentrancy, not parallelism: a callback
// fired during a tick may call back into the scheduler on the same
// goroutine. An Idle/Ticking guard rejects reentrant Tick/Run calls with
// [ErrReentrantTick], and schedule/reschedule/clear requests issued
// mid-tick are buffered in a deferred log, replayed in FIFO order at
// tick exit. Cancellation needs no buffering - it never touches the
// heap. An event scheduled from inside a tick never fires within that
// same tick, even if its fire time has already elapsed.
//
// # Failure policy
//
// A callback failure (returned error, or recovered panic wrapped in
// [CallbackPanicError]) is dispatched per the event's [ExceptionPolicy]:
// swallowed, converted into cancellation, or rethrown from the Tick call
// - the latter only after the event's lifecycle bookkeeping completed,
// so a caller that catches the error can keep ticking. Repeating events
// that miss multiple intervals in one jump follow their [CatchUpPolicy]:
// fire every missed interval, or collapse the gap into a single firing.
//
// # Thread Safety
//
// The scheduler is not safe for concurrent use by multiple goroutines;
// it is single-threaded and cooperative by design. Only
// [Scheduler.State] may be observed from other goroutines.
package virtsched
