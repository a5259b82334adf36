package virtsched

import (
	"container/heap"

	"github.com/joeycumines/logiface"
)

// Scheduler is a single-threaded virtual-time event scheduler.
//
// Callers register callbacks to fire once or repeatedly at relative or
// absolute virtual times, then drive the clock themselves via [Tick]
// (or [TickUntil] / [Run]). There is no wall-clock or OS timer
// integration: time advances exactly as far as the caller says, which
// makes runs deterministic and replayable.
//
// A callback fired during a tick may call back into the scheduler -
// schedule, cancel, reschedule, peek, clear - on the same goroutine.
// Cancellation applies immediately (it only flips a status flag);
// schedule, reschedule, and clear requests issued mid-tick are buffered
// in a deferred log and applied in FIFO order at tick exit, so the tick
// engine always iterates a consistent ready queue. An event scheduled
// from inside a tick therefore never fires within that same tick, even
// if its fire time has already elapsed.
//
// The Scheduler is not safe for concurrent use by multiple goroutines.
type Scheduler struct {
	// Prevent copying
	_ [0]func()

	pool     *arena
	ready    readyQueue
	deferred *deferredLog
	state    tickState

	log *logiface.Logger[logiface.Event]

	// Virtual clock
	current       Time
	paused        bool
	pausedElapsed Time

	// Entries in the ready queue whose slot has been cancelled but not
	// yet reclaimed. When this exceeds the alive count, the queue is
	// rebuilt at the next safe point.
	cancelledCount int

	fireCount uint64

	metrics *Metrics // nil unless WithMetrics(true)
}

// New creates a new Scheduler.
func New(opts ...SchedulerOption) (*Scheduler, error) {
	cfg, err := resolveSchedulerOptions(opts)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		pool:     newArena(cfg.capacity),
		deferred: newDeferredLog(),
		log:      cfg.logger,
		current:  cfg.startTime,
	}
	if cfg.capacity > 0 {
		s.ready = make(readyQueue, 0, cfg.capacity)
	}
	if cfg.metricsEnabled {
		s.metrics = &Metrics{}
	}
	return s, nil
}

// Schedule registers an event described by desc to first fire at `when`,
// interpreted per mode. It returns a handle for the event, or
// [ErrNonPositiveInterval] if desc describes a Repeat event with a
// non-positive interval.
//
// Scheduling from inside a firing callback is safe: the returned handle
// is immediately valid for IsAlive/Cancel/Reschedule, but the event is
// not eligible to fire until the next tick, even if its fire time has
// already passed.
func (s *Scheduler) Schedule(when Time, mode TimeMode, desc EventDesc) (Handle, error) {
	if err := desc.validate(); err != nil {
		return InvalidHandle, err
	}
	fireAt := s.resolveWhen(when, mode)
	h := s.pool.allocate(desc, fireAt)
	if s.state.Load() == StateTicking {
		s.deferred.append(deferredOp{kind: deferredSchedule, handle: h, fireAt: fireAt})
	} else {
		s.pushEntry(h, fireAt)
	}
	s.log.Trace().
		Int("slot", int(h.index)).
		Uint64("generation", uint64(h.generation)).
		Int64("fire_at", fireAt).
		Str("kind", desc.Kind.String()).
		Log("event scheduled")
	return h, nil
}

// After schedules a one-shot event at PriorityUser, delay units from now.
func (s *Scheduler) After(delay Time, cb Callback) (Handle, error) {
	return s.Schedule(delay, Relative, EventDesc{Kind: Once, Callback: cb, Priority: PriorityUser})
}

// At schedules a one-shot event at PriorityUser at the absolute time `when`.
func (s *Scheduler) At(when Time, cb Callback) (Handle, error) {
	return s.Schedule(when, Absolute, EventDesc{Kind: Once, Callback: cb, Priority: PriorityUser})
}

// Every schedules a repeating event at PriorityUser, first firing one
// interval from now.
func (s *Scheduler) Every(interval Time, cb Callback) (Handle, error) {
	return s.Schedule(interval, Relative, EventDesc{
		Kind:     Repeat,
		Interval: interval,
		Callback: cb,
		Priority: PriorityUser,
	})
}

// Cancel cancels the event named by h. It reports false if h is already
// invalid, cancelled, or stale.
//
// Cancel is safe to call at any time, including from inside a firing
// callback (its own, or another event's): it only flips the slot's
// status flag. The slot itself is reclaimed lazily, when its ready-queue
// entry surfaces or at the next rebuild.
func (s *Scheduler) Cancel(h Handle) bool {
	if !s.pool.isAlive(h) {
		return false
	}
	s.pool.markCancelled(h.index)
	s.cancelledCount++
	s.log.Trace().
		Int("slot", int(h.index)).
		Uint64("generation", uint64(h.generation)).
		Log("event cancelled")
	if s.state.Load() == StateIdle {
		s.maybeRebuild()
	}
	return true
}

// IsAlive reports whether h names a live event. It never panics:
// out-of-range, stale, and cancelled handles all report false.
func (s *Scheduler) IsAlive(h Handle) bool {
	return s.pool.isAlive(h)
}

// Reschedule moves a live event's next fire time to `when`, interpreted
// per mode. It reports false if h is not alive.
//
// Called from inside a firing callback, the move is deferred to tick
// exit; even a fire time at or before the tick's new current time does
// not retroactively fire within the concluding tick.
func (s *Scheduler) Reschedule(h Handle, when Time, mode TimeMode) bool {
	if !s.pool.isAlive(h) {
		return false
	}
	fireAt := s.resolveWhen(when, mode)
	if s.state.Load() == StateTicking {
		s.deferred.append(deferredOp{kind: deferredDelay, handle: h, fireAt: fireAt})
	} else {
		s.applyDelay(h, fireAt)
	}
	s.log.Trace().
		Int("slot", int(h.index)).
		Int64("fire_at", fireAt).
		Log("event rescheduled")
	return true
}

// Tick advances virtual time by delta and fires every event that is due
// at or before the new current time, in fire-time order (ties broken by
// priority class, then slot index). A negative delta is treated as zero;
// Tick(0) fires events due exactly now.
//
// While paused, Tick accumulates delta without advancing the clock or
// firing anything; Resume replays the accumulated duration through the
// normal tick path.
//
// Tick returns [ErrReentrantTick] when called while a tick is already in
// progress (a caller bug), or the first error surfaced by a
// PolicyRethrow callback. In the latter case the remainder of the due
// scan is abandoned - after the event's own lifecycle bookkeeping has
// completed - and the scheduler is left consistent: deferred operations
// flush and the engine returns to idle, so the caller may keep ticking.
func (s *Scheduler) Tick(delta Time) error {
	if s.paused {
		if s.state.Load() == StateTicking {
			return ErrReentrantTick
		}
		if delta > 0 {
			s.pausedElapsed += delta
		}
		return nil
	}
	return s.tick(delta)
}

// TickUntil is sugar for Tick(at - Now()); it is a no-op if `at` is not
// in the future. While paused, the comparison accounts for time already
// accumulated, so repeated calls with the same target do not double up.
func (s *Scheduler) TickUntil(at Time) error {
	target := s.current
	if s.paused {
		target += s.pausedElapsed
	}
	delta := at - target
	if delta <= 0 {
		return nil
	}
	return s.Tick(delta)
}

// Run drains the ready queue by repeatedly jumping the clock to the next
// due event and firing it, until no live events remain. Each jump is a
// full tick pass, so events scheduled by callbacks (including ones whose
// fire time has already elapsed) are picked up on the following jump.
//
// Run does nothing while paused, stops if a callback pauses the
// scheduler, and returns the first PolicyRethrow error. Note that a
// Repeat event reschedules itself forever: Run will not return while one
// remains alive.
func (s *Scheduler) Run() error {
	if s.state.Load() == StateTicking {
		return ErrReentrantTick
	}
	for !s.paused {
		_, fireAt, ok := s.Peek()
		if !ok {
			return nil
		}
		delta := fireAt - s.current
		if delta < 0 {
			delta = 0
		}
		if err := s.tick(delta); err != nil {
			return err
		}
	}
	return nil
}

// Pause freezes virtual time. Subsequent Tick/TickUntil calls accumulate
// their deltas instead of firing; Resume replays the total. Pause is
// idempotent.
func (s *Scheduler) Pause() {
	if s.paused {
		return
	}
	s.paused = true
	s.log.Debug().Int64("now", s.current).Log("scheduler paused")
}

// Resume unfreezes virtual time and replays the duration accumulated
// while paused through the normal tick path in a single call, preserving
// ordering and catch-up semantics exactly as if time had been ticked
// continuously. It returns a PolicyRethrow error from the replay, if
// any; resuming when not paused is a no-op.
func (s *Scheduler) Resume() error {
	if !s.paused {
		return nil
	}
	if s.pausedElapsed > 0 && s.state.Load() == StateTicking {
		return ErrReentrantTick
	}
	s.paused = false
	replay := s.pausedElapsed
	s.pausedElapsed = 0
	s.log.Debug().Int64("replay", replay).Log("scheduler resumed")
	if replay <= 0 {
		return nil
	}
	return s.tick(replay)
}

// Clear invalidates every scheduled event. All outstanding handles go
// stale immediately; slot indices return to the free list for reuse.
// The virtual clock is not reset.
//
// Clear is safe to call from inside a firing callback: events scheduled
// before the call (in this tick or earlier) are invalidated, while
// events scheduled after it - even later in the same callback - remain
// valid and fire on a later tick.
func (s *Scheduler) Clear() {
	s.pool.clear()
	s.cancelledCount = 0
	if s.state.Load() == StateTicking {
		s.deferred.append(deferredOp{kind: deferredClear})
	} else {
		s.ready = s.ready[:0]
	}
	s.log.Debug().Int64("now", s.current).Log("scheduler cleared")
}

// Peek returns the next due event's handle and fire time without firing
// it, or ok == false if nothing is pending. It is a read-only scan, safe
// to call from inside a firing callback; events whose installation is
// still deferred are not visible.
func (s *Scheduler) Peek() (h Handle, fireAt Time, ok bool) {
	best := -1
	for i := range s.ready {
		if !s.entryLive(s.ready[i]) {
			continue
		}
		if best < 0 || entryBefore(s.ready[i], s.ready[best]) {
			best = i
		}
	}
	if best < 0 {
		return InvalidHandle, 0, false
	}
	e := s.ready[best]
	return Handle{index: e.index, generation: e.generation}, e.fireAt, true
}

// Now returns the scheduler's current virtual time. While paused it
// reports the time at which the pause took effect.
func (s *Scheduler) Now() Time {
	return s.current
}

// Size returns the number of live events.
func (s *Scheduler) Size() int {
	return s.pool.alive
}

// Pending returns the number of live entries in the ready queue. It can
// lag Size while schedule operations issued mid-tick await their flush.
func (s *Scheduler) Pending() int {
	n := 0
	for i := range s.ready {
		if s.entryLive(s.ready[i]) {
			n++
		}
	}
	return n
}

// FireCount returns the total number of callback firings since creation.
func (s *Scheduler) FireCount() uint64 {
	return s.fireCount
}

// State returns the tick engine's current phase.
func (s *Scheduler) State() SchedulerState {
	return s.state.Load()
}

// Metrics returns a copy of the runtime counters. It returns the zero
// value unless the scheduler was created with WithMetrics(true).
func (s *Scheduler) Metrics() Metrics {
	if s.metrics == nil {
		return Metrics{}
	}
	return *s.metrics
}

// --- tick engine ---

// tick is a single tick pass: advance the clock, drain due events, then
// flush the deferred log and rebuild the queue if cancellation density
// demands it. The exit path is scope-bound: it runs even when a
// PolicyRethrow error propagates out of the due scan.
func (s *Scheduler) tick(delta Time) error {
	if !s.state.TryTransition(StateIdle, StateTicking) {
		return ErrReentrantTick
	}
	defer s.exitTick()
	if delta > 0 {
		s.current += delta
	}
	if s.metrics != nil {
		s.metrics.Ticks++
	}
	return s.drainDue()
}

// exitTick flushes the deferred log and returns the engine to idle. It
// must run on every tick exit path.
func (s *Scheduler) exitTick() {
	s.flushDeferred()
	s.maybeRebuild()
	s.state.Store(StateIdle)
}

// drainDue pops and fires ready-queue entries due at or before the
// current time, discarding stale and cancelled entries as they surface.
func (s *Scheduler) drainDue() error {
	for len(s.ready) > 0 {
		top := s.ready[0]

		// Stale check first: a mismatched generation or sequence means the
		// entry was superseded and owes no bookkeeping. It must precede
		// the cancelled check - the slot may already belong to a new
		// occupant, which a stale entry has no business reclaiming.
		if !s.pool.generationMatches(Handle{index: top.index, generation: top.generation}) ||
			s.pool.slots[top.index].seq != top.seq {
			heap.Pop(&s.ready)
			continue
		}

		sl := &s.pool.slots[top.index]
		if sl.status == slotCancelled {
			heap.Pop(&s.ready)
			s.pool.reclaim(top.index)
			s.cancelledCount--
			if s.metrics != nil {
				s.metrics.LazyReclaims++
			}
			continue
		}

		// Collapse-to-latest: if more than one interval has elapsed since
		// the entry's fire time, jump it to the most recent elapsed
		// boundary without firing. The next iteration fires it exactly
		// once for the whole gap.
		if sl.desc.Kind == Repeat && sl.desc.CatchUp == CatchUpLatest {
			if gap := s.current - top.fireAt; gap >= sl.desc.Interval {
				e := heap.Pop(&s.ready).(entry)
				e.fireAt += (gap / sl.desc.Interval) * sl.desc.Interval
				sl.nextFire = e.fireAt
				heap.Push(&s.ready, e)
				continue
			}
		}

		if top.fireAt > s.current {
			break
		}

		e := heap.Pop(&s.ready).(entry)
		if err := s.fire(e); err != nil {
			return err
		}
	}
	return nil
}

// fire invokes one due event's callback and performs its lifecycle
// bookkeeping: requeue for Repeat, recycle for Once, reclaim if the
// callback cancelled it, policy dispatch on failure. Bookkeeping always
// completes before a PolicyRethrow error is allowed to propagate.
func (s *Scheduler) fire(e entry) error {
	// The descriptor is copied out up front: the callback may cancel this
	// event, clear the scheduler, or schedule new events (growing the
	// slot array and invalidating any held slot pointer).
	desc := s.pool.slots[e.index].desc

	s.fireCount++
	if s.metrics != nil {
		s.metrics.Fires++
	}
	err := safeInvoke(desc.Callback)

	h := Handle{index: e.index, generation: e.generation}

	if err != nil && desc.OnError == PolicyCancelEvent {
		// The event ends here regardless of kind. Its sole queue entry is
		// the one just popped, so the slot is reclaimed directly.
		if s.pool.generationMatches(h) {
			switch s.pool.slots[e.index].status {
			case slotAlive:
				s.pool.markCancelled(e.index)
				s.pool.reclaim(e.index)
			case slotCancelled:
				// The callback also cancelled itself; settle the lazy debt.
				s.pool.reclaim(e.index)
				s.cancelledCount--
			}
		}
		if s.metrics != nil {
			s.metrics.PolicyCancels++
		}
		s.log.Debug().Err(err).Int("slot", int(e.index)).Log("event cancelled by policy")
		return nil
	}

	// Normal lifecycle; also runs ahead of a rethrow so a caller that
	// catches the error and keeps ticking observes consistent state.
	if s.pool.generationMatches(h) {
		sl := &s.pool.slots[e.index]
		switch {
		case sl.status == slotCancelled:
			// Cancelled during its own execution; takes precedence over
			// rescheduling.
			s.pool.reclaim(e.index)
			s.cancelledCount--
		case desc.Kind == Repeat:
			next := e.fireAt + desc.Interval
			sl.nextFire = next
			heap.Push(&s.ready, entry{
				fireAt:     next,
				index:      e.index,
				generation: e.generation,
				seq:        sl.seq,
				priority:   desc.Priority,
			})
		default: // Once
			s.pool.markCancelled(e.index)
			s.pool.reclaim(e.index)
		}
	}

	if err != nil {
		if desc.OnError == PolicyRethrow {
			return err
		}
		if s.metrics != nil {
			s.metrics.SwallowedErrors++
		}
		s.log.Debug().Err(err).Int("slot", int(e.index)).Log("callback error swallowed")
	}
	return nil
}

// flushDeferred replays the deferred log in FIFO order. Schedule ops
// whose slot was invalidated by an intervening clear are skipped (or, if
// merely cancelled, reclaimed on the spot); delay ops on dead handles
// are dropped.
func (s *Scheduler) flushDeferred() {
	if s.deferred.len() == 0 {
		return
	}
	n := 0
	s.deferred.drain(func(op deferredOp) {
		n++
		switch op.kind {
		case deferredSchedule:
			if !s.pool.generationMatches(op.handle) {
				return // invalidated by a clear issued after it, mid-tick
			}
			switch sl := &s.pool.slots[op.handle.index]; sl.status {
			case slotAlive:
				s.pushEntry(op.handle, sl.nextFire)
			case slotCancelled:
				// Cancelled before it ever reached the queue.
				s.pool.reclaim(op.handle.index)
				s.cancelledCount--
			}
		case deferredDelay:
			if s.pool.isAlive(op.handle) {
				s.applyDelay(op.handle, op.fireAt)
			}
		case deferredClear:
			s.compactQueue()
		}
	})
	if s.metrics != nil {
		s.metrics.DeferredOps += uint64(n)
	}
	s.log.Debug().Int("ops", n).Log("deferred operations flushed")
}

// pushEntry pushes a ready-queue entry for the live slot named by h.
func (s *Scheduler) pushEntry(h Handle, fireAt Time) {
	sl := &s.pool.slots[h.index]
	sl.nextFire = fireAt
	heap.Push(&s.ready, entry{
		fireAt:     fireAt,
		index:      h.index,
		generation: h.generation,
		seq:        sl.seq,
		priority:   sl.desc.Priority,
	})
}

// applyDelay moves a live event to a new fire time by bumping its push
// sequence and pushing a fresh entry; the superseded entry dies lazily.
func (s *Scheduler) applyDelay(h Handle, fireAt Time) {
	s.pool.slots[h.index].seq++
	s.pushEntry(h, fireAt)
}

// entryLive reports whether e still corresponds to a live, current push
// of its slot.
func (s *Scheduler) entryLive(e entry) bool {
	if int(e.index) >= len(s.pool.slots) || s.pool.generations[e.index] != e.generation {
		return false
	}
	sl := &s.pool.slots[e.index]
	return sl.status == slotAlive && sl.seq == e.seq
}

// compactQueue drops every dead entry and restores the heap invariant.
// entryBefore is a total order, so surviving entries keep their relative
// firing order across the rebuild.
func (s *Scheduler) compactQueue() {
	kept := s.ready[:0]
	for _, e := range s.ready {
		if s.entryLive(e) {
			kept = append(kept, e)
		}
	}
	s.ready = kept
	heap.Init(&s.ready)
}

// maybeRebuild rebuilds the ready queue once cancelled entries outnumber
// live events: cancelled slots are reclaimed, their entries (and any
// superseded ones) discarded, and the cancelled count reset to zero.
// Never called mid-tick - cancellation inside a callback defers the
// rebuild to tick exit.
func (s *Scheduler) maybeRebuild() {
	if s.cancelledCount <= s.pool.alive {
		return
	}
	kept := s.ready[:0]
	for _, e := range s.ready {
		if int(e.index) < len(s.pool.slots) && s.pool.generations[e.index] == e.generation {
			sl := &s.pool.slots[e.index]
			if sl.status == slotCancelled {
				s.pool.reclaim(e.index)
				continue
			}
			if sl.status == slotAlive && sl.seq == e.seq {
				kept = append(kept, e)
				continue
			}
		}
		// Stale or superseded: dropped without bookkeeping.
	}
	s.ready = kept
	heap.Init(&s.ready)
	s.cancelledCount = 0
	if s.metrics != nil {
		s.metrics.Rebuilds++
	}
	s.log.Debug().
		Int("kept", len(kept)).
		Int("alive", s.pool.alive).
		Log("ready queue rebuilt")
}

// resolveWhen converts a caller-supplied time to an absolute fire time.
func (s *Scheduler) resolveWhen(when Time, mode TimeMode) Time {
	if mode == Relative {
		return s.current + when
	}
	return when
}

// safeInvoke runs a callback with panic recovery, folding panics into
// the same error path consumed by the exception-policy dispatch.
func safeInvoke(cb Callback) (err error) {
	if cb == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &CallbackPanicError{Value: r}
		}
	}()
	return cb()
}
