package virtsched

import (
	"errors"
	"testing"
)

func mustNew(t *testing.T, opts ...SchedulerOption) *Scheduler {
	t.Helper()
	s, err := New(opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}

func TestScheduleOnceFiresAtDueTime(t *testing.T) {
	s := mustNew(t)

	fired := 0
	h, err := s.After(100, func() error {
		fired++
		return nil
	})
	if err != nil {
		t.Fatalf("After failed: %v", err)
	}
	if !s.IsAlive(h) {
		t.Fatal("scheduled event not alive")
	}
	if s.Size() != 1 {
		t.Fatalf("Size() = %d, want 1", s.Size())
	}

	if err := s.Tick(99); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if fired != 0 {
		t.Fatal("event fired before its due time")
	}

	if err := s.Tick(1); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if s.IsAlive(h) {
		t.Fatal("once event still alive after firing")
	}
	if s.Size() != 0 {
		t.Fatalf("Size() = %d after firing, want 0", s.Size())
	}
	if s.FireCount() != 1 {
		t.Fatalf("FireCount() = %d, want 1", s.FireCount())
	}
}

func TestTickZeroFiresNothingBeforeDueTime(t *testing.T) {
	s := mustNew(t)

	fired := false
	if _, err := s.At(100, func() error { fired = true; return nil }); err != nil {
		t.Fatalf("At failed: %v", err)
	}

	if err := s.Tick(0); err != nil {
		t.Fatalf("Tick(0) failed: %v", err)
	}
	if fired {
		t.Fatal("Tick(0) fired an event not yet due")
	}
	if s.Now() != 0 {
		t.Fatalf("Now() = %d after Tick(0), want 0", s.Now())
	}
}

func TestRepeatFiresEveryInterval(t *testing.T) {
	s := mustNew(t)

	fired := 0
	if _, err := s.Every(500, func() error { fired++; return nil }); err != nil {
		t.Fatalf("Every failed: %v", err)
	}

	// Drive with ticks that do not line up with the interval.
	for i := 0; i < 10; i++ {
		if err := s.Tick(300); err != nil {
			t.Fatalf("Tick failed: %v", err)
		}
	}
	// now = 3000: boundaries at 500..3000 -> 6 firings.
	if fired != 6 {
		t.Fatalf("fired = %d, want 6", fired)
	}
	if s.Size() != 1 {
		t.Fatal("repeat event no longer alive")
	}
}

func TestSameTimePriorityOrdering(t *testing.T) {
	s := mustNew(t)

	var order []string
	schedule := func(name string, pri Priority) {
		_, err := s.Schedule(100, Absolute, EventDesc{
			Kind:     Once,
			Callback: func() error { order = append(order, name); return nil },
			Priority: pri,
		})
		if err != nil {
			t.Fatalf("Schedule(%s) failed: %v", name, err)
		}
	}

	schedule("A", PriorityUser)   // index 0
	schedule("B", PrioritySystem) // index 1
	schedule("C", PriorityDebug)  // index 2
	schedule("D", PriorityUser)   // index 3

	if err := s.Tick(100); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	want := []string{"B", "A", "D", "C"}
	if len(order) != len(want) {
		t.Fatalf("fired %d events, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("firing order = %v, want %v", order, want)
		}
	}
}

func TestAbsoluteAndRelativeModes(t *testing.T) {
	s := mustNew(t, WithStartTime(1000))

	if s.Now() != 1000 {
		t.Fatalf("Now() = %d, want 1000", s.Now())
	}

	var fired []string
	if _, err := s.Schedule(50, Relative, EventDesc{
		Kind:     Once,
		Callback: func() error { fired = append(fired, "rel"); return nil },
	}); err != nil {
		t.Fatalf("Schedule relative failed: %v", err)
	}
	if _, err := s.Schedule(1025, Absolute, EventDesc{
		Kind:     Once,
		Callback: func() error { fired = append(fired, "abs"); return nil },
	}); err != nil {
		t.Fatalf("Schedule absolute failed: %v", err)
	}

	if err := s.TickUntil(1050); err != nil {
		t.Fatalf("TickUntil failed: %v", err)
	}
	if len(fired) != 2 || fired[0] != "abs" || fired[1] != "rel" {
		t.Fatalf("fired = %v, want [abs rel]", fired)
	}
}

func TestTickUntilPastIsNoOp(t *testing.T) {
	s := mustNew(t)
	if err := s.Tick(100); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}

	fired := false
	if _, err := s.At(50, func() error { fired = true; return nil }); err != nil {
		t.Fatalf("At failed: %v", err)
	}

	if err := s.TickUntil(80); err != nil {
		t.Fatalf("TickUntil failed: %v", err)
	}
	if fired {
		t.Fatal("TickUntil with a past target fired events")
	}
	if s.Now() != 100 {
		t.Fatalf("Now() = %d, want 100 (unchanged)", s.Now())
	}

	// The event is already overdue; any forward tick delivers it.
	if err := s.Tick(0); err != nil {
		t.Fatalf("Tick(0) failed: %v", err)
	}
	if !fired {
		t.Fatal("overdue event not fired by Tick(0)")
	}
}

func TestRepeatRequiresPositiveInterval(t *testing.T) {
	s := mustNew(t)

	for _, interval := range []Time{0, -5} {
		h, err := s.Schedule(10, Relative, EventDesc{Kind: Repeat, Interval: interval})
		if !errors.Is(err, ErrNonPositiveInterval) {
			t.Fatalf("interval %d: err = %v, want ErrNonPositiveInterval", interval, err)
		}
		if h.IsValid() {
			t.Fatalf("interval %d: got a valid handle alongside an error", interval)
		}
	}
	if s.Size() != 0 {
		t.Fatal("rejected schedule leaked a slot")
	}
}

func TestCancel(t *testing.T) {
	s := mustNew(t)

	fired := false
	h, err := s.After(10, func() error { fired = true; return nil })
	if err != nil {
		t.Fatalf("After failed: %v", err)
	}

	if !s.Cancel(h) {
		t.Fatal("Cancel of a live event returned false")
	}
	if s.Cancel(h) {
		t.Fatal("second Cancel of the same handle returned true")
	}
	if s.IsAlive(h) {
		t.Fatal("cancelled handle reports alive")
	}
	if s.Size() != 0 {
		t.Fatalf("Size() = %d after cancel, want 0", s.Size())
	}

	if err := s.Tick(10); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if fired {
		t.Fatal("cancelled event fired")
	}
	if s.Cancel(InvalidHandle) {
		t.Fatal("Cancel(InvalidHandle) returned true")
	}
}

func TestPeek(t *testing.T) {
	s := mustNew(t)

	if _, _, ok := s.Peek(); ok {
		t.Fatal("Peek on an empty scheduler reported an event")
	}

	hLate, err := s.At(100, nil)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}
	hEarly, err := s.At(30, nil)
	if err != nil {
		t.Fatalf("At failed: %v", err)
	}

	h, at, ok := s.Peek()
	if !ok || h != hEarly || at != 30 {
		t.Fatalf("Peek = (%v, %d, %v), want (%v, 30, true)", h, at, ok, hEarly)
	}

	s.Cancel(hEarly)
	h, at, ok = s.Peek()
	if !ok || h != hLate || at != 100 {
		t.Fatalf("Peek after cancel = (%v, %d, %v), want (%v, 100, true)", h, at, ok, hLate)
	}

	// Peek never fires.
	if s.FireCount() != 0 {
		t.Fatal("Peek fired an event")
	}
}

func TestRescheduleMovesPendingEvent(t *testing.T) {
	s := mustNew(t)

	fired := 0
	h, err := s.After(10, func() error { fired++; return nil })
	if err != nil {
		t.Fatalf("After failed: %v", err)
	}

	if !s.Reschedule(h, 50, Absolute) {
		t.Fatal("Reschedule of a live event returned false")
	}

	if err := s.Tick(10); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if fired != 0 {
		t.Fatal("event fired at its superseded time")
	}
	if !s.IsAlive(h) {
		t.Fatal("rescheduled event not alive")
	}

	if err := s.TickUntil(50); err != nil {
		t.Fatalf("TickUntil failed: %v", err)
	}
	if fired != 1 {
		t.Fatalf("fired = %d after reaching new time, want 1", fired)
	}

	if s.Reschedule(h, 10, Relative) {
		t.Fatal("Reschedule of a dead handle returned true")
	}
}

func TestRunDrainsInTimeOrder(t *testing.T) {
	s := mustNew(t)

	var order []string
	if _, err := s.At(10, func() error {
		order = append(order, "A")
		// Scheduled mid-tick: must fire on a later jump, not this one.
		_, err := s.After(5, func() error { order = append(order, "C"); return nil })
		return err
	}); err != nil {
		t.Fatalf("At failed: %v", err)
	}
	if _, err := s.At(30, func() error { order = append(order, "B"); return nil }); err != nil {
		t.Fatalf("At failed: %v", err)
	}

	if err := s.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	want := []string{"A", "C", "B"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if s.Now() != 30 {
		t.Fatalf("Now() = %d after Run, want 30", s.Now())
	}
	if s.Size() != 0 {
		t.Fatalf("Size() = %d after Run, want 0", s.Size())
	}
}

func TestClearWhileIdle(t *testing.T) {
	s := mustNew(t)

	h1, _ := s.After(10, nil)
	h2, _ := s.Every(20, func() error { return nil })

	s.Clear()

	if s.Size() != 0 {
		t.Fatalf("Size() = %d after Clear, want 0", s.Size())
	}
	if s.IsAlive(h1) || s.IsAlive(h2) {
		t.Fatal("handle alive after Clear")
	}
	if _, _, ok := s.Peek(); ok {
		t.Fatal("Peek reported an event after Clear")
	}
	if err := s.Tick(100); err != nil {
		t.Fatalf("Tick after Clear failed: %v", err)
	}
	if s.FireCount() != 0 {
		t.Fatal("cleared event fired")
	}

	// Clock is preserved across Clear.
	if s.Now() != 100 {
		t.Fatalf("Now() = %d, want 100", s.Now())
	}
}

func TestStateAccessor(t *testing.T) {
	s := mustNew(t)

	if s.State() != StateIdle {
		t.Fatalf("State() = %v, want Idle", s.State())
	}
	var during SchedulerState
	if _, err := s.After(5, func() error {
		during = s.State()
		return nil
	}); err != nil {
		t.Fatalf("After failed: %v", err)
	}
	if err := s.Tick(5); err != nil {
		t.Fatalf("Tick failed: %v", err)
	}
	if during != StateTicking {
		t.Fatalf("state during callback = %v, want Ticking", during)
	}
	if s.State() != StateIdle {
		t.Fatalf("State() = %v after tick, want Idle", s.State())
	}
}
