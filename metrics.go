package virtsched

// Metrics tracks runtime statistics for the scheduler.
//
// Collection is opt-in via WithMetrics and costs a handful of integer
// increments per tick. The scheduler is single-threaded, so the counters
// are plain fields; read them via [Scheduler.Metrics], which returns a
// copy taken between ticks.
//
// Example:
//
//	s, _ := New(WithMetrics(true))
//	_ = s.Tick(100)
//	stats := s.Metrics()
//	fmt.Printf("fires=%d rebuilds=%d\n", stats.Fires, stats.Rebuilds)
type Metrics struct {
	// Ticks is the number of completed tick passes (Tick, TickUntil with a
	// positive delta, each jump of Run, and the replay tick of Resume).
	Ticks uint64

	// Fires is the number of callback firings. Unlike
	// [Scheduler.FireCount] this counter is only maintained when metrics
	// are enabled.
	Fires uint64

	// SwallowedErrors counts callback failures discarded by
	// PolicySwallow.
	SwallowedErrors uint64

	// PolicyCancels counts events cancelled by PolicyCancelEvent.
	PolicyCancels uint64

	// LazyReclaims counts cancelled slots reclaimed when their stale
	// ready-queue entry surfaced at the top of the heap.
	LazyReclaims uint64

	// Rebuilds counts ready-queue rebuilds triggered by cancellation
	// density (cancelled entries outnumbering alive events).
	Rebuilds uint64

	// DeferredOps counts operations replayed from the deferred log at
	// tick exit.
	DeferredOps uint64
}
