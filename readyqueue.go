package virtsched

// entry is one ready-queue element. It snapshots everything the ordering
// needs (fire time, priority) plus everything liveness needs (index,
// generation, push sequence), so comparisons never chase back into the
// slot store and a recycled or superseded slot is detected the moment
// its entry surfaces.
//
// seq mirrors the slot's push sequence at the time the entry was pushed.
// A delay bumps the slot's sequence and pushes a fresh entry; the old
// entry's stale seq marks it as superseded without touching the heap.
type entry struct {
	fireAt     Time
	index      uint32
	generation uint32
	seq        uint32
	priority   Priority
}

// entryBefore is the total firing order: fire time ascending, then
// priority class (System before User before Debug), then slot index.
// The index tie-break approximates insertion order, which keeps firing
// deterministic without a true FIFO sequence number.
func entryBefore(a, b entry) bool {
	if a.fireAt != b.fireAt {
		return a.fireAt < b.fireAt
	}
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	return a.index < b.index
}

// readyQueue is a binary min-heap of entries in entryBefore order.
//
// The queue may contain stale entries (generation or sequence no longer
// matching the slot) and entries for cancelled events; those are
// discarded lazily when they reach the top, never removed from the
// middle of the heap.
type readyQueue []entry

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool { return entryBefore(q[i], q[j]) }

func (q readyQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *readyQueue) Push(x any) {
	*q = append(*q, x.(entry))
}

func (q *readyQueue) Pop() any {
	old := *q
	n := len(old)
	x := old[n-1]
	*q = old[:n-1]
	return x
}
