package virtsched

import "github.com/eapache/queue"

// deferredKind tags a buffered mutation.
type deferredKind uint8

const (
	// deferredSchedule pushes an already-allocated slot into the ready
	// queue at flush time.
	deferredSchedule deferredKind = iota
	// deferredDelay moves a still-alive event's fire time at flush time.
	deferredDelay
	// deferredClear purges the ready queue of entries invalidated by a
	// clear that already swept the slot store.
	deferredClear
)

// deferredOp is one buffered schedule/delay/clear request.
//
// Cancellation is deliberately absent: cancel only flips a slot's status
// flag and never touches the heap, so it applies immediately even from
// inside a firing callback.
type deferredOp struct {
	kind   deferredKind
	handle Handle
	fireAt Time
}

// deferredLog buffers mutations issued while a tick is in progress, for
// FIFO replay at tick exit. Mutating the ready queue mid-drain would
// corrupt heap ordering under the tick engine's feet; buffering gives
// every callback a consistent view of the queue for the whole tick.
type deferredLog struct {
	ops *queue.Queue
}

func newDeferredLog() *deferredLog {
	return &deferredLog{ops: queue.New()}
}

func (l *deferredLog) append(op deferredOp) {
	l.ops.Add(op)
}

func (l *deferredLog) len() int {
	return l.ops.Length()
}

// drain replays the buffered operations in FIFO order.
func (l *deferredLog) drain(apply func(deferredOp)) {
	for l.ops.Length() > 0 {
		apply(l.ops.Remove().(deferredOp))
	}
}
