package virtsched

import (
	"fmt"
	"math"
)

// Handle identifies a scheduled event independently of slot reuse.
//
// It pairs the event's slot index with the generation the slot carried
// when the event was created. Once the event ends (fired, cancelled, or
// cleared) the slot's generation advances and every outstanding Handle
// for it goes stale: [Scheduler.IsAlive] reports false and all other
// operations degrade to harmless no-ops. A Handle is never silently
// redirected to a different logical event.
//
// Handles are comparable; two handles are equal iff both fields match.
type Handle struct {
	index      uint32
	generation uint32
}

// InvalidHandle is the sentinel returned by operations that fail to
// produce an event. It never matches a live slot.
var InvalidHandle = Handle{index: math.MaxUint32, generation: math.MaxUint32}

// IsValid reports whether h is structurally valid, i.e. not the
// [InvalidHandle] sentinel. It says nothing about whether the event is
// still alive; see [Scheduler.IsAlive].
func (h Handle) IsValid() bool {
	return h != InvalidHandle
}

// String returns a human-readable representation of the handle.
func (h Handle) String() string {
	if !h.IsValid() {
		return "Handle(invalid)"
	}
	return fmt.Sprintf("Handle(%d@%d)", h.index, h.generation)
}
