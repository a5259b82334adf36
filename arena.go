package virtsched

// slotStatus is the lifecycle state of a slot.
//
// The public model only distinguishes Alive from not-alive; internally a
// lazily-cancelled slot (still referenced by a ready-queue entry) is kept
// separate from a fully reclaimed one so that clear and rebuild know
// which slots still owe a free-list push.
type slotStatus uint8

const (
	// slotAlive holds a live event.
	slotAlive slotStatus = iota
	// slotCancelled is logically dead but still referenced by a stale
	// ready-queue entry; its index has not been returned to the free list.
	slotCancelled
	// slotFree has been reclaimed; its index sits in the free list and its
	// generation has already been advanced for the next occupant.
	slotFree
)

// slot is one event's storage cell.
//
// seq counts ready-queue pushes that supersede earlier ones for this
// occupant (delays). Queue entries snapshot it; an entry whose seq lags
// the slot's is dead weight awaiting lazy discard.
type slot struct {
	desc     EventDesc
	nextFire Time
	seq      uint32
	status   slotStatus
}

// arena is the handle/slot allocator: a dense slot array, a parallel
// generation table, and a stack of reclaimable indices.
//
// The generation for an index advances when the slot is reclaimed, not
// when it is reissued: popping a free index hands out the
// already-advanced generation, so handles from the slot's previous life
// can never match the new occupant.
type arena struct {
	slots       []slot
	generations []uint32
	free        []uint32
	alive       int
}

func newArena(capacity int) *arena {
	a := &arena{}
	if capacity > 0 {
		a.slots = make([]slot, 0, capacity)
		a.generations = make([]uint32, 0, capacity)
		a.free = make([]uint32, 0, capacity)
	}
	return a
}

// allocate reserves a slot for a new event and returns its handle. It
// reuses a free-list index when one is available, otherwise it appends a
// fresh slot at generation zero.
func (a *arena) allocate(desc EventDesc, nextFire Time) Handle {
	var index uint32
	if n := len(a.free); n > 0 {
		index = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		index = uint32(len(a.slots))
		a.slots = append(a.slots, slot{})
		a.generations = append(a.generations, 0)
	}
	a.slots[index] = slot{desc: desc, nextFire: nextFire, status: slotAlive}
	a.alive++
	return Handle{index: index, generation: a.generations[index]}
}

// generationMatches reports whether h still names the slot occupant it
// was issued for. False for out-of-range indices.
func (a *arena) generationMatches(h Handle) bool {
	return int(h.index) < len(a.generations) && a.generations[h.index] == h.generation
}

// isAlive is the single source of truth for handle validity. It never
// panics: out-of-range, stale, and cancelled handles all report false.
func (a *arena) isAlive(h Handle) bool {
	return a.generationMatches(h) && a.slots[h.index].status == slotAlive
}

// get returns the slot for h, or nil if h is stale or out of range.
func (a *arena) get(h Handle) *slot {
	if !a.generationMatches(h) {
		return nil
	}
	return &a.slots[h.index]
}

// markCancelled flips an alive slot to cancelled. The slot is not freed;
// reclamation happens lazily when its ready-queue entry surfaces (or at
// the next rebuild / clear).
func (a *arena) markCancelled(index uint32) {
	a.slots[index].status = slotCancelled
	a.alive--
}

// reclaim returns a cancelled slot's index to the free list, advancing
// its generation so every outstanding handle for it goes stale. The
// descriptor is dropped so the callback closure can be collected.
func (a *arena) reclaim(index uint32) {
	a.slots[index] = slot{status: slotFree}
	a.generations[index]++
	a.free = append(a.free, index)
}

// clear invalidates every in-use slot, alive or lazily cancelled, and
// refills the free list. Generations keep counting up across clears, so
// handles issued before a clear can never match a slot reused after it.
func (a *arena) clear() {
	for i := range a.slots {
		switch a.slots[i].status {
		case slotAlive:
			a.alive--
			fallthrough
		case slotCancelled:
			a.reclaim(uint32(i))
		}
	}
}
