package virtsched

import (
	"math"
	"testing"
)

func TestArenaAllocateAndReuse(t *testing.T) {
	a := newArena(0)

	h1 := a.allocate(EventDesc{}, 10)
	if h1.index != 0 || h1.generation != 0 {
		t.Fatalf("first allocation got %v, want index 0 generation 0", h1)
	}
	if !a.isAlive(h1) {
		t.Fatal("freshly allocated handle not alive")
	}
	if a.alive != 1 {
		t.Fatalf("alive = %d, want 1", a.alive)
	}

	a.markCancelled(h1.index)
	a.reclaim(h1.index)
	if a.isAlive(h1) {
		t.Fatal("reclaimed handle still alive")
	}
	if a.alive != 0 {
		t.Fatalf("alive = %d, want 0", a.alive)
	}

	h2 := a.allocate(EventDesc{}, 20)
	if h2.index != 0 {
		t.Fatalf("expected free-list reuse of index 0, got index %d", h2.index)
	}
	if h2.generation != 1 {
		t.Fatalf("reused slot generation = %d, want 1 (advanced at reclaim)", h2.generation)
	}
	if a.isAlive(h1) {
		t.Fatal("old handle reports alive after slot reuse")
	}
	if !a.isAlive(h2) {
		t.Fatal("new handle not alive after reuse")
	}
}

func TestArenaIsAliveNeverPanics(t *testing.T) {
	a := newArena(0)
	a.allocate(EventDesc{}, 0)

	for _, h := range []Handle{
		{index: 99, generation: 0},
		{index: 0, generation: 7},
		{index: math.MaxUint32, generation: 0},
		InvalidHandle,
	} {
		if a.isAlive(h) {
			t.Fatalf("isAlive(%v) = true, want false", h)
		}
		if a.get(h) != nil {
			t.Fatalf("get(%v) returned a slot for a stale or out-of-range handle", h)
		}
	}
}

func TestArenaClearInvalidatesEverything(t *testing.T) {
	a := newArena(4)

	h1 := a.allocate(EventDesc{}, 1)
	h2 := a.allocate(EventDesc{}, 2)
	h3 := a.allocate(EventDesc{}, 3)
	a.markCancelled(h2.index) // lazily cancelled, not yet reclaimed

	a.clear()

	if a.alive != 0 {
		t.Fatalf("alive = %d after clear, want 0", a.alive)
	}
	for _, h := range []Handle{h1, h2, h3} {
		if a.isAlive(h) {
			t.Fatalf("handle %v alive after clear", h)
		}
	}
	if len(a.free) != 3 {
		t.Fatalf("free list has %d entries after clear, want 3", len(a.free))
	}

	// Slots reused after the clear carry advanced generations.
	h4 := a.allocate(EventDesc{}, 4)
	if h4.generation == 0 {
		t.Fatal("post-clear allocation reused generation 0")
	}
	if a.isAlive(h1) || a.isAlive(h2) || a.isAlive(h3) {
		t.Fatal("pre-clear handle matches post-clear occupant")
	}
}
