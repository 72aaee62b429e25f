//go:build go1.23

package heap

import "github.com/flier/brkalloc/internal/debug"

// coalesce merges b with any physically adjacent free neighbors and returns
// the surviving block. b must already be a member of fl before this is
// called (insert it first).
//
// Whichever of b, prev, or next does not survive is pulled out of fl; the
// survivor is never pulled and reinserted, so it keeps whatever position it
// already held in fl. In cases 3 and 4 that survivor is prev, which may have
// been sitting anywhere in the list, untouched, long before b was ever
// inserted.
//
// The prologue and epilogue sentinels are always marked allocated, so the
// boundary checks below never need special-casing for the ends of the
// arena: prev()/next() of the first/last real block simply read a sentinel
// that reports allocated=true.
func coalesce(fl *freeList, b block) block {
	prev := b.prev()
	next := b.next()

	prevFree := !prev.allocated()
	nextFree := !next.allocated()

	switch {
	case !prevFree && !nextFree:
		// Case 1: no coalescing possible. b keeps its existing position.

	case !prevFree && nextFree:
		// Case 2: merge next into b. b keeps its existing position.
		fl.pull(next)
		b.setSizeAndAllocated(b.size()+next.size(), false)

	case prevFree && !nextFree:
		// Case 3: merge b into prev. prev keeps its original position;
		// only b is pulled.
		fl.pull(b)
		prev.setSizeAndAllocated(prev.size()+b.size(), false)
		b = prev

	default:
		// Case 4: merge b and next into prev. prev keeps its original
		// position; only b and next are pulled.
		fl.pull(b)
		fl.pull(next)
		prev.setSizeAndAllocated(prev.size()+b.size()+next.size(), false)
		b = prev
	}

	debug.Log(nil, "coalesce", "%v size=%d", b.addr, b.size())

	return b
}
