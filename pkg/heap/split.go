//go:build go1.23

package heap

import "github.com/flier/brkalloc/internal/debug"

// split carves an asize-byte allocated block out of the front of b,
// inserting the remainder back into fl (and coalescing it with its right
// neighbor) when the leftover is worth keeping as its own block: at least
// minBlockSize, and at least half of b's original size. Otherwise the
// whole of b is handed out, avoiding a sliver too small to ever satisfy
// another request. Either way b is returned marked allocated.
//
// The leftover's coalesce can only ever merge rightward: b is marked
// allocated before the leftover is coalesced, so the leftover's left
// neighbor is b itself, not a free block.
//
// b must not be a member of fl when split is called; the caller (place) is
// responsible for having already pulled it.
func split(fl *freeList, b block, asize int) block {
	total := b.size()
	leftover := total - asize

	if leftover >= minBlockSize && leftover >= total/2 {
		b.setSizeAndAllocated(asize, true)

		rem := blockAt(b.addr.ByteAdd(asize))
		rem.setSizeAndAllocated(leftover, false)
		fl.insert(rem)
		coalesce(fl, rem)

		debug.Log(nil, "split", "%v asize=%d leftover=%d", b.addr, asize, leftover)

		return b
	}

	b.setAllocated(true)

	debug.Log(nil, "split", "%v asize=%d kept whole (size=%d)", b.addr, asize, total)

	return b
}
