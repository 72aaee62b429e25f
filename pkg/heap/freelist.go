//go:build go1.23

package heap

import "github.com/flier/brkalloc/internal/debug"

// freeList is the circular, doubly linked explicit free list threaded
// through the payload of every free block (see block.links). head is the
// nil block when the list is empty.
type freeList struct {
	head block
}

// empty reports whether the list currently holds no blocks.
func (l *freeList) empty() bool { return l.head.isNil() }

// insert adds b to the free list, LIFO at the head. b must already carry
// size and allocated=false in its header/footer; insert only threads the
// list pointers.
func (l *freeList) insert(b block) {
	debug.Assert(!b.allocated(), "insert of allocated block %v into free list", b.addr)

	if l.empty() {
		b.setNextFree(b)
		b.setPrevFree(b)
		l.head = b
		return
	}

	tail := l.head.prevFree()

	b.setNextFree(l.head)
	b.setPrevFree(tail)
	tail.setNextFree(b)
	l.head.setPrevFree(b)

	l.head = b
}

// pull removes b from the free list in O(1). b must currently be a member
// of this list.
func (l *freeList) pull(b block) {
	next := b.nextFree()
	prev := b.prevFree()

	if next.addr == b.addr {
		// b was the only member.
		l.head = block{}
		return
	}

	prev.setNextFree(next)
	next.setPrevFree(prev)

	if l.head.addr == b.addr {
		l.head = next
	}
}

// each calls fn for every block currently on the free list, in head-to-tail
// order, stopping early if fn returns false. fn must not mutate the list.
func (l *freeList) each(fn func(block) bool) {
	if l.empty() {
		return
	}

	head := l.head
	b := head
	for {
		if !fn(b) {
			return
		}

		b = b.nextFree()
		if b.addr == head.addr {
			return
		}
	}
}
