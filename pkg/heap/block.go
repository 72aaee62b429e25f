//go:build go1.23

// Package heap implements the allocator core: an in-arena, boundary-tagged,
// first-fit, explicit-free-list allocator over a single contiguous region
// supplied by an [arena.Provider].
package heap

import (
	"unsafe"

	"github.com/flier/brkalloc/internal/debug"
	"github.com/flier/brkalloc/pkg/xunsafe"
)

// Word is the machine pointer-width integer that headers, footers, and
// free-list link words are stored as.
type Word uintptr

const (
	wordSize  = int(unsafe.Sizeof(Word(0)))
	alignment = wordSize

	// tagsSize is the combined size of a block's header and footer words.
	tagsSize = 2 * wordSize

	// minBlockSize is the smallest legal block: header + next + prev + footer.
	minBlockSize = 4 * wordSize

	allocBit Word = 1
)

// align8 rounds size up to the nearest multiple of alignment.
func align8(size int) int {
	return (size + alignment - 1) &^ (alignment - 1)
}

// block is a view over a physical block living at some address inside an
// arena. It carries no data of its own beyond the address: all state lives
// in the arena bytes it points to.
type block struct {
	addr xunsafe.Addr[byte]
}

// blockAt constructs a block view at the given address.
func blockAt(addr xunsafe.Addr[byte]) block { return block{addr} }

// blockOf recovers the block owning the given payload address.
func blockOf(payload xunsafe.Addr[byte]) block {
	return block{payload.ByteAdd(-wordSize)}
}

// isNil reports whether this is the zero block, used as the "no block"
// sentinel for an empty free-list head.
func (b block) isNil() bool { return b.addr.IsNil() }

func (b block) ptr() *byte { return b.addr.AssertValid() }

// header returns this block's header word, tag bit included.
func (b block) header() Word { return xunsafe.ByteLoad[Word](b.ptr(), 0) }

func (b block) setHeader(w Word) { xunsafe.ByteStore[Word](b.ptr(), 0, w) }

// size returns the total size of the block (header + payload + footer).
func (b block) size() int { return int(b.header() &^ allocBit) }

// allocated reports this block's allocated bit, as read from the header.
func (b block) allocated() bool { return b.header()&allocBit != 0 }

// footerOffset returns the byte offset of the footer word from b's address.
func (b block) footerOffset() int { return b.size() - wordSize }

func (b block) endTag() Word { return xunsafe.ByteLoad[Word](b.ptr(), b.footerOffset()) }

func (b block) setEndTag(w Word) { xunsafe.ByteStore[Word](b.ptr(), b.footerOffset(), w) }

// endSize returns the size recorded in the footer.
func (b block) endSize() int { return int(b.endTag() &^ allocBit) }

// endAllocated returns the allocated bit recorded in the footer.
func (b block) endAllocated() bool { return b.endTag()&allocBit != 0 }

// setSize writes size to both header and footer, preserving the allocated
// bit. size must already be a multiple of alignment.
func (b block) setSize(size int) {
	debug.Assert(size%alignment == 0, "block size %d is not a multiple of %d", size, alignment)

	w := Word(size) | (b.header() & allocBit)
	b.setHeader(w)
	xunsafe.ByteStore[Word](b.ptr(), size-wordSize, w)
}

// setAllocated writes the allocated bit to both header and footer.
func (b block) setAllocated(allocated bool) {
	h := b.header() &^ allocBit
	if allocated {
		h |= allocBit
	}
	b.setHeader(h)
	b.setEndTag(b.endTag()&^allocBit | (h & allocBit))
}

// setSizeAndAllocated is a convenience composition of setSize and
// setAllocated.
func (b block) setSizeAndAllocated(size int, allocated bool) {
	b.setSize(size)
	b.setAllocated(allocated)
}

// next returns a view of the physically adjacent block that follows b.
func (b block) next() block { return block{b.addr.ByteAdd(b.size())} }

// prevSize reads the size of the block physically preceding b, by looking
// at the word immediately before b's address (that block's footer).
// Must not be called on the arena's first block (the prologue).
func (b block) prevSize() int {
	return int(xunsafe.ByteLoad[Word](b.ptr(), -wordSize) &^ allocBit)
}

// prev returns a view of the physically adjacent block that precedes b.
func (b block) prev() block { return block{b.addr.ByteAdd(-b.prevSize())} }

// payload returns the address of this block's payload (first usable byte).
func (b block) payload() xunsafe.Addr[byte] { return b.addr.ByteAdd(wordSize) }

// links is the view over the two free-list pointer words that overlay a
// free block's payload: word 0 is "next free", word 1 is "prev free". It is
// modeled as a flexible array sitting just past the header, the same shape
// as a C flexible array member, so reads/writes never leave pkg/xunsafe's
// audited surface.
func (b block) links() *xunsafe.VLA[xunsafe.Addr[byte]] {
	header := (*Word)(unsafe.Pointer(b.ptr()))
	return xunsafe.Beyond[xunsafe.Addr[byte]](header)
}

// nextFree returns the next block in the free list. b must be free.
func (b block) nextFree() block {
	debug.Assert(!b.allocated(), "nextFree on allocated block %v", b.addr)
	return block{*b.links().Get(0)}
}

// setNextFree sets the next-free link. Both b and n must be free.
func (b block) setNextFree(n block) {
	debug.Assert(!b.allocated() && !n.allocated(), "setNextFree on allocated block")
	*b.links().Get(0) = n.addr
}

// prevFree returns the previous block in the free list. b must be free.
func (b block) prevFree() block {
	debug.Assert(!b.allocated(), "prevFree on allocated block %v", b.addr)
	return block{*b.links().Get(1)}
}

// setPrevFree sets the prev-free link. Both b and p must be free.
func (b block) setPrevFree(p block) {
	debug.Assert(!b.allocated() && !p.allocated(), "setPrevFree on allocated block")
	*b.links().Get(1) = p.addr
}
