//go:build go1.23

package heap

import (
	"errors"

	"github.com/flier/brkalloc/internal/debug"
	"github.com/flier/brkalloc/pkg/arena"
	"github.com/flier/brkalloc/pkg/xunsafe"
)

// minExtensionPayload is the minimum payload size of the free block created
// by any single extension, even when the caller only needs a handful of
// bytes more; the arena itself grows by this plus tagsSize. Keeping this
// well above a typical request amortizes the cost of each Provider.Extend
// call across many small allocations.
const minExtensionPayload = 640

var (
	// ErrOutOfMemory is returned when the arena provider cannot grow far
	// enough to satisfy a request.
	ErrOutOfMemory = errors.New("brkalloc: out of memory")

	// ErrInvalidArgument is returned for a non-positive allocation size.
	ErrInvalidArgument = errors.New("brkalloc: invalid argument")
)

// Heap is a single-threaded, first-fit, boundary-tagged allocator over one
// arena supplied by an [arena.Provider]. All bookkeeping lives in the
// arena's own bytes; Heap itself holds only its provider, the extension
// floor, the free list head and the addresses of the two sentinel blocks.
//
// A zero Heap is not ready to use; construct one with [New].
type Heap struct {
	_ xunsafe.NoCopy

	provider arena.Provider

	free     freeList
	prologue block
	epilogue block

	extensionFloor int
}

// Option configures a [Heap] at construction time.
type Option func(*Heap)

// WithExtensionFloor overrides the default 640-byte floor applied to every
// arena extension. Chiefly useful in tests that want to exercise the
// extender's edge cases without growing the arena by at least 640 bytes
// per call.
func WithExtensionFloor(n int) Option {
	return func(h *Heap) { h.extensionFloor = n }
}

// New constructs a [Heap] over p and initializes it, laying down the
// prologue and epilogue sentinels.
func New(p arena.Provider, opts ...Option) (*Heap, error) {
	h := &Heap{provider: p, extensionFloor: minExtensionPayload}

	for _, opt := range opts {
		opt(h)
	}

	if err := h.Init(); err != nil {
		return nil, err
	}

	return h, nil
}

// Init (re)initializes h: it extends the arena by one prologue block plus
// one epilogue block (4·W total) and resets the free list to empty. Init
// is called automatically by [New]. The provider is set only by New, so a
// zero [Heap] cannot be brought up by calling Init on it.
func (h *Heap) Init() error {
	addr, ok := h.provider.Extend(2 * tagsSize)
	if !ok {
		return ErrOutOfMemory
	}

	prologue := blockAt(addr)
	prologue.setSizeAndAllocated(tagsSize, true)

	epilogue := blockAt(addr.ByteAdd(tagsSize))
	epilogue.setSizeAndAllocated(tagsSize, true)

	h.prologue = prologue
	h.epilogue = epilogue
	h.free = freeList{}

	debug.Log(nil, "init", "prologue=%v epilogue=%v", prologue.addr, epilogue.addr)

	return nil
}

// firstFit returns the first free block at least asize bytes, scanning the
// free list head to tail.
func (h *Heap) firstFit(asize int) (block, bool) {
	var found block

	ok := false

	h.free.each(func(b block) bool {
		if b.size() >= asize {
			found, ok = b, true
			return false
		}

		return true
	})

	return found, ok
}

// place removes b from the free list, splits it if worthwhile, and marks
// the resulting block allocated. b must currently be a member of the free
// list.
func (h *Heap) place(b block, asize int) block {
	h.free.pull(b)
	return split(&h.free, b, asize)
}

// blockSizeFor returns the total block size (header, payload, footer, link
// words included) needed to satisfy a payload request of n bytes.
func blockSizeFor(n int) int {
	size := align8(n + tagsSize)
	if size < minBlockSize {
		size = minBlockSize
	}

	return size
}

// Allocate reserves a block of at least size usable bytes and returns the
// address of its payload. It returns [ErrInvalidArgument] if size is not
// positive, and [ErrOutOfMemory] if the arena cannot be grown far enough.
func (h *Heap) Allocate(size int) (xunsafe.Addr[byte], error) {
	if size <= 0 {
		return 0, ErrInvalidArgument
	}

	asize := blockSizeFor(size)

	b, ok := h.firstFit(asize)
	if !ok {
		b, ok = h.extend(align8(size))
		if !ok {
			return 0, ErrOutOfMemory
		}
	}

	b = h.place(b, asize)

	debug.Log(nil, "allocate", "size=%d -> %v (block size=%d)", size, b.payload(), b.size())

	return b.payload(), nil
}

// Free releases the block at p, making it available for future allocations
// and coalescing it with any free physical neighbors. Freeing the nil
// address is a silent no-op.
func (h *Heap) Free(p xunsafe.Addr[byte]) {
	if p.IsNil() {
		return
	}

	b := blockOf(p)
	b.setAllocated(false)

	debug.Log(nil, "free", "%v (block size=%d)", p, b.size())

	h.free.insert(b)
	coalesce(&h.free, b)
}

// Reallocate resizes the block at p to hold at least size usable bytes,
// preserving its contents up to the smaller of the old and new sizes, and
// returns the (possibly new) payload address.
//
// Reallocate(0-address, size) behaves like Allocate(size). Reallocate(p, n)
// with n <= 0 frees p and returns p unchanged — the returned address must
// not be dereferenced; no null address is returned in this case.
// Reallocate never shrinks a block in place: requesting a smaller size
// than p currently holds returns p unchanged with its existing capacity.
//
// Before falling back to allocate-copy-free, Reallocate checks whether
// either physical neighbor of the block is free and, if absorbing it (or
// both) covers the request, grows in place: the payload is moved to the
// front of whichever block now starts the merged region and the result is
// run through split, which hands the excess back to the free list only
// when split's leftover policy allows it.
func (h *Heap) Reallocate(p xunsafe.Addr[byte], size int) (xunsafe.Addr[byte], error) {
	if p.IsNil() {
		return h.Allocate(size)
	}

	if size <= 0 {
		h.Free(p)
		return p, nil
	}

	b := blockOf(p)
	asize := blockSizeFor(size)
	oldSize := b.size()

	if asize <= oldSize {
		return p, nil
	}

	prev := b.prev()
	next := b.next()
	prevFree := !prev.allocated()
	nextFree := !next.allocated()

	available := oldSize
	if prevFree {
		available += prev.size()
	}
	if nextFree {
		available += next.size()
	}

	if (prevFree || nextFree) && available >= asize {
		payload := b.payload()
		payloadSize := oldSize - tagsSize

		var merged block

		switch {
		case prevFree && nextFree:
			h.free.pull(prev)
			h.free.pull(next)
			xunsafe.Copy(prev.payload().AssertValid(), payload.AssertValid(), payloadSize)
			prev.setSizeAndAllocated(available, true)
			merged = prev

		case prevFree:
			h.free.pull(prev)
			xunsafe.Copy(prev.payload().AssertValid(), payload.AssertValid(), payloadSize)
			prev.setSizeAndAllocated(available, true)
			merged = prev

		default: // nextFree
			h.free.pull(next)
			b.setSizeAndAllocated(available, true)
			merged = b
		}

		merged = split(&h.free, merged, asize)

		debug.Log(nil, "reallocate", "%v grown in place to size=%d", p, merged.size())

		return merged.payload(), nil
	}

	newAddr, err := h.Allocate(size)
	if err != nil {
		return 0, err
	}

	copySize := oldSize - tagsSize
	if size < copySize {
		copySize = size
	}

	xunsafe.Copy(newAddr.AssertValid(), p.AssertValid(), copySize)

	h.Free(p)

	debug.Log(nil, "reallocate", "%v -> %v size=%d", p, newAddr, size)

	return newAddr, nil
}
