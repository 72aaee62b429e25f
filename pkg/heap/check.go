//go:build go1.23

package heap

import (
	"fmt"

	"github.com/flier/brkalloc/internal/debug"
	"github.com/flier/brkalloc/pkg/xunsafe"
)

// ViolationKind identifies which heap invariant an [InvariantError] reports.
type ViolationKind int

const (
	_ ViolationKind = iota

	// ErrMisaligned means a block's address is not a multiple of alignment.
	ErrMisaligned

	// ErrTagMismatch means a block's header and footer disagree.
	ErrTagMismatch

	// ErrAdjacentFree means two physically adjacent blocks are both free,
	// meaning they escaped coalescing.
	ErrAdjacentFree

	// ErrOutOfBounds means a block's address falls outside the arena.
	ErrOutOfBounds

	// ErrFreeListCorrupt means the free list's membership disagrees with
	// the set of blocks the linear scan found marked free.
	ErrFreeListCorrupt
)

func (k ViolationKind) String() string {
	switch k {
	case ErrMisaligned:
		return "misaligned block"
	case ErrTagMismatch:
		return "header/footer tag mismatch"
	case ErrAdjacentFree:
		return "two adjacent free blocks escaped coalescing"
	case ErrOutOfBounds:
		return "block address outside the arena"
	case ErrFreeListCorrupt:
		return "free list membership does not match the linear scan"
	default:
		return "unknown violation"
	}
}

// InvariantError reports a single heap-consistency violation found by
// [Heap.Check], naming the kind of violation and the offending block.
type InvariantError struct {
	Kind ViolationKind
	Addr xunsafe.Addr[byte]
	Size int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("brkalloc: %v at %v (size=%d)", e.Kind, e.Addr, e.Size)
}

// Check walks the entire heap from the prologue to the epilogue, verifying:
// every block is aligned, every block's header and footer agree, no two
// physically adjacent blocks are both free, every block's address lies
// within the arena, and the free list's membership matches exactly the set
// of blocks the scan found marked free. It returns nil if the heap is
// internally consistent, or the first [InvariantError] it finds.
func (h *Heap) Check() error {
	low := h.provider.Low()
	high := h.epilogue.addr

	onList := make(map[xunsafe.Addr[byte]]bool)
	h.free.each(func(b block) bool {
		onList[b.addr] = true
		return true
	})

	prevFree := false
	free := 0

	for b := h.prologue; b.addr != high; b = b.next() {
		if b.addr < low || b.addr >= high {
			return h.violation(ErrOutOfBounds, b)
		}

		if int(b.addr)%alignment != 0 {
			return h.violation(ErrMisaligned, b)
		}

		if b.header() != b.endTag() {
			return h.violation(ErrTagMismatch, b)
		}

		isFree := !b.allocated()

		if isFree && prevFree {
			return h.violation(ErrAdjacentFree, b)
		}

		if isFree {
			free++

			if !onList[b.addr] {
				return h.violation(ErrFreeListCorrupt, b)
			}

			delete(onList, b.addr)
		}

		prevFree = isFree
	}

	for addr := range onList {
		return h.violation(ErrFreeListCorrupt, block{addr})
	}

	debug.Log(nil, "check", "ok: %d free blocks", free)

	return nil
}

func (h *Heap) violation(kind ViolationKind, b block) error {
	err := &InvariantError{Kind: kind, Addr: b.addr, Size: b.size()}
	debug.Log(nil, "check", "%v", err)
	return err
}
