//go:build go1.23

package heap_test

import (
	"testing"
	"unsafe"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/assert"

	"github.com/flier/brkalloc/pkg/arena"
	"github.com/flier/brkalloc/pkg/heap"
	"github.com/flier/brkalloc/pkg/xunsafe"
)

func newHeap(t *testing.T, capacity, floor int) *heap.Heap {
	t.Helper()

	h, err := heap.New(arena.New(capacity), heap.WithExtensionFloor(floor))
	assert.NoError(t, err)

	return h
}

func TestHeap_Init(t *testing.T) {
	Convey("A freshly constructed heap is internally consistent", t, func() {
		h := newHeap(t, 4096, 256)

		So(h.Check(), ShouldBeNil)
	})
}

func TestHeap_AllocateAndFree(t *testing.T) {
	Convey("Given a freshly initialized heap", t, func() {
		h := newHeap(t, 4096, 128)

		Convey("Allocate returns distinct, non-nil addresses for successive requests", func() {
			a, err := h.Allocate(32)
			So(err, ShouldBeNil)
			So(a, ShouldNotEqual, xunsafe.Addr[byte](0))

			b, err := h.Allocate(32)
			So(err, ShouldBeNil)

			So(a, ShouldNotEqual, b)
			So(h.Check(), ShouldBeNil)
		})

		Convey("Allocate rejects non-positive sizes", func() {
			_, err := h.Allocate(0)
			So(err, ShouldEqual, heap.ErrInvalidArgument)

			_, err = h.Allocate(-1)
			So(err, ShouldEqual, heap.ErrInvalidArgument)
		})

		Convey("Freeing a block makes its space available to a later same-size request", func() {
			a, err := h.Allocate(64)
			So(err, ShouldBeNil)

			h.Free(a)

			b, err := h.Allocate(64)
			So(err, ShouldBeNil)
			So(b, ShouldEqual, a)
			So(h.Check(), ShouldBeNil)
		})

		Convey("Freeing the nil address is a silent no-op", func() {
			So(func() { h.Free(0) }, ShouldNotPanic)
			So(h.Check(), ShouldBeNil)
		})

		Convey("Freeing two physically adjacent blocks coalesces them for a larger request", func() {
			a, err := h.Allocate(32)
			So(err, ShouldBeNil)

			b, err := h.Allocate(32)
			So(err, ShouldBeNil)

			h.Free(a)
			h.Free(b)

			c, err := h.Allocate(64)
			So(err, ShouldBeNil)
			So(c, ShouldEqual, a)
			So(h.Check(), ShouldBeNil)
		})
	})
}

func TestHeap_FirstFitScansHeadToTail(t *testing.T) {
	Convey("Given two non-adjacent free blocks of different sizes", t, func() {
		h := newHeap(t, 4096, 512)

		a, err := h.Allocate(32) // small; freed second, ends up at the list head
		So(err, ShouldBeNil)

		spacer1, err := h.Allocate(8) // keeps a and b from coalescing
		So(err, ShouldBeNil)

		b, err := h.Allocate(128) // large; freed first
		So(err, ShouldBeNil)

		spacer2, err := h.Allocate(8)
		So(err, ShouldBeNil)

		h.Free(b)
		h.Free(a)
		// free-list order is now: a (head) -> b

		Convey("a request that fits the head uses it rather than continuing to the larger block", func() {
			d, err := h.Allocate(16)
			So(err, ShouldBeNil)
			So(d, ShouldEqual, a)
			So(h.Check(), ShouldBeNil)
		})

		h.Free(spacer1)
		h.Free(spacer2)
	})
}

func TestHeap_Reallocate(t *testing.T) {
	Convey("Given a heap holding one allocated, populated block", t, func() {
		h := newHeap(t, 4096, 128)

		p, err := h.Allocate(16)
		So(err, ShouldBeNil)

		buf := unsafe.Slice(p.AssertValid(), 16)
		for i := range buf {
			buf[i] = byte(i + 1)
		}

		Convey("Reallocating to a larger size preserves the original bytes", func() {
			q, err := h.Reallocate(p, 256)
			So(err, ShouldBeNil)

			grown := unsafe.Slice(q.AssertValid(), 256)
			for i := 0; i < 16; i++ {
				So(grown[i], ShouldEqual, byte(i+1))
			}

			So(h.Check(), ShouldBeNil)
		})

		Convey("Reallocating to a smaller size returns the same address unchanged", func() {
			q, err := h.Reallocate(p, 4)
			So(err, ShouldBeNil)
			So(q, ShouldEqual, p)
			So(h.Check(), ShouldBeNil)
		})

		Convey("Reallocating with size 0 frees the block and returns its old address", func() {
			q, err := h.Reallocate(p, 0)
			So(err, ShouldBeNil)
			So(q, ShouldEqual, p)
			So(h.Check(), ShouldBeNil)
		})

		Convey("Reallocating the nil address behaves like Allocate", func() {
			q, err := h.Reallocate(0, 32)
			So(err, ShouldBeNil)
			So(q, ShouldNotEqual, xunsafe.Addr[byte](0))
			So(h.Check(), ShouldBeNil)
		})

		Convey("Reallocating into a following free block grows in place", func() {
			tail, err := h.Allocate(64)
			So(err, ShouldBeNil)
			h.Free(tail)

			q, err := h.Reallocate(p, 64)
			So(err, ShouldBeNil)
			So(q, ShouldEqual, p)
			So(h.Check(), ShouldBeNil)
		})
	})
}

func TestHeap_ReallocateGrowsIntoPrecedingFreeBlock(t *testing.T) {
	Convey("Given a free block immediately preceding an allocated, populated one", t, func() {
		h := newHeap(t, 4096, 128)

		head, err := h.Allocate(64)
		So(err, ShouldBeNil)

		p, err := h.Allocate(16)
		So(err, ShouldBeNil)

		tail, err := h.Allocate(8) // keeps p from coalescing with the epilogue side
		So(err, ShouldBeNil)
		_ = tail

		buf := unsafe.Slice(p.AssertValid(), 16)
		for i := range buf {
			buf[i] = byte(i + 1)
		}

		h.Free(head)

		Convey("Reallocate absorbs the preceding block and moves the payload to its front", func() {
			q, err := h.Reallocate(p, 64)
			So(err, ShouldBeNil)
			So(q, ShouldEqual, head)

			grown := unsafe.Slice(q.AssertValid(), 64)
			for i := 0; i < 16; i++ {
				So(grown[i], ShouldEqual, byte(i+1))
			}

			So(h.Check(), ShouldBeNil)
		})
	})
}

func TestHeap_ReallocateGrowsIntoBothFreeNeighbors(t *testing.T) {
	Convey("Given free blocks on both sides of an allocated, populated one", t, func() {
		h := newHeap(t, 4096, 128)

		head, err := h.Allocate(32)
		So(err, ShouldBeNil)

		p, err := h.Allocate(16)
		So(err, ShouldBeNil)

		tail, err := h.Allocate(32)
		So(err, ShouldBeNil)

		buf := unsafe.Slice(p.AssertValid(), 16)
		for i := range buf {
			buf[i] = byte(i + 1)
		}

		h.Free(head)
		h.Free(tail)

		Convey("Reallocate absorbs both neighbors and moves the payload to the front", func() {
			q, err := h.Reallocate(p, 80)
			So(err, ShouldBeNil)
			So(q, ShouldEqual, head)

			grown := unsafe.Slice(q.AssertValid(), 80)
			for i := 0; i < 16; i++ {
				So(grown[i], ShouldEqual, byte(i+1))
			}

			So(h.Check(), ShouldBeNil)
		})
	})
}

func TestHeap_ExtendsArenaWhenExhausted(t *testing.T) {
	Convey("Given a heap over a small arena with a small extension floor", t, func() {
		h := newHeap(t, 8192, 64)

		Convey("many small allocations force repeated arena extension without corrupting the heap", func() {
			var addrs []xunsafe.Addr[byte]

			for i := 0; i < 80; i++ {
				a, err := h.Allocate(24)
				So(err, ShouldBeNil)
				addrs = append(addrs, a)
			}

			So(h.Check(), ShouldBeNil)

			for _, a := range addrs {
				h.Free(a)
			}

			So(h.Check(), ShouldBeNil)
		})

		Convey("Allocate reports ErrOutOfMemory when a request exceeds the arena's remaining capacity", func() {
			_, err := h.Allocate(100000)
			So(err, ShouldEqual, heap.ErrOutOfMemory)
		})
	})
}
