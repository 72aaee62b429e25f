//go:build go1.23

package heap

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/flier/brkalloc/pkg/xunsafe"
)

// blockIn carves a free block of size bytes out of buf at the given byte
// offset, for use directly as a freeList member in tests.
func blockIn(buf []byte, offset, size int) block {
	b := blockAt(xunsafe.AddrOf(&buf[offset]))
	b.setSizeAndAllocated(size, false)

	return b
}

func TestFreeList(t *testing.T) {
	Convey("Given an empty free list over a backing buffer", t, func() {
		buf := make([]byte, 256)
		fl := &freeList{}

		Convey("it reports empty and iterates over nothing", func() {
			So(fl.empty(), ShouldBeTrue)

			visited := 0
			fl.each(func(block) bool { visited++; return true })
			So(visited, ShouldEqual, 0)
		})

		Convey("inserting one block makes it its own circular list", func() {
			b := blockIn(buf, 0, 32)
			fl.insert(b)

			So(fl.empty(), ShouldBeFalse)
			So(b.nextFree().addr, ShouldEqual, b.addr)
			So(b.prevFree().addr, ShouldEqual, b.addr)
		})

		Convey("inserting several blocks puts the most recent one at the head (LIFO)", func() {
			a := blockIn(buf, 0, 32)
			b := blockIn(buf, 32, 32)
			c := blockIn(buf, 64, 32)

			fl.insert(a)
			fl.insert(b)
			fl.insert(c)

			So(fl.head.addr, ShouldEqual, c.addr)

			var order []xunsafe.Addr[byte]
			fl.each(func(blk block) bool {
				order = append(order, blk.addr)
				return true
			})

			So(order, ShouldResemble, []xunsafe.Addr[byte]{c.addr, b.addr, a.addr})
		})

		Convey("pulling the only block empties the list", func() {
			b := blockIn(buf, 0, 32)
			fl.insert(b)
			fl.pull(b)

			So(fl.empty(), ShouldBeTrue)
		})

		Convey("pulling a non-head member stitches its neighbors together", func() {
			a := blockIn(buf, 0, 32)
			b := blockIn(buf, 32, 32)
			c := blockIn(buf, 64, 32)

			fl.insert(a)
			fl.insert(b)
			fl.insert(c)
			// list is now: c -> b -> a -> c

			fl.pull(b)

			So(fl.head.addr, ShouldEqual, c.addr)
			So(c.nextFree().addr, ShouldEqual, a.addr)
			So(a.prevFree().addr, ShouldEqual, c.addr)

			var order []xunsafe.Addr[byte]
			fl.each(func(blk block) bool {
				order = append(order, blk.addr)
				return true
			})
			So(order, ShouldResemble, []xunsafe.Addr[byte]{c.addr, a.addr})
		})

		Convey("pulling the head reassigns the head to its successor", func() {
			a := blockIn(buf, 0, 32)
			b := blockIn(buf, 32, 32)

			fl.insert(a)
			fl.insert(b)
			// list is now: b -> a -> b

			fl.pull(b)

			So(fl.head.addr, ShouldEqual, a.addr)
			So(a.nextFree().addr, ShouldEqual, a.addr)
		})

		Convey("each stops early when fn returns false", func() {
			a := blockIn(buf, 0, 32)
			b := blockIn(buf, 32, 32)
			c := blockIn(buf, 64, 32)

			fl.insert(a)
			fl.insert(b)
			fl.insert(c)

			visited := 0
			fl.each(func(block) bool {
				visited++
				return visited < 2
			})

			So(visited, ShouldEqual, 2)
		})
	})
}
