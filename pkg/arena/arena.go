//go:build go1.23

// Package arena implements the arena provider that the allocator in
// [github.com/flier/brkalloc/pkg/heap] extends: a single, contiguous,
// monotonically growable byte region standing in for the mem_sbrk/brk
// primitive a real allocator would be built on.
//
// Go programs have no brk syscall, so [Arena] reserves one fixed-capacity
// []byte up front. Because the backing array is allocated once and never
// grown by append, its address is stable for the arena's lifetime: Extend
// only ever moves the high-water mark within memory that is already
// reserved, exactly as mem_sbrk moves the break within memory the kernel
// has already mapped.
package arena

import (
	"github.com/flier/brkalloc/internal/debug"
	"github.com/flier/brkalloc/pkg/xunsafe"
)

// Provider is the arena-provider collaborator the allocator core depends
// on. It is the Go shape of the two primitives spec.md §6.2 requires:
// growing the arena at its high end, and finding its base.
type Provider interface {
	// Extend grows the arena by delta bytes at the high end and returns the
	// address of the newly appended region. ok is false if the arena could
	// not be grown (out of memory); in that case no state change is visible.
	Extend(delta int) (addr xunsafe.Addr[byte], ok bool)

	// Low returns the arena's base address.
	Low() xunsafe.Addr[byte]
}

// DefaultCapacity is a 64 MiB backing-region size. [New] does not fall back
// to it: every call to New passes its capacity explicitly.
const DefaultCapacity = 64 << 20 // 64 MiB

// Arena is the default [Provider]: a fixed-capacity byte region with a
// bump-allocated high-water mark.
//
// A zero Arena is not ready to use; construct one with [New].
type Arena struct {
	_ xunsafe.NoCopy

	mem  []byte
	base xunsafe.Addr[byte] // cached address of mem[0]; stable for the arena's life
	brk  int                // bytes currently handed out, always <= cap(mem)
}

var _ Provider = (*Arena)(nil)

// New reserves a new [Arena] with the given capacity in bytes. Panics if
// capacity is not positive.
func New(capacity int) *Arena {
	if capacity <= 0 {
		panic("brkalloc/arena: capacity must be positive")
	}

	mem := make([]byte, capacity)

	return &Arena{mem: mem, base: xunsafe.AddrOf(&mem[0])}
}

// Extend implements [Provider].
func (a *Arena) Extend(delta int) (xunsafe.Addr[byte], bool) {
	if delta < 0 {
		panic("brkalloc/arena: Extend called with negative delta")
	}

	if a.brk+delta > cap(a.mem) {
		debug.Log(nil, "extend", "failed: brk=%d delta=%d cap=%d", a.brk, delta, cap(a.mem))
		return 0, false
	}

	addr := a.base.ByteAdd(a.brk)
	a.brk += delta

	debug.Log(nil, "extend", "%v+%d -> brk=%d", addr, delta, a.brk)

	return addr, true
}

// Low implements [Provider].
func (a *Arena) Low() xunsafe.Addr[byte] {
	return a.base
}

// Cap returns the total capacity reserved for this arena, in bytes.
func (a *Arena) Cap() int { return cap(a.mem) }

// Len returns the number of bytes currently handed out via Extend.
func (a *Arena) Len() int { return a.brk }
