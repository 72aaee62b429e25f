//go:build go1.23

package heap

import "github.com/flier/brkalloc/internal/debug"

// extend grows the arena to make room for a new free block holding at
// least payload bytes (already 8-byte aligned by the caller), clamped up
// to h.extensionFloor to amortize the cost of each Provider.Extend call.
//
// It converts the current epilogue sentinel into the header of a new free
// block of total size payload+tagsSize, writes a fresh tagsSize-byte
// epilogue past it, and runs the result through coalesce so it merges with
// whatever free block, if any, immediately preceded the old epilogue.
//
// extend reports ok=false if the provider cannot grow the arena any
// further; no state change is visible in that case.
func (h *Heap) extend(payload int) (block, bool) {
	if payload < h.extensionFloor {
		payload = h.extensionFloor
	}

	blockSize := payload + tagsSize

	// The old epilogue's tagsSize bytes are entirely reused as the header
	// (and part of the payload/footer) of the new block, so requesting
	// exactly blockSize new bytes from the provider leaves room for both
	// the new block and a fresh tagsSize-byte epilogue past it.
	if _, ok := h.provider.Extend(blockSize); !ok {
		debug.Log(nil, "extend", "provider out of memory: delta=%d", blockSize)
		return block{}, false
	}

	newBlock := h.epilogue
	newBlock.setSizeAndAllocated(blockSize, false)

	newEpilogue := blockAt(newBlock.addr.ByteAdd(blockSize))
	newEpilogue.setSizeAndAllocated(tagsSize, true)
	h.epilogue = newEpilogue

	debug.Log(nil, "extend", "grew arena by %d bytes, new block %v size=%d", blockSize, newBlock.addr, blockSize)

	h.free.insert(newBlock)

	return coalesce(&h.free, newBlock), true
}
