// Package heap implements the heap shell: it pairs a directory.Directory
// with a backing address range and the RESERVED/ZERO_INIT/EXACTLY
// allocation flags, the way achilleasa-gopher-os's buddyAllocator.Init
// binds a bitmap to a physical frame range.
package heap

import (
	"github.com/nirvanaos/Core/internal/memerr"
	"github.com/nirvanaos/Core/pkg/directory"
)

// Flag is one bit of the allocate/release flag word the memory facade
// defines. Heap and MultiHeap accept these flags but none of them changes
// what they do: the heap tracks units only and holds no memory to commit
// or zero.
type Flag uint32

const (
	// Reserved means the caller only wants address space marked
	// allocated in the directory; no backing commit is implied here
	// (pkg/vmem handles commit separately).
	Reserved Flag = 1 << iota
	// ZeroInit asks for freshly allocated units that read as zero; the
	// heap does not zero anything itself.
	ZeroInit
	// Exactly asks for exactly the requested number of units, not merely
	// a block that is large enough. directory.AllocateSize already
	// releases the rest of the block it finds, so this flag is accepted
	// but does not change the code path.
	Exactly
)

// Heap binds one directory.Directory to a base unit offset in a larger
// address range, so callers work in absolute units while the directory
// itself always indexes from zero.
type Heap struct {
	dir  *directory.Directory
	base uint32
}

// New creates a Heap over a freshly built directory of the given traits,
// based at the given unit offset in its parent address range.
func New(traits *directory.Traits, base uint32) *Heap {
	return &Heap{dir: directory.New(traits), base: base}
}

// Capacity returns the unit count this heap manages.
func (h *Heap) Capacity() uint32 { return h.dir.Capacity() }

// Base returns the unit offset of this heap's first managed unit.
func (h *Heap) Base() uint32 { return h.base }

// Allocate reserves sizeUnits units and returns their absolute offset.
func (h *Heap) Allocate(sizeUnits uint32, flags Flag) (offset uint32, ok bool, err error) {
	rel, ok, err := h.dir.AllocateSize(sizeUnits)
	if err != nil || !ok {
		return 0, ok, err
	}
	return h.base + rel, true, nil
}

// AllocateRange reserves the absolute range [offset, offset+size).
func (h *Heap) AllocateRange(offset, size uint32) error {
	if offset < h.base || offset+size > h.base+h.Capacity() {
		return memerr.New(memerr.BadParam, "heap.AllocateRange", nil)
	}
	return h.dir.AllocateRange(offset-h.base, size)
}

// Release frees the absolute range [offset, offset+size).
func (h *Heap) Release(offset, size uint32) error {
	if offset < h.base || offset+size > h.base+h.Capacity() {
		return memerr.New(memerr.BadParam, "heap.Release", nil)
	}
	return h.dir.ReleaseRange(offset-h.base, size)
}

// CheckAllocated reports whether the absolute range is fully allocated.
func (h *Heap) CheckAllocated(offset, size uint32) bool {
	if offset < h.base || offset+size > h.base+h.Capacity() {
		return false
	}
	return h.dir.CheckAllocated(offset-h.base, size)
}

// Empty reports whether the whole heap is free.
func (h *Heap) Empty() bool { return h.dir.Empty() }
