package heap

import (
	"sync/atomic"

	"github.com/nirvanaos/Core/internal/memerr"
	"github.com/nirvanaos/Core/pkg/directory"
)

// defaultHeapParts is the partition count used when a MultiHeap is built
// without an explicit override: four partitions balances per-partition
// lock-free contention against the per-directory metadata overhead of
// the 16KiB profile, the smallest directory size the table defines.
const defaultHeapParts = 4

// MultiHeap fans a single logical address range out across several
// independent Heap partitions (defaultHeapParts unless overridden), so concurrent allocators spread their CAS
// traffic across more than one free-block-counter vector: directories
// are designed to be sharded for contention, not merely made
// thread-safe individually.
type MultiHeap struct {
	parts []*Heap
	// rrNext is the partition index the next Allocate call starts its
	// search from, advanced round-robin to spread load.
	rrNext uint32
}

// NewMultiHeap builds a MultiHeap with the given partition count (0 means
// defaultHeapParts), each partition sized by traits and based at
// consecutive unit ranges.
func NewMultiHeap(traits *directory.Traits, parts int) *MultiHeap {
	if parts <= 0 {
		parts = defaultHeapParts
	}
	mh := &MultiHeap{parts: make([]*Heap, parts)}
	capacity := directory.New(traits).Capacity()
	for i := 0; i < parts; i++ {
		mh.parts[i] = New(traits, uint32(i)*capacity)
	}
	return mh
}

// PartCount returns the number of partitions.
func (mh *MultiHeap) PartCount() int { return len(mh.parts) }

// Capacity returns the total unit count across all partitions.
func (mh *MultiHeap) Capacity() uint32 {
	var total uint32
	for _, p := range mh.parts {
		total += p.Capacity()
	}
	return total
}

// Allocate tries each partition in round-robin order starting from the
// next scheduled index, returning the first successful allocation.
func (mh *MultiHeap) Allocate(sizeUnits uint32, flags Flag) (offset uint32, ok bool, err error) {
	n := len(mh.parts)
	start := int((atomic.AddUint32(&mh.rrNext, 1) - 1) % uint32(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		off, ok, aerr := mh.parts[idx].Allocate(sizeUnits, flags)
		if aerr != nil {
			return 0, false, aerr
		}
		if ok {
			return off, true, nil
		}
	}
	return 0, false, nil
}

// partitionFor locates the partition owning an absolute offset.
func (mh *MultiHeap) partitionFor(offset uint32) (*Heap, bool) {
	for _, p := range mh.parts {
		if offset >= p.Base() && offset < p.Base()+p.Capacity() {
			return p, true
		}
	}
	return nil, false
}

// Release frees [offset, offset+size), which must lie within one
// partition (ranges never straddle a directory boundary).
func (mh *MultiHeap) Release(offset, size uint32) error {
	p, ok := mh.partitionFor(offset)
	if !ok {
		return memerr.New(memerr.BadParam, "heap.MultiHeap.Release", nil)
	}
	return p.Release(offset, size)
}

// CheckAllocated reports whether the range is fully allocated; ranges
// that straddle a partition boundary are never allocated by construction.
func (mh *MultiHeap) CheckAllocated(offset, size uint32) bool {
	p, ok := mh.partitionFor(offset)
	if !ok {
		return false
	}
	return p.CheckAllocated(offset, size)
}

// Empty reports whether every partition is free.
func (mh *MultiHeap) Empty() bool {
	for _, p := range mh.parts {
		if !p.Empty() {
			return false
		}
	}
	return true
}
