// Package memory implements the memory facade: the public
// allocate/release/commit/decommit/copy/query surface, routing small
// requests to pkg/heap's buddy directory and
// page-granular requests to pkg/vmem's line engine, the way
// original_source/Source/CoreMemory.h forwards to a process's active
// Heap without exposing either subsystem directly.
package memory

import (
	"github.com/nirvanaos/Core/internal/memerr"
	"github.com/nirvanaos/Core/internal/osvm"
	"github.com/nirvanaos/Core/pkg/directory"
	"github.com/nirvanaos/Core/pkg/heap"
	"github.com/nirvanaos/Core/pkg/vmem"
)

// Flag is the public allocate/release/copy flag word; the facade
// translates it into the narrower heap.Flag/vmem.Flag each subsystem
// expects.
type Flag uint32

const (
	Reserved Flag = 1 << iota
	ZeroInit
	Exactly
	Decommit
	ReleaseFlag
	Allocate
	ReadOnly
)

// Space is one address-space-wide facade: a buddy heap for sub-page
// requests and a line engine for page-granular commit/decommit/copy.
type Space struct {
	small *heap.MultiHeap
	large *vmem.Engine
}

// New builds a Space over a freshly created small-object heap (profile
// traits) and a line engine reserved from vm.
func New(traits *directory.Traits, parts int, vm osvm.VM, largeSize uintptr, selfBegin, selfEnd uintptr) (*Space, error) {
	engine, err := vmem.NewEngine(vm, largeSize, selfBegin, selfEnd)
	if err != nil {
		return nil, err
	}
	return &Space{
		small: heap.NewMultiHeap(traits, parts),
		large: engine,
	}, nil
}

// isLarge reports whether a request should route to the line engine
// rather than the buddy heap: the line is drawn at one page.
func isLarge(sizeBytes uint32) bool {
	return sizeBytes >= vmem.PageSize
}

// Allocate reserves sizeBytes bytes, rounding sub-page requests up to the
// buddy directory's unit size. Requests of one page or more are not
// served through the line engine; they fail with BAD_PARAM.
func (s *Space) Allocate(sizeBytes uint32, flags Flag) (offset uint32, err error) {
	if sizeBytes == 0 {
		return 0, memerr.New(memerr.BadParam, "memory.Space.Allocate", nil)
	}
	if isLarge(sizeBytes) {
		return 0, memerr.New(memerr.BadParam, "memory.Space.Allocate", nil)
	}
	units := (sizeBytes + directory.UnitMin - 1) / directory.UnitMin
	off, ok, aerr := s.small.Allocate(units, toHeapFlags(flags))
	if aerr != nil {
		return 0, aerr
	}
	if !ok {
		return 0, memerr.New(memerr.NoMemory, "memory.Space.Allocate", nil)
	}
	return off, nil
}

// Release frees a prior small-object allocation.
func (s *Space) Release(offset, sizeBytes uint32) error {
	units := (sizeBytes + directory.UnitMin - 1) / directory.UnitMin
	return s.small.Release(offset, units)
}

// Commit backs [addr, addr+size) with committed pages in the line engine.
func (s *Space) Commit(addr, size uintptr, prot osvm.Protection) error {
	return s.large.Commit(addr, size, prot)
}

// Decommit releases backing storage for [addr, addr+size).
func (s *Space) Decommit(addr, size uintptr) error {
	return s.large.Decommit(addr, size)
}

// Copy duplicates size bytes from src to dst within the line engine.
func (s *Space) Copy(dst, src, size uintptr, flags Flag) error {
	return vmem.Copy(s.large, s.large, dst, src, size, toVmemFlags(flags))
}

// toHeapFlags translates the facade's flag word into heap's narrower one,
// by meaning rather than bit position.
func toHeapFlags(f Flag) heap.Flag {
	var out heap.Flag
	if f&Reserved != 0 {
		out |= heap.Reserved
	}
	if f&ZeroInit != 0 {
		out |= heap.ZeroInit
	}
	if f&Exactly != 0 {
		out |= heap.Exactly
	}
	return out
}

// toVmemFlags translates the facade's flag word into vmem's narrower one;
// the two are defined independently (different bit layouts) so this maps
// by meaning, not by reinterpreting the bit pattern.
func toVmemFlags(f Flag) vmem.Flag {
	var out vmem.Flag
	if f&Decommit != 0 {
		out |= vmem.Decommit
	}
	if f&ReleaseFlag != 0 {
		out |= vmem.Release
	}
	if f&Allocate != 0 {
		out |= vmem.Allocate
	}
	if f&ReadOnly != 0 {
		out |= vmem.ReadOnly
	}
	if f&ZeroInit != 0 {
		out |= vmem.ZeroInit
	}
	if f&Exactly != 0 {
		out |= vmem.Exactly
	}
	return out
}

// IsPrivate reports whether every page in a page-granular range holds a
// private, copy-on-write view.
func (s *Space) IsPrivate(addr, size uintptr) bool {
	return s.large.IsPrivate(addr, size)
}

// IsReadable reports whether every unit in a small-object range is
// currently allocated; distinct from IsPrivate ("backed by something"
// versus "not shared").
func (s *Space) IsReadable(offset, sizeBytes uint32) bool {
	units := (sizeBytes + directory.UnitMin - 1) / directory.UnitMin
	return s.small.CheckAllocated(offset, units)
}

// QueryParam selects which property query reports, matching the
// parameterized query(p, param) operation original_source/Source/CoreMemory.h
// exposes over the same small/large split this facade routes to.
type QueryParam int

const (
	// AllocationUnit is the granularity allocate/release round to.
	AllocationUnit QueryParam = iota
	// SharingUnit is the granularity at which pages can hold independent
	// sharing state (a whole line, since that is the unit one OS mapping
	// handle covers).
	SharingUnit
	// CommitUnit is the backend's page size.
	CommitUnit
	// OptimalCommitUnit is the backend's preferred commit granularity for
	// a one-page region.
	OptimalCommitUnit
	// ProtectionUnit is the granularity at which protection flags can
	// differ between adjacent pages.
	ProtectionUnit
	// AllocationSpaceBegin is the first byte address of the large-object
	// engine's reserved range.
	AllocationSpaceBegin
	// AllocationSpaceEnd is one past the last byte address of the
	// large-object engine's reserved range.
	AllocationSpaceEnd
	// Flags reports page state as a bitmask: bit 0 set means p is
	// committed, bit 1 set means p holds a private (non-shared) view.
	Flags
)

// queryFlagCommitted and queryFlagPrivate are the two bits Query reports
// for the Flags parameter.
const (
	queryFlagCommitted = 1 << 0
	queryFlagPrivate   = 1 << 1
)

// Query reports an integer property selected by param. Only Flags reads
// p, which must then lie within the large-object engine's reserved range;
// every other param is a property of the Space and ignores p.
func (s *Space) Query(p uintptr, param QueryParam) (int64, error) {
	switch param {
	case AllocationUnit:
		return int64(directory.UnitMin), nil
	case SharingUnit:
		return int64(vmem.LineSize), nil
	case CommitUnit:
		return int64(s.large.CommitUnit()), nil
	case OptimalCommitUnit:
		return int64(s.large.OptimalCommitUnit(vmem.PageSize)), nil
	case ProtectionUnit:
		return int64(vmem.PageSize), nil
	case AllocationSpaceBegin:
		return int64(s.large.Base()), nil
	case AllocationSpaceEnd:
		return int64(s.large.Base() + s.large.Size()), nil
	case Flags:
		var f int64
		if s.large.QueryCommitted(p, vmem.PageSize) {
			f |= queryFlagCommitted
		}
		if s.large.IsPrivate(p, vmem.PageSize) {
			f |= queryFlagPrivate
		}
		return f, nil
	default:
		return 0, memerr.New(memerr.BadParam, "memory.Space.Query", nil)
	}
}
