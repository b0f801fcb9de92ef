// Package osvm is the narrow OS virtual-memory interface the line/page
// engine (pkg/vmem) drives: reserve, commit, decommit, protect and map
// shared views. Platform backends live in osvm_unix.go and osvm_windows.go,
// build-tagged per platform; simvm.go is an always-built in-process
// simulator used by tests on any OS.
package osvm

import "github.com/nirvanaos/Core/internal/memerr"

// Protection mirrors the PROT_*/PAGE_* access bits the line engine needs,
// abstracted to the three states a page ever actually holds.
type Protection int

const (
	ProtNone Protection = iota
	ProtReadOnly
	ProtReadWrite
)

// RegionInfo is what Query reports about one mapped unit.
type RegionInfo struct {
	Committed  bool
	Protection Protection
	// MappingID identifies the shared OS mapping object backing this
	// region, if any; zero means the region is privately committed
	// (not backed by a shared mapping handle).
	MappingID uintptr
}

// Mapping is an OS-level shareable memory object a line can be backed by
// (CreateFileMapping on Windows, a memfd/shm_open descriptor on Unix).
type Mapping struct {
	id   uintptr
	size uintptr
}

func (m *Mapping) ID() uintptr   { return m.id }
func (m *Mapping) Size() uintptr { return m.size }

// VM is the platform-independent surface pkg/vmem drives. Every method
// operates on byte addresses within a range the caller previously
// reserved; VM never allocates address space of its own accord.
type VM interface {
	// Reserve carves out size bytes of address space without committing
	// backing storage.
	Reserve(size uintptr) (addr uintptr, err error)
	Release(addr, size uintptr) error

	// Commit backs [addr, addr+size) with zero-filled private pages.
	Commit(addr, size uintptr, prot Protection) error
	Decommit(addr, size uintptr) error

	Protect(addr, size uintptr, prot Protection) error
	Query(addr uintptr) (RegionInfo, error)

	// CreateMapping allocates a shareable OS mapping object of the given
	// size; MapView/UnmapView attach/detach it at a reserved address.
	CreateMapping(size uintptr) (*Mapping, error)
	MapView(m *Mapping, offset, size uintptr, addr uintptr, prot Protection) error
	UnmapView(addr, size uintptr) error

	// CommitUnit is the platform page size; OptimalCommitUnit is the
	// largest page size the platform can back a run of the given size
	// with (e.g. a huge page), reported by the memory facade's
	// OPTIMAL_COMMIT_UNIT query.
	CommitUnit() uintptr
	OptimalCommitUnit(size uintptr) uintptr
}

var (
	errReserveFailed = memerr.New(memerr.NoMemory, "osvm.Reserve", nil)
	errCommitFailed  = memerr.New(memerr.FreeMem, "osvm.Commit", nil)
)
