package osvm

import "sync"

// simVM is an in-process simulator of VM backed by a plain byte slice
// rather than real OS mappings, so pkg/vmem and pkg/memory tests exercise
// the same Commit/Decommit/Copy/MapView contract on every platform
// without needing privileged mmap/VirtualAlloc calls in CI.
type simVM struct {
	mu        sync.Mutex
	arena     []byte
	base      uintptr
	committed map[uintptr]bool // page index -> committed
	pageSize  uintptr
	mappings  map[uintptr]*Mapping
	nextID    uintptr
}

// NewSim returns a simulator VM with a fixed-size backing arena. size must
// be large enough to cover every Reserve call the caller will make; the
// simulator never grows it. The returned base address is page-aligned,
// the way a real Reserve's result always is.
func NewSim(size uintptr) VM {
	return &simVM{
		arena:     make([]byte, size),
		base:      4096,
		committed: make(map[uintptr]bool),
		pageSize:  4096,
		mappings:  make(map[uintptr]*Mapping),
	}
}

func (v *simVM) Reserve(size uintptr) (uintptr, error) {
	// The simulator treats the whole arena as already reserved; callers
	// get a stable, page-aligned base address and carve out sub-ranges
	// themselves.
	return v.base, nil
}

func (v *simVM) Release(addr, size uintptr) error { return nil }

func (v *simVM) pageRange(addr, size uintptr) (first, last uintptr) {
	first = (addr - v.base) / v.pageSize
	last = (addr - v.base + size - 1) / v.pageSize
	return
}

func (v *simVM) Commit(addr, size uintptr, prot Protection) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	first, last := v.pageRange(addr, size)
	if int(last)*int(v.pageSize) >= len(v.arena) {
		return errCommitFailed
	}
	for p := first; p <= last; p++ {
		v.committed[p] = true
	}
	return nil
}

func (v *simVM) Decommit(addr, size uintptr) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	first, last := v.pageRange(addr, size)
	for p := first; p <= last; p++ {
		delete(v.committed, p)
	}
	for i := addr - v.base; i < addr-v.base+size && int(i) < len(v.arena); i++ {
		v.arena[i] = 0
	}
	return nil
}

func (v *simVM) Protect(addr, size uintptr, prot Protection) error { return nil }

func (v *simVM) Query(addr uintptr) (RegionInfo, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	first, _ := v.pageRange(addr, 1)
	return RegionInfo{Committed: v.committed[first]}, nil
}

func (v *simVM) CreateMapping(size uintptr) (*Mapping, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	m := &Mapping{id: v.nextID, size: size}
	v.mappings[m.id] = m
	return m, nil
}

func (v *simVM) MapView(m *Mapping, offset, size, addr uintptr, prot Protection) error {
	return v.Commit(addr, size, prot)
}

func (v *simVM) UnmapView(addr, size uintptr) error { return v.Decommit(addr, size) }

func (v *simVM) CommitUnit() uintptr { return v.pageSize }

func (v *simVM) OptimalCommitUnit(size uintptr) uintptr { return v.pageSize }

// Bytes exposes the backing arena for tests to read/write through,
// simulating a process address range starting at the simulator's base.
func (v *simVM) Bytes(addr, size uintptr) []byte {
	off := addr - v.base
	return v.arena[off : off+size]
}

// AsSim is a test helper that type-asserts a VM back to its simulator form
// to reach Bytes; panics if vm is not a simulator.
func AsSim(vm VM) interface{ Bytes(addr, size uintptr) []byte } {
	return vm.(*simVM)
}
