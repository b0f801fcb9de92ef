package vmem

import (
	"sync"

	"github.com/nirvanaos/Core/internal/memerr"
	"github.com/nirvanaos/Core/internal/osvm"
)

// Engine drives commit/decommit/copy over one reserved address range,
// tracking state per line the way a buddy allocator tracks state per
// bitmap word, but one level up: lines instead of bitmap words, pages
// instead of bits.
type Engine struct {
	vm   osvm.VM
	base uintptr
	size uintptr

	mu    sync.Mutex
	lines map[uintptr]*Line // line index -> Line, created lazily on first commit

	// selfBegin/selfEnd bound the engine's own code+data. They are stored
	// but not read: Copy never remaps a line, so nothing is excluded.
	selfBegin, selfEnd uintptr
}

// NewEngine reserves size bytes via vm and returns an Engine over the
// reservation.
func NewEngine(vm osvm.VM, size uintptr, selfBegin, selfEnd uintptr) (*Engine, error) {
	base, err := vm.Reserve(size)
	if err != nil {
		return nil, memerr.New(memerr.NoMemory, "vmem.NewEngine", err)
	}
	return &Engine{
		vm: vm, base: base, size: size,
		lines: make(map[uintptr]*Line),
		selfBegin: selfBegin, selfEnd: selfEnd,
	}, nil
}

// TestBase exposes the engine's reserved base address for tests.
func (e *Engine) TestBase() uintptr { return e.base }

// Base returns the first byte address of the engine's reserved range.
func (e *Engine) Base() uintptr { return e.base }

// Size returns the byte length of the engine's reserved range.
func (e *Engine) Size() uintptr { return e.size }

// CommitUnit returns the granularity at which the underlying VM backend
// commits storage (e.g. the OS page size).
func (e *Engine) CommitUnit() uintptr { return e.vm.CommitUnit() }

// OptimalCommitUnit returns the backend's preferred commit granularity
// for a region of the given size, which may exceed CommitUnit when the
// backend can commit in larger chunks more cheaply (e.g. large pages).
func (e *Engine) OptimalCommitUnit(size uintptr) uintptr { return e.vm.OptimalCommitUnit(size) }

func (e *Engine) lineIndex(addr uintptr) uintptr { return (addr - e.base) / LineSize }

func (e *Engine) lineAddr(idx uintptr) uintptr { return e.base + idx*LineSize }

func (e *Engine) pageIndexInLine(addr uintptr) int {
	off := (addr - e.base) % LineSize
	return int(off / PageSize)
}

// lineFor returns the Line covering addr, creating (but not committing)
// it on first use.
func (e *Engine) lineFor(addr uintptr) *Line {
	idx := e.lineIndex(addr)
	l, ok := e.lines[idx]
	if !ok {
		l = &Line{addr: e.lineAddr(idx)}
		e.lines[idx] = l
	}
	return l
}

func alignDown(v, a uintptr) uintptr { return v - v%a }
func alignUp(v, a uintptr) uintptr   { return alignDown(v+a-1, a) }

// Commit backs [addr, addr+size) with committed, zero-initialized pages.
// addr and size must be page-aligned.
func (e *Engine) Commit(addr, size uintptr, prot osvm.Protection) error {
	if addr%PageSize != 0 || size%PageSize != 0 {
		return memerr.New(memerr.BadParam, "vmem.Engine.Commit", nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.vm.Commit(addr, size, prot); err != nil {
		return memerr.New(memerr.FreeMem, "vmem.Engine.Commit", err)
	}
	for a := addr; a < addr+size; a += PageSize {
		l := e.lineFor(a)
		l.setPageState(e.pageIndexInLine(a), MappedPrivate)
		l.pages[e.pageIndexInLine(a)].prot = prot
	}
	return nil
}

// Decommit releases backing storage for [addr, addr+size); the range
// must previously have been committed.
func (e *Engine) Decommit(addr, size uintptr) error {
	if addr%PageSize != 0 || size%PageSize != 0 {
		return memerr.New(memerr.BadParam, "vmem.Engine.Decommit", nil)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	for a := addr; a < addr+size; a += PageSize {
		idx := e.lineIndex(a)
		l, ok := e.lines[idx]
		if !ok || !l.pageState(e.pageIndexInLine(a)).IsCommitted() {
			return memerr.New(memerr.MemNotCommitted, "vmem.Engine.Decommit", nil)
		}
	}
	if err := e.vm.Decommit(addr, size); err != nil {
		return memerr.New(memerr.Internal, "vmem.Engine.Decommit", err)
	}
	for a := addr; a < addr+size; a += PageSize {
		l := e.lines[e.lineIndex(a)]
		pi := e.pageIndexInLine(a)
		if l.pageState(pi)&VirtualPrivate != 0 {
			l.setPageState(pi, Decommitted|VirtualPrivate)
		} else {
			l.setPageState(pi, Decommitted)
		}
	}
	return nil
}

// IsPrivate reports whether every page in [addr, addr+size) holds a
// private (non-shared) view.
func (e *Engine) IsPrivate(addr, size uintptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for a := addr; a < addr+size; a += PageSize {
		l, ok := e.lines[e.lineIndex(a)]
		if !ok {
			return false
		}
		if !l.pageState(e.pageIndexInLine(a)).IsPrivate() {
			return false
		}
	}
	return true
}

// QueryCommitted reports whether every page in [addr, addr+size) is
// currently committed.
func (e *Engine) QueryCommitted(addr, size uintptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for a := addr; a < addr+size; a += PageSize {
		l, ok := e.lines[e.lineIndex(a)]
		if !ok || !l.pageState(e.pageIndexInLine(a)).IsCommitted() {
			return false
		}
	}
	return true
}
