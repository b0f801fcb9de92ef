//go:build windows

package osvm

import (
	"sync"

	"golang.org/x/sys/windows"

	"github.com/nirvanaos/Core/internal/memerr"
)

// windowsVM backs VM with VirtualAlloc/VirtualProtect/CreateFileMapping,
// the same calls original_source/Win32/copy.cpp drives directly.
type windowsVM struct {
	mu       sync.Mutex
	mappings map[uintptr]*Mapping
}

func New() VM {
	return &windowsVM{mappings: make(map[uintptr]*Mapping)}
}

func toPageProtect(p Protection) uint32 {
	switch p {
	case ProtReadOnly:
		return windows.PAGE_READONLY
	case ProtReadWrite:
		return windows.PAGE_READWRITE
	default:
		return windows.PAGE_NOACCESS
	}
}

func (v *windowsVM) Reserve(size uintptr) (uintptr, error) {
	addr, err := windows.VirtualAlloc(0, size, windows.MEM_RESERVE, windows.PAGE_NOACCESS)
	if err != nil {
		return 0, errReserveFailed
	}
	return addr, nil
}

func (v *windowsVM) Release(addr, size uintptr) error {
	if err := windows.VirtualFree(addr, 0, windows.MEM_RELEASE); err != nil {
		return memerr.New(memerr.Internal, "osvm.Release", err)
	}
	return nil
}

func (v *windowsVM) Commit(addr, size uintptr, prot Protection) error {
	if _, err := windows.VirtualAlloc(addr, size, windows.MEM_COMMIT, toPageProtect(prot)); err != nil {
		return errCommitFailed
	}
	return nil
}

func (v *windowsVM) Decommit(addr, size uintptr) error {
	if err := windows.VirtualFree(addr, size, windows.MEM_DECOMMIT); err != nil {
		return memerr.New(memerr.Internal, "osvm.Decommit", err)
	}
	return nil
}

func (v *windowsVM) Protect(addr, size uintptr, prot Protection) error {
	var old uint32
	return windows.VirtualProtect(addr, size, toPageProtect(prot), &old)
}

func (v *windowsVM) Query(addr uintptr) (RegionInfo, error) {
	var mbi windows.MemoryBasicInformation
	if err := windows.VirtualQuery(addr, &mbi, unsafeSizeofMBI); err != nil {
		return RegionInfo{}, memerr.New(memerr.Internal, "osvm.Query", err)
	}
	info := RegionInfo{Committed: mbi.State == windows.MEM_COMMIT}
	switch mbi.Protect {
	case windows.PAGE_READONLY:
		info.Protection = ProtReadOnly
	case windows.PAGE_READWRITE:
		info.Protection = ProtReadWrite
	}
	return info, nil
}

func (v *windowsVM) CreateMapping(size uintptr) (*Mapping, error) {
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, uint32(size>>32), uint32(size), nil)
	if err != nil {
		return nil, errReserveFailed
	}
	m := &Mapping{id: uintptr(h), size: size}
	v.mu.Lock()
	v.mappings[m.id] = m
	v.mu.Unlock()
	return m, nil
}

func (v *windowsVM) MapView(m *Mapping, offset, size, addr uintptr, prot Protection) error {
	access := uint32(windows.FILE_MAP_WRITE)
	if prot == ProtReadOnly {
		access = windows.FILE_MAP_READ
	}
	_, err := windows.MapViewOfFileEx(windows.Handle(m.id), access, uint32(offset>>32), uint32(offset), size, addr)
	if err != nil {
		return errReserveFailed
	}
	return nil
}

func (v *windowsVM) UnmapView(addr, size uintptr) error {
	return windows.UnmapViewOfFile(addr)
}

func (v *windowsVM) CommitUnit() uintptr {
	var si windows.SystemInfo
	windows.GetSystemInfo(&si)
	return uintptr(si.PageSize)
}

func (v *windowsVM) OptimalCommitUnit(size uintptr) uintptr {
	const largePage = 2 << 20 // typical large-page size; the system's actual minimum is not queried
	if size >= largePage {
		return largePage
	}
	return v.CommitUnit()
}

const unsafeSizeofMBI = 48
