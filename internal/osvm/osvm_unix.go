//go:build linux

package osvm

import (
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nirvanaos/Core/internal/memerr"
)

// unixVM backs VM with mmap/mprotect/madvise, the way
// dsmmcken-dh-cli's uffd loader and gcsfuse's folio pool map pages.
type unixVM struct {
	mu       sync.Mutex
	mappings map[uintptr]*Mapping
	nextID   uintptr
}

// New returns the platform VM backend.
func New() VM {
	return &unixVM{mappings: make(map[uintptr]*Mapping)}
}

func toProt(p Protection) int {
	switch p {
	case ProtReadOnly:
		return unix.PROT_READ
	case ProtReadWrite:
		return unix.PROT_READ | unix.PROT_WRITE
	default:
		return unix.PROT_NONE
	}
}

func (v *unixVM) Reserve(size uintptr) (uintptr, error) {
	data, err := unix.Mmap(-1, 0, int(size), unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return 0, errReserveFailed
	}
	return uintptr(unsafe.Pointer(&data[0])), nil
}

func (v *unixVM) Release(addr, size uintptr) error {
	b := ptrToSlice(addr, size)
	if err := unix.Munmap(b); err != nil {
		return memerr.New(memerr.Internal, "osvm.Release", err)
	}
	return nil
}

func (v *unixVM) Commit(addr, size uintptr, prot Protection) error {
	if err := unix.Mprotect(ptrToSlice(addr, size), toProt(prot)); err != nil {
		return errCommitFailed
	}
	_ = unix.Madvise(ptrToSlice(addr, size), unix.MADV_WILLNEED)
	return nil
}

func (v *unixVM) Decommit(addr, size uintptr) error {
	b := ptrToSlice(addr, size)
	_ = unix.Madvise(b, unix.MADV_DONTNEED)
	return unix.Mprotect(b, unix.PROT_NONE)
}

func (v *unixVM) Protect(addr, size uintptr, prot Protection) error {
	return unix.Mprotect(ptrToSlice(addr, size), toProt(prot))
}

func (v *unixVM) Query(addr uintptr) (RegionInfo, error) {
	// Unix has no cheap single-address query syscall comparable to
	// VirtualQuery; callers track commit state themselves (pkg/vmem's
	// Page.state) and only use Query for diagnostics.
	return RegionInfo{}, memerr.New(memerr.Internal, "osvm.Query", nil)
}

func (v *unixVM) CreateMapping(size uintptr) (*Mapping, error) {
	fd, err := unix.MemfdCreate("nirvana-line", 0)
	if err != nil {
		return nil, errReserveFailed
	}
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		unix.Close(fd)
		return nil, errReserveFailed
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	m := &Mapping{id: uintptr(fd), size: size}
	v.mappings[m.id] = m
	return m, nil
}

func (v *unixVM) MapView(m *Mapping, offset, size, addr uintptr, prot Protection) error {
	// mmap(2) with MAP_FIXED at a caller-reserved address: the Go wrapper
	// around mmap has no way to pass a desired address, so this drops to
	// the raw syscall the way dh-cli's uffd loader issues SYS_IOCTL
	// directly when the high-level wrapper doesn't cover its case.
	flags := unix.MAP_SHARED | unix.MAP_FIXED
	_, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, size, uintptr(toProt(prot)), uintptr(flags), m.id, offset)
	if errno != 0 {
		return errReserveFailed
	}
	return nil
}

func (v *unixVM) UnmapView(addr, size uintptr) error {
	return v.Release(addr, size)
}

func (v *unixVM) CommitUnit() uintptr { return uintptr(unix.Getpagesize()) }

func (v *unixVM) OptimalCommitUnit(size uintptr) uintptr {
	const hugePage = 2 << 20
	if size >= hugePage {
		return hugePage
	}
	return v.CommitUnit()
}

func ptrToSlice(addr, size uintptr) []byte {
	var b []byte
	sh := (*sliceHeader)(unsafe.Pointer(&b))
	sh.Data = addr
	sh.Len = int(size)
	sh.Cap = int(size)
	return b
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}
