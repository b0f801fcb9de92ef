package vmem

import "unsafe"

// unsafeBytesAt views a raw process address as a byte slice. Only valid
// for addresses a VM backend has actually committed into this process,
// which Engine guarantees by construction: Copy checks that its source is
// committed and commits its destination before touching either.
func unsafeBytesAt(addr, size uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(size))
}
