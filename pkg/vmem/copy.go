package vmem

import (
	"github.com/nirvanaos/Core/internal/memerr"
	"github.com/nirvanaos/Core/internal/osvm"
)

// Flag is the copy-operation flag word, named after
// original_source/Win32/copy.cpp's DECOMMIT/RELEASE/ALLOCATE/READ_ONLY
// constants.
type Flag uint32

const (
	Decommit Flag = 1 << iota
	Release
	Allocate
	ReadOnly
	ZeroInit
	Exactly
)

// validateCopyFlags rejects the one combination copy.cpp's switch on
// flags&(DECOMMIT|RELEASE) treats as invalid: both set together.
func validateCopyFlags(flags Flag) error {
	switch flags & (Decommit | Release) {
	case 0, Decommit, Release:
		return nil
	default:
		return memerr.New(memerr.InvFlag, "vmem.Copy", nil)
	}
}

// Copy duplicates size bytes from src to dst. It asks the cost model
// (cost.go) for the cheapest feasible strategy and logs it; since
// planCopy reports both remap strategies infeasible, the copy itself is
// always one REMAP_NONE byte copy (copyBytes), after committing any
// destination page that is not yet committed.
//
// dst/src/size are byte addresses and length within two engines' managed
// ranges (srcEngine == dstEngine is the common in-place-shrink case).
// Direction of the byte walk is chosen so overlapping src/dst ranges
// never clobber data the walk has not yet read, exactly as copy.cpp picks
// forward vs backward iteration from the relative addresses.
func Copy(dstEngine, srcEngine *Engine, dst, src, size uintptr, flags Flag) error {
	if size == 0 {
		return nil
	}
	if err := validateCopyFlags(flags); err != nil {
		return err
	}
	if !srcEngine.QueryCommitted(alignDown(src, PageSize), alignUp(src+size, PageSize)-alignDown(src, PageSize)) {
		return memerr.New(memerr.BadParam, "vmem.Copy", nil)
	}
	dstFirst := alignDown(dst, PageSize)
	dstLen := alignUp(dst+size, PageSize) - dstFirst
	if !dstEngine.QueryCommitted(dstFirst, dstLen) {
		if err := dstEngine.Commit(dstFirst, dstLen, osvm.ProtReadWrite); err != nil {
			return err
		}
	}

	full, part, none, fullFeasible, partFeasible := planCopy(dstEngine, srcEngine, dst, src, size)
	chosen := decideStrategy(full, part, none, fullFeasible, partFeasible)
	memerr.Log.Debugw("copy strategy chosen", "strategy", chosen.Strategy.String(), "cost", chosen.Total(), "size", size)

	return copyBytes(dstEngine, srcEngine, dst, src, size)
}

// planCopy estimates the three strategies' costs. fullFeasible and
// partFeasible are always false: remapping a destination line onto a
// source mapping requires an OS-level shared-mapping handle
// (osvm.CreateMapping/MapView) plus write-fault trapping to materialize
// the copy-on-write split, neither of which this module's VM backends
// (the real OS backends and the in-process simulator) implement. Until
// that plumbing exists, REMAP_FULL/REMAP_PART would silently skip both
// the byte copy and the sharing they claim to perform, so every copy
// takes the REMAP_NONE path regardless of cost. The cost fields are
// still computed and logged so the strategy choice that WOULD be made
// is visible.
func planCopy(dstEngine, srcEngine *Engine, dst, src, size uintptr) (full, part, none Cost, fullFeasible, partFeasible bool) {
	none = costOfCopy(size)

	firstLine := alignUp(src, LineSize)
	lastLine := alignDown(src+size, LineSize)
	fullLines := 0
	if lastLine > firstLine {
		fullLines = int((lastLine - firstLine) / LineSize)
	}
	headTail := size - uintptr(fullLines)*LineSize

	touchedFirst := alignDown(src, LineSize)
	touchedLast := alignUp(src+size, LineSize)
	linesTouched := int((touchedLast - touchedFirst) / LineSize)

	part = costOfPart(headTail, fullLines)
	full = costOfFull(linesTouched)

	fullFeasible = false
	partFeasible = false
	return
}

// copyBytes is REMAP_NONE: a byte-for-byte copy through the simulator or
// OS-mapped address space, direction-aware so overlapping src/dst never
// clobbers unread data (copy_one_line_really's forward/backward choice).
func copyBytes(dstEngine, srcEngine *Engine, dst, src, size uintptr) error {
	srcBytes := engineBytes(srcEngine, src, size)
	dstBytes := engineBytes(dstEngine, dst, size)
	if dst > src {
		for i := int(size) - 1; i >= 0; i-- {
			dstBytes[i] = srcBytes[i]
		}
	} else {
		for i := 0; i < int(size); i++ {
			dstBytes[i] = srcBytes[i]
		}
	}
	markDestinationPrivate(dstEngine, dst, size)
	return nil
}

func markDestinationPrivate(e *Engine, addr, size uintptr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for a := addr; a < addr+size; a += PageSize {
		l := e.lineFor(a)
		l.setPageState(e.pageIndexInLine(a), MappedPrivate)
	}
}

// engineBytes views a byte range as a slice. Against the simulator this
// is the backing arena at its own coordinate space; against a real OS
// backend addr is already a valid process pointer, since Commit mapped it
// into this process directly, so the range is read through unsafe
// pointer arithmetic instead.
func engineBytes(e *Engine, addr, size uintptr) []byte {
	type byter interface{ Bytes(addr, size uintptr) []byte }
	if b, ok := e.vm.(byter); ok {
		return b.Bytes(addr, size)
	}
	return unsafeBytesAt(addr, size)
}
