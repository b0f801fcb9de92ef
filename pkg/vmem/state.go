// Package vmem implements the line/page engine: OS-backed commit/
// decommit/copy over pages grouped into lines, and a cost model that
// prices three remap strategies. Copy always copies bytes: it logs the
// strategy the cost model would pick, but no line is ever remapped onto a
// shared OS mapping object and no copy-on-write sharing takes place. The
// control flow is lifted from original_source/Win32/copy.cpp's
// WinMemory::copy / copy_one_line / copy_one_line_aligned /
// copy_one_line_really, expressed against internal/osvm instead of the
// Win32 API directly.
package vmem

import "github.com/nirvanaos/Core/internal/osvm"

// PageSize is the unit size of one page in bytes; line/page accounting is
// always done in pages, never in the directory's smaller allocation units.
const PageSize = 4096

// PagesPerLine is how many consecutive pages share one OS mapping handle.
const PagesPerLine = 16

// LineSize is the byte size of one line.
const LineSize = PagesPerLine * PageSize

// PageState is a bitmask describing one page's commit/sharing state:
// NOT_COMMITTED, MAPPED_SHARED, MAPPED_PRIVATE, COPIED,
// COPIED|VIRTUAL_PRIVATE, DECOMMITTED, DECOMMITTED|VIRTUAL_PRIVATE.
type PageState uint8

const (
	NotCommitted PageState = 0

	MappedShared  PageState = 1 << 0
	MappedPrivate PageState = 1 << 1
	Copied        PageState = 1 << 2
	Decommitted   PageState = 1 << 3

	// VirtualPrivate is a modifier combined with Copied or Decommitted:
	// the page is logically private but its backing bytes still live in
	// the shared mapping because no write has touched it yet.
	VirtualPrivate PageState = 1 << 4
)

// IsPrivate reports whether the page holds a copy-on-write-private view
// rather than the original shared mapping.
func (s PageState) IsPrivate() bool {
	return s&(MappedPrivate|VirtualPrivate) != 0
}

// IsCommitted reports whether the page currently has backing storage.
func (s PageState) IsCommitted() bool {
	return s&Decommitted == 0 && s != NotCommitted
}

// Page is one page's runtime state within a Line.
type Page struct {
	state PageState
	prot  osvm.Protection
}

// Line groups PagesPerLine pages that share one OS mapping object: the
// unit of OS mapping sharing.
type Line struct {
	addr    uintptr
	mapping *osvm.Mapping
	pages   [PagesPerLine]Page
}

func (l *Line) pageState(i int) PageState  { return l.pages[i].state }
func (l *Line) setPageState(i int, s PageState) { l.pages[i].state = s }
