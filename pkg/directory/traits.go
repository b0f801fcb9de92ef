// Package directory implements the Heap Directory: a compact, fixed-size
// metadata block that drives a buddy allocator over a range of abstract
// "units".
//
// Three directory sizes share one code path by generating a *Traits table
// from the level constants rather than hand-encoding the free-block-index
// layout, the way achilleasa-gopher-os's buddyAllocator generates its
// bitmap slice headers from mem.MaxPageOrder.
package directory

import "math/bits"

const (
	// UnitMin is the byte size of one allocation unit.
	UnitMin = 64

	// Levels is the number of buddy levels; level 0 holds the largest
	// blocks, level Levels-1 holds single-unit blocks.
	Levels = 11

	// MaxBlockSize is the unit count of a level-0 block.
	MaxBlockSize = 1 << (Levels - 1)

	// maxCounterWidth is the largest value a single free-block counter
	// slot may hold before it must be split across several slots:
	// counters are at most 65535.
	maxCounterWidth = 0xFFFF

	// wordBits is the number of blocks tracked by one bitmap word.
	wordBits = 64
)

// DirectorySize is one of the three supported build profiles.
type DirectorySize int

const (
	Size16K DirectorySize = 0x4000
	Size32K DirectorySize = 0x8000
	Size64K DirectorySize = 0x10000
)

// BlockSize returns the unit count of a block at the given level.
func BlockSize(level int) uint32 {
	return 1 << uint(Levels-1-level)
}

// LevelForSize returns the level whose block size is the smallest power of
// two not less than sizeUnits (round-up to next power of two via
// count-leading-zeros). ok is false if sizeUnits is zero or exceeds
// MaxBlockSize.
func LevelForSize(sizeUnits uint32) (level int, ok bool) {
	if sizeUnits == 0 || sizeUnits > MaxBlockSize {
		return 0, false
	}
	p := nextPow2(sizeUnits)
	shift := bits.TrailingZeros32(p)
	return Levels - 1 - shift, true
}

func nextPow2(v uint32) uint32 {
	if v&(v-1) == 0 {
		return v
	}
	return 1 << uint(32-bits.LeadingZeros32(v-1))
}

// slot describes one entry of the free-block index table
// (sm_bitmap_index / sm_block_index_offset): the level to search and
// the word offset within that level's bitmap region where the search
// should begin.
type slot struct {
	level        int
	wordOffset   int // offset, in words, from the level's own bitmap base
	wordCount    int // width of this slot's sub-range, in words
	isCollapsed  bool
	levelSpan    int // number of levels folded into this slot (1 unless collapsed)
}

// Traits is the per-directory-size compile-time table: level bitmap
// layout, the free-block-index table, and the level->counter-slot map.
// One instance is generated per DirectorySize by NewTraits; all Directory
// operations are written against *Traits so the three sizes share code.
type Traits struct {
	Size DirectorySize

	// TopBitmapWords is the word count of level 0's bitmap; level L's
	// bitmap has TopBitmapWords<<L words.
	TopBitmapWords int

	// TopLevelBlocks is the number of level-0 blocks the directory
	// manages; a fresh directory starts with exactly this many free
	// blocks at level 0 and none at any other level.
	TopLevelBlocks uint32

	// CollapsedLevels is the number of uppermost (largest-block) levels
	// whose free counts are folded into a single index slot, chosen so
	// FreeBlockIndexSize lands near the target for this profile. 0 means
	// no collapsing ("each top level distinct").
	CollapsedLevels int

	// LevelWordOffset[L] is the absolute word offset of level L's
	// bitmap within the directory's single flat word array:
	// TopBitmapWords * ((1<<L) - 1).
	LevelWordOffset [Levels]int
	LevelWordCount  [Levels]int

	// slots is ordered from the deepest (smallest-block) level to the
	// coarsest, so that walking forward from the slot for a requested
	// level toward higher indices is exactly "toward larger slots":
	// same-level sub-ranges are consecutive, then the next coarser
	// level, ending with the collapsed group (if any) representing
	// levels [0, CollapsedLevels).
	slots []slot

	// levelFirstSlot[L] is the index of the first slot that searches
	// level L (or, for a collapsed level, the collapsed slot).
	levelFirstSlot [Levels]int
}

// FreeBlockIndexSize is the number of free-block-counter slots.
func (t *Traits) FreeBlockIndexSize() int { return len(t.slots) }

// BitmapWords is the total word count across all levels.
func (t *Traits) BitmapWords() int {
	return t.TopBitmapWords * (1<<uint(Levels) - 1)
}

// NewTraits generates a Traits table for the given directory size and
// collapse depth. It never hand-encodes offsets: every field is derived
// from size and collapsedLevels.
func NewTraits(size DirectorySize, collapsedLevels int) *Traits {
	t := &Traits{
		Size:            size,
		TopBitmapWords:  int(size) / 16384,
		CollapsedLevels: collapsedLevels,
	}
	t.TopLevelBlocks = uint32(t.TopBitmapWords) * wordBits

	for l := 0; l < Levels; l++ {
		t.LevelWordOffset[l] = t.TopBitmapWords * ((1 << uint(l)) - 1)
		t.LevelWordCount[l] = t.TopBitmapWords << uint(l)
	}

	// Build slots from the deepest level up to (but not including) the
	// collapsed range, splitting any level whose block count would
	// overflow a single counter into consecutive sub-range slots.
	const wordsPerSubrange = maxCounterWidth / wordBits // stays within 65535 bits

	lowestIndividual := collapsedLevels
	for l := Levels - 1; l >= lowestIndividual; l-- {
		wc := t.LevelWordCount[l]
		split := (wc + wordsPerSubrange - 1) / wordsPerSubrange
		if split < 1 {
			split = 1
		}
		t.levelFirstSlot[l] = len(t.slots)
		rem := wc
		for s := 0; s < split; s++ {
			w := wordsPerSubrange
			if w > rem {
				w = rem
			}
			t.slots = append(t.slots, slot{
				level:      l,
				wordOffset: s * wordsPerSubrange,
				wordCount:  w,
				levelSpan:  1,
			})
			rem -= w
		}
	}

	if collapsedLevels > 0 {
		cs := slot{
			level:       collapsedLevels - 1,
			wordOffset:  0,
			wordCount:   t.LevelWordCount[collapsedLevels-1],
			isCollapsed: true,
			levelSpan:   collapsedLevels,
		}
		idx := len(t.slots)
		t.slots = append(t.slots, cs)
		for l := 0; l < collapsedLevels; l++ {
			t.levelFirstSlot[l] = idx
		}
	}

	return t
}

var (
	// Traits16K, Traits32K, Traits64K are the three generated profiles.
	// Their CollapsedLevels values are chosen so that
	// FreeBlockIndexSize() lands close to the illustrative 4/8/15 counts
	// named for these profiles; the derived counts are 5, 10 and 18 (see
	// DESIGN.md for why they are not hand-pinned to those numbers).
	Traits16K = NewTraits(Size16K, 8)
	Traits32K = NewTraits(Size32K, 5)
	Traits64K = NewTraits(Size64K, 0)
)
