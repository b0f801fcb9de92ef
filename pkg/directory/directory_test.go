package directory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDirectoryStartsEmpty(t *testing.T) {
	d := New(NewTraits(Size16K, 8))
	assert.True(t, d.Empty())
}

func TestAllocateSizeThenReleaseRestoresEmpty(t *testing.T) {
	d := New(NewTraits(Size16K, 8))

	off, ok, err := d.AllocateSize(4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, d.CheckAllocated(off, 4))
	assert.False(t, d.Empty())

	require.NoError(t, d.ReleaseRange(off, 4))
	assert.True(t, d.Empty())
}

func TestAllocateSizeExhaustion(t *testing.T) {
	traits := NewTraits(Size16K, 8)
	d := New(traits)

	// Every level-0 block can be handed out once, lowest offset first.
	for i := uint32(0); i < traits.TopLevelBlocks; i++ {
		off, ok, err := d.AllocateSize(MaxBlockSize)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, i*MaxBlockSize, off)
	}

	_, ok, err := d.AllocateSize(1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllocateSizeNoDoubleAllocation(t *testing.T) {
	d := New(NewTraits(Size16K, 8))

	const reqSize = 8
	capacity := d.Capacity()
	maxAttempts := int(capacity/reqSize) * 2

	var mu sync.Mutex
	seen := map[uint32]bool{}
	var wg sync.WaitGroup
	for i := 0; i < maxAttempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			off, ok, err := d.AllocateSize(reqSize)
			if err != nil || !ok {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if seen[off] {
				t.Errorf("offset %d allocated twice", off)
			}
			seen[off] = true
		}()
	}
	wg.Wait()
}

func TestAllocateRangeAndCheckAllocated(t *testing.T) {
	d := New(NewTraits(Size16K, 8))

	require.NoError(t, d.AllocateRange(0, 16))
	assert.True(t, d.CheckAllocated(0, 16))
	assert.False(t, d.CheckAllocated(0, 32))

	require.NoError(t, d.ReleaseRange(0, 16))
	assert.True(t, d.Empty())
}

func TestAllocateRangeOverlapFails(t *testing.T) {
	d := New(NewTraits(Size16K, 8))

	require.NoError(t, d.AllocateRange(0, 16))
	err := d.AllocateRange(8, 16)
	assert.Error(t, err)

	// Rollback must have left the first allocation intact and the tail
	// untouched.
	assert.True(t, d.CheckAllocated(0, 16))
	assert.False(t, d.CheckAllocated(16, 16))
}

func TestCheckAllocatedSeesFreeBitAtFinerLevel(t *testing.T) {
	d := New(NewTraits(Size16K, 8))

	require.NoError(t, d.AllocateRange(3, 7))
	assert.True(t, d.CheckAllocated(3, 7))
	// Unit 2 is still free (never allocated); a covering block at a
	// coarser level than unit 2's own free bit must not hide it.
	assert.False(t, d.CheckAllocated(2, 8))
}

func TestReleaseRangeCoalescesBuddies(t *testing.T) {
	d := New(NewTraits(Size16K, 8))

	require.NoError(t, d.AllocateRange(0, d.Capacity()))
	require.NoError(t, d.ReleaseRange(0, d.Capacity()))
	assert.True(t, d.Empty())

	// Four single units come out at offsets 0..3; released in the order
	// 0, 2, 1, 3 they merge pairwise and then up to one level-0 block.
	var offs []uint32
	for i := 0; i < 4; i++ {
		off, ok, err := d.AllocateSize(1)
		require.NoError(t, err)
		require.True(t, ok)
		offs = append(offs, off)
	}
	assert.Equal(t, []uint32{0, 1, 2, 3}, offs)
	for _, i := range []int{0, 2, 1, 3} {
		require.NoError(t, d.ReleaseRange(offs[i], 1))
	}
	assert.True(t, d.Empty())
}

func TestLevelForSize(t *testing.T) {
	l, ok := LevelForSize(1)
	require.True(t, ok)
	assert.Equal(t, Levels-1, l)

	l, ok = LevelForSize(MaxBlockSize)
	require.True(t, ok)
	assert.Equal(t, 0, l)

	_, ok = LevelForSize(MaxBlockSize + 1)
	assert.False(t, ok)

	_, ok = LevelForSize(0)
	assert.False(t, ok)
}

func TestTraitsProfilesGenerateDistinctIndexSizes(t *testing.T) {
	assert.Greater(t, Traits16K.FreeBlockIndexSize(), 0)
	assert.Greater(t, Traits32K.FreeBlockIndexSize(), 0)
	assert.Greater(t, Traits64K.FreeBlockIndexSize(), 0)
	assert.Equal(t, Traits64K.CollapsedLevels, 0)
	assert.NotEqual(t, Traits16K.FreeBlockIndexSize(), Traits32K.FreeBlockIndexSize())
	assert.NotEqual(t, Traits32K.FreeBlockIndexSize(), Traits64K.FreeBlockIndexSize())
}
