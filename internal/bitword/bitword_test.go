package bitword

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterAcquireRelease(t *testing.T) {
	c := NewCounter(2)
	assert.True(t, c.Acquire())
	assert.True(t, c.Acquire())
	assert.False(t, c.Acquire())

	require.NoError(t, c.Release())
	assert.True(t, c.Acquire())
}

func TestCounterConcurrentAcquireNeverOversubscribes(t *testing.T) {
	const tokens = 50
	c := NewCounter(tokens)

	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0
	for i := 0; i < tokens*4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Acquire() {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, tokens, won)
	assert.Equal(t, uint32(0), c.Load())
}

func TestWordClearRightmost1(t *testing.T) {
	w := &Word{}
	w.BitSet(0b10110)

	bit, ok := w.ClearRightmost1()
	require.True(t, ok)
	assert.Equal(t, 1, bit)
	assert.Equal(t, uint64(0b10100), w.Load())

	bit, ok = w.ClearRightmost1()
	require.True(t, ok)
	assert.Equal(t, 2, bit)

	bit, ok = w.ClearRightmost1()
	require.True(t, ok)
	assert.Equal(t, 4, bit)

	_, ok = w.ClearRightmost1()
	assert.False(t, ok)
}

func TestWordBitClear(t *testing.T) {
	w := &Word{}
	w.BitSet(0b0110)

	assert.True(t, w.BitClear(0b0010))
	assert.Equal(t, uint64(0b0100), w.Load())

	// Clearing a bit that is not set fails.
	assert.False(t, w.BitClear(0b0010))
}

func TestWordConcurrentClearRightmost1NeverDoubleAllocates(t *testing.T) {
	w := &Word{}
	const bits = 40
	w.BitSet((uint64(1) << bits) - 1)

	var wg sync.WaitGroup
	seen := make([]int32, bits)
	for i := 0; i < bits*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if bit, ok := w.ClearRightmost1(); ok {
				seen[bit]++
			}
		}()
	}
	wg.Wait()

	for i, n := range seen {
		assert.LessOrEqualf(t, n, int32(1), "bit %d observed %d times", i, n)
	}
	assert.Equal(t, uint64(0), w.Load())
}
