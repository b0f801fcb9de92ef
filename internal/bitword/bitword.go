// Package bitword implements the lock-free primitives every bitmap word
// and free-block counter in the heap directory is mutated through. The
// only observable race the directory cares about is double-allocation;
// acquiring a counter token before clearing the matching bit is what
// rules it out.
package bitword

import (
	"math/bits"

	"go.uber.org/atomic"

	"github.com/nirvanaos/Core/internal/memerr"
)

// maxCounter is the widest value a free-block counter may hold: typed as
// 16-bit unsigned, at most 65535. Counter is backed by atomic.Uint32
// because Go has no native 16-bit atomic, but every mutation is checked
// against maxCounter so the counter never silently wraps.
const maxCounter = 0xFFFF

// Counter is one free-block counter slot.
type Counter struct {
	v atomic.Uint32
}

// NewCounter returns a Counter initialized to n free blocks.
func NewCounter(n uint32) *Counter {
	c := &Counter{}
	c.v.Store(n)
	return c
}

// Acquire reserves one free block: if the counter is > 0 it is
// decremented and Acquire returns true; otherwise it returns false. This
// is a CAS loop, not load-then-store, so concurrent Acquire calls never
// both observe and decrement the same last token.
func (c *Counter) Acquire() bool {
	for {
		cur := c.v.Load()
		if cur == 0 {
			return false
		}
		if c.v.CAS(cur, cur-1) {
			return true
		}
	}
}

// Release returns one token, symmetric with Acquire.
func (c *Counter) Release() error {
	for {
		cur := c.v.Load()
		if cur >= maxCounter {
			return memerr.New(memerr.Internal, "bitword.Counter.Release", nil)
		}
		if c.v.CAS(cur, cur+1) {
			return nil
		}
	}
}

// Load returns the current token count.
func (c *Counter) Load() uint32 { return c.v.Load() }

// Store overwrites the counter outright; used only at directory
// construction time, never under concurrent access.
func (c *Counter) Store(n uint32) { c.v.Store(n) }

// Word is one machine word (64 bits) of a level's free-bit bitmap.
type Word struct {
	v atomic.Uint64
}

// Load returns the current bit pattern; set bit == free block.
func (w *Word) Load() uint64 { return w.v.Load() }

// ClearRightmost1 atomically clears the lowest set bit of the word and
// returns its index (0 = LSB). ok is false if the word was already zero.
func (w *Word) ClearRightmost1() (bit int, ok bool) {
	for {
		cur := w.v.Load()
		if cur == 0 {
			return -1, false
		}
		lowest := cur & (-cur)
		if w.v.CAS(cur, cur&^lowest) {
			return bits.TrailingZeros64(lowest), true
		}
	}
}

// BitClear clears mask only if every bit in mask is currently set;
// returns true on success, false if any targeted bit was already clear
// (the caller must retry at a different position or level).
func (w *Word) BitClear(mask uint64) bool {
	for {
		cur := w.v.Load()
		if cur&mask != mask {
			return false
		}
		if w.v.CAS(cur, cur&^mask) {
			return true
		}
	}
}

// BitSet atomically ORs mask into the word with a CAS loop; it cannot fail.
func (w *Word) BitSet(mask uint64) {
	for {
		cur := w.v.Load()
		if cur&mask == mask {
			return
		}
		if w.v.CAS(cur, cur|mask) {
			return
		}
	}
}
