package vmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nirvanaos/Core/internal/osvm"
)

func newTestEngine(t *testing.T, arenaSize uintptr) *Engine {
	t.Helper()
	vm := osvm.NewSim(arenaSize)
	e, err := NewEngine(vm, arenaSize-1, 0, 0)
	require.NoError(t, err)
	return e
}

func TestEngineCommitDecommit(t *testing.T) {
	e := newTestEngine(t, 1<<20)
	addr := e.base

	require.NoError(t, e.Commit(addr, PageSize, osvm.ProtReadWrite))
	assert.True(t, e.QueryCommitted(addr, PageSize))

	require.NoError(t, e.Decommit(addr, PageSize))
	assert.False(t, e.QueryCommitted(addr, PageSize))
}

func TestEngineDecommitUncommittedFails(t *testing.T) {
	e := newTestEngine(t, 1<<20)
	err := e.Decommit(e.base, PageSize)
	assert.Error(t, err)
}

func TestCopyByteForByte(t *testing.T) {
	e := newTestEngine(t, 1<<20)
	src := e.base
	dst := e.base + 4*LineSize

	require.NoError(t, e.Commit(src, PageSize, osvm.ProtReadWrite))
	require.NoError(t, e.Commit(dst, PageSize, osvm.ProtReadWrite))

	srcBytes := engineBytes(e, src, PageSize)
	for i := range srcBytes {
		srcBytes[i] = byte(i)
	}

	require.NoError(t, Copy(e, e, dst, src, PageSize, 0))

	dstBytes := engineBytes(e, dst, PageSize)
	for i := range dstBytes {
		assert.Equal(t, byte(i), dstBytes[i])
	}
	assert.True(t, e.IsPrivate(dst, PageSize))
}

func TestCopyInvalidFlagCombination(t *testing.T) {
	e := newTestEngine(t, 1<<20)
	src := e.base
	require.NoError(t, e.Commit(src, PageSize, osvm.ProtReadWrite))

	err := Copy(e, e, e.base+LineSize, src, PageSize, Decommit|Release)
	assert.Error(t, err)
}

func TestCopyRequiresCommittedSource(t *testing.T) {
	e := newTestEngine(t, 1<<20)
	err := Copy(e, e, e.base+LineSize, e.base, PageSize, 0)
	assert.Error(t, err)
}

func TestCopyWholeLineCopiesBytes(t *testing.T) {
	e := newTestEngine(t, 4<<20)
	src := e.base
	dst := e.base + 4*LineSize

	require.NoError(t, e.Commit(src, LineSize, osvm.ProtReadWrite))
	srcBytes := engineBytes(e, src, LineSize)
	for i := range srcBytes {
		srcBytes[i] = byte(i)
	}

	require.NoError(t, Copy(e, e, dst, src, LineSize, 0))

	dstBytes := engineBytes(e, dst, LineSize)
	assert.Equal(t, srcBytes, dstBytes)
	assert.True(t, e.IsPrivate(dst, LineSize))

	// A write to dst must never alter src: the destination is a private
	// copy, not a shared view, even for a whole-line copy.
	dstBytes[0] ^= 0xFF
	assert.NotEqual(t, srcBytes[0], dstBytes[0])
}
