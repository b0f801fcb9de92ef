package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nirvanaos/Core/internal/osvm"
	"github.com/nirvanaos/Core/pkg/directory"
	"github.com/nirvanaos/Core/pkg/vmem"
)

func newTestSpace(t *testing.T) *Space {
	t.Helper()
	vm := osvm.NewSim(4 << 20)
	s, err := New(directory.NewTraits(directory.Size16K, 8), 2, vm, 1<<20, 0, 0)
	require.NoError(t, err)
	return s
}

func TestSpaceAllocateReleaseSmall(t *testing.T) {
	s := newTestSpace(t)

	off, err := s.Allocate(128, 0)
	require.NoError(t, err)
	assert.True(t, s.IsReadable(off, 128))

	require.NoError(t, s.Release(off, 128))
	assert.False(t, s.IsReadable(off, 128))
}

func TestSpaceRejectsPageGranularAllocate(t *testing.T) {
	s := newTestSpace(t)
	_, err := s.Allocate(8192, 0)
	assert.Error(t, err)
}

func TestSpaceCommitDecommitLarge(t *testing.T) {
	s := newTestSpace(t)
	addr := s.large.TestBase()

	require.NoError(t, s.Commit(addr, vmem.PageSize, osvm.ProtReadWrite))
	assert.True(t, s.large.QueryCommitted(addr, vmem.PageSize))

	require.NoError(t, s.Decommit(addr, vmem.PageSize))
	assert.False(t, s.large.QueryCommitted(addr, vmem.PageSize))
}

func TestSpaceQueryUnitsAndBounds(t *testing.T) {
	s := newTestSpace(t)

	unit, err := s.Query(0, AllocationUnit)
	require.NoError(t, err)
	assert.EqualValues(t, directory.UnitMin, unit)

	shareUnit, err := s.Query(0, SharingUnit)
	require.NoError(t, err)
	assert.EqualValues(t, vmem.LineSize, shareUnit)

	begin, err := s.Query(0, AllocationSpaceBegin)
	require.NoError(t, err)
	end, err := s.Query(0, AllocationSpaceEnd)
	require.NoError(t, err)
	assert.Greater(t, end, begin)

	_, err = s.Query(0, QueryParam(999))
	assert.Error(t, err)
}

func TestSpaceQueryFlagsReflectsCommitAndPrivacy(t *testing.T) {
	s := newTestSpace(t)
	addr := s.large.TestBase()

	require.NoError(t, s.Commit(addr, vmem.PageSize, osvm.ProtReadWrite))
	flags, err := s.Query(addr, Flags)
	require.NoError(t, err)
	assert.NotZero(t, flags&queryFlagCommitted)
	assert.NotZero(t, flags&queryFlagPrivate)

	require.NoError(t, s.Decommit(addr, vmem.PageSize))
	flags, err = s.Query(addr, Flags)
	require.NoError(t, err)
	assert.Zero(t, flags&queryFlagCommitted)
	assert.Zero(t, flags&queryFlagPrivate)
}
