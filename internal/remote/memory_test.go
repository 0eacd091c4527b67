package remote_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/passthru/internal/interfaces"
	"github.com/Norgate-AV/passthru/internal/remote"
	"github.com/Norgate-AV/passthru/internal/testutil"
)

func TestBlock_WriteAndFree(t *testing.T) {
	t.Parallel()

	procs := testutil.NewMockProcessAPI()

	block, err := remote.Allocate(procs, 0x10, remote.PointerSize, interfaces.PageReadWrite)
	require.NoError(t, err)
	assert.NotZero(t, block.Address())
	assert.Equal(t, remote.PointerSize, block.Size())

	require.NoError(t, block.WritePointer(0xdeadbeef))
	assert.Equal(t, uintptr(0xdeadbeef), procs.ReadPointer(block.Address()))

	require.NoError(t, block.Free())
	require.NoError(t, block.Free(), "second free is a no-op")

	assert.Equal(t, 1, procs.Allocs)
	assert.Equal(t, 1, procs.Frees)
	assert.Zero(t, procs.LiveAllocations())
}

func TestBlock_WriteLargerThanBlock(t *testing.T) {
	t.Parallel()

	procs := testutil.NewMockProcessAPI()

	block, err := remote.Allocate(procs, 0x10, 2, interfaces.PageReadWrite)
	require.NoError(t, err)
	defer block.Free()

	assert.Error(t, block.Write([]byte{1, 2, 3}))
}

func TestBlock_WriteAfterFree(t *testing.T) {
	t.Parallel()

	procs := testutil.NewMockProcessAPI()

	block, err := remote.Allocate(procs, 0x10, 8, interfaces.PageReadWrite)
	require.NoError(t, err)
	require.NoError(t, block.Free())

	assert.Error(t, block.Write([]byte{1}))
}

func TestBlock_AbandonSkipsFree(t *testing.T) {
	t.Parallel()

	procs := testutil.NewMockProcessAPI()

	block, err := remote.Allocate(procs, 0x10, 8, interfaces.PageReadWrite)
	require.NoError(t, err)

	block.Abandon()
	require.NoError(t, block.Free())

	assert.Equal(t, 0, procs.Frees)
	assert.Equal(t, 1, procs.LiveAllocations())
}

func TestAllocate_Errors(t *testing.T) {
	t.Parallel()

	procs := testutil.NewMockProcessAPI()
	procs.AllocErr = errors.New("not enough memory")

	_, err := remote.Allocate(procs, 0x10, 8, interfaces.PageReadWrite)
	assert.ErrorIs(t, err, procs.AllocErr)

	_, err = remote.Allocate(testutil.NewMockProcessAPI(), 0x10, 0, interfaces.PageReadWrite)
	assert.Error(t, err)
}

func TestBlock_NilFree(t *testing.T) {
	t.Parallel()

	var block *remote.Block
	assert.NoError(t, block.Free())
}
