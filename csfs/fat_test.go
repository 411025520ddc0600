package csfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkReservedCoversMetadataRange(t *testing.T) {
	fat := newFAT(100)
	fat.markReserved(10)
	for i := 0; i < 10; i++ {
		assert.Equal(t, FATReserved, fat.Get(i))
	}
	assert.Equal(t, FATFree, fat.Get(10))
}

func TestAllocChainLinksAscendingAndTerminatesEOF(t *testing.T) {
	fat := newFAT(20)
	fat.markReserved(10)

	first, err := fat.allocChain(10, 3)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), first)

	blocks := fat.chainBlocks(first)
	assert.Equal(t, []uint32{10, 11, 12}, blocks)
	assert.Equal(t, FATEOF, fat.Get(12))
}

func TestAllocChainSkipsAlreadyAllocatedBlocks(t *testing.T) {
	fat := newFAT(20)
	fat.markReserved(10)
	fat.Set(10, FATEOF) // simulate block 10 already in use by another file

	first, err := fat.allocChain(10, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{11, 12}, fat.chainBlocks(first))
}

func TestAllocChainLeavesFATUntouchedWhenInsufficientSpace(t *testing.T) {
	fat := newFAT(13)
	fat.markReserved(10)

	before := append([]uint32(nil), fat.entries...)
	_, err := fat.allocChain(10, 10)
	assert.ErrorIs(t, err, ErrNoSpace)
	assert.Equal(t, before, fat.entries)
}

func TestFreeChainMarksEveryVisitedBlockFree(t *testing.T) {
	fat := newFAT(20)
	fat.markReserved(10)
	first, err := fat.allocChain(10, 3)
	require.NoError(t, err)

	fat.freeChain(first)
	for i := 10; i < 13; i++ {
		assert.Equal(t, FATFree, fat.Get(i))
	}
}

func TestFreeChainOfEmptyFileIsNoop(t *testing.T) {
	fat := newFAT(20)
	fat.markReserved(10)
	fat.freeChain(FATEOF)
	assert.Equal(t, FATFree, fat.Get(10))
}

func TestFATFlushAndReload(t *testing.T) {
	dev := newMemDevice(50)
	l, err := ComputeLayout(50)
	require.NoError(t, err)

	fat := newFAT(l.Blocks)
	fat.markReserved(l.DataStart)
	first, err := fat.allocChain(l.DataStart, 2)
	require.NoError(t, err)
	require.NoError(t, fat.flush(dev, l))

	reloaded, err := loadFAT(dev, l)
	require.NoError(t, err)
	assert.Equal(t, fat.entries, reloaded.entries)
	assert.Equal(t, []uint32{first, first + 1}, reloaded.chainBlocks(first))
}
