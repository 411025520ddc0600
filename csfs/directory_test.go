package csfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirEntryEncodeDecodeRoundTrip(t *testing.T) {
	e := DirEntry{Name: "report.txt", Length: 4096, First: 42, Used: true}
	got := decodeDirEntry(encodeDirEntry(e))
	assert.Equal(t, e, got)
}

func TestZeroDirectorySectorsLeavesEveryEntryUnused(t *testing.T) {
	dev := newMemDevice(64)
	l := Layout{DirStart: 0, DirSectors: 32, DataStart: 32}

	require.NoError(t, zeroDirectorySectors(dev, l))
	dir, err := loadDirectory(dev, l)
	require.NoError(t, err)

	assert.Len(t, dir.entries, DirCapacity)
	for _, e := range dir.entries {
		assert.False(t, e.Used)
		assert.Empty(t, e.Name)
	}
}

func TestWriteSlotSectorPreservesItsSibling(t *testing.T) {
	dev := newMemDevice(64)
	l := Layout{DirStart: 0, DirSectors: 32, DataStart: 32}
	require.NoError(t, zeroDirectorySectors(dev, l))

	dir, err := loadDirectory(dev, l)
	require.NoError(t, err)

	// slots 0 and 1 share sector 0.
	dir.entries[0] = DirEntry{Name: "a", Used: true, First: FATEOF}
	require.NoError(t, dir.writeSlotSector(dev, l, 0))
	dir.entries[1] = DirEntry{Name: "b", Used: true, First: FATEOF}
	require.NoError(t, dir.writeSlotSector(dev, l, 1))

	reloaded, err := loadDirectory(dev, l)
	require.NoError(t, err)
	assert.Equal(t, "a", reloaded.entries[0].Name)
	assert.Equal(t, "b", reloaded.entries[1].Name)
}

func TestFindByNameAndFirstFreeSlot(t *testing.T) {
	dir := &Directory{entries: make([]DirEntry, DirCapacity)}
	dir.entries[3] = DirEntry{Name: "x", Used: true}

	idx, ok := dir.findByName("x")
	assert.True(t, ok)
	assert.Equal(t, 3, idx)

	_, ok = dir.findByName("missing")
	assert.False(t, ok)

	slot, ok := dir.firstFreeSlot()
	assert.True(t, ok)
	assert.Equal(t, 0, slot)
}
