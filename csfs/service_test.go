package csfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, blocks int) (*Service, *memDevice) {
	t.Helper()
	dev := newMemDevice(blocks)
	svc := NewService(dev, nil, nil)
	require.NoError(t, svc.Format())
	return svc, dev
}

func TestFormatThenListIsEmpty(t *testing.T) {
	svc, _ := newTestService(t, 100)

	entries, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestListBeforeFormatReportsNotFormatted(t *testing.T) {
	dev := newMemDevice(100)
	svc := NewService(dev, nil, nil)

	_, err := svc.List()
	assert.ErrorIs(t, err, ErrNotFormatted)
}

func TestCreateIsIdempotentlyRejected(t *testing.T) {
	svc, _ := newTestService(t, 100)

	require.NoError(t, svc.Create("foo"))
	err := svc.Create("foo")
	assert.ErrorIs(t, err, ErrAlreadyExists)

	entries, err := svc.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "foo", entries[0].Name)
}

func TestCreateRejectsInvalidNames(t *testing.T) {
	svc, _ := newTestService(t, 100)

	assert.ErrorIs(t, svc.Create(""), ErrInvalidName)

	tooLong := make([]byte, MaxNameLen+1)
	for i := range tooLong {
		tooLong[i] = 'a'
	}
	assert.ErrorIs(t, svc.Create(string(tooLong)), ErrInvalidName)
}

func TestWriteReadRoundTrip(t *testing.T) {
	svc, _ := newTestService(t, 100)
	require.NoError(t, svc.Create("foo"))

	data := []byte("hello world!")
	require.NoError(t, svc.Write("foo", data))

	got, err := svc.Read("foo")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteMultiBlockChainSplitsAcrossSectors(t *testing.T) {
	svc, _ := newTestService(t, 100)
	require.NoError(t, svc.Create("big"))

	data := make([]byte, 300)
	for i := range data {
		data[i] = byte(i % 251)
	}
	require.NoError(t, svc.Write("big", data))

	got, err := svc.Read("big")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	slot, ok := svc.dir.findByName("big")
	require.True(t, ok)
	blocks := svc.fat.chainBlocks(svc.dir.entries[slot].First)
	assert.Len(t, blocks, 3)
	assert.Equal(t, FATEOF, svc.fat.Get(int(blocks[2])))
}

func TestDeleteRemovesFile(t *testing.T) {
	svc, _ := newTestService(t, 100)
	require.NoError(t, svc.Create("foo"))
	require.NoError(t, svc.Write("foo", []byte("data")))

	require.NoError(t, svc.Delete("foo"))

	_, err := svc.Read("foo")
	assert.ErrorIs(t, err, ErrNotFound)

	entries, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteRejectsWhenNoSpace(t *testing.T) {
	svc, _ := newTestService(t, 50) // ~15 data blocks
	require.NoError(t, svc.Create("huge"))

	data := make([]byte, SectorSize*30)
	err := svc.Write("huge", data)
	assert.ErrorIs(t, err, ErrNoSpace)

	got, err := svc.Read("huge")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestPersistsAcrossServiceRestart(t *testing.T) {
	dev := newMemDevice(100)
	svc := NewService(dev, nil, nil)
	require.NoError(t, svc.Format())
	require.NoError(t, svc.Create("foo"))
	require.NoError(t, svc.Write("foo", []byte("persisted")))

	reopened := NewService(dev, nil, nil)
	got, err := reopened.Read("foo")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestConcurrentCreatesOfDistinctNamesBothSucceed(t *testing.T) {
	svc, _ := newTestService(t, 100)

	done := make(chan error, 2)
	go func() { done <- svc.Create("alpha") }()
	go func() { done <- svc.Create("beta") }()

	require.NoError(t, <-done)
	require.NoError(t, <-done)

	entries, err := svc.List()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name] = true
	}
	assert.True(t, names["alpha"])
	assert.True(t, names["beta"])
}
