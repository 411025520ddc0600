package disk

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rclone/csfs/simclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDisk(t *testing.T, geom Geometry, trackUS int64) *Disk {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := New(Options{Geometry: geom, Path: path, TrackUS: trackUS})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestReadWriteRoundTrip(t *testing.T) {
	d := newTestDisk(t, Geometry{Cylinders: 4, Sectors: 4}, 0)

	data := []byte("HELLO")
	require.NoError(t, d.WriteSector(0, 0, data))

	got, err := d.ReadSector(0, 0)
	require.NoError(t, err)
	want := make([]byte, SectorSize)
	copy(want, data)
	assert.Equal(t, want, got)
}

func TestWriteZeroPadsBeyondLength(t *testing.T) {
	d := newTestDisk(t, Geometry{Cylinders: 1, Sectors: 1}, 0)
	require.NoError(t, d.WriteSector(0, 0, []byte{1, 2, 3}))
	got, err := d.ReadSector(0, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), got[0])
	assert.Equal(t, byte(0), got[3])
	assert.Len(t, got, SectorSize)
}

func TestOutOfRangeAddressesRejected(t *testing.T) {
	d := newTestDisk(t, Geometry{Cylinders: 4, Sectors: 4}, 0)

	_, err := d.ReadSector(4, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	err = d.WriteSector(0, 4, []byte("x"))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestWriteBadLengthRejected(t *testing.T) {
	d := newTestDisk(t, Geometry{Cylinders: 1, Sectors: 1}, 0)
	err := d.WriteSector(0, 0, make([]byte, SectorSize+1))
	assert.ErrorIs(t, err, ErrBadLength)
}

func TestSeekUpdatesArmAndTakesSimulatedTime(t *testing.T) {
	clock := simclock.New(time.Unix(0, 0))
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := New(Options{
		Geometry: Geometry{Cylinders: 8, Sectors: 2},
		Path:     path,
		TrackUS:  100,
		Clock:    clock,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	assert.Equal(t, 0, d.Arm())

	done := make(chan error, 1)
	go func() {
		_, err := d.ReadSector(5, 0)
		done <- err
	}()

	// Seek of 5 cylinders * 100us = 500us must elapse before the read
	// completes. The read may not be waiting on the clock yet, and an
	// advance made before it waits does not count toward its seek, so keep
	// advancing the simulated clock until the read is released.
	for released := false; !released; {
		clock.AdvanceTime(500 * time.Microsecond)
		select {
		case err := <-done:
			require.NoError(t, err)
			released = true
		case <-time.After(10 * time.Millisecond):
		}
	}
	assert.Equal(t, 5, d.Arm())
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	geom := Geometry{Cylinders: 2, Sectors: 2}

	d1, err := New(Options{Geometry: geom, Path: path})
	require.NoError(t, err)
	require.NoError(t, d1.WriteSector(1, 1, []byte("persisted")))
	require.NoError(t, d1.Close())

	d2, err := New(Options{Geometry: geom, Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d2.Close() })

	got, err := d2.ReadSector(1, 1)
	require.NoError(t, err)
	want := make([]byte, SectorSize)
	copy(want, "persisted")
	assert.Equal(t, want, got)
}
