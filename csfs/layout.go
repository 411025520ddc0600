// Package csfs implements the flat filesystem service: superblock, FAT,
// fixed-capacity directory, and chain-based file I/O layered on top of a
// BlockDevice connection to the disk service.
package csfs

import (
	"errors"
	"fmt"

	"github.com/rclone/csfs/diskproto"
)

// SectorSize is the fixed size in bytes of every block (shared with the
// disk wire protocol; the filesystem addresses the same 128-byte units).
const SectorSize = diskproto.SectorSize

const (
	// FATEntrySize is the width in bytes of one FAT entry.
	FATEntrySize = 4
	// FATEntriesPerSector is how many FAT entries pack into one sector.
	FATEntriesPerSector = SectorSize / FATEntrySize

	// DirEntrySize is the width in bytes of one directory entry.
	DirEntrySize = 64
	// DirEntriesPerSector is how many directory entries pack into one sector.
	DirEntriesPerSector = SectorSize / DirEntrySize
	// DirSectorCount is the fixed number of sectors the directory table
	// occupies, regardless of geometry.
	DirSectorCount = 32
	// DirCapacity is the fixed number of directory entries.
	DirCapacity = DirSectorCount * DirEntriesPerSector

	// MaxNameLen is the longest filename accepted by Create (31 visible
	// characters plus a NUL terminator within a 32-byte name field).
	MaxNameLen = 31
)

// Magic is the byte tag that identifies a formatted superblock.
const Magic = "CSFS1"

// Layout is the deterministic sector layout computed from a disk's total
// block count.
type Layout struct {
	Blocks     int // N = C*S
	FATStart   int // sector index
	FATSectors int
	DirStart   int
	DirSectors int
	DataStart  int
}

// ErrGeometryTooSmall is returned by ComputeLayout when the disk has no
// room left for data blocks after metadata.
var ErrGeometryTooSmall = errors.New("csfs: geometry too small to hold metadata and one data block")

// ComputeLayout derives the metadata layout for a disk with the given
// total block count.
func ComputeLayout(blocks int) (Layout, error) {
	if blocks < 1 {
		return Layout{}, fmt.Errorf("csfs: block count must be >= 1, got %d", blocks)
	}
	fatStart := 1
	fatSectors := ceilDiv(blocks*FATEntrySize, SectorSize)
	dirStart := fatStart + fatSectors
	dataStart := dirStart + DirSectorCount

	if blocks <= dataStart {
		return Layout{}, ErrGeometryTooSmall
	}

	return Layout{
		Blocks:     blocks,
		FATStart:   fatStart,
		FATSectors: fatSectors,
		DirStart:   dirStart,
		DirSectors: DirSectorCount,
		DataStart:  dataStart,
	}, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
