// Package disk implements the simulated block-device service: fixed
// cylinder/sector geometry, a memory-mapped backing file, a single shared
// arm position with simulated seek latency, and the TCP line protocol
// defined by diskproto.
package disk

import (
	"fmt"

	"github.com/rclone/csfs/diskproto"
)

// SectorSize is the fixed size in bytes of every sector.
const SectorSize = diskproto.SectorSize

// Geometry describes a disk's fixed cylinder/sector layout.
type Geometry struct {
	Cylinders int // C
	Sectors   int // S, sectors per cylinder
}

// Blocks returns the total number of addressable sectors (N = C*S).
func (g Geometry) Blocks() int {
	return g.Cylinders * g.Sectors
}

// Bytes returns the total backing-file size in bytes (C*S*B).
func (g Geometry) Bytes() int64 {
	return int64(g.Blocks()) * SectorSize
}

// Validate returns an error if the geometry cannot back a disk.
func (g Geometry) Validate() error {
	if g.Cylinders < 1 {
		return fmt.Errorf("disk: cylinders must be >= 1, got %d", g.Cylinders)
	}
	if g.Sectors < 1 {
		return fmt.Errorf("disk: sectors must be >= 1, got %d", g.Sectors)
	}
	return nil
}

// Valid reports whether (c, s) addresses a sector within the geometry.
func (g Geometry) Valid(c, s int) bool {
	return c >= 0 && c < g.Cylinders && s >= 0 && s < g.Sectors
}

// Index returns the linear block index for (c, s). The caller must have
// checked Valid first.
func (g Geometry) Index(c, s int) int {
	return c*g.Sectors + s
}

// Offset returns the byte offset of sector index idx within the backing
// file.
func (g Geometry) Offset(idx int) int64 {
	return int64(idx) * SectorSize
}
