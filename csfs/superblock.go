package csfs

import "encoding/binary"

// Superblock byte offsets within sector 0, all little-endian.
const (
	sbOffMagic      = 0
	sbOffBlocks     = 8
	sbOffFATStart   = 12
	sbOffFATSectors = 16
	sbOffDirStart   = 20
	sbOffDirSectors = 24
	sbOffDirCap     = 28
)

// EncodeSuperblock serializes l into a 128-byte sector 0 image.
func EncodeSuperblock(l Layout) []byte {
	buf := make([]byte, SectorSize)
	copy(buf[sbOffMagic:], Magic)
	binary.LittleEndian.PutUint32(buf[sbOffBlocks:], uint32(l.Blocks))
	binary.LittleEndian.PutUint32(buf[sbOffFATStart:], uint32(l.FATStart))
	binary.LittleEndian.PutUint32(buf[sbOffFATSectors:], uint32(l.FATSectors))
	binary.LittleEndian.PutUint32(buf[sbOffDirStart:], uint32(l.DirStart))
	binary.LittleEndian.PutUint32(buf[sbOffDirSectors:], uint32(l.DirSectors))
	binary.LittleEndian.PutUint32(buf[sbOffDirCap:], uint32(DirCapacity))
	return buf
}

// DecodeSuperblock parses a sector-0 image. ok is false if the magic tag
// is absent, meaning the disk is not formatted.
func DecodeSuperblock(sector []byte) (l Layout, ok bool) {
	if len(sector) < SectorSize {
		return Layout{}, false
	}
	if string(sector[sbOffMagic:sbOffMagic+len(Magic)]) != Magic {
		return Layout{}, false
	}
	l = Layout{
		Blocks:     int(binary.LittleEndian.Uint32(sector[sbOffBlocks:])),
		FATStart:   int(binary.LittleEndian.Uint32(sector[sbOffFATStart:])),
		FATSectors: int(binary.LittleEndian.Uint32(sector[sbOffFATSectors:])),
		DirStart:   int(binary.LittleEndian.Uint32(sector[sbOffDirStart:])),
		DirSectors: int(binary.LittleEndian.Uint32(sector[sbOffDirSectors:])),
	}
	l.DataStart = l.DirStart + l.DirSectors
	return l, true
}
