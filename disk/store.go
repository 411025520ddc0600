package disk

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapStore is the memory-mapped backing file for a disk's sectors. It is
// created if absent and extended to exactly geom.Bytes() if short.
type mmapStore struct {
	file *os.File
	data []byte // mmapped region, len == geom.Bytes()
}

// openStore opens (creating if necessary) path as the backing file for
// geom, memory-mapping it read/write and shared.
func openStore(path string, geom Geometry) (*mmapStore, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("disk: open backing file %q: %w", path, err)
	}

	want := geom.Bytes()
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat backing file %q: %w", path, err)
	}
	if info.Size() != want {
		if err := f.Truncate(want); err != nil {
			f.Close()
			return nil, fmt.Errorf("disk: extend backing file %q to %d bytes: %w", path, want, err)
		}
	}

	if want == 0 {
		f.Close()
		return nil, fmt.Errorf("disk: backing file %q: zero-length geometry", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(want), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: mmap backing file %q: %w", path, err)
	}

	return &mmapStore{file: f, data: data}, nil
}

// sector returns the 128-byte window for block index idx. The caller must
// hold whatever lock protects concurrent access to the region; mmapStore
// itself does no locking.
func (s *mmapStore) sector(idx int) []byte {
	off := int64(idx) * SectorSize
	return s.data[off : off+SectorSize]
}

// sync flushes the mmapped region to the backing file.
func (s *mmapStore) sync() error {
	if err := unix.Msync(s.data, unix.MS_SYNC); err != nil {
		return fmt.Errorf("disk: msync: %w", err)
	}
	return nil
}

// close flushes, unmaps, and closes the backing file.
func (s *mmapStore) close() error {
	syncErr := s.sync()
	unmapErr := unix.Munmap(s.data)
	closeErr := s.file.Close()
	if syncErr != nil {
		return syncErr
	}
	if unmapErr != nil {
		return fmt.Errorf("disk: munmap: %w", unmapErr)
	}
	if closeErr != nil {
		return fmt.Errorf("disk: close backing file: %w", closeErr)
	}
	return nil
}
