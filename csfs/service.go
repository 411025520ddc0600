package csfs

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Service is the filesystem-service core: superblock/FAT/directory state
// plus the single service-wide metadata lock that serializes every
// mutating and reading operation across every connected client. One
// Service is shared by every fsproto connection worker.
type Service struct {
	dev     BlockDevice
	metrics *Metrics
	log     *logrus.Entry

	mu *invariantMutex

	formatted bool   // GUARDED_BY(mu)
	layout    Layout // GUARDED_BY(mu)
	fat       *FAT   // GUARDED_BY(mu)
	dir       *Directory
}

// NewService constructs a Service over dev. Formatting state is detected
// lazily the first time an operation runs: a valid superblock found at
// process start is adopted on first use, not eagerly at construction.
func NewService(dev BlockDevice, metrics *Metrics, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Service{dev: dev, metrics: metrics, log: log}
	s.mu = newInvariantMutex(s.checkInvariants)
	return s
}

// ensureLoaded lazily adopts an existing formatted disk. Callers must
// hold mu. Returns ErrNotFormatted if sector 0 carries no valid magic.
func (s *Service) ensureLoaded() error {
	if s.formatted {
		return nil
	}
	sector0, err := s.dev.ReadBlock(0)
	if err != nil {
		return fmt.Errorf("csfs: read superblock: %w", err)
	}
	layout, ok := DecodeSuperblock(sector0)
	if !ok {
		return ErrNotFormatted
	}
	fat, err := loadFAT(s.dev, layout)
	if err != nil {
		return err
	}
	dir, err := loadDirectory(s.dev, layout)
	if err != nil {
		return err
	}
	s.layout, s.fat, s.dir = layout, fat, dir
	s.formatted = true
	return nil
}

// Format computes the layout from the device's geometry, writes the
// superblock, zeroes and reserves the FAT, and zeroes the directory. It
// always re-enters the Formatted state, destructively.
func (s *Service) Format() error {
	s.mu.Lock()
	start := time.Now()
	defer func() {
		s.mu.Unlock()
		s.metrics.observeCriticalSection(time.Since(start).Seconds())
	}()
	s.metrics.op("F")

	layout, err := ComputeLayout(s.dev.Blocks())
	if err != nil {
		s.metrics.error("resource")
		return err
	}

	if err := s.dev.WriteBlock(0, EncodeSuperblock(layout)); err != nil {
		s.metrics.error("resource")
		return err
	}

	fat := newFAT(layout.Blocks)
	fat.markReserved(layout.DataStart)
	if err := fat.flush(s.dev, layout); err != nil {
		s.metrics.error("resource")
		return err
	}

	if err := zeroDirectorySectors(s.dev, layout); err != nil {
		s.metrics.error("resource")
		return err
	}
	dir, err := loadDirectory(s.dev, layout)
	if err != nil {
		s.metrics.error("resource")
		return err
	}

	s.layout, s.fat, s.dir = layout, fat, dir
	s.formatted = true
	return nil
}

// Create adds a new, empty, zero-length file named name.
func (s *Service) Create(name string) error {
	s.mu.Lock()
	start := time.Now()
	defer func() {
		s.mu.Unlock()
		s.metrics.observeCriticalSection(time.Since(start).Seconds())
	}()
	s.metrics.op("C")

	if err := s.ensureLoaded(); err != nil {
		s.metrics.error("resource")
		return err
	}
	if len(name) < 1 || len(name) > MaxNameLen {
		s.metrics.error("semantic")
		return ErrInvalidName
	}
	if _, ok := s.dir.findByName(name); ok {
		s.metrics.error("semantic")
		return ErrAlreadyExists
	}
	slot, ok := s.dir.firstFreeSlot()
	if !ok {
		s.metrics.error("resource")
		return ErrDirectoryFull
	}

	s.dir.entries[slot] = DirEntry{Name: name, Length: 0, First: FATEOF, Used: true}
	if err := s.dir.writeSlotSector(s.dev, s.layout, slot); err != nil {
		s.metrics.error("resource")
		return err
	}
	return nil
}

// Delete frees name's chain and clears its directory entry.
func (s *Service) Delete(name string) error {
	s.mu.Lock()
	start := time.Now()
	defer func() {
		s.mu.Unlock()
		s.metrics.observeCriticalSection(time.Since(start).Seconds())
	}()
	s.metrics.op("D")

	if err := s.ensureLoaded(); err != nil {
		s.metrics.error("resource")
		return err
	}
	slot, ok := s.dir.findByName(name)
	if !ok {
		s.metrics.error("semantic")
		return ErrNotFound
	}

	e := s.dir.entries[slot]
	s.fat.freeChain(e.First)
	if err := s.fat.flush(s.dev, s.layout); err != nil {
		s.metrics.error("resource")
		return err
	}
	s.dir.entries[slot] = DirEntry{}
	if err := s.dir.writeSlotSector(s.dev, s.layout, slot); err != nil {
		s.metrics.error("resource")
		return err
	}
	return nil
}

// List returns every used directory entry, ordered by slot index.
// ErrNotFormatted is returned (not wrapped) so callers can special-case
// the wire protocol's "(unformatted)" listing response.
func (s *Service) List() ([]DirEntry, error) {
	s.mu.Lock()
	start := time.Now()
	defer func() {
		s.mu.Unlock()
		s.metrics.observeCriticalSection(time.Since(start).Seconds())
	}()
	s.metrics.op("L")

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}

	var out []DirEntry
	for _, e := range s.dir.entries {
		if e.Used {
			out = append(out, e)
		}
	}
	return out, nil
}

// Read returns the full contents of name.
func (s *Service) Read(name string) ([]byte, error) {
	s.mu.Lock()
	start := time.Now()
	defer func() {
		s.mu.Unlock()
		s.metrics.observeCriticalSection(time.Since(start).Seconds())
	}()
	s.metrics.op("R")

	if err := s.ensureLoaded(); err != nil {
		return nil, err
	}
	slot, ok := s.dir.findByName(name)
	if !ok {
		s.metrics.error("semantic")
		return nil, ErrNotFound
	}

	e := s.dir.entries[slot]
	data := make([]byte, 0, e.Length)
	remaining := int(e.Length)
	cur := e.First
	for remaining > 0 {
		if cur == FATEOF {
			s.metrics.error("resource")
			return nil, fmt.Errorf("csfs: chain for %q ended before its declared length", name)
		}
		block, err := s.dev.ReadBlock(int(cur))
		if err != nil {
			s.metrics.error("resource")
			return nil, err
		}
		n := remaining
		if n > SectorSize {
			n = SectorSize
		}
		data = append(data, block[:n]...)
		remaining -= n
		cur = s.fat.Get(int(cur))
	}
	return data, nil
}

// Write replaces name's contents with data, reallocating its chain.
func (s *Service) Write(name string, data []byte) error {
	s.mu.Lock()
	start := time.Now()
	defer func() {
		s.mu.Unlock()
		s.metrics.observeCriticalSection(time.Since(start).Seconds())
	}()
	s.metrics.op("W")

	if err := s.ensureLoaded(); err != nil {
		s.metrics.error("resource")
		return err
	}
	slot, ok := s.dir.findByName(name)
	if !ok {
		s.metrics.error("semantic")
		return ErrNotFound
	}

	e := s.dir.entries[slot]
	s.fat.freeChain(e.First)

	if len(data) == 0 {
		e.First, e.Length = FATEOF, 0
		if err := s.fat.flush(s.dev, s.layout); err != nil {
			s.metrics.error("resource")
			return err
		}
		s.dir.entries[slot] = e
		if err := s.dir.writeSlotSector(s.dev, s.layout, slot); err != nil {
			s.metrics.error("resource")
			return err
		}
		return nil
	}

	k := ceilDiv(len(data), SectorSize)
	first, err := s.fat.allocChain(s.layout.DataStart, k)
	if err != nil {
		// The old chain is already freed; commit that truncation and
		// surface ErrNoSpace rather than leave the file's metadata stale.
		e.First, e.Length = FATEOF, 0
		_ = s.fat.flush(s.dev, s.layout)
		s.dir.entries[slot] = e
		_ = s.dir.writeSlotSector(s.dev, s.layout, slot)
		s.metrics.error("resource")
		return ErrNoSpace
	}

	for i, blk := range s.fat.chainBlocks(first) {
		lo := i * SectorSize
		hi := lo + SectorSize
		var sector []byte
		if hi <= len(data) {
			sector = data[lo:hi]
		} else {
			sector = make([]byte, SectorSize)
			copy(sector, data[lo:])
		}
		if err := s.dev.WriteBlock(int(blk), sector); err != nil {
			s.metrics.error("resource")
			return err
		}
	}

	e.First, e.Length = first, uint32(len(data))
	if err := s.fat.flush(s.dev, s.layout); err != nil {
		s.metrics.error("resource")
		return err
	}
	s.dir.entries[slot] = e
	if err := s.dir.writeSlotSector(s.dev, s.layout, slot); err != nil {
		s.metrics.error("resource")
		return err
	}
	return nil
}

// checkInvariants verifies that every metadata block is reserved, every
// used filename is unique, and every chain's length matches its block
// count. It must only be called with mu held, immediately before release (see
// invariantMutex.Unlock). It panics on violation: a violated on-disk
// invariant means every subsequent operation is building on corrupt
// state, and continuing would only spread the corruption.
func (s *Service) checkInvariants() {
	if !s.formatted {
		return
	}

	for i := 0; i < s.layout.DataStart; i++ {
		if s.fat.Get(i) != FATReserved {
			panic(fmt.Sprintf("csfs: invariant violated: metadata block %d is not RESERVED", i))
		}
	}

	seen := make(map[string]bool, len(s.dir.entries))
	for _, e := range s.dir.entries {
		if !e.Used {
			continue
		}
		if seen[e.Name] {
			panic(fmt.Sprintf("csfs: invariant violated: duplicate filename %q", e.Name))
		}
		seen[e.Name] = true

		blocks := s.fat.chainBlocks(e.First)
		want := ceilDiv(int(e.Length), SectorSize)
		if len(blocks) != want {
			panic(fmt.Sprintf("csfs: invariant violated: %q has length %d (wants %d blocks) but chain has %d blocks", e.Name, e.Length, want, len(blocks)))
		}
	}
}
