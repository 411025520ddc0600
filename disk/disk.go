package disk

import (
	"fmt"
	"sync"
	"time"

	"github.com/jacobsa/timeutil"
	"github.com/sirupsen/logrus"
)

// Disk is a simulated block device: fixed geometry, a memory-mapped
// backing file, and a single arm position shared across every connected
// client. All methods are safe for concurrent use.
type Disk struct {
	geom     Geometry
	store    *mmapStore
	trackUS  int64 // microseconds of seek latency per cylinder of travel
	clock    timeutil.Clock
	metrics  *Metrics
	log      *logrus.Entry

	armMu sync.Mutex // serializes seek simulation, arm update, and sector access
	arm   int        // current cylinder, GUARDED_BY(armMu)
}

// Options configures a new Disk.
type Options struct {
	Geometry Geometry
	Path     string
	TrackUS  int64 // track-to-track seek time in microseconds
	Clock    timeutil.Clock
	Metrics  *Metrics
	Log      *logrus.Entry
}

// New opens (creating if absent) the backing file at opt.Path and returns
// a Disk ready to serve the protocol.
func New(opt Options) (*Disk, error) {
	if err := opt.Geometry.Validate(); err != nil {
		return nil, err
	}
	if opt.TrackUS < 0 {
		return nil, fmt.Errorf("disk: negative track-to-track time %d", opt.TrackUS)
	}
	store, err := openStore(opt.Path, opt.Geometry)
	if err != nil {
		return nil, err
	}
	clock := opt.Clock
	if clock == nil {
		clock = timeutil.RealClock()
	}
	log := opt.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Disk{
		geom:    opt.Geometry,
		store:   store,
		trackUS: opt.TrackUS,
		clock:   clock,
		metrics: opt.Metrics,
		log:     log,
		arm:     0,
	}, nil
}

// Geometry returns the disk's fixed geometry.
func (d *Disk) Geometry() Geometry {
	return d.geom
}

// Arm returns the current cylinder position of the simulated head. Mostly
// useful for tests asserting seek behavior.
func (d *Disk) Arm() int {
	d.armMu.Lock()
	defer d.armMu.Unlock()
	return d.arm
}

// ReadSector returns a copy of the 128 bytes at (c, s), simulating seek
// latency first. It returns ErrOutOfRange if (c, s) is invalid.
func (d *Disk) ReadSector(c, s int) ([]byte, error) {
	if !d.geom.Valid(c, s) {
		return nil, ErrOutOfRange
	}

	d.armMu.Lock()
	start := d.clock.Now()
	defer d.armMu.Unlock()
	d.seekLocked(c)

	out := make([]byte, SectorSize)
	copy(out, d.store.sector(d.geom.Index(c, s)))

	d.metrics.observeCriticalSection(d.clock.Now().Sub(start).Seconds())
	return out, nil
}

// WriteSector writes data (which must be at most SectorSize bytes, zero
// padded beyond its length) to (c, s), simulating seek latency first. It
// returns ErrOutOfRange if (c, s) is invalid and ErrBadLength if data is
// longer than SectorSize.
func (d *Disk) WriteSector(c, s int, data []byte) error {
	if !d.geom.Valid(c, s) {
		return ErrOutOfRange
	}
	if len(data) > SectorSize {
		return ErrBadLength
	}

	d.armMu.Lock()
	start := d.clock.Now()
	defer d.armMu.Unlock()
	d.seekLocked(c)

	dst := d.store.sector(d.geom.Index(c, s))
	n := copy(dst, data)
	for i := n; i < SectorSize; i++ {
		dst[i] = 0
	}

	d.metrics.observeCriticalSection(d.clock.Now().Sub(start).Seconds())
	return nil
}

// seekLocked simulates the seek from the current arm position to cylinder
// c and updates the arm. Callers must hold armMu.
func (d *Disk) seekLocked(c int) {
	dist := c - d.arm
	if dist < 0 {
		dist = -dist
	}
	if dist > 0 && d.trackUS > 0 {
		delay := time.Duration(int64(dist)*d.trackUS) * time.Microsecond
		// Best-effort: a single wait on the clock's After channel. For the
		// real clock this is equivalent to time.Sleep and tolerates
		// spurious wakeups the same way (there are none in Go); for a
		// simulated clock in tests, the test advances the clock on another
		// goroutine to unblock this wait deterministically.
		<-d.clock.After(delay)
	}
	d.arm = c
}

// Sync flushes the backing file to durable storage.
func (d *Disk) Sync() error {
	return d.store.sync()
}

// Close flushes and unmaps the backing file. The Disk must not be used
// afterward.
func (d *Disk) Close() error {
	return d.store.close()
}
