package disk

import "errors"

// ErrOutOfRange is returned when a requested sector address falls outside
// the disk's geometry.
var ErrOutOfRange = errors.New("disk: sector address out of range")

// ErrBadLength is returned when a write's payload length is outside
// [0, SectorSize].
var ErrBadLength = errors.New("disk: write length out of range")

// ErrClosed names the condition of using a disk after it has been closed.
// No Disk method checks for that condition or returns ErrClosed; a Disk
// must not be used after Close.
var ErrClosed = errors.New("disk: closed")
