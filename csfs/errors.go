package csfs

import "errors"

// Sentinel errors for the semantic and resource conditions the service
// distinguishes. Wire-level servers map these to protocol codes.
var (
	// ErrNotFormatted is returned by every operation except Format when
	// no valid superblock has been written or adopted yet.
	ErrNotFormatted = errors.New("csfs: filesystem not formatted")

	// ErrNotFound is returned by Delete, Read, and Write when no used
	// directory entry matches the requested name.
	ErrNotFound = errors.New("csfs: file not found")

	// ErrAlreadyExists is returned by Create when a used entry with the
	// same name already exists.
	ErrAlreadyExists = errors.New("csfs: file already exists")

	// ErrInvalidName is returned by Create when the name's length is not
	// in [1, MaxNameLen].
	ErrInvalidName = errors.New("csfs: invalid file name")

	// ErrDirectoryFull is returned by Create when every directory slot is
	// in use.
	ErrDirectoryFull = errors.New("csfs: directory full")

	// ErrNoSpace is returned by Write when too few free blocks remain to
	// hold the new data.
	ErrNoSpace = errors.New("csfs: no free blocks")
)
