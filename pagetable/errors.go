package pagetable

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAddressable is returned when the ancestor path of a table does not
	// lead to a present, valid entry (or lies outside the table).
	ErrNotAddressable = errors.New("table not addressable")

	// ErrShortRead is returned when a table snapshot is smaller than the
	// profile's table size. Snapshots are never zero padded.
	ErrShortRead = errors.New("short table read")

	// ErrShortWrite is returned when an index selection was not fully written.
	ErrShortWrite = errors.New("short index write")

	ErrUnknownLevel    = errors.New("unknown page table level")
	ErrIndexOutOfRange = errors.New("index out of range")

	// ErrIndexStoreBusy is returned when another walk holds the index store.
	ErrIndexStoreBusy = errors.New("index store busy")

	ErrDepthExceeded  = errors.New("page table depth exceeded")
	ErrInvalidProfile = errors.New("invalid architecture profile")
)

// WalkError identifies the operation, level and ancestor path at which a walk
// failed.
type WalkError struct {
	Op    string // "read" or "select"
	Level Level
	Path  IndexPath
	Index int // selected index for "select", -1 otherwise
	Err   error
}

func (e *WalkError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%s %s index %d (path %s): %v", e.Op, e.Level, e.Index, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s (path %s): %v", e.Op, e.Level, e.Path, e.Err)
}

func (e *WalkError) Unwrap() error {
	return e.Err
}
