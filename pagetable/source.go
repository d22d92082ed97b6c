package pagetable

import "fmt"

// LevelByteSource returns the full entry array of a table. Implementations
// that are parameterized by out-of-band index selections may ignore path; it
// is always the path the walker selected.
type LevelByteSource interface {
	// ReadLevel returns exactly Profile.TableSize(level) bytes or an error.
	// ErrNotAddressable is returned when path does not lead to a table.
	ReadLevel(level Level, path IndexPath) ([]byte, error)
}

// IndexSelector records "the next read of level+1 uses index at level".
// Selections are last-writer-wins.
type IndexSelector interface {
	SelectIndex(level Level, index int) error
}

// IndexStore is an IndexSelector that can be held exclusively for the span
// of one walk.
type IndexStore interface {
	IndexSelector

	// Acquire takes the store for holder. It returns ErrIndexStoreBusy instead
	// of blocking when another holder is active.
	Acquire(holder string) (release func(), err error)
}

// CheckSelection validates a selection against a profile. Only levels that
// have a level below them can be selected.
func CheckSelection(p Profile, level Level, index int) error {
	if !level.Valid() || level.IsDeepest() {
		return fmt.Errorf("%w: cannot select at %s", ErrUnknownLevel, level)
	}
	if index < 0 || index >= p.Entries(level) {
		return fmt.Errorf("%w: %s index %d (entries %d)", ErrIndexOutOfRange, level, index, p.Entries(level))
	}
	return nil
}
