package table_dump

import (
	"fmt"
	"sync"

	"pagetables/pagetable"
)

type tableKey struct {
	level pagetable.Level
	path  pagetable.IndexPath
}

// Dump is an in-memory page table hierarchy. It serves tables either by
// explicit path (ReadLevel) or, like the kernel provider, by the indices
// last selected through SelectIndex (SelectedSource).
type Dump struct {
	pagetable.Exclusive

	Profile pagetable.Profile
	WalkID  string // walk that recorded the dump, if any

	mu       sync.Mutex
	tables   map[tableKey][]byte
	selected [pagetable.LevelCount - 1]int
}

var _ pagetable.LevelByteSource = (*Dump)(nil)
var _ pagetable.IndexStore = (*Dump)(nil)

// New creates an empty dump for profile
func New(profile pagetable.Profile) (*Dump, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	return &Dump{
		Profile: profile,
		tables:  make(map[tableKey][]byte),
	}, nil
}

// Sparse builds a full table for level with only the given entries set
func Sparse(p pagetable.Profile, level pagetable.Level, entries map[int]pagetable.RawEntry) []pagetable.RawEntry {
	words := make([]pagetable.RawEntry, p.Entries(level))
	for i, e := range entries {
		words[i] = e
	}
	return words
}

// Put stores the table at level reached through path
func (d *Dump) Put(level pagetable.Level, path pagetable.IndexPath, words []pagetable.RawEntry) error {
	if !level.Valid() || path.Depth() != int(level) {
		return fmt.Errorf("%w: %s at path %s", pagetable.ErrUnknownLevel, level, path)
	}
	if len(words) != d.Profile.Entries(level) {
		return fmt.Errorf("%s table has %d entries, want %d", level, len(words), d.Profile.Entries(level))
	}
	return d.putBytes(level, path, pagetable.PutWords(d.Profile, words))
}

func (d *Dump) putBytes(level pagetable.Level, path pagetable.IndexPath, b []byte) error {
	if len(b) != d.Profile.TableSize(level) {
		return fmt.Errorf("%w: %s table is %d bytes", pagetable.ErrShortRead, level, len(b))
	}

	data := make([]byte, len(b))
	copy(data, b)

	d.mu.Lock()
	d.tables[tableKey{level, path}] = data
	d.mu.Unlock()
	return nil
}

// Len returns the number of stored tables
func (d *Dump) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tables)
}

// ReadLevel returns a copy of the table at level reached through path. The
// parent entry must be present and must not map a large page.
func (d *Dump) ReadLevel(level pagetable.Level, path pagetable.IndexPath) ([]byte, error) {
	if !level.Valid() || path.Depth() != int(level) {
		return nil, fmt.Errorf("%w: %s at path %s", pagetable.ErrUnknownLevel, level, path)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if level != pagetable.PGD {
		parent := level - 1
		parentPath := pagetable.PathOf(path.Indices()[:int(parent)]...)
		idx := path.Index(parent)
		if idx < 0 || idx >= d.Profile.Entries(parent) {
			return nil, fmt.Errorf("%w: %s index %d", pagetable.ErrNotAddressable, parent, idx)
		}
		pb, ok := d.tables[tableKey{parent, parentPath}]
		if !ok {
			return nil, fmt.Errorf("%w: no %s table at %s", pagetable.ErrNotAddressable, parent, parentPath)
		}
		words, err := pagetable.Words(d.Profile, parent, pb)
		if err != nil {
			return nil, err
		}
		e := pagetable.NewDecoder(d.Profile).Decode(idx, words[idx])
		if !e.Present || (parent != pagetable.PGD && d.Profile.HugePageBit != 0 && e.HasFlags(d.Profile.HugePageBit)) {
			return nil, fmt.Errorf("%w: %s entry %d at %s", pagetable.ErrNotAddressable, parent, idx, parentPath)
		}
	}

	b, ok := d.tables[tableKey{level, path}]
	if !ok {
		return nil, fmt.Errorf("%w: no %s table at %s", pagetable.ErrNotAddressable, level, path)
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// SelectIndex records index for level; the provider-style source reads it.
func (d *Dump) SelectIndex(level pagetable.Level, index int) error {
	if err := pagetable.CheckSelection(d.Profile, level, index); err != nil {
		return err
	}
	d.mu.Lock()
	d.selected[level] = index
	d.mu.Unlock()
	return nil
}

// Selected returns the path formed by the current selections down to level
func (d *Dump) Selected(level pagetable.Level) pagetable.IndexPath {
	d.mu.Lock()
	defer d.mu.Unlock()
	var p pagetable.IndexPath
	for l := pagetable.PGD; l < level; l++ {
		p = p.Push(d.selected[l])
	}
	return p
}

// SelectedSource serves tables the way the kernel provider does: the path
// argument is ignored and the current selections decide which table is read.
func (d *Dump) SelectedSource() pagetable.LevelByteSource {
	return selectedSource{d}
}

type selectedSource struct {
	d *Dump
}

func (s selectedSource) ReadLevel(level pagetable.Level, _ pagetable.IndexPath) ([]byte, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %d", pagetable.ErrUnknownLevel, int(level))
	}
	return s.d.ReadLevel(level, s.d.Selected(level))
}
