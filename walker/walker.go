package walker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/google/uuid"

	"pagetables/pagetable"
)

// Visit is one non-zero entry met during a walk.
type Visit struct {
	Level pagetable.Level
	Path  pagetable.IndexPath // indices of the ancestors of the table holding Entry
	Entry pagetable.DecodedEntry

	// Address is the first virtual address translated by Entry
	Address uint64
}

// Visitor receives entries in depth-first pre-order. Returning false stops
// the walk without error.
type Visitor func(v Visit) bool

// Stats counts the external calls and visits of one walk.
type Stats struct {
	Reads      int
	Selections int
	Visited    int
}

// Walker descends a page table hierarchy through a LevelByteSource,
// announcing each descent to an IndexSelector first.
type Walker struct {
	source  pagetable.LevelByteSource
	store   pagetable.IndexSelector
	profile pagetable.Profile
	decoder pagetable.Decoder
	include IncludeFunc
	holder  string
	log     *logger.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Walker. When store implements pagetable.IndexStore every
// walk holds it exclusively.
func New(source pagetable.LevelByteSource, store pagetable.IndexSelector, profile pagetable.Profile, opts ...Option) (*Walker, error) {
	if source == nil {
		return nil, errors.New("walker: nil level source")
	}
	if store == nil {
		return nil, errors.New("walker: nil index selector")
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	w := &Walker{
		source:  source,
		store:   store,
		profile: profile,
		decoder: pagetable.NewDecoder(profile),
		include: UserHalf,
	}
	for _, opt := range opts {
		opt(w)
	}

	if w.holder == "" {
		w.holder = uuid.NewString()
	}
	if w.log == nil {
		w.log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "walker"))
	}
	return w, nil
}

// Holder is the name the walker takes the index store under
func (w *Walker) Holder() string {
	return w.holder
}

// Stats returns the counters of the most recent walk
func (w *Walker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// walk is the state of one Walk call.
type walk struct {
	*Walker
	visit Visitor
	stats Stats
}

// Walk visits every non-zero entry reachable from the top-level table. The
// first read or selection failure aborts the walk and is returned as a
// *pagetable.WalkError.
//
// Tables are live: entries may change between reads of different levels, or
// within one table read. Inconsistent entries are reported as read.
func (w *Walker) Walk(visit Visitor) error {
	if store, ok := w.store.(pagetable.IndexStore); ok {
		release, err := store.Acquire(w.holder)
		if err != nil {
			return fmt.Errorf("walker: %w", err)
		}
		defer release()
	} else {
		w.log.Warn("index store has no exclusive access; concurrent walks may interleave selections")
	}

	s := &walk{Walker: w, visit: visit}
	w.log.Debugln("walk", w.holder, "starting with profile", w.profile.Name)

	_, err := s.descend(pagetable.PGD, pagetable.IndexPath{})

	w.mu.Lock()
	w.stats = s.stats
	w.mu.Unlock()

	if err != nil {
		return err
	}
	w.log.Debugln("walk", w.holder, "done:", s.stats.Reads, "reads,", s.stats.Selections, "selections,", s.stats.Visited, "entries")
	return nil
}

// Collect walks and returns every visit
func (w *Walker) Collect() ([]Visit, error) {
	var out []Visit
	err := w.Walk(func(v Visit) bool {
		out = append(out, v)
		return true
	})
	return out, err
}

// descend reads the table at level addressed by path and walks it. The
// boolean result is false once the visitor asked to stop.
func (s *walk) descend(level pagetable.Level, path pagetable.IndexPath) (bool, error) {
	if !level.Valid() || path.Depth() != int(level) {
		return false, &pagetable.WalkError{Op: "read", Level: level, Path: path, Index: -1, Err: pagetable.ErrDepthExceeded}
	}

	s.stats.Reads++
	b, err := s.source.ReadLevel(level, path)
	if err != nil {
		return false, &pagetable.WalkError{Op: "read", Level: level, Path: path, Index: -1, Err: err}
	}

	words, err := pagetable.Words(s.profile, level, b)
	if err != nil {
		return false, &pagetable.WalkError{Op: "read", Level: level, Path: path, Index: -1, Err: err}
	}

	entries := len(words)
	for i, raw := range words {
		if !s.include(level, i, entries) {
			continue
		}

		// zero means no mapping at all
		if raw == 0 {
			continue
		}

		e := s.decoder.Decode(i, raw)
		s.stats.Visited++
		v := Visit{
			Level:   level,
			Path:    path,
			Entry:   e,
			Address: s.profile.VirtualAddress(path, i),
		}
		if !s.visit(v) {
			return false, nil
		}

		if !s.shouldDescend(level, e) {
			continue
		}

		s.stats.Selections++
		if err := s.store.SelectIndex(level, i); err != nil {
			return false, &pagetable.WalkError{Op: "select", Level: level, Path: path, Index: i, Err: err}
		}

		more, err := s.descend(level.Next(), path.Push(i))
		if err != nil || !more {
			return more, err
		}
	}
	return true, nil
}

// shouldDescend is true for present entries that point at a next-level table.
func (s *walk) shouldDescend(level pagetable.Level, e pagetable.DecodedEntry) bool {
	if !e.Present || level.IsDeepest() {
		return false
	}
	return !IsLargePage(s.profile, level, e)
}

// IsLargePage reports whether e maps memory directly from above the leaf
// level. Such entries are reported but never descended.
func IsLargePage(p pagetable.Profile, level pagetable.Level, e pagetable.DecodedEntry) bool {
	if level == pagetable.PGD || level.IsDeepest() || p.HugePageBit == 0 {
		return false
	}
	return e.Present && e.HasFlags(p.HugePageBit)
}
