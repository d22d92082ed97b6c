package table_dump

import (
	"pagetables/pagetable"
)

// Recorder copies every table read through it into a Dump.
type Recorder struct {
	source pagetable.LevelByteSource
	dump   *Dump
}

var _ pagetable.LevelByteSource = (*Recorder)(nil)

func NewRecorder(source pagetable.LevelByteSource, dump *Dump) *Recorder {
	return &Recorder{source: source, dump: dump}
}

func (r *Recorder) ReadLevel(level pagetable.Level, path pagetable.IndexPath) ([]byte, error) {
	b, err := r.source.ReadLevel(level, path)
	if err != nil {
		return nil, err
	}
	// short snapshots are left for the walker to reject
	if len(b) == r.dump.Profile.TableSize(level) {
		if err := r.dump.putBytes(level, path, b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Dump returns the dump being recorded into
func (r *Recorder) Dump() *Dump {
	return r.dump
}
