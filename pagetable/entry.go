package pagetable

import (
	"fmt"
)

// RawEntry is one machine word read from a table.
type RawEntry uint64

// DecodedEntry is the view of a RawEntry split by the page-offset mask.
type DecodedEntry struct {
	Index   int
	Raw     RawEntry
	Flags   uint64
	Present bool
	frame   uint64
}

// Frame returns the physical frame address. It is only defined for present
// entries: the frame bits of a swapped entry hold swap bookkeeping.
func (d DecodedEntry) Frame() (uint64, bool) {
	return d.frame, d.Present
}

// HasFlags reports whether all bits in mask are set in the entry flags
func (d DecodedEntry) HasFlags(mask uint64) bool {
	return d.Flags&mask == mask
}

// Decoder splits raw entries according to a profile.
type Decoder struct {
	flagsMask  uint64
	presentBit uint64
}

func NewDecoder(p Profile) Decoder {
	return Decoder{
		flagsMask:  p.FlagsMask(),
		presentBit: p.PresentBit,
	}
}

// Decode splits raw into frame and flag bits. Flags are kept even for absent
// entries so swap metadata can be displayed; unknown flag patterns are not
// rejected.
func (d Decoder) Decode(index int, raw RawEntry) DecodedEntry {
	w := uint64(raw)
	e := DecodedEntry{
		Index:   index,
		Raw:     raw,
		Flags:   w & d.flagsMask,
		Present: w&d.presentBit != 0,
	}
	if e.Present {
		e.frame = w &^ d.flagsMask
	}
	return e
}

// Words splits a snapshot of the table at level l into raw entries.
func Words(p Profile, l Level, b []byte) ([]RawEntry, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLevel, int(l))
	}
	want := p.TableSize(l)
	if len(b) != want {
		return nil, fmt.Errorf("%w: %s snapshot is %d bytes, want %d", ErrShortRead, l, len(b), want)
	}

	out := make([]RawEntry, p.Entries(l))
	for i := range out {
		off := i * p.WordSize
		if p.WordSize == 8 {
			out[i] = RawEntry(p.ByteOrder.Uint64(b[off:]))
		} else {
			out[i] = RawEntry(p.ByteOrder.Uint32(b[off:]))
		}
	}
	return out, nil
}

// PutWords is the inverse of Words, used to fabricate snapshots.
func PutWords(p Profile, words []RawEntry) []byte {
	b := make([]byte, len(words)*p.WordSize)
	for i, w := range words {
		off := i * p.WordSize
		if p.WordSize == 8 {
			p.ByteOrder.PutUint64(b[off:], uint64(w))
		} else {
			p.ByteOrder.PutUint32(b[off:], uint32(w))
		}
	}
	return b
}
