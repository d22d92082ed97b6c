package pagetable

import (
	"encoding/binary"
	"fmt"
	"math/bits"
)

// Profile describes the page table entry layout of an architecture.
type Profile struct {
	Name            string
	PageSize        uint64
	WordSize        int
	EntriesPerTable [LevelCount]int
	PresentBit      uint64
	HugePageBit     uint64 // zero when the architecture has no large-page flag
	ByteOrder       binary.ByteOrder
}

// AMD64 is the x86-64 four level paging layout with 4 KiB pages.
var AMD64 = Profile{
	Name:            "amd64",
	PageSize:        4096,
	WordSize:        8,
	EntriesPerTable: [LevelCount]int{512, 512, 512, 512},
	PresentBit:      1 << 0,
	HugePageBit:     1 << 7,
	ByteOrder:       binary.LittleEndian,
}

// ProfileForPageSize derives a profile from AMD64 for a different page size.
// The number of entries per table is the number of words that fit in a page.
func ProfileForPageSize(pageSize uint64) (Profile, error) {
	p := AMD64
	p.Name = fmt.Sprintf("amd64-%dk", pageSize/1024)
	p.PageSize = pageSize
	p.ByteOrder = binary.NativeEndian
	entries := int(pageSize / uint64(p.WordSize))
	for i := range p.EntriesPerTable {
		p.EntriesPerTable[i] = entries
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Validate checks the profile is usable for decoding
func (p Profile) Validate() error {
	if p.PageSize == 0 || p.PageSize&(p.PageSize-1) != 0 {
		return fmt.Errorf("%w: page size %d is not a power of two", ErrInvalidProfile, p.PageSize)
	}
	if p.WordSize != 4 && p.WordSize != 8 {
		return fmt.Errorf("%w: unsupported word size %d", ErrInvalidProfile, p.WordSize)
	}
	if p.PresentBit == 0 || p.PresentBit&p.FlagsMask() != p.PresentBit {
		return fmt.Errorf("%w: present bit %#x outside the flag bits", ErrInvalidProfile, p.PresentBit)
	}
	if p.ByteOrder == nil {
		return fmt.Errorf("%w: no byte order", ErrInvalidProfile)
	}
	for l, n := range p.EntriesPerTable {
		if n <= 0 {
			return fmt.Errorf("%w: %s has %d entries", ErrInvalidProfile, Level(l), n)
		}
	}
	return nil
}

// PageOffsetBits is log2(PageSize), e.g. 12 for 4 KiB pages.
func (p Profile) PageOffsetBits() int {
	return bits.TrailingZeros64(p.PageSize)
}

// FlagsMask selects the low PageOffsetBits of an entry. It is derived from the
// page size only; the number of entries per table plays no part.
func (p Profile) FlagsMask() uint64 {
	return uint64(1)<<p.PageOffsetBits() - 1
}

// Entries returns the number of entries in a table at level l
func (p Profile) Entries(l Level) int {
	return p.EntriesPerTable[l]
}

// TableSize is the byte size of a full table snapshot at level l
func (p Profile) TableSize(l Level) int {
	return p.EntriesPerTable[l] * p.WordSize
}
