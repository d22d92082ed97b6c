package pagetable

import "math/bits"

// levelShift is the number of virtual address bits translated below level l
// (39, 30, 21, 12 on amd64).
func (p Profile) levelShift(l Level) int {
	shift := p.PageOffsetBits()
	for d := l + 1; d < LevelCount; d++ {
		shift += bits.Len(uint(p.Entries(d) - 1))
	}
	return shift
}

// VirtualAddress returns the first virtual address translated by entry index
// of the table reached through path. Addresses in the upper half of the
// translated range are sign extended to their canonical form.
func (p Profile) VirtualAddress(path IndexPath, index int) uint64 {
	level := path.Level()

	var va uint64
	for l := PGD; l < level; l++ {
		va |= uint64(path.Index(l)) << p.levelShift(l)
	}
	va |= uint64(index) << p.levelShift(level)

	top := p.levelShift(PGD) + bits.Len(uint(p.Entries(PGD)-1))
	if top < 64 && va&(uint64(1)<<(top-1)) != 0 {
		va |= ^uint64(0) << top
	}
	return va
}

// Span is the number of bytes of virtual address space translated by one
// entry at level l.
func (p Profile) Span(l Level) uint64 {
	return uint64(1) << p.levelShift(l)
}
