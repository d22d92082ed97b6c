package memory_map

import (
	"fmt"
	"sort"
)

// MemoryMapItem is one mapping of a process's virtual address space
type MemoryMapItem struct {
	Address uint64 // first address of the mapping
	Size    uint64 // size in bytes
	Perms   string // e.g. "r-xp"
	Path    string // backing file or pseudo name ("[heap]"); empty for anonymous memory
}

func (mmItem MemoryMapItem) End() uint64 {
	return mmItem.Address + mmItem.Size
}

// String returns a string representation of the memory map item
func (mmItem MemoryMapItem) String() string {
	if mmItem.Path == "" {
		return fmt.Sprintf("%x-%x %s", mmItem.Address, mmItem.End(), mmItem.Perms)
	}
	return fmt.Sprintf("%x-%x %s %s", mmItem.Address, mmItem.End(), mmItem.Perms, mmItem.Path)
}

// MemoryMap is a set of mappings sorted by address
type MemoryMap []MemoryMapItem

// NewMemoryMap sorts items into a MemoryMap
func NewMemoryMap(items []MemoryMapItem) MemoryMap {
	mm := make(MemoryMap, len(items))
	copy(mm, items)
	sort.Slice(mm, func(i, j int) bool {
		return mm[i].Address < mm[j].Address
	})
	return mm
}

// Find returns the mapping containing addr, or nil
func (mm MemoryMap) Find(addr uint64) *MemoryMapItem {
	i := sort.Search(len(mm), func(i int) bool {
		return mm[i].End() > addr
	})
	if i < len(mm) && mm[i].Address <= addr {
		return &mm[i]
	}
	return nil
}
