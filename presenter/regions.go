package presenter

import (
	"fmt"

	"pagetables/memory_map"
	"pagetables/pagetable"
	"pagetables/walker"
)

// RegionAnnotator labels present leaf entries, including large pages, with
// the mapping of mm that contains their virtual address.
func RegionAnnotator(mm memory_map.MemoryMap, profile pagetable.Profile) Annotator {
	return func(v walker.Visit) string {
		if !v.Entry.Present {
			return ""
		}
		if !v.Level.IsDeepest() && !walker.IsLargePage(profile, v.Level, v.Entry) {
			return ""
		}

		item := mm.Find(v.Address)
		if item == nil {
			return fmt.Sprintf("%016x", v.Address)
		}
		if item.Path == "" {
			return fmt.Sprintf("%016x %s", v.Address, item.Perms)
		}
		return fmt.Sprintf("%016x %s %s", v.Address, item.Perms, item.Path)
	}
}
