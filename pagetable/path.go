package pagetable

import (
	"strconv"
	"strings"
)

// IndexPath holds the index chosen at every level shallower than the one
// being read. It is a value: each descent gets its own copy.
type IndexPath struct {
	idx   [LevelCount - 1]int
	depth int
}

// PathOf builds a path from indices, top level first. Extra indices beyond
// the deepest non-leaf level are a bug.
func PathOf(indices ...int) IndexPath {
	var p IndexPath
	for _, i := range indices {
		p = p.Push(i)
	}
	return p
}

// Push returns a copy of p extended by index at the next level
func (p IndexPath) Push(index int) IndexPath {
	if p.depth >= len(p.idx) {
		panic("pagetable: IndexPath overflow")
	}
	if index < 0 {
		panic("pagetable: negative index in IndexPath")
	}
	p.idx[p.depth] = index
	p.depth++
	return p
}

// Depth is the number of levels selected, i.e. the level the path addresses
func (p IndexPath) Depth() int {
	return p.depth
}

// Level is the table level this path addresses
func (p IndexPath) Level() Level {
	return Level(p.depth)
}

// Index returns the index selected at level l, or -1 when l is not on the path
func (p IndexPath) Index(l Level) int {
	if int(l) < 0 || int(l) >= p.depth {
		return -1
	}
	return p.idx[l]
}

// Indices returns a copy of the selected indices, top level first
func (p IndexPath) Indices() []int {
	out := make([]int, p.depth)
	copy(out, p.idx[:p.depth])
	return out
}

func (p IndexPath) String() string {
	if p.depth == 0 {
		return "/"
	}
	parts := make([]string, p.depth)
	for i := 0; i < p.depth; i++ {
		parts[i] = strconv.Itoa(p.idx[i])
	}
	return strings.Join(parts, "/")
}
