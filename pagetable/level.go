package pagetable

import "fmt"

// Level identifies one tier of the translation hierarchy, top directory first.
type Level int

const (
	PGD Level = iota
	PUD
	PMD
	PTE

	// LevelCount is the fixed depth of the hierarchy. PTE is always terminal.
	LevelCount = 4
)

var levelNames = [LevelCount]string{"pgd", "pud", "pmd", "pte"}

// Name returns the provider name of the level (e.g. "pmd")
func (l Level) Name() string {
	if !l.Valid() {
		return fmt.Sprintf("level(%d)", int(l))
	}
	return levelNames[l]
}

func (l Level) String() string {
	return l.Name()
}

// Valid reports whether l is one of PGD, PUD, PMD or PTE
func (l Level) Valid() bool {
	return l >= PGD && l < LevelCount
}

// IsDeepest reports whether l is the leaf level
func (l Level) IsDeepest() bool {
	return l == LevelCount-1
}

// Next returns the level below l. Calling Next on the deepest level is a bug.
func (l Level) Next() Level {
	if l.IsDeepest() {
		panic("pagetable: Next called on the deepest level")
	}
	return l + 1
}

// LevelByName resolves a provider name back to a Level
func LevelByName(name string) (Level, error) {
	for i, n := range levelNames {
		if n == name {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLevel, name)
}
