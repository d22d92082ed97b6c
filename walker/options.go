package walker

import (
	"github.com/Moonlight-Companies/gologger/logger"

	"pagetables/pagetable"
)

// IncludeFunc decides whether index of a table at level is walked. entries is
// the table's entry count.
type IncludeFunc func(level pagetable.Level, index, entries int) bool

// FullRange walks every index of every table
func FullRange(pagetable.Level, int, int) bool {
	return true
}

// LowerFraction walks only the first num/den of the top-level table. On
// x86-64 Linux the upper half of the pgd maps kernel space, so
// LowerFraction(1, 2) restricts the walk to user mappings.
func LowerFraction(num, den int) IncludeFunc {
	if den <= 0 || num < 0 || num > den {
		panic("walker: invalid top-level fraction")
	}
	return func(level pagetable.Level, index, entries int) bool {
		if level != pagetable.PGD {
			return true
		}
		return index < entries*num/den
	}
}

// UserHalf is the default include policy.
var UserHalf = LowerFraction(1, 2)

type Option func(w *Walker)

func WithInclude(fn IncludeFunc) Option {
	return func(w *Walker) {
		w.include = fn
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(w *Walker) {
		w.log = log
	}
}

// WithHolder names the walk when it takes the index store. A random id is
// used otherwise.
func WithHolder(holder string) Option {
	return func(w *Walker) {
		w.holder = holder
	}
}
