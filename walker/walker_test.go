package walker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pagetables/pagetable"
	"pagetables/table_dump"
)

const present = pagetable.RawEntry(1)

// call is one external call made by the walker, in order.
type call struct {
	op    string
	level pagetable.Level
	arg   string
}

// fakeTables serves tables keyed by "<level>:<path>" and records every call.
type fakeTables struct {
	pagetable.Exclusive
	profile pagetable.Profile
	tables  map[string][]pagetable.RawEntry
	calls   []call
	readErr map[string]error
	selErr  error
	short   bool
}

func newFake() *fakeTables {
	return &fakeTables{
		profile: pagetable.AMD64,
		tables:  map[string][]pagetable.RawEntry{},
		readErr: map[string]error{},
	}
}

func key(level pagetable.Level, path pagetable.IndexPath) string {
	return level.Name() + ":" + path.String()
}

func (f *fakeTables) set(level pagetable.Level, path pagetable.IndexPath, entries map[int]pagetable.RawEntry) {
	f.tables[key(level, path)] = table_dump.Sparse(f.profile, level, entries)
}

func (f *fakeTables) ReadLevel(level pagetable.Level, path pagetable.IndexPath) ([]byte, error) {
	k := key(level, path)
	f.calls = append(f.calls, call{"read", level, path.String()})
	if err := f.readErr[k]; err != nil {
		return nil, err
	}
	words, ok := f.tables[k]
	if !ok {
		return nil, pagetable.ErrNotAddressable
	}
	b := pagetable.PutWords(f.profile, words)
	if f.short {
		b = b[:len(b)-8]
	}
	return b, nil
}

func (f *fakeTables) SelectIndex(level pagetable.Level, index int) error {
	f.calls = append(f.calls, call{"select", level, fmt.Sprint(index)})
	return f.selErr
}

func (f *fakeTables) reads() []call {
	var out []call
	for _, c := range f.calls {
		if c.op == "read" {
			out = append(out, c)
		}
	}
	return out
}

func newWalker(t *testing.T, f *fakeTables, opts ...Option) *Walker {
	t.Helper()
	w, err := New(f, f, f.profile, opts...)
	require.NoError(t, err)
	return w
}

func TestSinglePresentTopLevelEntry(t *testing.T) {
	f := newFake()
	k := 42
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{k: 0x5000 | present})
	f.set(pagetable.PUD, pagetable.PathOf(k), nil)

	visits, err := newWalker(t, f).Collect()
	require.NoError(t, err)

	require.Len(t, visits, 1)
	assert.Equal(t, pagetable.PGD, visits[0].Level)
	assert.Equal(t, k, visits[0].Entry.Index)

	assert.Equal(t, []call{
		{"read", pagetable.PGD, "/"},
		{"select", pagetable.PGD, "42"},
		{"read", pagetable.PUD, "42"},
	}, f.calls)
}

func TestSwappedTopLevelEntryIsNotDescended(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{7: 0xabc000 | 0x40})

	w := newWalker(t, f)
	visits, err := w.Collect()
	require.NoError(t, err)

	require.Len(t, visits, 1)
	assert.False(t, visits[0].Entry.Present)
	assert.Len(t, f.reads(), 1)
	assert.Equal(t, Stats{Reads: 1, Selections: 0, Visited: 1}, w.Stats())
}

func TestZeroEntriesAreSkipped(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), nil)

	visits, err := newWalker(t, f).Collect()
	require.NoError(t, err)
	assert.Empty(t, visits)
	assert.Len(t, f.calls, 1)
}

func TestFullChainProducesOneLeaf(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{1: 0x1000 | present})
	f.set(pagetable.PUD, pagetable.PathOf(1), map[int]pagetable.RawEntry{2: 0x2000 | present})
	f.set(pagetable.PMD, pagetable.PathOf(1, 2), map[int]pagetable.RawEntry{3: 0x3000 | present})
	f.set(pagetable.PTE, pagetable.PathOf(1, 2, 3), map[int]pagetable.RawEntry{4: 0x4000 | 0x67})

	w := newWalker(t, f)
	visits, err := w.Collect()
	require.NoError(t, err)

	require.Len(t, visits, 4)
	for i, v := range visits {
		assert.Equal(t, pagetable.Level(i), v.Level)
		assert.Equal(t, i, v.Path.Depth())
	}
	leaf := visits[3]
	frame, ok := leaf.Entry.Frame()
	require.True(t, ok)
	assert.Equal(t, uint64(0x4000), frame)
	assert.Equal(t, uint64(0x67), leaf.Entry.Flags)
	assert.Equal(t, "1/2/3", leaf.Path.String())
	assert.Equal(t, uint64(0x8080604000), leaf.Address)

	// no read below the leaf level
	assert.Len(t, f.reads(), 4)
	assert.Equal(t, Stats{Reads: 4, Selections: 3, Visited: 4}, w.Stats())
}

func TestSelectionPrecedesEveryDeeperRead(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{0: 0x1000 | present, 5: 0x2000 | present})
	f.set(pagetable.PUD, pagetable.PathOf(0), map[int]pagetable.RawEntry{9: 0x3000 | present})
	f.set(pagetable.PMD, pagetable.PathOf(0, 9), nil)
	f.set(pagetable.PUD, pagetable.PathOf(5), nil)

	_, err := newWalker(t, f).Collect()
	require.NoError(t, err)

	assert.Equal(t, []call{
		{"read", pagetable.PGD, "/"},
		{"select", pagetable.PGD, "0"},
		{"read", pagetable.PUD, "0"},
		{"select", pagetable.PUD, "9"},
		{"read", pagetable.PMD, "0/9"},
		{"select", pagetable.PGD, "5"},
		{"read", pagetable.PUD, "5"},
	}, f.calls)
}

func TestKernelHalfIsExcludedByDefault(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{
		255: 0x1000 | 0x40,
		256: 0x2000 | 0x40,
		511: 0x3000 | 0x40,
	})

	visits, err := newWalker(t, f).Collect()
	require.NoError(t, err)
	require.Len(t, visits, 1)
	assert.Equal(t, 255, visits[0].Entry.Index)

	f.calls = nil
	visits, err = newWalker(t, f, WithInclude(FullRange)).Collect()
	require.NoError(t, err)
	assert.Len(t, visits, 3)

	visits, err = newWalker(t, f, WithInclude(LowerFraction(3, 4))).Collect()
	require.NoError(t, err)
	assert.Len(t, visits, 2)
}

func TestIncludeAppliesToTopLevelOnly(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{0: 0x1000 | present})
	f.set(pagetable.PUD, pagetable.PathOf(0), map[int]pagetable.RawEntry{400: 0x2000 | 0x40})

	visits, err := newWalker(t, f).Collect()
	require.NoError(t, err)
	require.Len(t, visits, 2)
	assert.Equal(t, 400, visits[1].Entry.Index)
}

func TestHugePageEntriesAreLeaves(t *testing.T) {
	f := newFake()
	huge := pagetable.RawEntry(f.profile.HugePageBit)
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{0: 0x1000 | present})
	f.set(pagetable.PUD, pagetable.PathOf(0), map[int]pagetable.RawEntry{1: 0x2000 | present})
	f.set(pagetable.PMD, pagetable.PathOf(0, 1), map[int]pagetable.RawEntry{2: 0x200000 | huge | present})

	visits, err := newWalker(t, f).Collect()
	require.NoError(t, err)
	assert.Len(t, visits, 3)
	assert.Len(t, f.reads(), 3)
	assert.True(t, IsLargePage(f.profile, pagetable.PMD, visits[2].Entry))
	assert.False(t, IsLargePage(f.profile, pagetable.PUD, visits[1].Entry))
}

func TestVisitorCanStop(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{0: 0x1000 | 0x40, 1: 0x2000 | 0x40})

	n := 0
	err := newWalker(t, f).Walk(func(Visit) bool {
		n++
		return false
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReadFailureAbortsWalk(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{3: 0x1000 | present, 4: 0x2000 | present})
	f.readErr[key(pagetable.PUD, pagetable.PathOf(3))] = errors.New("EINVAL")
	f.set(pagetable.PUD, pagetable.PathOf(4), nil)

	_, err := newWalker(t, f).Collect()
	require.Error(t, err)

	var we *pagetable.WalkError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "read", we.Op)
	assert.Equal(t, pagetable.PUD, we.Level)
	assert.Equal(t, "3", we.Path.String())

	// nothing after the failure
	assert.Len(t, f.reads(), 2)
}

func TestSelectFailureAbortsWalk(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{3: 0x1000 | present})
	f.selErr = pagetable.ErrShortWrite

	_, err := newWalker(t, f).Collect()
	require.ErrorIs(t, err, pagetable.ErrShortWrite)

	var we *pagetable.WalkError
	require.ErrorAs(t, err, &we)
	assert.Equal(t, "select", we.Op)
	assert.Equal(t, 3, we.Index)
	assert.Len(t, f.reads(), 1)
}

func TestShortReadIsFatal(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), nil)
	f.short = true

	_, err := newWalker(t, f).Collect()
	assert.ErrorIs(t, err, pagetable.ErrShortRead)
}

func TestConcurrentWalksAreExcluded(t *testing.T) {
	f := newFake()
	f.set(pagetable.PGD, pagetable.PathOf(), map[int]pagetable.RawEntry{0: 0x1000 | 0x40})

	first := newWalker(t, f, WithHolder("first"))
	second := newWalker(t, f, WithHolder("second"))

	var inner error
	err := first.Walk(func(Visit) bool {
		_, inner = second.Collect()
		return true
	})
	require.NoError(t, err)
	require.ErrorIs(t, inner, pagetable.ErrIndexStoreBusy)
	assert.Contains(t, inner.Error(), "first")

	// released once the first walk is done
	_, err = second.Collect()
	assert.NoError(t, err)
}

func TestWalkAgainstProviderStyleSource(t *testing.T) {
	p := pagetable.AMD64
	d, err := table_dump.New(p)
	require.NoError(t, err)
	require.NoError(t, d.Put(pagetable.PGD, pagetable.PathOf(), table_dump.Sparse(p, pagetable.PGD, map[int]pagetable.RawEntry{2: 0x1000 | present, 9: 0x9000 | present})))
	require.NoError(t, d.Put(pagetable.PUD, pagetable.PathOf(2), table_dump.Sparse(p, pagetable.PUD, map[int]pagetable.RawEntry{1: 0x2000 | present})))
	require.NoError(t, d.Put(pagetable.PMD, pagetable.PathOf(2, 1), table_dump.Sparse(p, pagetable.PMD, map[int]pagetable.RawEntry{8: 0x3000 | present})))
	require.NoError(t, d.Put(pagetable.PTE, pagetable.PathOf(2, 1, 8), table_dump.Sparse(p, pagetable.PTE, map[int]pagetable.RawEntry{0: 0x7000 | 0x25})))
	require.NoError(t, d.Put(pagetable.PUD, pagetable.PathOf(9), table_dump.Sparse(p, pagetable.PUD, map[int]pagetable.RawEntry{3: 0xa000 | 0x40})))

	w, err := New(d.SelectedSource(), d, p)
	require.NoError(t, err)
	visits, err := w.Collect()
	require.NoError(t, err)

	var got []string
	for _, v := range visits {
		got = append(got, fmt.Sprintf("%s %s %d", v.Level, v.Path, v.Entry.Index))
	}
	assert.Equal(t, []string{
		"pgd / 2",
		"pud 2 1",
		"pmd 2/1 8",
		"pte 2/1/8 0",
		"pgd / 9",
		"pud 9 3",
	}, got)
	assert.Equal(t, "", d.Holder())
}

func TestNewRejectsInvalidProfile(t *testing.T) {
	p := pagetable.AMD64
	p.PageSize = 1000
	_, err := New(newFake(), newFake(), p)
	assert.ErrorIs(t, err, pagetable.ErrInvalidProfile)
}

func TestNewRejectsNilCollaborators(t *testing.T) {
	_, err := New(nil, newFake(), pagetable.AMD64)
	assert.ErrorContains(t, err, "nil level source")

	_, err = New(newFake(), nil, pagetable.AMD64)
	assert.ErrorContains(t, err, "nil index selector")
}

func TestWithLoggerAndHolder(t *testing.T) {
	log := logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "walker-test"))
	f := newFake()
	w, err := New(f, f, pagetable.AMD64, WithLogger(log), WithHolder("walk-1"))
	require.NoError(t, err)

	assert.Same(t, log, w.log)
	assert.Equal(t, "walk-1", w.Holder())
}

func TestLowerFractionRejectsBadRatio(t *testing.T) {
	assert.Panics(t, func() { LowerFraction(3, 2) })
	assert.Panics(t, func() { LowerFraction(1, 0) })
}
