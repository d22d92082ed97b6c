//go:build linux

package debugfs_linux

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"

	"pagetables/pagetable"
)

// DefaultRoot is where the pagetables kernel module publishes its files.
const DefaultRoot = "/sys/kernel/debug/pagetables"

// Provider reads the calling process's page tables from the pagetables
// debugfs directory. Each level has a read-only file holding the full table
// for the currently selected ancestors (pgd, pud, pmd, pte) and, except for
// the leaf, an index file selecting the entry to descend into (pgdindex, ...).
//
// The index files are process-wide and unlocked in the kernel; Acquire takes
// an advisory lock on the directory so cooperating walkers do not interleave.
type Provider struct {
	root    string
	profile pagetable.Profile
	log     *logger.Logger
	guard   pagetable.Exclusive
}

var _ pagetable.LevelByteSource = (*Provider)(nil)
var _ pagetable.IndexStore = (*Provider)(nil)

// HostProfile returns the page table layout for the running kernel
func HostProfile() (pagetable.Profile, error) {
	pageSize := uint64(unix.Getpagesize())
	if pageSize == pagetable.AMD64.PageSize {
		return pagetable.AMD64, nil
	}
	return pagetable.ProfileForPageSize(pageSize)
}

// Open checks root and returns a provider for it
func Open(root string, profile pagetable.Profile) (*Provider, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	fi, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("pagetables provider not available (is the module loaded and debugfs mounted?): %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	p := &Provider{
		root:    root,
		profile: profile,
		log:     logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "debugfs")),
	}

	var st unix.Statfs_t
	if err := unix.Statfs(root, &st); err == nil && st.Type != unix.DEBUGFS_MAGIC {
		p.log.Warn("provider root is not on debugfs: ", root)
	}

	p.log.Debugln("Using provider at", root, "with profile", profile.Name)
	return p, nil
}

// Root returns the provider directory
func (p *Provider) Root() string {
	return p.root
}

func (p *Provider) levelPath(level pagetable.Level, index bool) string {
	name := level.Name()
	if index {
		name += "index"
	}
	return filepath.Join(p.root, name)
}

// ReadLevel reads the full table file for level. The provider resolves the
// table from its index files, so path only labels errors.
func (p *Provider) ReadLevel(level pagetable.Level, path pagetable.IndexPath) ([]byte, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %d", pagetable.ErrUnknownLevel, int(level))
	}

	name := p.levelPath(level, false)
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("error opening %s: %w", name, err)
	}
	defer file.Close()

	buf := make([]byte, p.profile.TableSize(level))
	n, err := io.ReadFull(file, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return nil, fmt.Errorf("%w: %s returned %d of %d bytes", pagetable.ErrShortRead, name, n, len(buf))
	case errors.Is(err, unix.EINVAL):
		// the module rejects paths through absent or bad entries
		return nil, fmt.Errorf("%w: %s at %s: %v", pagetable.ErrNotAddressable, level, path, err)
	default:
		return nil, fmt.Errorf("read error at %s: %w", name, err)
	}
}

// SelectIndex writes index as decimal text to the index file of level.
func (p *Provider) SelectIndex(level pagetable.Level, index int) error {
	if err := pagetable.CheckSelection(p.profile, level, index); err != nil {
		return err
	}

	name := p.levelPath(level, true)
	file, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", name, err)
	}

	text := strconv.Itoa(index)
	n, err := file.Write([]byte(text))
	if err != nil {
		file.Close()
		return fmt.Errorf("write error at %s: %w", name, err)
	}
	if n != len(text) {
		file.Close()
		return fmt.Errorf("%w: %s accepted %d of %d bytes", pagetable.ErrShortWrite, name, n, len(text))
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("write error at %s: %w", name, err)
	}
	return nil
}

// Acquire holds the provider for one walk. Contention within this process or
// with another process holding the directory lock fails with
// pagetable.ErrIndexStoreBusy.
func (p *Provider) Acquire(holder string) (func(), error) {
	release, err := p.guard.Acquire(holder)
	if err != nil {
		return nil, err
	}

	dir, err := os.Open(p.root)
	if err != nil {
		release()
		return nil, fmt.Errorf("error opening %s: %w", p.root, err)
	}

	if err := unix.Flock(int(dir.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		dir.Close()
		release()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w: %s is locked by another process", pagetable.ErrIndexStoreBusy, p.root)
		}
		return nil, fmt.Errorf("flock %s: %w", p.root, err)
	}
	p.log.Debugln("Acquired", p.root, "for", holder)

	var once sync.Once
	return func() {
		once.Do(func() {
			unix.Flock(int(dir.Fd()), unix.LOCK_UN)
			dir.Close()
			release()
		})
	}, nil
}
