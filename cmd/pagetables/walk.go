package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"pagetables/debugfs_linux"
	"pagetables/memory_map"
	"pagetables/pagetable"
	"pagetables/presenter"
	"pagetables/table_dump"
	"pagetables/walker"
)

type walkOptions struct {
	root   string
	kernel bool
	split  string
	color  bool
	save   string
	load   string
	maps   bool
}

func defaultWalkOptions() *walkOptions {
	return &walkOptions{
		root:  debugfs_linux.DefaultRoot,
		split: "1/2",
	}
}

// parseSplit turns "n/d" into the top-level include policy
func parseSplit(s string) (walker.IncludeFunc, error) {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return nil, fmt.Errorf("invalid split %q: want n/d", s)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return nil, fmt.Errorf("invalid split %q: %w", s, err)
	}
	d, err := strconv.Atoi(strings.TrimSpace(den))
	if err != nil {
		return nil, fmt.Errorf("invalid split %q: %w", s, err)
	}
	if d <= 0 || n < 0 || n > d {
		return nil, fmt.Errorf("invalid split %q: want 0 <= n <= d, d > 0", s)
	}
	return walker.LowerFraction(n, d), nil
}

func runWalk(out io.Writer, opts *walkOptions) error {
	var include walker.IncludeFunc = walker.FullRange
	if !opts.kernel {
		fn, err := parseSplit(opts.split)
		if err != nil {
			return err
		}
		include = fn
	}

	var (
		source  pagetable.LevelByteSource
		store   pagetable.IndexSelector
		profile pagetable.Profile
		dump    *table_dump.Dump
	)

	if opts.maps && opts.load != "" {
		return fmt.Errorf("--maps describes this process and cannot annotate a loaded dump")
	}

	if opts.load != "" {
		printVerbose("Loading dump:", opts.load)
		d, err := table_dump.Load(opts.load)
		if err != nil {
			return fmt.Errorf("failed to load dump: %w", err)
		}
		source, store, profile = d.SelectedSource(), d, d.Profile
	} else {
		p, err := debugfs_linux.HostProfile()
		if err != nil {
			return fmt.Errorf("failed to detect page table layout: %w", err)
		}
		provider, err := debugfs_linux.Open(opts.root, p)
		if err != nil {
			return err
		}
		printVerbose("Walking", provider.Root(), "with profile", p.Name)
		source, store, profile = provider, provider, p

		if opts.save != "" {
			if dump, err = table_dump.New(p); err != nil {
				return err
			}
			source = table_dump.NewRecorder(provider, dump)
		}
	}

	w, err := walker.New(source, store, profile, walker.WithInclude(include))
	if err != nil {
		return err
	}

	printer := presenter.NewPrinter(out)
	if opts.color {
		printer.WithStyles(presenter.DefaultStyles())
	}
	if opts.maps {
		mm, err := memory_map.ReadSelf()
		if err != nil {
			return fmt.Errorf("failed to read memory map: %w", err)
		}
		printVerbose("Annotating leaves with", len(mm), "mappings")
		printer.WithAnnotator(presenter.RegionAnnotator(mm, profile))
	}

	if err := w.Walk(printer.Visitor()); err != nil {
		return err
	}
	if err := printer.Err(); err != nil {
		return err
	}

	stats := w.Stats()
	printVerbose("Walk complete:", stats.Visited, "entries,", stats.Reads, "tables read,", stats.Selections, "selections")

	if dump != nil {
		dump.WalkID = w.Holder()
		if err := dump.Save(opts.save); err != nil {
			return fmt.Errorf("failed to save dump: %w", err)
		}
	}
	return nil
}
