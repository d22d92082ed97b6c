package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"pagetables/hexdump"
	"pagetables/pagetable"
	"pagetables/table_dump"
)

func newTableCmd() *cobra.Command {
	var color, zeros bool

	cmd := &cobra.Command{
		Use:   "table <dump dir> [index...]",
		Short: "Hexdump one table of a saved walk",
		Long: `table prints the raw bytes of one table captured with --save. With no
index it shows the pgd; each index descends one level, so "table /tmp/walk 1 2"
shows the pmd reached through pgd entry 1 and pud entry 2.`,
		Args: cobra.RangeArgs(1, int(pagetable.LevelCount)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTable(cmd.OutOrStdout(), args[0], args[1:], color, zeros)
		},
	}
	cmd.Flags().BoolVar(&color, "color", false, "Colour the output")
	cmd.Flags().BoolVar(&zeros, "zeros", false, "Print all-zero lines instead of squashing them")
	return cmd
}

func runTable(out io.Writer, dir string, indices []string, color, zeros bool) error {
	if len(indices) >= int(pagetable.LevelCount) {
		return fmt.Errorf("%w: at most %d indices", pagetable.ErrDepthExceeded, pagetable.LevelCount-1)
	}

	var path pagetable.IndexPath
	for _, s := range indices {
		i, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid index %q: %w", s, err)
		}
		if i < 0 {
			return fmt.Errorf("invalid index %q: must not be negative", s)
		}
		path = path.Push(i)
	}

	dump, err := table_dump.Load(dir)
	if err != nil {
		return fmt.Errorf("failed to load dump: %w", err)
	}
	level := path.Level()
	b, err := dump.ReadLevel(level, path)
	if err != nil {
		return err
	}
	printVerbose("Table", level, "at", path, "is", len(b), "bytes")

	opts := hexdump.DefaultOptions()
	opts.GroupSize = dump.Profile.WordSize
	opts.BytesPerLine = 2 * dump.Profile.WordSize
	opts.SquashZeros = !zeros
	if color {
		st := hexdump.DefaultStyles()
		opts.Styles = &st
	}
	return hexdump.DumpToWriter(out, b, opts)
}
