package main

import (
	"fmt"
	"os"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool

	log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "pagetables"))
)

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	opts := defaultWalkOptions()

	cmd := &cobra.Command{
		Use:   "pagetables",
		Short: "Print the page tables of the current process",
		Long: `pagetables walks the pgd, pud, pmd and pte tables of its own address space
through the pagetables debugfs provider and prints one line per non-empty entry,
depth first. Present entries show their physical frame, others are <swapped>.

Example:
  pagetables
  pagetables --kernel
  pagetables --maps
  pagetables --save /tmp/walk
  pagetables --load /tmp/walk --color`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWalk(cmd.OutOrStdout(), opts)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	cmd.Flags().StringVar(&opts.root, "root", opts.root, "Provider directory")
	cmd.Flags().BoolVar(&opts.kernel, "kernel", false, "Walk the whole top-level table, including kernel space")
	cmd.Flags().StringVar(&opts.split, "split", opts.split, "Fraction n/d of the top-level table to walk")
	cmd.Flags().BoolVar(&opts.color, "color", false, "Colour the output")
	cmd.Flags().StringVar(&opts.save, "save", "", "Save every table read to this directory")
	cmd.Flags().StringVar(&opts.load, "load", "", "Walk a saved dump instead of the provider")
	cmd.Flags().BoolVar(&opts.maps, "maps", false, "Annotate leaf entries with the mapping that contains them")
	cmd.MarkFlagsMutuallyExclusive("kernel", "split")
	cmd.MarkFlagsMutuallyExclusive("load", "save")
	cmd.MarkFlagsMutuallyExclusive("load", "root")
	cmd.MarkFlagsMutuallyExclusive("load", "maps")

	cmd.AddCommand(newTableCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "pagetables:", err)
		os.Exit(1)
	}
}

// printVerbose logs a message if verbose mode is enabled
func printVerbose(v ...interface{}) {
	if verbose {
		log.Infoln(v...)
	}
}
