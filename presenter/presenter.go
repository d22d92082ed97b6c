// Package presenter renders walked page table entries as text lines.
package presenter

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"pagetables/pagetable"
	"pagetables/walker"
)

// SwappedMarker replaces the frame of entries that are not present.
const SwappedMarker = "<swapped>"

// Styles colour the parts of a line. The zero value renders plain text.
type Styles struct {
	Index   lipgloss.Style
	Frame   lipgloss.Style
	Swapped lipgloss.Style
	Flags   lipgloss.Style
}

// DefaultStyles are used by the CLI when colour is requested
func DefaultStyles() Styles {
	return Styles{
		Index:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		Frame:   lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		Swapped: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		Flags:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
	}
}

// Binary renders flags in base 2 without leading zeros.
func Binary(flags uint64) string {
	return strconv.FormatUint(flags, 2)
}

// Format renders one entry: a tab per level, the zero padded index, the
// frame in hex or the swapped marker, then the flag bits.
func Format(level pagetable.Level, index int, e pagetable.DecodedEntry) string {
	return format(level, index, e, nil)
}

func format(level pagetable.Level, index int, e pagetable.DecodedEntry, st *Styles) string {
	var styles Styles
	if st != nil {
		styles = *st
	}
	paint := func(style lipgloss.Style, text string) string {
		if st == nil {
			return text
		}
		return style.Render(text)
	}

	addr := paint(styles.Swapped, SwappedMarker)
	if frame, ok := e.Frame(); ok {
		addr = paint(styles.Frame, fmt.Sprintf("%016x", frame))
	}

	return strings.Repeat("\t", int(level)) +
		paint(styles.Index, fmt.Sprintf("%03d:", index)) + " " +
		addr + " " +
		paint(styles.Flags, Binary(e.Flags))
}

// Printer writes one line per visited entry.
type Printer struct {
	w        io.Writer
	styles   *Styles
	annotate Annotator
	err      error
	lines    int
}

// Annotator returns extra text for a visited entry, or "" for none.
type Annotator func(v walker.Visit) string

// NewPrinter writes plain lines to w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// WithStyles enables styled output
func (p *Printer) WithStyles(st Styles) *Printer {
	p.styles = &st
	return p
}

// WithAnnotator appends the annotator's text to every line it returns text for
func (p *Printer) WithAnnotator(fn Annotator) *Printer {
	p.annotate = fn
	return p
}

// Print writes the line for e at level
func (p *Printer) Print(level pagetable.Level, e pagetable.DecodedEntry) error {
	return p.writeLine(format(level, e.Index, e, p.styles))
}

// PrintVisit writes the line for v, annotated when an annotator is set
func (p *Printer) PrintVisit(v walker.Visit) error {
	line := format(v.Level, v.Entry.Index, v.Entry, p.styles)
	if p.annotate != nil {
		if note := p.annotate(v); note != "" {
			line += "  " + note
		}
	}
	return p.writeLine(line)
}

func (p *Printer) writeLine(line string) error {
	if _, err := fmt.Fprintln(p.w, line); err != nil {
		return err
	}
	p.lines++
	return nil
}

// Visitor adapts the printer to a walk. A write error stops the walk and is
// reported by Err.
func (p *Printer) Visitor() walker.Visitor {
	return func(v walker.Visit) bool {
		if err := p.PrintVisit(v); err != nil {
			p.err = fmt.Errorf("failed to write entry: %w", err)
			return false
		}
		return true
	}
}

// Err returns the first write error seen by Visitor
func (p *Printer) Err() error {
	return p.err
}

// Lines is the number of lines written
func (p *Printer) Lines() int {
	return p.lines
}
