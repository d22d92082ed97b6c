package hexdump

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/lipgloss"
)

// HexDumpOptions defines options for customizing the hexdump output
type HexDumpOptions struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize defines the grouping of bytes, usually the table word size
	GroupSize int

	// ShowASCII determines whether to show the ASCII representation
	ShowASCII bool

	// StartOffset is added to every offset printed
	StartOffset uint64

	// OffsetWidth is the width of the offset column in hex digits
	OffsetWidth int

	// SquashZeros replaces runs of all-zero lines with a single "*"
	SquashZeros bool

	// Styles colour the output; nil prints plain text
	Styles *Styles
}

// Styles for the parts of a hexdump line
type Styles struct {
	Offset lipgloss.Style
	Hex    lipgloss.Style
	Zero   lipgloss.Style
	ASCII  lipgloss.Style
}

func DefaultStyles() Styles {
	return Styles{
		Offset: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		Hex:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		Zero:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		ASCII:  lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
	}
}

// DefaultOptions returns options suited to a table of 8 byte words
func DefaultOptions() HexDumpOptions {
	return HexDumpOptions{
		BytesPerLine: 16,
		GroupSize:    8,
		ShowASCII:    true,
		OffsetWidth:  4,
		SquashZeros:  true,
	}
}

// Dump creates a hex dump of the given data with specified options
func Dump(data []byte, options HexDumpOptions) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, data, options)
	return buffer.String()
}

// DumpToWriter writes a hex dump of the given data to the specified writer
func DumpToWriter(writer io.Writer, data []byte, options HexDumpOptions) error {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = 1
	}
	if options.OffsetWidth <= 0 {
		options.OffsetWidth = 8
	}

	squashed := false
	for offset := 0; offset < len(data); offset += options.BytesPerLine {
		end := min(offset+options.BytesPerLine, len(data))
		line := data[offset:end]

		if options.SquashZeros && offset > 0 && end < len(data) && allZero(line) {
			if !squashed {
				if _, err := fmt.Fprintln(writer, "*"); err != nil {
					return err
				}
				squashed = true
			}
			continue
		}
		squashed = false

		if _, err := fmt.Fprintln(writer, formatLine(line, uint64(offset)+options.StartOffset, options)); err != nil {
			return err
		}
	}
	return nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func paint(st *Styles, pick func(*Styles) lipgloss.Style, s string) string {
	if st == nil {
		return s
	}
	return pick(st).Render(s)
}

// formatLine formats a single line of the hex dump
func formatLine(data []byte, offset uint64, options HexDumpOptions) string {
	var sb strings.Builder
	st := options.Styles

	sb.WriteString(paint(st, func(s *Styles) lipgloss.Style { return s.Offset },
		fmt.Sprintf("%0"+strconv.Itoa(options.OffsetWidth)+"x", offset)))
	sb.WriteString("  ")

	groups := make([]string, 0, (len(data)+options.GroupSize-1)/options.GroupSize)
	for i := 0; i < len(data); i += options.GroupSize {
		group := data[i:min(i+options.GroupSize, len(data))]
		text := fmt.Sprintf("%x", group)
		if allZero(group) {
			groups = append(groups, paint(st, func(s *Styles) lipgloss.Style { return s.Zero }, text))
		} else {
			groups = append(groups, paint(st, func(s *Styles) lipgloss.Style { return s.Hex }, text))
		}
	}
	sb.WriteString(strings.Join(groups, " "))

	if !options.ShowASCII {
		return sb.String()
	}

	// Pad short lines so the ASCII column stays aligned
	fullGroups := (options.BytesPerLine + options.GroupSize - 1) / options.GroupSize
	missing := (options.BytesPerLine-len(data))*2 + (fullGroups - len(groups))
	if missing > 0 {
		sb.WriteString(strings.Repeat(" ", missing))
	}

	sb.WriteString(" | ")
	var ascii strings.Builder
	for _, b := range data {
		c := rune(b)
		if b == 0 || b >= 0x80 || !unicode.IsPrint(c) {
			ascii.WriteByte('.')
		} else {
			ascii.WriteRune(c)
		}
	}
	sb.WriteString(paint(st, func(s *Styles) lipgloss.Style { return s.ASCII }, ascii.String()))
	return sb.String()
}

// DumpBytes creates a simple hex dump with default options
func DumpBytes(data []byte) string {
	return Dump(data, DefaultOptions())
}
