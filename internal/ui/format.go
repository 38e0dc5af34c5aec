package ui

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
)

// Box drawing characters
const (
	BoxTopLeft     = "┌"
	BoxTopRight    = "┐"
	BoxBottomLeft  = "└"
	BoxBottomRight = "┘"
	BoxVertical    = "│"
	BoxHorizontal  = "─"
	BoxTeeLeft     = "├"
	BoxTeeRight    = "┤"
	BoxTeeTop      = "┬"
	BoxTeeBottom   = "┴"
	BoxCross       = "┼"

	BoxDoubleHorizontal = "═"

	BulletCircle  = "•"
	BulletArrow   = "▸"
	BulletDiamond = "◆"
)

// AnsiRegex matches SGR escape sequences.
var AnsiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// GetTermWidth returns the terminal width, defaulting to 80.
func GetTermWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return 80
	}
	return width
}

// IsTerminal reports whether stdout is attached to a terminal.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// StripAnsiCodes removes ANSI escape sequences from a string.
func StripAnsiCodes(s string) string {
	return AnsiRegex.ReplaceAllString(s, "")
}

// VisibleLength returns the visible length of a string (excluding ANSI codes).
func VisibleLength(s string) int {
	return utf8.RuneCountInString(StripAnsiCodes(s))
}

// TruncateWithEllipsis truncates s to maxLen visible runes, ending in "...".
// Color codes are dropped from truncated strings.
func TruncateWithEllipsis(s string, maxLen int) string {
	if VisibleLength(s) <= maxLen {
		return s
	}
	runes := []rune(StripAnsiCodes(s))
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// PadRight pads a string to the specified width using visible length.
func PadRight(s string, width int) string {
	visLen := VisibleLength(s)
	if visLen >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visLen)
}

// PrintHeader prints a title between double rules.
func PrintHeader(title string) {
	width := min(GetTermWidth()-1, 72)
	rule := ColorCyan + strings.Repeat(BoxDoubleHorizontal, width) + ColorReset
	fmt.Printf("\n%s\n %s%s%s\n%s\n\n", rule, ColorBold, title, ColorReset, rule)
}

// PrintSection prints a section title with underline.
func PrintSection(title string) {
	fmt.Printf("\n%s%s %s%s\n", ColorBold, BulletDiamond, title, ColorReset)
	fmt.Printf("%s%s%s\n\n", ColorCyan, strings.Repeat(BoxHorizontal, VisibleLength(title)+2), ColorReset)
}

// Table renders rows in a boxed grid with columns sized to their content.
type Table struct {
	Headers  []string
	Rows     [][]string
	MaxWidth int // per-column cap, 0 means 40
}

// NewTable creates a table with the given headers.
func NewTable(headers ...string) *Table {
	return &Table{Headers: headers}
}

// AddRow adds a row, padding or cutting it to the header count.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.Headers))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
}

func (t *Table) widths() []int {
	limit := t.MaxWidth
	if limit <= 0 {
		limit = 40
	}
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = VisibleLength(h)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			widths[i] = max(widths[i], VisibleLength(cell))
		}
	}
	for i := range widths {
		widths[i] = min(widths[i], limit)
	}
	return widths
}

func (t *Table) rule(w io.Writer, widths []int, left, mid, right string) {
	fmt.Fprint(w, ColorCyan+left)
	for i, width := range widths {
		fmt.Fprint(w, strings.Repeat(BoxHorizontal, width+2))
		if i < len(widths)-1 {
			fmt.Fprint(w, mid)
		}
	}
	fmt.Fprintln(w, right+ColorReset)
}

func (t *Table) line(w io.Writer, widths []int, cells []string, style string) {
	fmt.Fprint(w, ColorCyan+BoxVertical+ColorReset)
	for i, width := range widths {
		cell := TruncateWithEllipsis(cells[i], width)
		fmt.Fprintf(w, " %s%s%s ", style, PadRight(cell, width), ColorReset)
		fmt.Fprint(w, ColorCyan+BoxVertical+ColorReset)
	}
	fmt.Fprintln(w)
}

// Fprint renders the table to w.
func (t *Table) Fprint(w io.Writer) {
	if len(t.Headers) == 0 {
		return
	}
	widths := t.widths()
	t.rule(w, widths, BoxTopLeft, BoxTeeTop, BoxTopRight)
	t.line(w, widths, t.Headers, ColorBold)
	t.rule(w, widths, BoxTeeLeft, BoxCross, BoxTeeRight)
	for _, row := range t.Rows {
		t.line(w, widths, row, "")
	}
	t.rule(w, widths, BoxBottomLeft, BoxTeeBottom, BoxBottomRight)
}

// Print renders the table to stdout.
func (t *Table) Print() {
	t.Fprint(os.Stdout)
}

// PrintList prints a styled bullet list.
func PrintList(items []string, color string) {
	for _, item := range items {
		fmt.Printf("  %s%s%s %s\n", color, BulletCircle, ColorReset, item)
	}
}

// PrintKeyValue prints a key-value pair with styling.
func PrintKeyValue(key, value, valueColor string) {
	maxValueWidth := GetTermWidth() - 26
	if maxValueWidth > 10 {
		value = TruncateWithEllipsis(value, maxValueWidth)
	}
	fmt.Printf("  %s%-20s%s %s%s%s\n",
		ColorCyan, key+":", ColorReset,
		valueColor, value, ColorReset)
}
