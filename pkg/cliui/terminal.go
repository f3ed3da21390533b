package cliui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const defaultWidth = 80

// ColorEnabled reports whether w is a terminal that accepts ANSI colors.
// NO_COLOR and dumb terminals disable color.
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false
	}
	if termenv.EnvNoColor() {
		return false
	}
	return termenv.NewOutput(f).EnvColorProfile() != termenv.Ascii
}

// Width returns the terminal width of w, or 80 when w is not a terminal.
func Width(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return defaultWidth
	}
	cols, _, err := term.GetSize(int(f.Fd()))
	if err != nil || cols <= 0 {
		return defaultWidth
	}
	return cols
}

// Fprintln writes styled s to w, stripping escape sequences when w cannot
// render them.
func Fprintln(w io.Writer, s string) {
	if !ColorEnabled(w) {
		s = ansi.Strip(s)
	}
	fmt.Fprintln(w, s)
}

// Truncate shortens s to at most width visible cells, ending with an ellipsis
// when cut. Escape sequences do not count toward the width.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}

// PadRight pads s with spaces to width visible cells.
func PadRight(s string, width int) string {
	n := ansi.StringWidth(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// KeyValue renders an aligned "key  value" line. Empty values render as
// a dimmed "<not set>".
func KeyValue(key, value string, keyWidth int) string {
	v := ValueStyle.Render(value)
	if value == "" {
		v = DimStyle.Render("<not set>")
	}
	return "  " + PadRight(KeyStyle.Render(key), keyWidth) + "  " + v
}
