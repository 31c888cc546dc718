// File: internal/ui/term.go
// Brief: Terminal detection helpers.

package ui

import (
	"io"

	"golang.org/x/term"
)

type fdProvider interface {
	Fd() uintptr
}

// IsTerminal reports whether v (an *os.File or similar) is attached to a
// terminal.
func IsTerminal(v any) bool {
	f, ok := v.(fdProvider)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the column count of w when it is a terminal.
func TerminalWidth(w io.Writer) (int, bool) {
	if v, ok := w.(fdProvider); ok {
		if cols, _, err := term.GetSize(int(v.Fd())); err == nil && cols > 0 {
			return cols, true
		}
	}
	return 0, false
}
