// File: internal/ui/console.go
// Brief: Step progress rendering for install and uninstall.

// Package ui renders step progress, asks the operator questions and prints
// the final summaries.
package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var stepTitleCaser = cases.Title(language.Und, cases.NoLower)

// StepConsole prints one line per finished step. On a terminal it animates
// the running step; elsewhere it prints plain lines suitable for logs.
type StepConsole struct {
	out     io.Writer
	animate bool
	width   int

	mu   sync.Mutex
	spin *spinner
}

// NewStepConsole returns a console writing to out.
func NewStepConsole(out io.Writer) *StepConsole {
	c := &StepConsole{out: out, animate: IsTerminal(out)}
	if w, ok := TerminalWidth(out); ok {
		c.width = w
	}
	return c
}

// StepLabel turns a step name such as "await_ready:Deployment/cosy-backend"
// into "Await Ready (Deployment/cosy-backend)".
func StepLabel(name string) string {
	base, detail, _ := strings.Cut(name, ":")
	label := stepTitleCaser.String(strings.ReplaceAll(base, "_", " "))
	if label == "" {
		label = "Step"
	}
	if detail != "" {
		label = fmt.Sprintf("%s (%s)", label, detail)
	}
	return label
}

func (c *StepConsole) StepStarted(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.animate {
		c.spin = startSpinner(c.out, "  "+StepLabel(name))
	}
}

func (c *StepConsole) StepCompleted(name, status, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spin.stop()
	c.spin = nil
	width := 0
	if c.animate {
		width = c.width
	}
	fmt.Fprintln(c.out, renderStepLine(name, status, message, width))
}

func stepGlyph(status string) (string, *color.Color) {
	switch strings.ToLower(status) {
	case "succeeded":
		return "✔", color.New(color.FgGreen)
	case "warning":
		return "!", color.New(color.FgYellow)
	case "failed":
		return "✖", color.New(color.FgRed)
	default:
		return "○", color.New(color.FgHiBlack)
	}
}

// renderStepLine fits the plain text into width columns (0 means no limit)
// before any color is applied.
func renderStepLine(name, status, message string, width int) string {
	glyph, painter := stepGlyph(status)
	label := StepLabel(name)
	var msg string
	if m := strings.TrimSpace(message); m != "" && !strings.EqualFold(status, "succeeded") {
		msg = firstLine(m)
	}
	if width > 0 {
		avail := width - runewidth.StringWidth("  "+glyph+" ")
		label = trimToWidth(label, avail)
		avail -= runewidth.StringWidth(label + " - ")
		msg = trimToWidth(msg, avail)
	}
	text := fmt.Sprintf("  %s %s", painter.Sprint(glyph), label)
	if msg != "" {
		text = fmt.Sprintf("%s - %s", text, painter.Sprint(msg))
	}
	return text
}

func trimToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
