// File: internal/ui/prompt.go
// Brief: Line-oriented questions: the uninstall confirmation and install answers.

package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/fatih/color"
)

// Prompter asks questions on Out and reads answers from In. Interactive is
// false when In is not a terminal; questions then use their defaults and
// confirmations cancel.
type Prompter struct {
	In          io.Reader
	Out         io.Writer
	Interactive bool

	reader *bufio.Reader
}

// NewPrompter wires a prompter to the given streams, detecting whether in
// is a terminal.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{In: in, Out: out, Interactive: IsTerminal(in)}
}

// readLine returns one trimmed line and whether input has ended. It gives up
// when ctx ends; the blocked read is abandoned.
func (p *Prompter) readLine(ctx context.Context) (string, bool, error) {
	if p.reader == nil {
		p.reader = bufio.NewReader(p.In)
	}
	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := p.reader.ReadString('\n')
		ch <- answer{line, err}
	}()
	select {
	case <-ctx.Done():
		fmt.Fprintln(p.Out)
		return "", false, ctx.Err()
	case a := <-ch:
		eof := errors.Is(a.err, io.EOF)
		if a.err != nil && !eof {
			return "", false, a.err
		}
		return strings.TrimSpace(a.line), eof, nil
	}
}

// Confirm asks a [y/N] question. Only "y" or "yes" (any case) proceeds; an
// empty answer or end of input declines. Without a terminal it fails with
// UserCancelled so scripted runs never hang.
func (p *Prompter) Confirm(ctx context.Context, question string) (bool, error) {
	if !p.Interactive {
		return false, deployerr.Newf(deployerr.UserCancelled, "stdin is not a terminal and confirmation is required").
			WithHint("pass --yes (or set COSYCTL_YES=1) to uninstall non-interactively")
	}
	fmt.Fprintf(p.Out, "%s %s ", color.New(color.FgHiYellow).Sprint(question), "[y/N]")
	line, _, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Ask prints label with its default and returns the answer, or def when
// the answer is empty or the prompter is not interactive. validate, when
// set, is applied to the answer and the question repeats until it passes
// or input ends.
func (p *Prompter) Ask(ctx context.Context, label, def string, validate func(string) error) (string, error) {
	if !p.Interactive {
		return def, nil
	}
	for {
		fmt.Fprintf(p.Out, "%s [%s]: ", label, def)
		line, eof, err := p.readLine(ctx)
		if err != nil {
			return "", err
		}
		if line == "" {
			line = def
		}
		if validate == nil {
			return line, nil
		}
		if err := validate(line); err != nil {
			if eof {
				return "", deployerr.New(deployerr.InvalidInput, fmt.Errorf("%s: %w", strings.ToLower(label), err)).
					WithHint("input ended before a valid answer was given; pass the value as a flag")
			}
			fmt.Fprintf(p.Out, "  %s %v\n", color.New(color.FgRed).Sprint("✖"), err)
			continue
		}
		return line, nil
	}
}
