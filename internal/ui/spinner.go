// spinner.go animates the running step while a long action (image pulls,
// health polling, rollouts) blocks.
package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []rune{'|', '/', '-', '\\'}

// spinner redraws "label <frame>" on one line until stopped.
type spinner struct {
	out   io.Writer
	label string
	done  chan struct{}
	wg    sync.WaitGroup
}

func startSpinner(w io.Writer, label string) *spinner {
	s := &spinner{out: w, label: label, done: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()
		idx := 0
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				fmt.Fprintf(s.out, "\r%s %c", s.label, spinnerFrames[idx])
				idx = (idx + 1) % len(spinnerFrames)
			}
		}
	}()
	return s
}

// stop halts the animation and clears the line so the caller can print the
// final status in its place.
func (s *spinner) stop() {
	if s == nil {
		return
	}
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	s.wg.Wait()
	fmt.Fprint(s.out, "\r\033[K")
}
