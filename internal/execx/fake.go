package execx

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Fake is a scripted Runner for tests. Commands are matched against the
// registered prefixes, most recent registration first; unmatched commands
// succeed with empty output.
type Fake struct {
	mu       sync.Mutex
	paths    map[string]string
	handlers []fakeHandler
	calls    []Command
}

type fakeHandler struct {
	prefix string
	fn     func(Command) ([]byte, error)
}

// NewFake returns a Fake where the given executables resolve on PATH.
func NewFake(executables ...string) *Fake {
	f := &Fake{paths: map[string]string{}}
	for _, name := range executables {
		f.paths[name] = "/usr/bin/" + name
	}
	return f
}

// Install makes name resolvable.
func (f *Fake) Install(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths[name] = "/usr/bin/" + name
}

// On registers fn for commands whose rendered line starts with prefix.
func (f *Fake) On(prefix string, fn func(Command) ([]byte, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, fakeHandler{prefix: prefix, fn: fn})
}

// Reply registers a fixed stdout for prefix.
func (f *Fake) Reply(prefix, stdout string) {
	f.On(prefix, func(Command) ([]byte, error) { return []byte(stdout), nil })
}

// Fail registers a non-zero exit for prefix.
func (f *Fake) Fail(prefix string, code int, stderr string) {
	f.On(prefix, func(c Command) ([]byte, error) {
		return nil, &ExitError{Command: c.String(), ExitCode: code, Stderr: stderr}
	})
}

// Calls returns the rendered command lines executed so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

// Called reports whether any executed command line starts with prefix.
func (f *Fake) Called(prefix string) bool {
	for _, line := range f.Calls() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func (f *Fake) LookPath(file string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.paths[file]; ok {
		return p, nil
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func (f *Fake) Output(_ context.Context, c Command) ([]byte, error) {
	return f.dispatch(c)
}

func (f *Fake) Stream(_ context.Context, c Command, w io.Writer) error {
	out, err := f.dispatch(c)
	if w != nil && len(out) > 0 {
		_, _ = w.Write(out)
	}
	return err
}

func (f *Fake) dispatch(c Command) ([]byte, error) {
	if c.Stdin != nil {
		data, err := io.ReadAll(c.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		c.Stdin = strings.NewReader(string(data))
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	handlers := append([]fakeHandler(nil), f.handlers...)
	f.mu.Unlock()
	line := c.String()
	for i := len(handlers) - 1; i >= 0; i-- {
		if strings.HasPrefix(line, handlers[i].prefix) {
			return handlers[i].fn(c)
		}
	}
	return nil, nil
}
