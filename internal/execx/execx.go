// File: internal/execx/execx.go
// Brief: Process execution seam for docker, compose, hashing and systemd tools.

// Package execx funnels every external tool invocation through one small
// interface so backends can be exercised in tests without real processes.
package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Command describes one process invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string
	Stdin io.Reader
}

// String renders the command line for logs and diagnostics.
func (c Command) String() string {
	parts := append([]string{c.Name}, c.Args...)
	return strings.Join(parts, " ")
}

// Runner runs external commands.
type Runner interface {
	// LookPath resolves an executable on PATH.
	LookPath(file string) (string, error)
	// Output runs cmd to completion and returns its stdout.
	Output(ctx context.Context, cmd Command) ([]byte, error)
	// Stream runs cmd to completion, copying stdout and stderr to w.
	Stream(ctx context.Context, cmd Command, w io.Writer) error
}

// ExitError reports a non-zero exit with captured stderr.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, msg)
}

func (e *ExitError) Unwrap() error { return e.Err }

// OS runs commands with os/exec.
type OS struct{}

// NewOS returns the process-backed runner.
func NewOS() Runner { return OS{} }

func (OS) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (OS) Output(ctx context.Context, c Command) ([]byte, error) {
	cmd := build(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), wrapExit(c, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (OS) Stream(ctx context.Context, c Command, w io.Writer) error {
	cmd := build(ctx, c)
	if w == nil {
		w = io.Discard
	}
	var stderr tailBuffer
	cmd.Stdout = w
	cmd.Stderr = io.MultiWriter(w, &stderr)
	if err := cmd.Run(); err != nil {
		return wrapExit(c, err, stderr.String())
	}
	return nil
}

func build(ctx context.Context, c Command) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin
	return cmd
}

func wrapExit(c Command, err error, stderr string) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: c.String(), ExitCode: exitErr.ExitCode(), Stderr: stderr, Err: err}
	}
	return fmt.Errorf("%s: %w", c.String(), err)
}

// tailBuffer keeps the last 4KiB written so error messages stay bounded.
type tailBuffer struct {
	buf []byte
}

const tailLimit = 4096

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > tailLimit {
		t.buf = t.buf[len(t.buf)-tailLimit:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string { return string(t.buf) }

// ParseCommandLine splits a configured command such as "docker compose" or
// "podman-compose --podman-path /usr/bin/podman" into name and arguments.
func ParseCommandLine(line string) (string, []string, error) {
	words, err := shellwords.Parse(strings.TrimSpace(line))
	if err != nil {
		return "", nil, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("command must not be empty")
	}
	return words[0], words[1:], nil
}
