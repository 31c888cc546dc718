// File: internal/materialize/materialize.go
// Brief: Fetch, substitute and write configuration artifacts.

// Package materialize resolves named configuration artifacts: it fetches raw
// templates from a versioned source (or takes inline content), substitutes
// sentinel tokens and writes the result to its destination.
package materialize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/go-logr/logr"
	"github.com/pmezard/go-difflib/difflib"
)

// Artifact is one configuration file of an install.
type Artifact struct {
	// Name is the logical name used in logs and errors.
	Name string
	// Source is the path relative to the template source. Ignored when
	// Inline is set.
	Source string
	// Inline holds generated content that is not fetched.
	Inline []byte
	// Destination is the absolute output path.
	Destination string
	// Mode defaults to 0o644.
	Mode fs.FileMode
	// Placeholders overlay the shared map for this artifact only.
	Placeholders Placeholders
	// Sensitive suppresses content diffs in debug logs.
	Sensitive bool
}

// Materializer fetches and renders artifacts.
type Materializer struct {
	Source Source
	// Strict rejects artifacts that still contain sentinel tokens after
	// substitution.
	Strict bool
	Log    logr.Logger
}

// Render returns the substituted content of a without writing it.
func (m *Materializer) Render(ctx context.Context, a Artifact, placeholders Placeholders) ([]byte, error) {
	raw, err := m.fetch(ctx, a)
	if err != nil {
		return nil, err
	}
	out := Substitute(string(raw), placeholders.Merge(a.Placeholders))
	if m.Strict {
		if left := Unresolved(out); len(left) > 0 {
			return nil, deployerr.Newf(deployerr.UnresolvedPlaceholder, "%s: unresolved placeholders %s", a.Name, strings.Join(left, ", ")).
				WithHint("the template source and this cosyctl version disagree; pin --source-ref to a matching release")
		}
	}
	return []byte(out), nil
}

// Materialize renders and writes every artifact in order, returning the
// written paths. Re-running overwrites destinations; nothing is merged.
func (m *Materializer) Materialize(ctx context.Context, artifacts []Artifact, placeholders Placeholders) ([]string, error) {
	written := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		content, err := m.Render(ctx, a, placeholders)
		if err != nil {
			return written, err
		}
		if err := m.write(a, content); err != nil {
			return written, err
		}
		written = append(written, a.Destination)
		m.Log.V(1).Info("materialized artifact", "artifact", a.Name, "path", a.Destination, "bytes", len(content))
	}
	return written, nil
}

func (m *Materializer) fetch(ctx context.Context, a Artifact) ([]byte, error) {
	if a.Inline != nil {
		return a.Inline, nil
	}
	if m.Source == nil {
		return nil, deployerr.Newf(deployerr.ArtifactFetchFailed, "%s: no template source configured", a.Name)
	}
	data, err := m.Source.Fetch(ctx, a.Source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, deployerr.New(deployerr.ArtifactFetchFailed, fmt.Errorf("fetch %s from %s: %w", a.Name, m.Source, err)).
			WithHint("check network access to the template source or set --source-url/--source-ref")
	}
	return data, nil
}

func (m *Materializer) write(a Artifact, content []byte) error {
	if a.Destination == "" {
		return deployerr.Newf(deployerr.DestinationUnwritable, "%s: destination path is empty", a.Name)
	}
	mode := a.Mode
	if mode == 0 {
		mode = 0o644
	}
	dir := filepath.Dir(a.Destination)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return unwritable(a, err)
	}
	if previous, err := os.ReadFile(a.Destination); err == nil && !bytes.Equal(previous, content) {
		m.logDiff(a, previous, content)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(a.Destination)+".*")
	if err != nil {
		return unwritable(a, err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		cleanup()
		return unwritable(a, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		cleanup()
		return unwritable(a, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return unwritable(a, err)
	}
	if err := os.Rename(tmpName, a.Destination); err != nil {
		cleanup()
		return unwritable(a, err)
	}
	return nil
}

func (m *Materializer) logDiff(a Artifact, previous, next []byte) {
	if !m.Log.V(1).Enabled() {
		return
	}
	if a.Sensitive {
		m.Log.V(1).Info("overwriting changed artifact", "artifact", a.Name)
		return
	}
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(previous)),
		B:        difflib.SplitLines(string(next)),
		FromFile: "previous",
		ToFile:   "rendered",
		Context:  2,
	})
	if err != nil {
		return
	}
	m.Log.V(1).Info("overwriting changed artifact", "artifact", a.Name, "diff", text)
}

func unwritable(a Artifact, err error) error {
	kind := deployerr.FilesystemError
	if errors.Is(err, fs.ErrPermission) {
		kind = deployerr.DestinationUnwritable
	}
	return deployerr.New(kind, fmt.Errorf("write %s to %s: %w", a.Name, a.Destination, err)).
		WithHint("check permissions and free space under %s", filepath.Dir(a.Destination))
}
