// File: internal/deployerr/deployerr.go
// Brief: Error kinds shared by the install and teardown engines.

// Package deployerr classifies install/teardown failures so the CLI can pick
// an exit code and a remediation hint without string matching.
package deployerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind names a failure class.
type Kind string

const (
	PrerequisiteMissing     Kind = "PrerequisiteMissing"
	PrerequisiteUnreachable Kind = "PrerequisiteUnreachable"
	PortInUse               Kind = "PortInUse"
	InvalidInput            Kind = "InvalidInput"
	ArtifactFetchFailed     Kind = "ArtifactFetchFailed"
	DestinationUnwritable   Kind = "DestinationUnwritable"
	FilesystemError         Kind = "FilesystemError"
	BackendCommandFailure   Kind = "BackendCommandFailure"
	HealthTimeout           Kind = "HealthTimeout"
	InstallationNotFound    Kind = "InstallationNotFound"
	NamespaceNotFound       Kind = "NamespaceNotFound"
	CorruptInstallation     Kind = "CorruptInstallation"
	NoHashingToolAvailable  Kind = "NoHashingToolAvailable"
	UnresolvedPlaceholder   Kind = "UnresolvedPlaceholder"
	UserCancelled           Kind = "UserCancelled"
)

// Error is a classified failure. Step is filled in by the step driver when
// the producer did not set it.
type Error struct {
	Kind Kind
	Step string
	Hint string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Step != "" {
		b.WriteString(e.Step)
		b.WriteString(": ")
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString(string(e.Kind))
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Newf formats a message and classifies it with kind.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// WithHint attaches a remediation hint.
func (e *Error) WithHint(format string, args ...any) *Error {
	e.Hint = fmt.Sprintf(format, args...)
	return e
}

// WithStep records the step that produced the error.
func (e *Error) WithStep(step string) *Error {
	e.Step = step
	return e
}

// KindOf returns the kind of the outermost classified error in the chain,
// or "" when err is unclassified.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HintOf returns the first non-empty hint found in the chain.
func HintOf(err error) string {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return ""
		}
		if de.Hint != "" {
			return de.Hint
		}
		err = de.Err
	}
	return ""
}

// Cancelled reports whether err is a user cancellation, which exits 0.
func Cancelled(err error) bool {
	return Is(err, UserCancelled)
}
