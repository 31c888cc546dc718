// File: internal/backend/backend.go
// Brief: Contract shared by the compose and cluster backends.

// Package backend defines the provisioning contract both execution targets
// satisfy. A backend hands out ordered step lists for each phase; the install
// and teardown engines run them through steps.Runner so the same high-level
// flow drives either target.
package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/example/cosyctl/internal/credentials"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
)

// Backend is one execution target.
type Backend interface {
	Name() request.Backend
	// Begin opens an install session for req. Callers must Close the
	// session on every exit path.
	Begin(ctx context.Context, req *request.DeploymentRequest) (Session, error)
	// Locate finds an existing installation without changing it.
	Locate(ctx context.Context, req *request.TeardownRequest) (Installation, error)
}

// Session is one in-flight install. Each phase returns the steps to run; the
// materialize phase receives the credentials generated after prerequisites
// passed.
type Session interface {
	CheckPrerequisites() []steps.Step
	MaterializeConfig(creds credentials.Set) []steps.Step
	Apply() []steps.Step
	AwaitReady() []steps.Step
	// Summary describes how to reach the stack once the phases succeeded.
	Summary() Summary
	Close() error
}

// Installation is an existing install found by Locate.
type Installation interface {
	Handle() string
	// Describe is shown in the confirmation prompt.
	Describe() string
	Remove() []steps.Step
	// Notes reports what removal found, such as counted leftovers.
	Notes() []string
}

// Summary is the access information printed after a successful install.
type Summary struct {
	Backend request.Backend
	Handle  string
	URL     string
	// Files lists persisted artifacts worth pointing the operator at.
	Files []string
	Notes []string
}

// Registry selects a backend by name.
type Registry map[request.Backend]Backend

// NewRegistry indexes backends by their name.
func NewRegistry(backends ...Backend) Registry {
	r := Registry{}
	for _, b := range backends {
		r[b.Name()] = b
	}
	return r
}

// Get returns the backend registered as name.
func (r Registry) Get(name request.Backend) (Backend, error) {
	if b, ok := r[name]; ok {
		return b, nil
	}
	names := make([]string, 0, len(r))
	for n := range r {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return nil, deployerr.Newf(deployerr.InvalidInput, "backend %q is not available (known: %s)", name, strings.Join(names, ", "))
}

// Fatal is shorthand for a fatal step.
func Fatal(name string, action func(ctx context.Context) error) steps.Step {
	return steps.Step{Name: name, Severity: steps.Fatal, Action: action}
}

// Warn is shorthand for a warn-on-failure step.
func Warn(name string, action func(ctx context.Context) error) steps.Step {
	return steps.Step{Name: name, Severity: steps.Warn, Action: action}
}

// Residue counts what a removal left behind.
type Residue struct {
	Kind  string
	Names []string
}

func (r Residue) Error() string {
	return fmt.Sprintf("%d %s still present: %s", len(r.Names), r.Kind, strings.Join(r.Names, ", "))
}
