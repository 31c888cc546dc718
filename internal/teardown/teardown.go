// File: internal/teardown/teardown.go
// Brief: Locate, confirm and remove an existing installation.

// Package teardown removes an installation identified only by its handle.
// It never needs the credentials generated at install time.
package teardown

import (
	"context"
	"fmt"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/go-logr/logr"
)

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, question string) (bool, error)
}

// Engine runs the removal flow.
type Engine struct {
	Registry  backend.Registry
	Confirm   Confirmer
	Log       logr.Logger
	Observers []steps.Observer
}

// Result describes a finished removal.
type Result struct {
	Handle string
	Report steps.Report
	Notes  []string
}

// Teardown locates the installation, asks for confirmation unless
// req.AssumeYes is set, then runs the backend's removal steps. Nothing is
// changed before the confirmation is given.
func (e *Engine) Teardown(ctx context.Context, req *request.TeardownRequest) (Result, error) {
	res := Result{Handle: req.Handle}
	b, err := e.Registry.Get(req.Backend)
	if err != nil {
		return res, err
	}
	log := e.Log.WithValues("backend", string(req.Backend), "handle", req.Handle)

	inst, err := b.Locate(ctx, req)
	if err != nil {
		return res, err
	}
	if !req.AssumeYes {
		if e.Confirm == nil {
			return res, deployerr.Newf(deployerr.UserCancelled, "confirmation required").
				WithHint("pass --yes to remove without asking")
		}
		ok, err := e.Confirm.Confirm(ctx, fmt.Sprintf("This permanently deletes %s. Continue?", inst.Describe()))
		if err != nil {
			return res, err
		}
		if !ok {
			log.V(1).Info("removal declined")
			return res, deployerr.Newf(deployerr.UserCancelled, "uninstall cancelled")
		}
	}

	report, err := steps.Runner{Log: log, Observers: e.Observers}.Run(ctx, inst.Remove())
	res.Report = report
	res.Notes = inst.Notes()
	if err != nil {
		return res, err
	}
	log.Info("uninstall finished", "warnings", len(report.Warnings))
	return res, nil
}
