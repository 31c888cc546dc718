// File: internal/install/install.go
// Brief: Top-level install flow shared by both backends.

// Package install drives one backend session through its phases:
// prerequisites, credentials, configuration, apply and readiness.
package install

import (
	"context"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/config"
	"github.com/example/cosyctl/internal/credentials"
	"github.com/example/cosyctl/internal/execx"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/go-logr/logr"
)

// Engine installs a validated request on the backend it names.
type Engine struct {
	Registry backend.Registry
	Settings *config.Settings
	// Runner backs the external hashers; defaults to the OS runner.
	Runner execx.Runner
	// Hashers overrides the chain built from Settings.Hashers.
	Hashers   []credentials.Hasher
	Log       logr.Logger
	Observers []steps.Observer
}

// Result is what a finished (or aborted) install reports.
type Result struct {
	Summary backend.Summary
	Report  steps.Report
}

type phase struct {
	name  string
	build func() []steps.Step
}

// Install runs every phase in order and stops at the first fatal step. The
// session is closed on every exit path, including cancellation.
func (e *Engine) Install(ctx context.Context, req *request.DeploymentRequest) (res Result, err error) {
	b, err := e.Registry.Get(req.Backend())
	if err != nil {
		return res, err
	}
	hashers, err := e.hashers()
	if err != nil {
		return res, err
	}
	log := e.Log.WithValues("backend", string(req.Backend()), "handle", req.Handle())

	sess, err := b.Begin(ctx, req)
	if err != nil {
		return res, err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			log.Error(cerr, "release session")
			res.Report.Warnings = append(res.Report.Warnings, steps.Warning{Step: "close_session", Err: cerr})
		}
	}()

	var creds credentials.Set
	gen := &credentials.Generator{Hashers: hashers}
	phases := []phase{
		{"check_prerequisites", sess.CheckPrerequisites},
		{"generate_credentials", func() []steps.Step {
			return []steps.Step{backend.Fatal("generate_credentials", func(ctx context.Context) error {
				set, err := gen.Generate(ctx, req.AdminUsername())
				if err != nil {
					return err
				}
				log.Info("credentials generated", "accounts", set.Redacted())
				creds = set
				return nil
			})}
		}},
		// Built lazily so the session sees the credentials generated above.
		{"materialize_config", func() []steps.Step { return sess.MaterializeConfig(creds) }},
		{"apply", sess.Apply},
		{"await_ready", sess.AwaitReady},
	}

	runner := steps.Runner{Log: log, Observers: e.Observers}
	for _, p := range phases {
		seq := p.build()
		log.V(1).Info("phase started", "phase", p.name, "steps", len(seq))
		report, err := runner.Run(ctx, seq)
		res.Report.Merge(report)
		if err != nil {
			log.V(1).Info("phase aborted", "phase", p.name, "step", report.Failed)
			return res, err
		}
	}
	res.Summary = sess.Summary()
	log.Info("install finished", "url", res.Summary.URL, "warnings", len(res.Report.Warnings))
	return res, nil
}

func (e *Engine) hashers() ([]credentials.Hasher, error) {
	if len(e.Hashers) > 0 {
		return e.Hashers, nil
	}
	runner := e.Runner
	if runner == nil {
		runner = execx.NewOS()
	}
	var names []string
	if e.Settings != nil {
		names = e.Settings.Hashers
	}
	return credentials.NewHashers(names, runner)
}
