// File: internal/steps/steps.go
// Brief: Ordered provision steps and the driver loop that runs them.

// Package steps models an apply/remove sequence as data: an ordered list of
// named steps, each fatal or warn-on-failure, executed by Run.
package steps

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/go-logr/logr"
)

// Severity decides what a failing step does to the run.
type Severity int

const (
	// Fatal aborts the sequence.
	Fatal Severity = iota
	// Warn records the failure and continues with the next step.
	Warn
)

func (s Severity) String() string {
	if s == Warn {
		return "warn"
	}
	return "fatal"
}

// Step is one named unit of a sequence.
type Step struct {
	Name     string
	Severity Severity
	Action   func(ctx context.Context) error
}

// Warning is a non-fatal step failure.
type Warning struct {
	Step string
	Err  error
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: %v", w.Step, w.Err)
}

// Report summarizes a completed (or aborted) run.
type Report struct {
	Completed []string
	Warnings  []Warning
	Failed    string
}

// Merge appends another report's results.
func (r *Report) Merge(other Report) {
	r.Completed = append(r.Completed, other.Completed...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	if other.Failed != "" {
		r.Failed = other.Failed
	}
}

// Observer receives step lifecycle notifications.
type Observer interface {
	StepStarted(name string)
	StepCompleted(name, status, message string)
}

// Runner executes step lists.
type Runner struct {
	Log       logr.Logger
	Observers []Observer
}

// Run executes seq in order. The first fatal failure stops the run and is
// returned with the step name recorded on it; warn failures are collected in
// the report.
func (r Runner) Run(ctx context.Context, seq []Step) (Report, error) {
	var report Report
	for _, step := range seq {
		if err := ctx.Err(); err != nil {
			report.Failed = step.Name
			return report, err
		}
		r.notifyStarted(step.Name)
		start := time.Now()
		r.Log.V(1).Info("step started", "step", step.Name, "severity", step.Severity.String())
		err := runAction(ctx, step)
		elapsed := time.Since(start).Round(time.Millisecond)
		if err == nil {
			report.Completed = append(report.Completed, step.Name)
			r.Log.V(1).Info("step finished", "step", step.Name, "elapsed", elapsed.String())
			r.notifyCompleted(step.Name, "succeeded", "")
			continue
		}
		if step.Severity == Warn {
			report.Warnings = append(report.Warnings, Warning{Step: step.Name, Err: err})
			r.Log.Info("step warning", "step", step.Name, "error", err.Error())
			r.notifyCompleted(step.Name, "warning", err.Error())
			continue
		}
		report.Failed = step.Name
		r.notifyCompleted(step.Name, "failed", err.Error())
		return report, stamp(step.Name, err)
	}
	return report, nil
}

func runAction(ctx context.Context, step Step) (err error) {
	if step.Action == nil {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in step %s: %v", step.Name, rec)
		}
	}()
	return step.Action(ctx)
}

// stamp records the step name on classified errors that lack one.
func stamp(name string, err error) error {
	var de *deployerr.Error
	if errors.As(err, &de) {
		if de.Step == "" {
			de.Step = name
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return &deployerr.Error{Kind: deployerr.BackendCommandFailure, Step: name, Err: err}
}

func (r Runner) notifyStarted(name string) {
	for _, obs := range r.Observers {
		if obs != nil {
			obs.StepStarted(name)
		}
	}
}

func (r Runner) notifyCompleted(name, status, message string) {
	message = strings.TrimSpace(message)
	for _, obs := range r.Observers {
		if obs != nil {
			obs.StepCompleted(name, status, message)
		}
	}
}

// Names lists the step names of seq, in order.
func Names(seq []Step) []string {
	out := make([]string, 0, len(seq))
	for _, s := range seq {
		out = append(out, s.Name)
	}
	return out
}
