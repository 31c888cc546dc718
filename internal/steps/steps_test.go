package steps

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/go-logr/logr"
)

type recordingObserver struct {
	events []string
}

func (o *recordingObserver) StepStarted(name string) { o.events = append(o.events, "start:"+name) }
func (o *recordingObserver) StepCompleted(name, status, _ string) {
	o.events = append(o.events, status+":"+name)
}

func TestRunStopsAtFirstFatalFailure(t *testing.T) {
	var ran []string
	act := func(name string, err error) func(context.Context) error {
		return func(context.Context) error {
			ran = append(ran, name)
			return err
		}
	}
	boom := deployerr.Newf(deployerr.FilesystemError, "disk full")
	seq := []Step{
		{Name: "a", Action: act("a", nil)},
		{Name: "b", Action: act("b", boom)},
		{Name: "c", Action: act("c", nil)},
	}
	report, err := Runner{Log: logr.Discard()}.Run(context.Background(), seq)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !reflect.DeepEqual(ran, []string{"a", "b"}) {
		t.Fatalf("unexpected execution order %v", ran)
	}
	if report.Failed != "b" {
		t.Fatalf("expected failed step b, got %q", report.Failed)
	}
	var de *deployerr.Error
	if !errors.As(err, &de) || de.Step != "b" || de.Kind != deployerr.FilesystemError {
		t.Fatalf("expected stamped FilesystemError, got %#v", err)
	}
}

func TestRunContinuesPastWarnings(t *testing.T) {
	obs := &recordingObserver{}
	seq := []Step{
		{Name: "remove_leftovers", Severity: Warn, Action: func(context.Context) error { return errors.New("nothing to remove") }},
		{Name: "delete_dir", Action: func(context.Context) error { return nil }},
	}
	report, err := Runner{Log: logr.Discard(), Observers: []Observer{obs}}.Run(context.Background(), seq)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].Step != "remove_leftovers" {
		t.Fatalf("unexpected warnings %v", report.Warnings)
	}
	if !reflect.DeepEqual(report.Completed, []string{"delete_dir"}) {
		t.Fatalf("unexpected completed %v", report.Completed)
	}
	want := []string{"start:remove_leftovers", "warning:remove_leftovers", "start:delete_dir", "succeeded:delete_dir"}
	if !reflect.DeepEqual(obs.events, want) {
		t.Fatalf("unexpected observer events %v", obs.events)
	}
}

func TestRunClassifiesPlainErrorsAsBackendFailures(t *testing.T) {
	seq := []Step{{Name: "start_services", Action: func(context.Context) error { return errors.New("exit status 1") }}}
	_, err := Runner{Log: logr.Discard()}.Run(context.Background(), seq)
	if deployerr.KindOf(err) != deployerr.BackendCommandFailure {
		t.Fatalf("expected BackendCommandFailure, got %v", err)
	}
}

func TestRunRecoversPanics(t *testing.T) {
	seq := []Step{{Name: "explode", Action: func(context.Context) error { panic("boom") }}}
	_, err := Runner{Log: logr.Discard()}.Run(context.Background(), seq)
	if err == nil {
		t.Fatalf("expected error from panicking step")
	}
}

func TestRunHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	seq := []Step{{Name: "a", Action: func(context.Context) error { called = true; return nil }}}
	report, err := Runner{Log: logr.Discard()}.Run(ctx, seq)
	if !errors.Is(err, context.Canceled) || called || report.Failed != "a" {
		t.Fatalf("expected cancellation before running, got err=%v called=%v", err, called)
	}
}

func TestNames(t *testing.T) {
	got := Names([]Step{{Name: "x"}, {Name: "y"}})
	if !reflect.DeepEqual(got, []string{"x", "y"}) {
		t.Fatalf("unexpected names %v", got)
	}
}
