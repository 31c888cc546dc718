package teardown

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/go-logr/logr"
)

type fakeBackend struct {
	missing bool
	removed []string
}

func (f *fakeBackend) Name() request.Backend { return request.Cluster }

func (f *fakeBackend) Begin(context.Context, *request.DeploymentRequest) (backend.Session, error) {
	return nil, errors.New("not used")
}

func (f *fakeBackend) Locate(_ context.Context, req *request.TeardownRequest) (backend.Installation, error) {
	if f.missing {
		return nil, deployerr.Newf(deployerr.NamespaceNotFound, "namespace %s does not exist", req.Handle)
	}
	return &fakeInstallation{f: f, handle: req.Handle}, nil
}

type fakeInstallation struct {
	f      *fakeBackend
	handle string
}

func (i *fakeInstallation) Handle() string   { return i.handle }
func (i *fakeInstallation) Describe() string { return "namespace " + i.handle }
func (i *fakeInstallation) Notes() []string  { return []string{"removed"} }

func (i *fakeInstallation) Remove() []steps.Step {
	return []steps.Step{
		backend.Fatal("delete_namespace", func(context.Context) error {
			i.f.removed = append(i.f.removed, i.handle)
			return nil
		}),
		backend.Warn("check_residue", func(context.Context) error {
			return backend.Residue{Kind: "containers", Names: []string{"cosy-debug"}}
		}),
	}
}

type scriptedConfirmer struct {
	answer bool
	err    error
	asked  []string
}

func (c *scriptedConfirmer) Confirm(_ context.Context, q string) (bool, error) {
	c.asked = append(c.asked, q)
	return c.answer, c.err
}

func newRequest(t *testing.T, yes bool) *request.TeardownRequest {
	t.Helper()
	req, err := request.NewTeardown(request.Cluster, "cosy", yes)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return req
}

func TestTeardownSkipFlagNeverAsks(t *testing.T) {
	fb := &fakeBackend{}
	confirm := &scriptedConfirmer{}
	e := &Engine{Registry: backend.NewRegistry(fb), Confirm: confirm, Log: logr.Discard()}
	res, err := e.Teardown(context.Background(), newRequest(t, true))
	if err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if len(confirm.asked) != 0 {
		t.Fatalf("confirmation asked despite --yes: %v", confirm.asked)
	}
	if !reflect.DeepEqual(fb.removed, []string{"cosy"}) {
		t.Fatalf("removed = %v", fb.removed)
	}
	if len(res.Report.Warnings) != 1 || res.Report.Warnings[0].Step != "check_residue" {
		t.Fatalf("warnings = %v", res.Report.Warnings)
	}
	if !reflect.DeepEqual(res.Notes, []string{"removed"}) {
		t.Fatalf("notes = %v", res.Notes)
	}
}

func TestTeardownDeclinedChangesNothing(t *testing.T) {
	fb := &fakeBackend{}
	confirm := &scriptedConfirmer{answer: false}
	e := &Engine{Registry: backend.NewRegistry(fb), Confirm: confirm, Log: logr.Discard()}
	_, err := e.Teardown(context.Background(), newRequest(t, false))
	if !deployerr.Is(err, deployerr.UserCancelled) {
		t.Fatalf("err = %v, want UserCancelled", err)
	}
	if len(confirm.asked) != 1 {
		t.Fatalf("asked = %v", confirm.asked)
	}
	if len(fb.removed) != 0 {
		t.Fatalf("removed despite decline: %v", fb.removed)
	}
}

func TestTeardownConfirmed(t *testing.T) {
	fb := &fakeBackend{}
	e := &Engine{Registry: backend.NewRegistry(fb), Confirm: &scriptedConfirmer{answer: true}, Log: logr.Discard()}
	if _, err := e.Teardown(context.Background(), newRequest(t, false)); err != nil {
		t.Fatalf("teardown: %v", err)
	}
	if len(fb.removed) != 1 {
		t.Fatalf("removed = %v", fb.removed)
	}
}

func TestTeardownMissingHandleIsNonDestructive(t *testing.T) {
	fb := &fakeBackend{missing: true}
	confirm := &scriptedConfirmer{answer: true}
	e := &Engine{Registry: backend.NewRegistry(fb), Confirm: confirm, Log: logr.Discard()}
	_, err := e.Teardown(context.Background(), newRequest(t, false))
	if !deployerr.Is(err, deployerr.NamespaceNotFound) {
		t.Fatalf("err = %v, want NamespaceNotFound", err)
	}
	if len(confirm.asked) != 0 || len(fb.removed) != 0 {
		t.Fatalf("asked=%v removed=%v", confirm.asked, fb.removed)
	}
}

func TestTeardownWithoutConfirmerCancels(t *testing.T) {
	fb := &fakeBackend{}
	e := &Engine{Registry: backend.NewRegistry(fb), Log: logr.Discard()}
	_, err := e.Teardown(context.Background(), newRequest(t, false))
	if !deployerr.Is(err, deployerr.UserCancelled) {
		t.Fatalf("err = %v, want UserCancelled", err)
	}
	if len(fb.removed) != 0 {
		t.Fatalf("removed = %v", fb.removed)
	}
}
