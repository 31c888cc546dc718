package compose

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/execx"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/go-logr/logr"
)

// Locate verifies that req.Handle holds an install and detects the compose
// command. It never changes anything.
func (b *Backend) Locate(ctx context.Context, req *request.TeardownRequest) (backend.Installation, error) {
	if req.Backend != request.Compose {
		return nil, deployerr.Newf(deployerr.InvalidInput, "compose backend cannot remove a %s installation", req.Backend)
	}
	dir := req.Handle
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist) || (err == nil && !info.IsDir()):
		return nil, deployerr.Newf(deployerr.InstallationNotFound, "no installation at %s", dir).
			WithHint("pass the same --path used at install time")
	case err != nil:
		return nil, deployerr.New(deployerr.FilesystemError, fmt.Errorf("inspect %s: %w", dir, err)).
			WithHint("re-run with enough privileges to read %s", dir)
	}
	if _, err := os.Stat(filepath.Join(dir, ComposeFile)); err != nil {
		return nil, deployerr.Newf(deployerr.CorruptInstallation, "%s has no %s", dir, ComposeFile).
			WithHint("remove the directory manually if it holds nothing you need")
	}
	project, err := installedProject(dir)
	if err != nil {
		return nil, err
	}
	cmd, err := detectCompose(ctx, b.opts.Runner, b.opts.Settings.ComposeCommand)
	if err != nil {
		return nil, err
	}
	return &installation{
		b:       b,
		dir:     dir,
		project: project,
		compose: cmd,
		log:     b.opts.Log.WithValues("backend", "compose", "dir", dir, "project", project),
	}, nil
}

type installation struct {
	b   *Backend
	dir string
	// project is the compose project recorded by the install.
	project string
	compose []string
	log     logr.Logger

	forceRemoved int
	residue      []string
}

func (i *installation) Handle() string { return i.dir }

func (i *installation) Describe() string {
	return fmt.Sprintf("the Cosy installation in %s, all its containers and volumes", i.dir)
}

func (i *installation) Notes() []string {
	var notes []string
	if i.forceRemoved > 0 {
		notes = append(notes, fmt.Sprintf("Force-removed %d leftover container(s).", i.forceRemoved))
	}
	if len(i.residue) > 0 {
		notes = append(notes, fmt.Sprintf("%d container(s) could not be removed: %s", len(i.residue), strings.Join(i.residue, ", ")))
	}
	return notes
}

func (i *installation) Remove() []steps.Step {
	return []steps.Step{
		backend.Warn("compose_down", i.composeDown),
		backend.Warn("remove_leftover_containers", i.removeLeftovers),
		backend.Warn("remove_service_unit", i.removeServiceUnit),
		backend.Warn("remove_directory", func(context.Context) error {
			if err := os.RemoveAll(i.dir); err != nil {
				return deployerr.New(deployerr.FilesystemError, fmt.Errorf("remove %s: %w", i.dir, err)).
					WithHint("delete the directory manually, e.g. sudo rm -rf %s", i.dir)
			}
			return nil
		}),
		backend.Warn("check_residue", func(ctx context.Context) error {
			left, err := i.prefixedContainers(ctx)
			if err != nil {
				return err
			}
			i.residue = left
			if len(left) > 0 {
				return backend.Residue{Kind: "containers", Names: left}
			}
			return nil
		}),
	}
}

func (i *installation) composeDown(ctx context.Context) error {
	args := append([]string(nil), i.compose[1:]...)
	args = append(args, "-p", i.project, "-f", ComposeFile)
	if _, err := os.Stat(filepath.Join(i.dir, EnvFile)); err == nil {
		args = append(args, "--env-file", EnvFile)
	}
	args = append(args, "down", "--volumes", "--remove-orphans")
	return i.b.opts.Runner.Stream(ctx, execx.Command{Name: i.compose[0], Args: args, Dir: i.dir}, i.b.opts.Out)
}

// prefixedContainers lists containers, running or not, named after the project.
func (i *installation) prefixedContainers(ctx context.Context) ([]string, error) {
	prefix := i.project
	out, err := i.b.opts.Runner.Output(ctx, execx.Command{
		Name: "docker",
		Args: []string{"ps", "-a", "--filter", "name=" + prefix, "--format", "{{.Names}}"},
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		name := strings.TrimPrefix(strings.TrimSpace(line), "/")
		if strings.HasPrefix(name, prefix+"-") || strings.HasPrefix(name, prefix+"_") || name == prefix {
			names = append(names, name)
		}
	}
	return names, nil
}

func (i *installation) removeLeftovers(ctx context.Context) error {
	names, err := i.prefixedContainers(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, name := range names {
		if _, err := i.b.opts.Runner.Output(ctx, execx.Command{Name: "docker", Args: []string{"rm", "-f", name}}); err != nil {
			errs = append(errs, fmt.Errorf("remove container %s: %w", name, err))
			continue
		}
		i.forceRemoved++
	}
	if len(names) > 0 {
		i.log.Info("removed leftover containers", "count", i.forceRemoved, "found", len(names))
	}
	return errors.Join(errs...)
}

func (i *installation) removeServiceUnit(ctx context.Context) error {
	unitName := i.project + ".service"
	unit := filepath.Join(i.b.opts.Settings.SystemdUnitDir, unitName)
	if _, err := os.Stat(unit); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	var errs []error
	_, haveSystemctl := i.b.opts.Runner.LookPath("systemctl")
	if haveSystemctl == nil {
		if _, err := i.b.opts.Runner.Output(ctx, execx.Command{Name: "systemctl", Args: []string{"disable", "--now", unitName}}); err != nil {
			errs = append(errs, fmt.Errorf("disable %s: %w", unitName, err))
		}
	}
	if err := os.Remove(unit); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove %s: %w", unit, err))
	}
	if haveSystemctl == nil {
		if _, err := i.b.opts.Runner.Output(ctx, execx.Command{Name: "systemctl", Args: []string{"daemon-reload"}}); err != nil {
			errs = append(errs, fmt.Errorf("daemon-reload: %w", err))
		}
	}
	return errors.Join(errs...)
}
