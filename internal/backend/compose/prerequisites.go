package compose

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/distribution/reference"
	dockerconfig "github.com/docker/cli/cli/config"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/execx"
	"github.com/go-logr/logr"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
)

func checkContainerEngine(ctx context.Context, runner execx.Runner) error {
	if _, err := runner.LookPath("docker"); err != nil {
		return deployerr.New(deployerr.PrerequisiteMissing, fmt.Errorf("docker not found on PATH: %w", err)).
			WithHint("install Docker Engine: https://docs.docker.com/engine/install/")
	}
	out, err := runner.Output(ctx, execx.Command{Name: "docker", Args: []string{"info", "--format", "{{.ServerVersion}}"}})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return deployerr.New(deployerr.PrerequisiteUnreachable, fmt.Errorf("docker daemon is not responding: %w", err)).
			WithHint("start the daemon (sudo systemctl start docker) and check that your user may access it")
	}
	if strings.TrimSpace(string(out)) == "" {
		return deployerr.Newf(deployerr.PrerequisiteUnreachable, "docker info returned no server version")
	}
	return nil
}

// detectCompose returns the argv prefix of the compose command: an explicit
// override, the docker CLI plugin, or the standalone binary, in that order.
func detectCompose(ctx context.Context, runner execx.Runner, override string) ([]string, error) {
	if strings.TrimSpace(override) != "" {
		bin, args, err := execx.ParseCommandLine(override)
		if err != nil {
			return nil, deployerr.New(deployerr.InvalidInput, fmt.Errorf("parse --compose-command: %w", err))
		}
		if _, err := runner.LookPath(bin); err != nil {
			return nil, deployerr.New(deployerr.PrerequisiteMissing, fmt.Errorf("compose command %q not found: %w", bin, err))
		}
		if _, err := runner.Output(ctx, execx.Command{Name: bin, Args: append(append([]string(nil), args...), "version")}); err != nil {
			return nil, deployerr.New(deployerr.PrerequisiteMissing, fmt.Errorf("%s does not work: %w", override, err))
		}
		return append([]string{bin}, args...), nil
	}
	candidates := [][]string{
		{"docker", "compose"},
		{"docker-compose"},
	}
	for _, cand := range candidates {
		if _, err := runner.LookPath(cand[0]); err != nil {
			continue
		}
		args := append(append([]string(nil), cand[1:]...), "version")
		if _, err := runner.Output(ctx, execx.Command{Name: cand[0], Args: args}); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return cand, nil
	}
	pluginDir := filepath.Join(dockerconfig.Dir(), "cli-plugins")
	return nil, deployerr.Newf(deployerr.PrerequisiteMissing, "neither 'docker compose' nor 'docker-compose' is available").
		WithHint("install the compose plugin into %s or a system plugin directory, or install docker-compose", pluginDir)
}

// verifyImagePins resolves every pinned image reference in its registry.
func verifyImagePins(ctx context.Context, refs map[string]string, resolve func(context.Context, string) (string, error), log logr.Logger) error {
	names := make([]string, 0, len(refs))
	for component := range refs {
		names = append(names, component)
	}
	sort.Strings(names)
	var errs []error
	for _, component := range names {
		ref := refs[component]
		if _, err := reference.ParseNormalizedNamed(ref); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid image reference %q: %w", component, ref, err))
			continue
		}
		digest, err := resolve(ctx, ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: resolve %s: %w", component, ref, err))
			continue
		}
		log.V(1).Info("image pin resolved", "component", component, "image", ref, "digest", digest)
	}
	return errors.Join(errs...)
}

func resolveImage(ctx context.Context, ref string) (string, error) {
	parsed, err := name.ParseReference(ref)
	if err != nil {
		return "", err
	}
	desc, err := remote.Head(parsed, remote.WithContext(ctx), remote.WithAuthFromKeychain(authn.DefaultKeychain))
	if err != nil {
		return "", err
	}
	return desc.Digest.String(), nil
}
