// File: internal/backend/compose/compose.go
// Brief: Single-host backend driven by docker compose.

// Package compose installs the stack on one host: it writes the compose
// topology, proxy configs and secrets under the install directory and starts
// the services with the host's compose command.
package compose

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/config"
	"github.com/example/cosyctl/internal/credentials"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/execx"
	"github.com/example/cosyctl/internal/health"
	"github.com/example/cosyctl/internal/materialize"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// Layout of an install directory.
const (
	ComposeFile     = "docker-compose.yml"
	EnvFile         = ".env"
	CredentialsFile = "credentials.yaml"
	HtpasswdFile    = "loki/.htpasswd"
	LokiConfigFile  = "loki/loki-config.yaml"
	LogProxyFile    = "loki/nginx.conf"
	FrontProxyFile  = "nginx/nginx.conf"
	ComposeLogFile  = "logs/compose-up.log"
)

// templateDir is the template source directory holding compose artifacts.
const templateDir = "deploy/compose"

// Options configures the compose backend. Zero values pick production
// implementations.
type Options struct {
	Settings *config.Settings
	Runner   execx.Runner
	// Source overrides the template source built from Settings.
	Source materialize.Source
	Log    logr.Logger
	// Out receives streamed compose output.
	Out   io.Writer
	Clock clock.Clock

	PortCheck     func(port int) error
	ImageResolver func(ctx context.Context, ref string) (string, error)
	MetricsReady  func(ctx context.Context, url string) error
	ProbeFor      func(url string) health.Probe
}

// Backend is the compose execution target.
type Backend struct {
	opts Options
}

// New returns a compose backend with defaults filled in.
func New(opts Options) *Backend {
	if opts.Settings == nil {
		opts.Settings = config.NewSettings()
	}
	if opts.Runner == nil {
		opts.Runner = execx.NewOS()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.PortCheck == nil {
		opts.PortCheck = listenCheck
	}
	if opts.ImageResolver == nil {
		opts.ImageResolver = resolveImage
	}
	if opts.MetricsReady == nil {
		opts.MetricsReady = influxReady
	}
	if opts.ProbeFor == nil {
		opts.ProbeFor = func(url string) health.Probe {
			return health.HTTPProbe{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
		}
	}
	return &Backend{opts: opts}
}

func (b *Backend) Name() request.Backend { return request.Compose }

// Begin opens an install session rooted at the request's directory.
func (b *Backend) Begin(ctx context.Context, req *request.DeploymentRequest) (backend.Session, error) {
	if req.Backend() != request.Compose {
		return nil, deployerr.Newf(deployerr.InvalidInput, "compose backend cannot install a %s request", req.Backend())
	}
	src := b.opts.Source
	if src == nil {
		var err error
		src, err = materialize.NewSource(ctx, b.opts.Settings.SourceURL, b.opts.Settings.SourceRef)
		if err != nil {
			return nil, deployerr.New(deployerr.InvalidInput, err)
		}
	}
	log := b.opts.Log.WithValues("backend", "compose", "dir", req.Handle())
	return &session{
		b:   b,
		req: req,
		dir: req.Handle(),
		log: log,
		mat: &materialize.Materializer{Source: src, Strict: b.opts.Settings.StrictPlaceholders, Log: log},
	}, nil
}

type session struct {
	b       *Backend
	req     *request.DeploymentRequest
	dir     string
	log     logr.Logger
	mat     *materialize.Materializer
	compose []string
	creds   credentials.Set
}

func (s *session) path(rel string) string {
	return filepath.Join(s.dir, filepath.FromSlash(rel))
}

func (s *session) CheckPrerequisites() []steps.Step {
	seq := []steps.Step{
		backend.Fatal("normalize_handle", s.normalizeHandle),
		backend.Fatal("create_directory", s.createDirectory),
		backend.Fatal("check_container_engine", func(ctx context.Context) error {
			return checkContainerEngine(ctx, s.b.opts.Runner)
		}),
		backend.Fatal("detect_compose_command", func(ctx context.Context) error {
			cmd, err := detectCompose(ctx, s.b.opts.Runner, s.b.opts.Settings.ComposeCommand)
			if err != nil {
				return err
			}
			s.compose = cmd
			s.log.V(1).Info("compose command detected", "command", cmd)
			return nil
		}),
		backend.Fatal("check_port", func(context.Context) error {
			return s.b.opts.PortCheck(s.req.Port())
		}),
	}
	if s.req.VerifyImages() || s.b.opts.Settings.VerifyImages {
		seq = append(seq, backend.Warn("verify_image_pins", func(ctx context.Context) error {
			return verifyImagePins(ctx, s.b.opts.Settings.Images.Refs(), s.b.opts.ImageResolver, s.log)
		}))
	}
	return seq
}

func (s *session) normalizeHandle(context.Context) error {
	if filepath.IsAbs(s.dir) && filepath.Clean(s.dir) == s.dir && filepath.Base(s.dir) == request.InstallSubdir {
		s.log.V(1).Info("install directory resolved", "path", s.dir)
		return nil
	}
	return deployerr.Newf(deployerr.InvalidInput, "install directory %s is not normalized", s.dir)
}

func (s *session) createDirectory(context.Context) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		kind := deployerr.FilesystemError
		if os.IsPermission(err) {
			kind = deployerr.DestinationUnwritable
		}
		return deployerr.New(kind, fmt.Errorf("create %s: %w", s.dir, err)).
			WithHint("choose a writable --path or re-run with sufficient privileges")
	}
	return nil
}

func (s *session) MaterializeConfig(creds credentials.Set) []steps.Step {
	s.creds = creds
	return []steps.Step{
		backend.Fatal("write_auth_file", s.writeAuthFile),
		backend.Fatal("materialize_config", s.materializeConfig),
		backend.Fatal("write_environment_file", s.writeEnvironmentFile),
		backend.Fatal("persist_credentials_summary", s.persistCredentialsSummary),
		backend.Fatal("validate_topology", func(ctx context.Context) error {
			return validateTopology(ctx, s.path(ComposeFile), s.path(EnvFile), s.b.opts.Settings.Project)
		}),
	}
}

func (s *session) placeholders() materialize.Placeholders {
	return backend.Placeholders(s.req, s.b.opts.Settings)
}

func (s *session) writeAuthFile(ctx context.Context) error {
	line := s.creds.Get(credentials.LogStore).DerivedHash
	if line == "" {
		return deployerr.Newf(deployerr.NoHashingToolAvailable, "log-store basic-auth line was not derived")
	}
	_, err := s.mat.Materialize(ctx, []materialize.Artifact{{
		Name:        "log-proxy-htpasswd",
		Inline:      []byte(line + "\n"),
		Destination: s.path(HtpasswdFile),
		Mode:        0o644,
		Sensitive:   true,
	}}, nil)
	return err
}

func (s *session) materializeConfig(ctx context.Context) error {
	_, err := s.mat.Materialize(ctx, templateArtifacts(s.dir), s.placeholders())
	return err
}

func templateArtifacts(dir string) []materialize.Artifact {
	at := func(rel string) string { return filepath.Join(dir, filepath.FromSlash(rel)) }
	return []materialize.Artifact{
		{Name: "service-topology", Source: templateDir + "/" + ComposeFile, Destination: at(ComposeFile)},
		{Name: "log-aggregator-config", Source: templateDir + "/" + LokiConfigFile, Destination: at(LokiConfigFile)},
		{Name: "log-proxy-config", Source: templateDir + "/" + LogProxyFile, Destination: at(LogProxyFile)},
		{Name: "front-proxy-config", Source: templateDir + "/" + FrontProxyFile, Destination: at(FrontProxyFile)},
	}
}

func (s *session) writeEnvironmentFile(ctx context.Context) error {
	content := renderEnv(envEntries(s.req, s.b.opts.Settings, s.creds))
	_, err := s.mat.Materialize(ctx, []materialize.Artifact{{
		Name:        "environment",
		Inline:      content,
		Destination: s.path(EnvFile),
		Mode:        0o600,
		Sensitive:   true,
	}}, nil)
	return err
}

func (s *session) persistCredentialsSummary(ctx context.Context) error {
	content, err := renderCredentialsSummary(s.req, s.creds, s.b.opts.Clock.Now())
	if err != nil {
		return deployerr.New(deployerr.FilesystemError, err)
	}
	_, err = s.mat.Materialize(ctx, []materialize.Artifact{{
		Name:        "credentials-summary",
		Inline:      content,
		Destination: s.path(CredentialsFile),
		Mode:        0o600,
		Sensitive:   true,
	}}, nil)
	return err
}

func (s *session) Apply() []steps.Step {
	return []steps.Step{
		backend.Fatal("start_services", s.startServices),
	}
}

func (s *session) composeCommand(args ...string) execx.Command {
	compose := s.compose
	if len(compose) == 0 {
		compose = []string{"docker", "compose"}
	}
	base := append([]string(nil), compose[1:]...)
	base = append(base, "-p", s.b.opts.Settings.Project, "-f", ComposeFile, "--env-file", EnvFile)
	return execx.Command{Name: compose[0], Args: append(base, args...), Dir: s.dir}
}

func (s *session) startServices(ctx context.Context) error {
	if len(s.compose) == 0 {
		return deployerr.Newf(deployerr.PrerequisiteMissing, "compose command was not detected")
	}
	logPath := s.path(ComposeLogFile)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return deployerr.New(deployerr.FilesystemError, fmt.Errorf("create log directory: %w", err))
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return deployerr.New(deployerr.FilesystemError, fmt.Errorf("open %s: %w", logPath, err))
	}
	defer logFile.Close()

	cmd := s.composeCommand("up", "-d")
	s.log.Info("starting services", "command", cmd.String())
	if err := s.b.opts.Runner.Stream(ctx, cmd, io.MultiWriter(s.b.opts.Out, logFile)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("compose up: %w", err)).
			WithHint("full output saved to %s", logPath)
	}
	return nil
}

func (s *session) AwaitReady() []steps.Step {
	settings := s.b.opts.Settings
	return []steps.Step{
		backend.Fatal("await_ready", func(ctx context.Context) error {
			url := "http://127.0.0.1:" + strconv.Itoa(s.req.Port()) + settings.HealthPath
			gate := health.Gate{
				Interval:    settings.HealthInterval,
				MaxAttempts: settings.HealthAttempts,
				Clock:       s.b.opts.Clock,
				Log:         s.log,
			}
			res, err := gate.Await(ctx, s.b.opts.ProbeFor(url))
			if err != nil {
				return err
			}
			if res.Outcome == health.Timeout {
				return deployerr.New(deployerr.HealthTimeout, fmt.Errorf("%s not ready after %d attempts (%s): %v", url, res.Attempts, res.Elapsed, res.LastErr)).
					WithHint("inspect the services with: %s", s.composeCommand("logs").String())
			}
			s.log.Info("stack is serving", "url", url, "attempts", res.Attempts)
			return nil
		}),
		backend.Warn("check_metrics_store", func(ctx context.Context) error {
			return s.b.opts.MetricsReady(ctx, settings.MetricsURL)
		}),
	}
}

func (s *session) Summary() backend.Summary {
	return backend.Summary{
		Backend: request.Compose,
		Handle:  s.dir,
		URL:     s.req.CORSOrigin(),
		Files:   []string{s.path(CredentialsFile), s.path(EnvFile), s.path(ComposeLogFile)},
		Notes: []string{
			fmt.Sprintf("Log in as %q with the password stored in %s.", s.req.AdminUsername(), s.path(CredentialsFile)),
			fmt.Sprintf("Manage the services with: %s", s.composeCommand("ps").String()),
		},
	}
}

// Close is a no-op: compose artifacts are the installation and stay in place.
func (s *session) Close() error { return nil }

func listenCheck(port int) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return deployerr.New(deployerr.PortInUse, fmt.Errorf("port %d is not available: %w", port, err)).
			WithHint("stop the process bound to port %d or pass a different --port", port)
	}
	return ln.Close()
}
