// File: internal/config/config.go
// Brief: Runtime settings shared by install and uninstall commands.

// Package config defines the flag plumbing and runtime settings for cosyctl,
// translating Cobra/Viper flag values into a strongly typed struct that the
// backends and engines consume.
package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/example/cosyctl/internal/credentials"
	"github.com/example/cosyctl/internal/health"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	DefaultSourceURL      = "https://raw.githubusercontent.com/cosy-app/cosy"
	DefaultSourceRef      = "main"
	DefaultProject        = "cosy"
	DefaultSystemdUnitDir = "/etc/systemd/system"
	DefaultMetricsURL     = "http://127.0.0.1:8086"
	DefaultMetricsOrg     = "cosy"
	DefaultMetricsBucket  = "cosy"
)

// ImagePins are the version tags written into every install.
type ImagePins struct {
	App      string
	Postgres string
	Loki     string
	Nginx    string
	InfluxDB string
}

// Image repositories for each pinned component.
var imageRepositories = map[string]string{
	"app":      "ghcr.io/cosy-app/cosy",
	"postgres": "docker.io/library/postgres",
	"loki":     "docker.io/grafana/loki",
	"nginx":    "docker.io/library/nginx",
	"influxdb": "docker.io/library/influxdb",
}

// Refs returns the full image reference of every pinned component, keyed by
// component name.
func (p ImagePins) Refs() map[string]string {
	tags := map[string]string{
		"app":      p.App,
		"postgres": p.Postgres,
		"loki":     p.Loki,
		"nginx":    p.Nginx,
		"influxdb": p.InfluxDB,
	}
	out := make(map[string]string, len(tags))
	for name, tag := range tags {
		out[name] = imageRepositories[name] + ":" + tag
	}
	return out
}

// Settings holds every tunable of an install or uninstall run.
type Settings struct {
	LogLevel    string
	Kubeconfig  string
	KubeContext string

	SourceURL          string
	SourceRef          string
	StrictPlaceholders bool
	Images             ImagePins
	VerifyImages       bool

	ComposeCommand string
	Project        string
	SystemdUnitDir string

	HealthInterval time.Duration
	HealthAttempts int
	HealthPath     string

	MetricsURL    string
	MetricsOrg    string
	MetricsBucket string

	RolloutTimeout time.Duration
	RolloutPoll    time.Duration

	Hashers []string
}

// NewSettings returns Settings with defaults applied.
func NewSettings() *Settings {
	return &Settings{
		LogLevel:           "info",
		SourceURL:          DefaultSourceURL,
		SourceRef:          DefaultSourceRef,
		StrictPlaceholders: true,
		Images: ImagePins{
			App:      "latest",
			Postgres: "16-alpine",
			Loki:     "3.1.1",
			Nginx:    "1.27-alpine",
			InfluxDB: "2.7-alpine",
		},
		Project:        DefaultProject,
		SystemdUnitDir: DefaultSystemdUnitDir,
		HealthInterval: health.DefaultInterval,
		HealthAttempts: health.DefaultMaxAttempts,
		HealthPath:     "/",
		MetricsURL:     DefaultMetricsURL,
		MetricsOrg:     DefaultMetricsOrg,
		MetricsBucket:  DefaultMetricsBucket,
		RolloutTimeout: 5 * time.Minute,
		RolloutPoll:    2 * time.Second,
		Hashers:        append([]string(nil), credentials.DefaultHasherOrder...),
	}
}

// BindGlobalFlags attaches flags shared by every command.
func (s *Settings) BindGlobalFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.LogLevel, "log-level", s.LogLevel, "Log verbosity (debug, info, warn, error)")
	fs.StringVar(&s.Kubeconfig, "kubeconfig", s.Kubeconfig, "Path to the kubeconfig file (cluster backend)")
	fs.StringVar(&s.KubeContext, "context", s.KubeContext, "Kubeconfig context to use (cluster backend)")
	fs.StringVar(&s.SourceURL, "source-url", s.SourceURL, "Base URL of the configuration templates (https://, file:// or s3://)")
	fs.StringVar(&s.SourceRef, "source-ref", s.SourceRef, "Branch, tag or commit of the configuration templates")
	fs.StringVar(&s.Project, "project", s.Project, "Compose project name and container name prefix")
}

// BindInstallFlags attaches install-only tunables.
func (s *Settings) BindInstallFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&s.StrictPlaceholders, "strict-placeholders", s.StrictPlaceholders, "Fail when a rendered artifact still contains placeholder tokens")
	fs.BoolVar(&s.VerifyImages, "verify-images", s.VerifyImages, "Resolve every pinned image in its registry before starting services")
	fs.StringVar(&s.Images.App, "app-version", s.Images.App, "Cosy application image tag")
	fs.StringVar(&s.Images.Postgres, "postgres-version", s.Images.Postgres, "PostgreSQL image tag")
	fs.StringVar(&s.Images.Loki, "loki-version", s.Images.Loki, "Loki image tag")
	fs.StringVar(&s.Images.Nginx, "nginx-version", s.Images.Nginx, "nginx image tag")
	fs.StringVar(&s.Images.InfluxDB, "influxdb-version", s.Images.InfluxDB, "InfluxDB image tag")
	fs.StringVar(&s.ComposeCommand, "compose-command", s.ComposeCommand, "Override the compose command, e.g. \"docker compose\"")
	fs.StringVar(&s.SystemdUnitDir, "systemd-unit-dir", s.SystemdUnitDir, "Directory of the optional cosy.service unit")
	fs.DurationVar(&s.HealthInterval, "health-interval", s.HealthInterval, "Delay between readiness probes")
	fs.IntVar(&s.HealthAttempts, "health-attempts", s.HealthAttempts, "Readiness probes before giving up")
	fs.StringVar(&s.HealthPath, "health-path", s.HealthPath, "HTTP path probed on the exposed port")
	fs.StringVar(&s.MetricsURL, "metrics-url", s.MetricsURL, "Local InfluxDB URL checked after start (compose backend)")
	fs.StringVar(&s.MetricsOrg, "metrics-org", s.MetricsOrg, "InfluxDB organization created on first start")
	fs.StringVar(&s.MetricsBucket, "metrics-bucket", s.MetricsBucket, "InfluxDB bucket created on first start")
	fs.DurationVar(&s.RolloutTimeout, "rollout-timeout", s.RolloutTimeout, "Per-workload rollout wait (cluster backend)")
	fs.DurationVar(&s.RolloutPoll, "rollout-poll", s.RolloutPoll, "Rollout status poll interval (cluster backend)")
	fs.StringSliceVar(&s.Hashers, "hashers", s.Hashers, "Password hashers to try in order (htpasswd, openssl, bcrypt)")
}

// AddInstallFlags binds install flags to the provided Cobra command.
func (s *Settings) AddInstallFlags(cmd *cobra.Command) {
	s.BindInstallFlags(cmd.Flags())
}

// Validate ensures the settings are coherent.
func (s *Settings) Validate() error {
	u, err := url.Parse(strings.TrimSpace(s.SourceURL))
	if err != nil {
		return fmt.Errorf("invalid --source-url: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "file", "s3":
	default:
		return fmt.Errorf("--source-url must use https, http, file or s3, got %q", s.SourceURL)
	}
	if strings.TrimSpace(s.SourceRef) == "" {
		return fmt.Errorf("--source-ref must not be empty")
	}
	if s.Project == "" || strings.ContainsAny(s.Project, " /:") {
		return fmt.Errorf("--project %q must be a simple name", s.Project)
	}
	if s.HealthInterval <= 0 {
		return fmt.Errorf("--health-interval must be positive")
	}
	if s.HealthAttempts <= 0 {
		return fmt.Errorf("--health-attempts must be positive")
	}
	if !strings.HasPrefix(s.HealthPath, "/") {
		s.HealthPath = "/" + s.HealthPath
	}
	if s.RolloutTimeout <= 0 || s.RolloutPoll <= 0 {
		return fmt.Errorf("--rollout-timeout and --rollout-poll must be positive")
	}
	if len(s.Hashers) == 0 {
		return fmt.Errorf("--hashers must name at least one hasher")
	}
	known := map[string]bool{}
	for _, name := range credentials.DefaultHasherOrder {
		known[name] = true
	}
	for i, name := range s.Hashers {
		name = strings.ToLower(strings.TrimSpace(name))
		if !known[name] {
			names := append([]string(nil), credentials.DefaultHasherOrder...)
			sort.Strings(names)
			return fmt.Errorf("unknown hasher %q (expected one of %s)", name, strings.Join(names, ", "))
		}
		s.Hashers[i] = name
	}
	for name, tag := range map[string]string{
		"app-version":      s.Images.App,
		"postgres-version": s.Images.Postgres,
		"loki-version":     s.Images.Loki,
		"nginx-version":    s.Images.Nginx,
		"influxdb-version": s.Images.InfluxDB,
	} {
		if strings.TrimSpace(tag) == "" || strings.ContainsAny(tag, " :/@") {
			return fmt.Errorf("--%s %q is not a valid image tag", name, tag)
		}
	}
	return nil
}
