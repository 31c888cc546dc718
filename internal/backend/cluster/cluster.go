// File: internal/backend/cluster/cluster.go
// Brief: Kubernetes backend: namespace, secrets, manifests and rollouts.

// Package cluster installs the stack into one Kubernetes namespace through
// client-go. Manifests are downloaded into a private staging directory,
// substituted, and applied group by group in dependency order.
package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/config"
	"github.com/example/cosyctl/internal/credentials"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/kube"
	"github.com/example/cosyctl/internal/materialize"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/go-logr/logr"
	"k8s.io/utils/clock"
)

// FieldManager identifies cosyctl on every write.
const FieldManager = "cosyctl"

// PartOfLabel marks every object created by an install.
const PartOfLabel = "app.kubernetes.io/part-of"

// templateDir is the template source directory holding manifest groups.
const templateDir = "deploy/cluster"

// Groups are applied in this order; later groups reference secrets and
// services created by earlier ones.
var Groups = []string{
	"datastore",
	"log-aggregator",
	"log-proxy",
	"metrics-store",
	"app-backend",
	"app-frontend",
	"ingress",
}

// Options configures the cluster backend.
type Options struct {
	Settings *config.Settings
	// NewClient builds the Kubernetes clients; defaults to kube.New with the
	// settings' kubeconfig and context.
	NewClient func(ctx context.Context) (*kube.Client, error)
	// Source overrides the template source built from Settings.
	Source materialize.Source
	Log    logr.Logger
	Clock  clock.Clock
	// StagingRoot holds the per-run staging directory; empty means the
	// system temp dir.
	StagingRoot string
}

// Backend is the cluster execution target.
type Backend struct {
	opts Options
}

// New returns a cluster backend with defaults filled in.
func New(opts Options) *Backend {
	if opts.Settings == nil {
		opts.Settings = config.NewSettings()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.NewClient == nil {
		settings := opts.Settings
		opts.NewClient = func(ctx context.Context) (*kube.Client, error) {
			return kube.New(ctx, settings.Kubeconfig, settings.KubeContext)
		}
	}
	return &Backend{opts: opts}
}

func (b *Backend) Name() request.Backend { return request.Cluster }

// Begin acquires the manifest staging directory. Close releases it.
func (b *Backend) Begin(ctx context.Context, req *request.DeploymentRequest) (backend.Session, error) {
	if req.Backend() != request.Cluster {
		return nil, deployerr.Newf(deployerr.InvalidInput, "cluster backend cannot install a %s request", req.Backend())
	}
	src := b.opts.Source
	if src == nil {
		var err error
		src, err = materialize.NewSource(ctx, b.opts.Settings.SourceURL, b.opts.Settings.SourceRef)
		if err != nil {
			return nil, deployerr.New(deployerr.InvalidInput, err)
		}
	}
	staging, err := os.MkdirTemp(b.opts.StagingRoot, "cosyctl-manifests-")
	if err != nil {
		return nil, deployerr.New(deployerr.FilesystemError, fmt.Errorf("create manifest staging directory: %w", err))
	}
	log := b.opts.Log.WithValues("backend", "cluster", "namespace", req.Handle())
	log.V(1).Info("staging directory acquired", "path", staging)
	return &session{
		b:         b,
		req:       req,
		namespace: req.Handle(),
		staging:   staging,
		log:       log,
		mat:       &materialize.Materializer{Source: src, Strict: b.opts.Settings.StrictPlaceholders, Log: log},
		staged:    map[string]string{},
	}, nil
}

type session struct {
	b         *Backend
	req       *request.DeploymentRequest
	namespace string
	staging   string
	log       logr.Logger
	mat       *materialize.Materializer

	client    *kube.Client
	creds     credentials.Set
	staged    map[string]string
	workloads []workload
	closed    bool
}

func (s *session) CheckPrerequisites() []steps.Step {
	return []steps.Step{
		backend.Fatal("resolve_kubeconfig", func(ctx context.Context) error {
			client, err := s.b.opts.NewClient(ctx)
			if err != nil {
				return err
			}
			s.client = client
			s.log.V(1).Info("kubeconfig resolved", "source", client.Kubeconfig.String())
			return nil
		}),
		backend.Fatal("check_cluster_reachable", func(ctx context.Context) error {
			info, err := s.client.Reachable(ctx)
			if err != nil {
				return err
			}
			s.log.Info("cluster reachable", "version", info.GitVersion)
			return nil
		}),
	}
}

func (s *session) MaterializeConfig(creds credentials.Set) []steps.Step {
	s.creds = creds
	return []steps.Step{
		backend.Fatal("create_namespace", func(ctx context.Context) error {
			return ensureNamespace(ctx, s.client.Clientset, s.namespace)
		}),
		backend.Fatal("create_secrets", func(ctx context.Context) error {
			for _, secret := range buildSecrets(s.namespace, s.creds, s.b.opts.Settings) {
				if err := ensureSecret(ctx, s.client.Clientset, secret); err != nil {
					return err
				}
				s.log.V(1).Info("secret applied", "name", secret.Name)
			}
			return nil
		}),
		backend.Fatal("materialize_config", s.stageManifests),
	}
}

func (s *session) placeholders() materialize.Placeholders {
	return backend.Placeholders(s.req, s.b.opts.Settings).
		Set(backend.PlaceholderNamespace, s.namespace)
}

func (s *session) stageManifests(ctx context.Context) error {
	artifacts := make([]materialize.Artifact, 0, len(Groups))
	for i, group := range Groups {
		dest := filepath.Join(s.staging, fmt.Sprintf("%02d-%s.yaml", i+1, group))
		artifacts = append(artifacts, materialize.Artifact{
			Name:        group,
			Source:      templateDir + "/" + group + ".yaml",
			Destination: dest,
			Mode:        0o600,
		})
		s.staged[group] = dest
	}
	_, err := s.mat.Materialize(ctx, artifacts, s.placeholders())
	return err
}

func (s *session) Apply() []steps.Step {
	return []steps.Step{
		backend.Fatal("apply_manifests", func(ctx context.Context) error {
			a := applier{client: s.client, namespace: s.namespace, log: s.log}
			for _, group := range Groups {
				path, ok := s.staged[group]
				if !ok {
					return deployerr.Newf(deployerr.FilesystemError, "manifest group %s was not staged", group)
				}
				data, err := os.ReadFile(path)
				if err != nil {
					return deployerr.New(deployerr.FilesystemError, fmt.Errorf("read staged %s: %w", group, err))
				}
				applied, err := a.applyDocuments(ctx, group, data)
				if err != nil {
					return err
				}
				s.workloads = append(s.workloads, applied...)
				s.log.Info("manifest group applied", "group", group)
			}
			return nil
		}),
	}
}

// AwaitReady returns one warn step per workload applied by Apply.
func (s *session) AwaitReady() []steps.Step {
	settings := s.b.opts.Settings
	seq := make([]steps.Step, 0, len(s.workloads))
	for _, w := range s.workloads {
		w := w
		seq = append(seq, backend.Warn("await_ready:"+w.String(), func(ctx context.Context) error {
			return awaitRollout(ctx, s.client, s.namespace, w, settings.RolloutPoll, settings.RolloutTimeout, s.b.opts.Clock, s.log)
		}))
	}
	return seq
}

func (s *session) Summary() backend.Summary {
	return backend.Summary{
		Backend: request.Cluster,
		Handle:  s.namespace,
		URL:     s.req.CORSOrigin(),
		Notes: []string{
			fmt.Sprintf("Admin credentials are stored in secret %s/%s.", s.namespace, SecretAdmin),
			fmt.Sprintf("Point DNS for %s at your ingress controller.", s.req.Domain()),
		},
	}
}

// Close removes the staging directory. It is safe to call more than once.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if s.client != nil && s.client.Calls != nil {
		sum := s.client.Calls.Summary()
		s.log.V(1).Info("kubernetes api usage", "requests", sum.Requests, "failed", sum.Failed, "byMethod", sum.ByMethod)
	}
	if err := os.RemoveAll(s.staging); err != nil {
		return fmt.Errorf("remove staging directory %s: %w", s.staging, err)
	}
	s.log.V(1).Info("staging directory released", "path", s.staging)
	return nil
}
