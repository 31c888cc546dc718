package cluster

import (
	"context"
	"fmt"

	"github.com/example/cosyctl/internal/backend"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/kube"
	"github.com/example/cosyctl/internal/request"
	"github.com/example/cosyctl/internal/steps"
	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Locate checks that the cluster answers and the namespace exists.
func (b *Backend) Locate(ctx context.Context, req *request.TeardownRequest) (backend.Installation, error) {
	if req.Backend != request.Cluster {
		return nil, deployerr.Newf(deployerr.InvalidInput, "cluster backend cannot remove a %s installation", req.Backend)
	}
	client, err := b.opts.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := client.Reachable(ctx); err != nil {
		return nil, err
	}
	ns, err := client.Clientset.CoreV1().Namespaces().Get(ctx, req.Handle, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, deployerr.Newf(deployerr.NamespaceNotFound, "namespace %s does not exist", req.Handle).
			WithHint("pass the same --namespace used at install time")
	}
	if err != nil {
		return nil, deployerr.New(deployerr.PrerequisiteUnreachable, fmt.Errorf("get namespace %s: %w", req.Handle, err))
	}
	return &installation{
		client:  client,
		ns:      req.Handle,
		managed: ns.Labels[PartOfLabel] == "cosy",
		log:     b.opts.Log.WithValues("backend", "cluster", "namespace", req.Handle),
	}, nil
}

type installation struct {
	client  *kube.Client
	ns      string
	managed bool
	log     logr.Logger
	deleted bool
}

func (i *installation) Handle() string { return i.ns }

func (i *installation) Describe() string {
	return fmt.Sprintf("namespace %s and every resource in it", i.ns)
}

func (i *installation) Notes() []string {
	var notes []string
	if !i.managed {
		notes = append(notes, fmt.Sprintf("Namespace %s was not labelled %s=cosy.", i.ns, PartOfLabel))
	}
	if i.deleted {
		notes = append(notes, fmt.Sprintf("Namespace %s deletion requested; the cluster finalizes it in the background.", i.ns))
	}
	return notes
}

func (i *installation) Remove() []steps.Step {
	return []steps.Step{
		backend.Fatal("delete_namespace", func(ctx context.Context) error {
			policy := metav1.DeletePropagationForeground
			err := i.client.Clientset.CoreV1().Namespaces().Delete(ctx, i.ns, metav1.DeleteOptions{PropagationPolicy: &policy})
			if err != nil && !apierrors.IsNotFound(err) {
				return deployerr.New(deployerr.BackendCommandFailure, fmt.Errorf("delete namespace %s: %w", i.ns, err))
			}
			i.deleted = true
			i.log.Info("namespace deleted", "namespace", i.ns)
			return nil
		}),
	}
}
