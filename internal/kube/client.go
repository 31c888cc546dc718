// File: internal/kube/client.go
// Brief: Kubernetes clients for the cluster backend.

// client.go constructs the typed, dynamic and mapping clients used to
// install into and remove from a cluster.
package kube

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/mitchellh/go-homedir"
	"k8s.io/apimachinery/pkg/api/meta"
	"k8s.io/apimachinery/pkg/version"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/discovery/cached/memory"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/restmapper"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/tools/clientcmd/api"
)

// Client bundles the Kubernetes clients used by the cluster backend.
type Client struct {
	RESTConfig *rest.Config
	Clientset  kubernetes.Interface
	Dynamic    dynamic.Interface
	RESTMapper meta.RESTMapper
	// Kubeconfig records which configuration was used, for messages.
	Kubeconfig Kubeconfig
	Calls      *CallStats
}

// New resolves the kubeconfig and builds clients for the given context.
// It does not contact the API server; see Reachable.
func New(ctx context.Context, kubeconfigPath, contextName string) (*Client, error) {
	kc, err := ResolveKubeconfig(kubeconfigPath)
	if err != nil {
		return nil, err
	}
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kc.Path != "" {
		loadingRules.Precedence = []string{filepath.Clean(kc.Path)}
	}

	overrides := &clientcmd.ConfigOverrides{ClusterInfo: api.Cluster{Server: ""}}
	if contextName != "" {
		overrides.CurrentContext = contextName
	}
	clientConfig := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides)
	restConfig, err := clientConfig.ClientConfig()
	if err != nil {
		return nil, deployerr.New(deployerr.PrerequisiteMissing, fmt.Errorf("load kubeconfig from %s: %w", kc, err)).
			WithHint("pass --kubeconfig or --context pointing at the target cluster")
	}
	rest.SetDefaultWarningHandler(rest.NoWarnings{})
	restConfig.Timeout = 30 * time.Second
	restConfig.QPS = 50
	restConfig.Burst = 100

	calls := NewCallStats()
	AttachCallStats(restConfig, calls)

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create typed client: %w", err)
	}
	dyn, err := dynamic.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create dynamic client: %w", err)
	}
	discoveryClient, err := discovery.NewDiscoveryClientForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create discovery client: %w", err)
	}
	mapper := restmapper.NewDeferredDiscoveryRESTMapper(memory.NewMemCacheClient(discoveryClient))

	return &Client{
		RESTConfig: restConfig,
		Clientset:  clientset,
		Dynamic:    dyn,
		RESTMapper: mapper,
		Kubeconfig: kc,
		Calls:      calls,
	}, nil
}

// Reachable asks the API server for its version.
func (c *Client) Reachable(ctx context.Context) (*version.Info, error) {
	type result struct {
		info *version.Info
		err  error
	}
	done := make(chan result, 1)
	go func() {
		info, err := c.Clientset.Discovery().ServerVersion()
		done <- result{info, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, deployerr.New(deployerr.PrerequisiteUnreachable, fmt.Errorf("contact cluster: %w", r.err)).
				WithHint("check that the cluster is running and that %s grants access", c.Kubeconfig)
		}
		return r.info, nil
	}
}

// expandPath expands ~ and cleans p.
func expandPath(p string) (string, error) {
	expanded, err := homedir.Expand(p)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", p, err)
	}
	return filepath.Clean(expanded), nil
}
