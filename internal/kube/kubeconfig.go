package kube

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/example/cosyctl/internal/deployerr"
)

// Kubeconfig describes where cluster credentials come from.
type Kubeconfig struct {
	// Path is empty when client-go's default rules (KUBECONFIG or
	// in-cluster) apply.
	Path   string
	Source string
}

func (k Kubeconfig) String() string {
	if k.Path == "" {
		return k.Source
	}
	return fmt.Sprintf("%s (%s)", k.Path, k.Source)
}

// Overridable for tests.
var (
	getenv     = os.Getenv
	geteuid    = os.Geteuid
	lookupUser = user.Lookup
	fileExists = func(p string) bool {
		info, err := os.Stat(p)
		return err == nil && !info.IsDir()
	}
)

// ResolveKubeconfig picks the cluster configuration: an explicit path,
// then KUBECONFIG, then the invoking user's config when running under sudo,
// then ~/.kube/config, then in-cluster service account settings.
func ResolveKubeconfig(explicit string) (Kubeconfig, error) {
	if explicit != "" {
		p, err := expandPath(explicit)
		if err != nil {
			return Kubeconfig{}, deployerr.New(deployerr.InvalidInput, err)
		}
		if !fileExists(p) {
			return Kubeconfig{}, deployerr.Newf(deployerr.PrerequisiteMissing, "kubeconfig %s not found", p).
				WithHint("pass an existing file to --kubeconfig")
		}
		return Kubeconfig{Path: p, Source: "--kubeconfig"}, nil
	}
	if env := getenv("KUBECONFIG"); env != "" {
		return Kubeconfig{Source: "KUBECONFIG=" + env}, nil
	}
	if geteuid() == 0 {
		if name := getenv("SUDO_USER"); name != "" && name != "root" {
			if u, err := lookupUser(name); err == nil && u.HomeDir != "" {
				p := filepath.Join(u.HomeDir, ".kube", "config")
				if fileExists(p) {
					return Kubeconfig{Path: p, Source: "sudo user " + name}, nil
				}
			}
		}
	}
	if p, err := expandPath("~/.kube/config"); err == nil && fileExists(p) {
		return Kubeconfig{Path: p, Source: "default"}, nil
	}
	if getenv("KUBERNETES_SERVICE_HOST") != "" {
		return Kubeconfig{Source: "in-cluster"}, nil
	}
	return Kubeconfig{}, deployerr.Newf(deployerr.PrerequisiteMissing, "no kubeconfig found").
		WithHint("set KUBECONFIG, pass --kubeconfig, or create ~/.kube/config")
}
