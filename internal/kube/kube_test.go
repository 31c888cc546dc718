package kube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/mitchellh/go-homedir"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	k8stesting "k8s.io/client-go/testing"
)

func stubEnv(t *testing.T, env map[string]string, euid int) {
	t.Helper()
	oldGetenv, oldEuid, oldLookup := getenv, geteuid, lookupUser
	t.Cleanup(func() { getenv, geteuid, lookupUser = oldGetenv, oldEuid, oldLookup })
	getenv = func(k string) string { return env[k] }
	geteuid = func() int { return euid }
	lookupUser = func(name string) (*user.User, error) {
		if home, ok := env["home:"+name]; ok {
			return &user.User{Username: name, HomeDir: home}, nil
		}
		return nil, user.UnknownUserError(name)
	}
}

func writeKubeconfig(t *testing.T, home string) string {
	t.Helper()
	p := filepath.Join(home, ".kube", "config")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("apiVersion: v1\nkind: Config\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestResolveKubeconfigOrder(t *testing.T) {
	homedir.DisableCache = true
	t.Cleanup(func() { homedir.DisableCache = false })
	home := t.TempDir()
	t.Setenv("HOME", home)

	explicit := writeKubeconfig(t, t.TempDir())
	stubEnv(t, map[string]string{"KUBECONFIG": "/env/config"}, 1000)
	kc, err := ResolveKubeconfig(explicit)
	if err != nil || kc.Path != explicit {
		t.Fatalf("explicit path should win, got %+v %v", kc, err)
	}

	kc, err = ResolveKubeconfig("")
	if err != nil || kc.Path != "" || kc.Source != "KUBECONFIG=/env/config" {
		t.Fatalf("KUBECONFIG should be next, got %+v %v", kc, err)
	}

	sudoHome := t.TempDir()
	sudoConfig := writeKubeconfig(t, sudoHome)
	stubEnv(t, map[string]string{"SUDO_USER": "dev", "home:dev": sudoHome}, 0)
	kc, err = ResolveKubeconfig("")
	if err != nil || kc.Path != sudoConfig {
		t.Fatalf("sudo user config expected, got %+v %v", kc, err)
	}

	stubEnv(t, map[string]string{}, 1000)
	if _, err := ResolveKubeconfig(""); !deployerr.Is(err, deployerr.PrerequisiteMissing) {
		t.Fatalf("expected PrerequisiteMissing, got %v", err)
	}
	own := writeKubeconfig(t, home)
	kc, err = ResolveKubeconfig("")
	if err != nil || kc.Path != own {
		t.Fatalf("default config expected, got %+v %v", kc, err)
	}
}

func TestResolveKubeconfigMissingExplicit(t *testing.T) {
	stubEnv(t, map[string]string{}, 1000)
	_, err := ResolveKubeconfig(filepath.Join(t.TempDir(), "nope"))
	if !deployerr.Is(err, deployerr.PrerequisiteMissing) {
		t.Fatalf("expected PrerequisiteMissing, got %v", err)
	}
}

func TestReachable(t *testing.T) {
	cs := fake.NewSimpleClientset()
	c := &Client{Clientset: cs}
	if _, err := c.Reachable(context.Background()); err != nil {
		t.Fatalf("expected reachable: %v", err)
	}
	cs.PrependReactor("get", "version", func(k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})
	// FakeDiscovery invokes reactors for the version action.
	if _, err := c.Reachable(context.Background()); !deployerr.Is(err, deployerr.PrerequisiteUnreachable) {
		t.Fatalf("expected PrerequisiteUnreachable, got %v", err)
	}
}

func TestCallStatsCountsRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &rest.Config{Host: srv.URL}
	stats := NewCallStats()
	AttachCallStats(cfg, stats)
	rt, err := rest.TransportFor(cfg)
	if err != nil {
		t.Fatalf("transport: %v", err)
	}
	client := &http.Client{Transport: rt}
	for _, method := range []string{http.MethodGet, http.MethodGet, http.MethodDelete} {
		req, _ := http.NewRequest(method, srv.URL, nil)
		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		resp.Body.Close()
	}
	sum := stats.Summary()
	if sum.Requests != 3 || sum.ByMethod[http.MethodGet] != 2 || sum.Failed != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
}
