// File: internal/request/request.go
// Brief: Validated install/teardown requests consumed by the engines.

// Package request turns front-end answers into immutable, validated
// DeploymentRequest and TeardownRequest values. Nothing in this package has
// side effects; every check runs before any backend is touched.
package request

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/mitchellh/go-homedir"
	"k8s.io/apimachinery/pkg/util/validation"
)

// Backend selects the execution target.
type Backend string

const (
	Compose Backend = "compose"
	Cluster Backend = "cluster"
)

const (
	DefaultInstallPath = "~"
	InstallSubdir      = "cosy"
	DefaultNamespace   = "cosy"
	DefaultUsername    = "admin"
	DefaultDomain      = "localhost"
	DefaultPort        = 80
)

// Params is the raw input collected by the flag/prompt front end.
type Params struct {
	Backend       Backend
	Handle        string
	AdminUsername string
	Port          int
	Domain        string
	VerifyImages  bool
}

// DeploymentRequest is the validated, read-only description of one install.
type DeploymentRequest struct {
	backend       Backend
	handle        string
	adminUsername string
	port          int
	domain        string
	verifyImages  bool
}

// New validates p and returns an immutable request. The compose handle is
// normalized here so install and teardown agree on it.
func New(p Params) (*DeploymentRequest, error) {
	req := &DeploymentRequest{
		backend:       p.Backend,
		adminUsername: strings.TrimSpace(p.AdminUsername),
		port:          p.Port,
		domain:        strings.TrimSpace(p.Domain),
		verifyImages:  p.VerifyImages,
	}
	if req.adminUsername == "" {
		return nil, deployerr.Newf(deployerr.InvalidInput, "admin username must not be empty")
	}
	if strings.ContainsAny(req.adminUsername, ": \t\n") {
		return nil, deployerr.Newf(deployerr.InvalidInput, "admin username %q must not contain ':' or whitespace", req.adminUsername)
	}
	if err := ValidateDomain(req.domain); err != nil {
		return nil, err
	}
	switch p.Backend {
	case Compose:
		if err := ValidatePort(p.Port); err != nil {
			return nil, err
		}
		dir, err := NormalizeInstallDir(p.Handle)
		if err != nil {
			return nil, err
		}
		req.handle = dir
	case Cluster:
		ns, err := ValidateNamespace(p.Handle)
		if err != nil {
			return nil, err
		}
		req.handle = ns
		req.port = DefaultPort
	default:
		return nil, deployerr.Newf(deployerr.InvalidInput, "unknown backend %q", p.Backend)
	}
	return req, nil
}

func (r *DeploymentRequest) Backend() Backend { return r.backend }
func (r *DeploymentRequest) Handle() string { return r.handle }
func (r *DeploymentRequest) AdminUsername() string { return r.adminUsername }
func (r *DeploymentRequest) Port() int { return r.port }
func (r *DeploymentRequest) Domain() string { return r.domain }
func (r *DeploymentRequest) VerifyImages() bool { return r.verifyImages }

// CORSOrigin is the literal origin string the services compare against.
func (r *DeploymentRequest) CORSOrigin() string {
	return CORSOrigin(r.domain, r.port)
}

// CORSOrigin derives the browser origin for domain and port: the port is
// omitted for 80, the scheme is always plain http and there is no trailing
// slash.
func CORSOrigin(domain string, port int) string {
	if port == 80 {
		return "http://" + domain
	}
	return "http://" + domain + ":" + strconv.Itoa(port)
}

// ValidatePort rejects ports outside [1, 65535].
func ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return deployerr.Newf(deployerr.InvalidInput, "port %d is out of range (1-65535)", port)
	}
	return nil
}

// ParsePort parses and range-checks a textual port.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, deployerr.Newf(deployerr.InvalidInput, "port %q is not a number", s)
	}
	if err := ValidatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}

// ValidateDomain accepts a bare host name or IP address.
func ValidateDomain(domain string) error {
	if domain == "" {
		return deployerr.Newf(deployerr.InvalidInput, "domain must not be empty")
	}
	if strings.Contains(domain, "://") || strings.ContainsAny(domain, "/ \t:") {
		return deployerr.Newf(deployerr.InvalidInput, "domain %q must be a bare host name without scheme, port or path", domain)
	}
	if errs := validation.IsDNS1123Subdomain(strings.ToLower(domain)); len(errs) > 0 {
		return deployerr.Newf(deployerr.InvalidInput, "domain %q is invalid: %s", domain, strings.Join(errs, "; "))
	}
	return nil
}

// ValidateNamespace returns the namespace unchanged when it is a valid
// DNS-1123 label. Names are case-sensitive and are not lowered.
func ValidateNamespace(ns string) (string, error) {
	ns = strings.TrimSpace(ns)
	if ns == "" {
		ns = DefaultNamespace
	}
	if errs := validation.IsDNS1123Label(ns); len(errs) > 0 {
		return "", deployerr.Newf(deployerr.InvalidInput, "namespace %q is invalid: %s", ns, strings.Join(errs, "; "))
	}
	return ns, nil
}

// NormalizeInstallDir expands "~", makes the path absolute, strips trailing
// separators and appends the fixed install sub-directory.
func NormalizeInstallDir(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultInstallPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", deployerr.New(deployerr.InvalidInput, fmt.Errorf("expand install path %q: %w", path, err))
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", deployerr.New(deployerr.InvalidInput, fmt.Errorf("resolve install path %q: %w", path, err))
	}
	return filepath.Join(filepath.Clean(abs), InstallSubdir), nil
}

// TeardownRequest identifies an installation to remove.
type TeardownRequest struct {
	Backend   Backend
	Handle    string
	AssumeYes bool
}

// NewTeardown normalizes the handle with the same rules install used.
func NewTeardown(backend Backend, handle string, assumeYes bool) (*TeardownRequest, error) {
	req := &TeardownRequest{Backend: backend, AssumeYes: assumeYes}
	switch backend {
	case Compose:
		dir, err := NormalizeInstallDir(handle)
		if err != nil {
			return nil, err
		}
		req.Handle = dir
	case Cluster:
		ns, err := ValidateNamespace(handle)
		if err != nil {
			return nil, err
		}
		req.Handle = ns
	default:
		return nil, deployerr.Newf(deployerr.InvalidInput, "unknown backend %q", backend)
	}
	return req, nil
}
