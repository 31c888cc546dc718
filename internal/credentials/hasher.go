// File: internal/credentials/hasher.go
// Brief: Basic-auth hashers tried in preference order.

package credentials

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/execx"
	"golang.org/x/crypto/bcrypt"
)

// ErrHasherUnavailable means the hasher's tool is not installed.
var ErrHasherUnavailable = errors.New("hasher unavailable")

// Hasher produces a password hash understood by HTTP basic-auth verifiers.
type Hasher interface {
	Name() string
	// Hash returns the hash part (without "user:"). It returns
	// ErrHasherUnavailable when the backing tool is missing.
	Hash(ctx context.Context, username, secret string) (string, error)
}

// Hasher names accepted in configuration, in default preference order.
const (
	HasherHtpasswd = "htpasswd"
	HasherOpenSSL  = "openssl"
	HasherBcrypt   = "bcrypt"
)

// DefaultHasherOrder is the preference order used when none is configured.
var DefaultHasherOrder = []string{HasherHtpasswd, HasherOpenSSL, HasherBcrypt}

// NewHashers builds a hasher chain from configured names.
func NewHashers(names []string, runner execx.Runner) ([]Hasher, error) {
	if len(names) == 0 {
		names = DefaultHasherOrder
	}
	out := make([]Hasher, 0, len(names))
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case HasherHtpasswd:
			out = append(out, HtpasswdHasher{Runner: runner})
		case HasherOpenSSL:
			out = append(out, OpenSSLHasher{Runner: runner})
		case HasherBcrypt:
			out = append(out, BcryptHasher{})
		default:
			return nil, deployerr.Newf(deployerr.InvalidInput, "unknown hasher %q (expected htpasswd, openssl or bcrypt)", name)
		}
	}
	return out, nil
}

// DeriveBasicAuth returns "username:hash" using the first usable hasher.
func DeriveBasicAuth(ctx context.Context, hashers []Hasher, username, secret string) (string, error) {
	var tried []string
	for _, h := range hashers {
		hash, err := h.Hash(ctx, username, secret)
		if errors.Is(err, ErrHasherUnavailable) {
			tried = append(tried, h.Name())
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%s: %w", h.Name(), err)
		}
		return username + ":" + hash, nil
	}
	return "", deployerr.Newf(deployerr.NoHashingToolAvailable, "no password hashing tool available (tried: %s)", strings.Join(tried, ", ")).
		WithHint("install apache2-utils (htpasswd) or openssl, or enable the built-in bcrypt hasher")
}

// HtpasswdHasher uses Apache's htpasswd in bcrypt mode, reading the password
// from stdin so it never shows up in the process list.
type HtpasswdHasher struct {
	Runner execx.Runner
}

func (HtpasswdHasher) Name() string { return HasherHtpasswd }

func (h HtpasswdHasher) Hash(ctx context.Context, username, secret string) (string, error) {
	if _, err := h.Runner.LookPath("htpasswd"); err != nil {
		return "", ErrHasherUnavailable
	}
	out, err := h.Runner.Output(ctx, execx.Command{
		Name:  "htpasswd",
		Args:  []string{"-n", "-i", "-B", username},
		Stdin: strings.NewReader(secret + "\n"),
	})
	if err != nil {
		return "", err
	}
	line := firstLine(out)
	user, hash, ok := strings.Cut(line, ":")
	if !ok || user != username || hash == "" {
		return "", fmt.Errorf("unexpected htpasswd output %q", line)
	}
	return hash, nil
}

// OpenSSLHasher uses "openssl passwd -apr1".
type OpenSSLHasher struct {
	Runner execx.Runner
}

func (OpenSSLHasher) Name() string { return HasherOpenSSL }

func (h OpenSSLHasher) Hash(ctx context.Context, _ string, secret string) (string, error) {
	if _, err := h.Runner.LookPath("openssl"); err != nil {
		return "", ErrHasherUnavailable
	}
	out, err := h.Runner.Output(ctx, execx.Command{
		Name:  "openssl",
		Args:  []string{"passwd", "-apr1", "-stdin"},
		Stdin: strings.NewReader(secret + "\n"),
	})
	if err != nil {
		return "", err
	}
	hash := firstLine(out)
	if !strings.HasPrefix(hash, "$apr1$") {
		return "", fmt.Errorf("unexpected openssl output %q", hash)
	}
	return hash, nil
}

// BcryptHasher hashes in-process; nginx verifies bcrypt through the libc
// crypt of the proxy image.
type BcryptHasher struct {
	Cost int
}

func (BcryptHasher) Name() string { return HasherBcrypt }

func (h BcryptHasher) Hash(_ context.Context, _ string, secret string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func firstLine(out []byte) string {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}
