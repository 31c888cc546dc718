package credentials

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/example/cosyctl/internal/deployerr"
	"github.com/example/cosyctl/internal/execx"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateSecretIsAlphanumericWithRequestedLength(t *testing.T) {
	for _, n := range []int{1, 24, 30, 64} {
		s, err := GenerateSecret(n)
		if err != nil {
			t.Fatalf("generate %d: %v", n, err)
		}
		if len(s) != n {
			t.Fatalf("expected length %d, got %d", n, len(s))
		}
		for _, r := range s {
			if !strings.ContainsRune(alphabet, r) {
				t.Fatalf("unexpected rune %q in %q", r, s)
			}
		}
	}
	if _, err := GenerateSecret(0); err == nil {
		t.Fatalf("expected error for zero length")
	}
}

func TestGenerateProducesDistinctSetsAcrossInstalls(t *testing.T) {
	gen := &Generator{Hashers: []Hasher{BcryptHasher{Cost: bcrypt.MinCost}}}
	first, err := gen.Generate(context.Background(), "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := gen.Generate(context.Background(), "admin")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, slot := range []Slot{Database, LogStore, MetricsStore, ApplicationAdmin} {
		a, b := first.Get(slot), second.Get(slot)
		if len(a.Secret) != SecretLength {
			t.Fatalf("%s: expected %d-char secret, got %d", slot, SecretLength, len(a.Secret))
		}
		if a.Secret == b.Secret {
			t.Fatalf("%s: secrets repeated across installs", slot)
		}
	}
	if first.Get(MetricsStore).Token == "" || first.Get(MetricsStore).Token == first.Get(MetricsStore).Secret {
		t.Fatalf("expected a separate metrics-store token")
	}
	if first.Get(ApplicationAdmin).Username != "admin" {
		t.Fatalf("admin username not propagated")
	}
	logs := first.Get(LogStore)
	user, hash, ok := strings.Cut(logs.DerivedHash, ":")
	if !ok || user != LogStoreUser {
		t.Fatalf("unexpected basic-auth line %q", logs.DerivedHash)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(logs.Secret)); err != nil {
		t.Fatalf("derived hash does not verify: %v", err)
	}
}

func TestGenerateFailsWithoutHashingTool(t *testing.T) {
	runner := execx.NewFake()
	hashers, err := NewHashers([]string{HasherHtpasswd, HasherOpenSSL}, runner)
	if err != nil {
		t.Fatalf("hashers: %v", err)
	}
	gen := &Generator{Hashers: hashers}
	_, err = gen.Generate(context.Background(), "admin")
	if !deployerr.Is(err, deployerr.NoHashingToolAvailable) {
		t.Fatalf("expected NoHashingToolAvailable, got %v", err)
	}
	if len(runner.Calls()) != 0 {
		t.Fatalf("no commands should run when tools are missing, got %v", runner.Calls())
	}
}

func TestDeriveBasicAuthPrefersHtpasswd(t *testing.T) {
	runner := execx.NewFake("htpasswd", "openssl")
	var stdin string
	runner.On("htpasswd", func(c execx.Command) ([]byte, error) {
		data, _ := io.ReadAll(c.Stdin)
		stdin = string(data)
		return []byte("loki:$2y$05$abcdefghijklmnopqrstuv\n\n"), nil
	})
	hashers, _ := NewHashers(nil, runner)
	line, err := DeriveBasicAuth(context.Background(), hashers, "loki", "s3cret")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if line != "loki:$2y$05$abcdefghijklmnopqrstuv" {
		t.Fatalf("unexpected line %q", line)
	}
	if !runner.Called("htpasswd -n -i -B loki") {
		t.Fatalf("htpasswd must hash with bcrypt: %v", runner.Calls())
	}
	if stdin != "s3cret\n" {
		t.Fatalf("password must be passed on stdin, got %q", stdin)
	}
	if runner.Called("openssl") {
		t.Fatalf("openssl must not run when htpasswd succeeded")
	}
	for _, call := range runner.Calls() {
		if strings.Contains(call, "s3cret") {
			t.Fatalf("secret leaked into argv: %s", call)
		}
	}
}

func TestDeriveBasicAuthFallsBackToOpenSSL(t *testing.T) {
	runner := execx.NewFake("openssl")
	runner.Reply("openssl passwd", "$apr1$salt$hash\n")
	hashers, _ := NewHashers(nil, runner)
	line, err := DeriveBasicAuth(context.Background(), hashers, "loki", "pw")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if line != "loki:$apr1$salt$hash" {
		t.Fatalf("unexpected line %q", line)
	}
}

func TestDeriveBasicAuthPropagatesToolFailure(t *testing.T) {
	runner := execx.NewFake("htpasswd")
	runner.Fail("htpasswd", 2, "bad option")
	hashers, _ := NewHashers(nil, runner)
	if _, err := DeriveBasicAuth(context.Background(), hashers, "loki", "pw"); err == nil {
		t.Fatalf("expected failure from htpasswd")
	}
}

func TestNewHashersRejectsUnknownNames(t *testing.T) {
	if _, err := NewHashers([]string{"md5sum"}, execx.NewFake()); !deployerr.Is(err, deployerr.InvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

func TestGenerateFromShortRandomSourceFails(t *testing.T) {
	if _, err := generateFrom(bytes.NewReader(nil), 10); err == nil {
		t.Fatalf("expected error from exhausted random source")
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	set := Set{Database: {Username: "cosy", Secret: "topsecret"}}
	for _, v := range set.Redacted() {
		if strings.Contains(v, "topsecret") {
			t.Fatalf("secret leaked: %s", v)
		}
	}
	if got := set.Slots(); len(got) != 1 || got[0] != Database {
		t.Fatalf("unexpected slots %v", got)
	}
}
