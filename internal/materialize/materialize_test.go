package materialize

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/example/cosyctl/internal/deployerr"
	"github.com/go-logr/logr"
)

func TestSubstituteReplacesEveryOccurrence(t *testing.T) {
	p := Placeholders{}.Set("DOMAIN", "games.example.org").Set("PORT", "8080")
	in := "host: __COSY_DOMAIN__\nalt: __COSY_DOMAIN__:__COSY_PORT__\nkeep: ${COSY_PORT}\n"
	got := Substitute(in, p)
	want := "host: games.example.org\nalt: games.example.org:8080\nkeep: ${COSY_PORT}\n"
	if got != want {
		t.Fatalf("unexpected substitution:\n%s", got)
	}
}

func TestSubstitutePrefersLongerTokens(t *testing.T) {
	p := Placeholders{"__COSY_A__": "short", "__COSY_A__B": "long"}
	if got := Substitute("__COSY_A__B", p); got != "long" {
		t.Fatalf("expected longer token to win, got %q", got)
	}
}

func TestUnresolved(t *testing.T) {
	got := Unresolved("a __COSY_DOMAIN__ b __COSY_IMAGE_TAG__ c __COSY_DOMAIN__ __NOT_OURS__")
	want := []string{"__COSY_DOMAIN__", "__COSY_IMAGE_TAG__"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected unresolved tokens %v", got)
	}
	if Unresolved("clean") != nil {
		t.Fatalf("expected no tokens")
	}
}

func TestMaterializeFetchesSubstitutesAndWrites(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.2.0/deploy/compose/nginx.conf" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "server_name __COSY_DOMAIN__;\n")
	}))
	defer srv.Close()

	src, err := NewSource(context.Background(), srv.URL, "v1.2.0")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	dir := t.TempDir()
	m := &Materializer{Source: src, Strict: true, Log: logr.Discard()}
	artifacts := []Artifact{
		{Name: "front-proxy", Source: "deploy/compose/nginx.conf", Destination: filepath.Join(dir, "nginx", "nginx.conf")},
		{Name: "env", Inline: []byte("ORIGIN=__COSY_CORS_ORIGIN__\n"), Destination: filepath.Join(dir, ".env"), Mode: 0o600, Sensitive: true},
	}
	p := Placeholders{}.Set("DOMAIN", "example.com").Set("CORS_ORIGIN", "http://example.com:8080")
	written, err := m.Materialize(context.Background(), artifacts, p)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("expected 2 written paths, got %v", written)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "nginx", "nginx.conf"))
	if string(data) != "server_name example.com;\n" {
		t.Fatalf("unexpected nginx.conf %q", data)
	}
	info, err := os.Stat(filepath.Join(dir, ".env"))
	if err != nil {
		t.Fatalf("stat env: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600 env file, got %v", info.Mode().Perm())
	}

	// Re-running overwrites deterministically.
	p = p.Merge(Placeholders{}.Set("DOMAIN", "other.example.com"))
	if _, err := m.Materialize(context.Background(), artifacts[:1], p); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	data, _ = os.ReadFile(filepath.Join(dir, "nginx", "nginx.conf"))
	if string(data) != "server_name other.example.com;\n" {
		t.Fatalf("expected overwrite, got %q", data)
	}
}

func TestMaterializeFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()
	src, _ := NewSource(context.Background(), srv.URL, "main")
	m := &Materializer{Source: src, Log: logr.Discard()}
	_, err := m.Materialize(context.Background(), []Artifact{{Name: "compose", Source: "missing.yml", Destination: filepath.Join(t.TempDir(), "x")}}, nil)
	if !deployerr.Is(err, deployerr.ArtifactFetchFailed) {
		t.Fatalf("expected ArtifactFetchFailed, got %v", err)
	}
}

func TestMaterializeStrictRejectsUnresolvedTokens(t *testing.T) {
	m := &Materializer{Strict: true, Log: logr.Discard()}
	dest := filepath.Join(t.TempDir(), "out")
	_, err := m.Materialize(context.Background(), []Artifact{{Name: "x", Inline: []byte("__COSY_UNKNOWN__"), Destination: dest}}, Placeholders{})
	if !deployerr.Is(err, deployerr.UnresolvedPlaceholder) {
		t.Fatalf("expected UnresolvedPlaceholder, got %v", err)
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Fatalf("nothing should be written on validation failure")
	}

	lenient := &Materializer{Log: logr.Discard()}
	if _, err := lenient.Materialize(context.Background(), []Artifact{{Name: "x", Inline: []byte("__COSY_UNKNOWN__"), Destination: dest}}, nil); err != nil {
		t.Fatalf("lenient mode should accept unresolved tokens: %v", err)
	}
}

func TestMaterializeDestinationUnwritable(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	locked := filepath.Join(dir, "locked")
	if err := os.Mkdir(locked, 0o500); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	m := &Materializer{Log: logr.Discard()}
	_, err := m.Materialize(context.Background(), []Artifact{{Name: "x", Inline: []byte("x"), Destination: filepath.Join(locked, "sub", "file")}}, nil)
	if !deployerr.Is(err, deployerr.DestinationUnwritable) {
		t.Fatalf("expected DestinationUnwritable, got %v", err)
	}
}

func TestFileSourceUsesRefDirectory(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "v2", "deploy"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "v2", "deploy", "a.yaml"), []byte("ok"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := NewSource(context.Background(), "file://"+root, "v2")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	data, err := src.Fetch(context.Background(), "deploy/a.yaml")
	if err != nil || string(data) != "ok" {
		t.Fatalf("unexpected fetch %q %v", data, err)
	}
}

type fakeS3 struct {
	objects map[string]string
	keys    []string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	body, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewBufferString(body))}, nil
}

func TestS3SourceJoinsPrefixAndRef(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"mirror/templates/v1/deploy/loki.yaml": "loki"}}
	src := &S3Source{Bucket: "mirror", Prefix: "templates/v1", Client: client}
	data, err := src.Fetch(context.Background(), "/deploy/loki.yaml")
	if err != nil || string(data) != "loki" {
		t.Fatalf("unexpected fetch %q %v", data, err)
	}
	if _, err := src.Fetch(context.Background(), "deploy/none.yaml"); err == nil {
		t.Fatalf("expected missing key error")
	}
	if !strings.HasPrefix(src.String(), "s3://mirror/templates/v1") {
		t.Fatalf("unexpected source name %s", src)
	}
}

func TestNewSourceRejectsUnknownScheme(t *testing.T) {
	if _, err := NewSource(context.Background(), "ftp://example.com/x", "main"); err == nil {
		t.Fatalf("expected error for ftp scheme")
	}
}
