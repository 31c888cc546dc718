package materialize

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/example/cosyctl/internal/version"
)

// Source fetches raw template content by relative path.
type Source interface {
	Fetch(ctx context.Context, rel string) ([]byte, error)
	String() string
}

// maxArtifactSize bounds a single downloaded template.
const maxArtifactSize = 8 << 20

// NewSource picks a Source from the URL scheme. The ref (branch, tag or
// commit) is inserted between the base and every relative path so one
// install always reads a single consistent version.
func NewSource(ctx context.Context, rawURL, ref string) (Source, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("parse source url %q: %w", rawURL, err)
	}
	ref = strings.Trim(strings.TrimSpace(ref), "/")
	switch u.Scheme {
	case "http", "https":
		return &HTTPSource{Base: joinURL(u.String(), ref), Client: &http.Client{Timeout: 60 * time.Second}}, nil
	case "file":
		root := u.Path
		if ref != "" {
			root = filepath.Join(root, filepath.FromSlash(ref))
		}
		return &FileSource{Root: root}, nil
	case "s3":
		cfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return &S3Source{
			Bucket: u.Host,
			Prefix: path.Join(strings.TrimPrefix(u.Path, "/"), ref),
			Client: s3.NewFromConfig(cfg),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported source scheme %q (expected https, http, file or s3)", u.Scheme)
	}
}

func joinURL(base, ref string) string {
	base = strings.TrimRight(base, "/")
	if ref == "" {
		return base
	}
	return base + "/" + ref
}

// HTTPSource reads from a raw-content URL such as a git forge's raw endpoint.
type HTTPSource struct {
	Base   string
	Client *http.Client
}

func (s *HTTPSource) String() string { return s.Base }

func (s *HTTPSource) Fetch(ctx context.Context, rel string) ([]byte, error) {
	target := s.Base + "/" + strings.TrimLeft(rel, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", target, resp.Status)
	}
	return readLimited(resp.Body, target)
}

// FileSource reads from a local mirror of the template tree.
type FileSource struct {
	Root string
}

func (s *FileSource) String() string { return "file://" + s.Root }

func (s *FileSource) Fetch(_ context.Context, rel string) ([]byte, error) {
	p := filepath.Join(s.Root, filepath.FromSlash(strings.TrimLeft(rel, "/")))
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, p)
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads templates from an S3 bucket mirror.
type S3Source struct {
	Bucket string
	Prefix string
	Client S3API
}

func (s *S3Source) String() string { return "s3://" + path.Join(s.Bucket, s.Prefix) }

func (s *S3Source) Fetch(ctx context.Context, rel string) ([]byte, error) {
	key := path.Join(s.Prefix, strings.TrimLeft(rel, "/"))
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.Bucket, key, err)
	}
	defer out.Body.Close()
	return readLimited(out.Body, key)
}

func readLimited(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxArtifactSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if len(data) > maxArtifactSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, maxArtifactSize)
	}
	return data, nil
}
