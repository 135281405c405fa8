package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Source provides the raw bytes of an input table
type Source interface {
	// Open returns a reader over the whole input. The caller closes it.
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name identifies the input; its extension selects the file format.
	Name() string
}

// SourceOptions configures remote sources
type SourceOptions struct {
	HTTPClient *http.Client
	S3Region   string
	// S3Client overrides the client built from S3Region
	S3Client s3iface.S3API
}

// NewSource picks a source by location: s3://bucket/key, http(s)://... or a
// local path.
func NewSource(location string, opts SourceOptions) (Source, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare paths and Windows drive letters
		return &FileSource{Path: location}, nil
	}

	switch strings.ToLower(u.Scheme) {
	case "file":
		return &FileSource{Path: u.Path}, nil
	case "http", "https":
		client := opts.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		return &HTTPSource{URL: location, Client: client}, nil
	case "s3":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
		}
		client := opts.S3Client
		if client == nil {
			sess, err := session.NewSession(&aws.Config{Region: aws.String(opts.S3Region)})
			if err != nil {
				return nil, fmt.Errorf("creating aws session: %w", err)
			}
			client = s3.New(sess)
		}
		return &S3Source{Bucket: u.Host, Key: key, Client: client}, nil
	default:
		return nil, fmt.Errorf("unsupported input scheme %q", u.Scheme)
	}
}

// FileSource reads a local file
type FileSource struct {
	Path string
}

func (s *FileSource) Open(_ context.Context) (io.ReadCloser, error) {
	return os.Open(s.Path)
}

func (s *FileSource) Name() string { return s.Path }

// HTTPSource downloads the input with a GET request
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (s *HTTPSource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: unexpected status %s", s.URL, resp.Status)
	}
	return resp.Body, nil
}

func (s *HTTPSource) Name() string {
	if u, err := url.Parse(s.URL); err == nil {
		return u.Path
	}
	return s.URL
}

// S3Source reads a single object from S3
type S3Source struct {
	Bucket string
	Key    string
	Client s3iface.S3API
}

func (s *S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching s3://%s/%s: %w", s.Bucket, s.Key, err)
	}
	return out.Body, nil
}

func (s *S3Source) Name() string { return path.Base(s.Key) }
