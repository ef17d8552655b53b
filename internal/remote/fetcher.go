// Package remote opens import files by location: local paths, file://,
// http(s):// and s3://bucket/key.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ErrUnsupportedScheme is returned for locations no opener handles
var ErrUnsupportedScheme = errors.New("unsupported location scheme")

// S3API is the subset of the S3 client used to read objects.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// HTTPDoer is the interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher opens files. S3 is optional; s3:// locations fail without it.
type Fetcher struct {
	HTTP HTTPDoer
	S3   S3API
}

// NewFetcher creates a fetcher without S3 support
func NewFetcher() *Fetcher {
	return &Fetcher{HTTP: &http.Client{Timeout: 5 * time.Minute}}
}

// NewS3Fetcher creates a fetcher that also reads s3:// locations using the
// default AWS credential chain.
func NewS3Fetcher(ctx context.Context, region string) (*Fetcher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for file fetcher: %w", err)
	}
	f := NewFetcher()
	f.S3 = s3.NewFromConfig(cfg)
	return f, nil
}

// Open returns a reader for location. The caller closes it.
func (f *Fetcher) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("invalid location %q: %w", location, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "":
		return os.Open(location)
	case "file":
		path := u.Path
		if u.Host != "" && u.Host != "localhost" {
			path = u.Host + path
		}
		return os.Open(path)
	case "http", "https":
		return f.openHTTP(ctx, location)
	case "s3":
		return f.openS3(ctx, u)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
}

func (f *Fetcher) openHTTP(ctx context.Context, location string) (io.ReadCloser, error) {
	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", location, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: status %d", location, resp.StatusCode)
	}
	return resp.Body, nil
}

func (f *Fetcher) openS3(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if f.S3 == nil {
		return nil, fmt.Errorf("%w: s3 is not configured", ErrUnsupportedScheme)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("invalid s3 location %q", u.String())
	}

	out, err := f.S3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("S3 GetObject %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}
