package classpath

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"path"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Aman-CERP/annodex/internal/errors"
)

// BucketOptions are the connection settings of S3-compatible roots.
type BucketOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Secure    bool
}

// BucketRoot serves resources from an S3-compatible bucket, for indexes
// published by other builds. Calls are retried on transient failures
// and fail fast while the endpoint is down.
type BucketRoot struct {
	client  *minio.Client
	bucket  string
	prefix  string
	retry   errors.RetryConfig
	breaker *errors.CircuitBreaker
}

// NewBucketRoot creates a root over bucket, with resource paths below
// prefix.
func NewBucketRoot(client *minio.Client, bucket, prefix string) *BucketRoot {
	return &BucketRoot{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		retry:   errors.DefaultRetryConfig(),
		breaker: errors.NewCircuitBreaker("s3://" + bucket),
	}
}

// DialBucket connects to the bucket named by an s3://bucket/prefix URL.
func DialBucket(_ context.Context, rawURL string, opts BucketOptions) (*BucketRoot, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme != "s3" || u.Host == "" {
		return nil, errors.New(errors.ErrCodeInvalidPath, fmt.Sprintf("invalid bucket URL %q", rawURL), err).
			WithSuggestion("Use s3://bucket/prefix")
	}
	if opts.Endpoint == "" {
		return nil, errors.ConfigError("bucket endpoint is not configured", nil).
			WithDetail("url", rawURL).
			WithSuggestion("Set classpath_bucket.endpoint in .annodex.yaml or ANNODEX_S3_ENDPOINT")
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, errors.StorageError(fmt.Sprintf("create client for %s", opts.Endpoint), err)
	}
	return NewBucketRoot(client, u.Host, u.Path), nil
}

func (b *BucketRoot) Name() string {
	if b.prefix == "" {
		return "s3://" + b.bucket
	}
	return "s3://" + b.bucket + "/" + b.prefix
}

func (b *BucketRoot) key(p string) string {
	return path.Join(b.prefix, strings.TrimPrefix(p, "/"))
}

// call runs fn through the breaker with retries.
func (b *BucketRoot) call(ctx context.Context, fn func() error) error {
	return errors.Retry(ctx, b.retry, func() error {
		return b.breaker.Execute(func() error {
			return classify(fn())
		})
	})
}

func (b *BucketRoot) Has(ctx context.Context, p string) (bool, error) {
	key := b.key(p)
	err := b.call(ctx, func() error {
		_, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
		return err
	})
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *BucketRoot) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	key := b.key(p)
	var obj *minio.Object
	err := b.call(ctx, func() error {
		o, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return err
		}
		// GetObject is lazy; Stat surfaces a missing key.
		if _, err := o.Stat(); err != nil {
			_ = o.Close()
			return err
		}
		obj = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return obj, nil
}

func (b *BucketRoot) List(ctx context.Context, prefix string) ([]string, error) {
	full := b.key(prefix)
	if strings.HasSuffix(prefix, "/") {
		full += "/"
	}

	var out []string
	err := b.call(ctx, func() error {
		out = out[:0]
		for obj := range b.client.ListObjects(ctx, b.bucket, minio.ListObjectsOptions{
			Prefix:    full,
			Recursive: true,
		}) {
			if obj.Err != nil {
				return obj.Err
			}
			name := strings.TrimPrefix(strings.TrimPrefix(obj.Key, b.prefix), "/")
			if name != "" && !strings.HasSuffix(name, "/") {
				out = append(out, name)
			}
		}
		return nil
	})
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

func (b *BucketRoot) Close() error { return nil }

// classify maps minio errors onto fs.ErrNotExist, retryable storage
// errors and plain read errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey", resp.Code == "NotFound", resp.Code == "NoSuchBucket":
		return fmt.Errorf("%s: %w", err.Error(), fs.ErrNotExist)
	case resp.StatusCode == 0, resp.StatusCode >= 500, resp.Code == "SlowDown":
		return errors.New(errors.ErrCodeStorageUnavailable, "object storage unavailable", err).
			WithSuggestion("Check the bucket endpoint and network connectivity")
	default:
		return errors.New(errors.ErrCodeResourceRead, fmt.Sprintf("object storage request failed: %s", resp.Code), err)
	}
}
