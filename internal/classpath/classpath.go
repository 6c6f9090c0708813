// Package classpath locates index resources across an ordered list of
// roots: output directories, zip archives and S3-compatible buckets.
// A Classpath is the read-path index.ResourceFinder.
package classpath

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/pkg/index"
	"github.com/Aman-CERP/annodex/pkg/resource"
)

// Root is one location holding resources. Paths are slash-separated
// and relative to the root.
type Root interface {
	// Name identifies the root in diagnostics.
	Name() string

	// Has reports whether a resource exists at path.
	Has(ctx context.Context, path string) (bool, error)

	// Open opens a resource. A missing resource yields an error matching
	// fs.ErrNotExist.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// List returns the resource paths under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	Close() error
}

var _ index.ResourceFinder = (*Classpath)(nil)

// Classpath is an ordered list of roots.
type Classpath struct {
	roots  []Root
	logger *slog.Logger
}

// New creates a classpath over roots, searched in order.
func New(roots ...Root) *Classpath {
	return &Classpath{roots: roots, logger: slog.Default()}
}

// WithLogger sets the logger.
func (c *Classpath) WithLogger(l *slog.Logger) *Classpath {
	if l != nil {
		c.logger = l
	}
	return c
}

// Roots returns the roots in search order.
func (c *Classpath) Roots() []Root {
	return slices.Clone(c.roots)
}

// Resources returns the resource at path from every root that has one,
// in root order.
func (c *Classpath) Resources(ctx context.Context, path string) ([]index.Resource, error) {
	var out []index.Resource
	for _, r := range c.roots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := r.Has(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", r.Name(), err)
		}
		if ok {
			out = append(out, &ref{root: r, path: path})
		}
	}
	return out, nil
}

// Annotations returns every annotation identity with a resource under
// any prefix on any root, sorted and deduplicated.
func (c *Classpath) Annotations(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	for _, r := range c.roots {
		for _, prefix := range resource.Prefixes {
			paths, err := r.List(ctx, prefix)
			if err != nil {
				return nil, errors.New(errors.ErrCodeResourceEnum,
					fmt.Sprintf("list %s on %s: %v", prefix, r.Name(), err), err)
			}
			for _, p := range paths {
				if name, ok := resource.AnnotationOf(p); ok {
					seen[name] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	slices.Sort(out)
	return out, nil
}

// Close closes every root.
func (c *Classpath) Close() error {
	var errs []error
	for _, r := range c.roots {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// ref is a resource found on a root.
type ref struct {
	root Root
	path string
}

func (r *ref) Name() string { return r.root.Name() + "!" + r.path }

func (r *ref) Open(ctx context.Context) (io.ReadCloser, error) {
	return r.root.Open(ctx, r.path)
}

// Option configures Open.
type Option func(*openConfig)

type openConfig struct {
	bucket BucketOptions
	logger *slog.Logger
}

// WithBucketOptions sets the connection settings for s3:// entries.
func WithBucketOptions(b BucketOptions) Option {
	return func(c *openConfig) { c.bucket = b }
}

// WithOpenLogger sets the logger of the opened classpath and its roots.
func WithOpenLogger(l *slog.Logger) Option {
	return func(c *openConfig) { c.logger = l }
}

// Open builds a classpath from entries. An entry is an s3://bucket/prefix
// URL, a .zip or .jar archive, or a directory.
func Open(ctx context.Context, entries []string, opts ...Option) (*Classpath, error) {
	cfg := &openConfig{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	var roots []Root
	fail := func(err error) (*Classpath, error) {
		_ = New(roots...).Close()
		return nil, err
	}
	for _, entry := range entries {
		var (
			root Root
			err  error
		)
		switch {
		case strings.HasPrefix(entry, "s3://"):
			root, err = DialBucket(ctx, entry, cfg.bucket)
		case strings.HasSuffix(entry, ".zip"), strings.HasSuffix(entry, ".jar"):
			root, err = OpenArchive(entry)
		default:
			root, err = NewDirRoot(entry)
		}
		if err != nil {
			return fail(err)
		}
		roots = append(roots, root)
	}
	if len(roots) == 0 {
		return nil, errors.ConfigError("classpath is empty", nil).
			WithSuggestion("Pass --classpath or set classpath in .annodex.yaml")
	}
	return New(roots...).WithLogger(cfg.logger), nil
}

// statDir returns an error unless dir is a directory.
func statDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.ReadError(dir, err)
	}
	if !info.IsDir() {
		return errors.New(errors.ErrCodeInvalidPath, fmt.Sprintf("classpath entry %s is not a directory or archive", dir), nil)
	}
	return nil
}
