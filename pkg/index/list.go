package index

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"iter"
	"log/slog"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/resource"
)

// ListOption configures List.
type ListOption func(*listConfig)

type listConfig struct {
	logger   *slog.Logger
	prefixes []string
}

// WithLogger sets the logger used for skipped entries. Defaults to
// slog.Default().
func WithLogger(l *slog.Logger) ListOption {
	return func(c *listConfig) {
		c.logger = l
	}
}

// WithPrefixes overrides the namespace prefixes probed.
func WithPrefixes(prefixes ...string) ListOption {
	return func(c *listConfig) {
		c.prefixes = prefixes
	}
}

// Locations returns the sorted union of every location recorded for
// annotation across all prefixes and roots of finder.
func Locations(ctx context.Context, annotation string, finder ResourceFinder, opts ...ListOption) ([]string, error) {
	cfg := newListConfig(opts)
	set := resource.NewLocationSet()

	for _, prefix := range cfg.prefixes {
		path := resource.Path(prefix, annotation)
		found, err := finder.Resources(ctx, path)
		if err != nil {
			return nil, errors.New(errors.ErrCodeResourceEnum,
				fmt.Sprintf("enumerate %s: %v", path, err), err).WithDetail("annotation", annotation)
		}
		for _, r := range found {
			if err := readResource(ctx, r, set); err != nil {
				return nil, errors.ReadError(r.Name(), err).WithDetail("annotation", annotation)
			}
		}
	}
	return set.Sorted(), nil
}

func readResource(ctx context.Context, r Resource, into *resource.LocationSet) error {
	rc, err := r.Open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()
	return resource.ReadLocations(rc, into)
}

// List returns a lazy iterator over the elements annotated with
// annotation. The index is read eagerly, so enumeration and read errors
// are returned here; element resolution happens during iteration.
func List(ctx context.Context, annotation string, src Source, opts ...ListOption) (*Iterator, error) {
	cfg := newListConfig(opts)
	locs, err := Locations(ctx, annotation, src, opts...)
	if err != nil {
		return nil, err
	}
	return &Iterator{
		ctx:        ctx,
		annotation: annotation,
		loader:     src,
		locations:  locs,
		seen:       make(map[string]struct{}),
		logger:     cfg.logger,
	}, nil
}

func newListConfig(opts []ListOption) *listConfig {
	cfg := &listConfig{logger: slog.Default(), prefixes: resource.Prefixes}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Iterator lazily resolves index locations into elements. It is
// single-pass: call List again to restart.
type Iterator struct {
	ctx        context.Context
	annotation string
	loader     ClassLoader
	logger     *slog.Logger

	locations []string
	cursor    int
	// lookahead holds elements found while resolving one location.
	lookahead []element.Element
	// seen holds classes already resolved, so member locations of one
	// class do not yield its elements twice.
	seen map[string]struct{}

	current element.Element
	err     error
}

// Next advances to the next element. It returns false when the index is
// exhausted or the context is cancelled; check Err afterwards.
func (it *Iterator) Next() bool {
	for {
		if len(it.lookahead) > 0 {
			it.current = it.lookahead[0]
			it.lookahead[0] = nil
			it.lookahead = it.lookahead[1:]
			return true
		}
		it.current = nil
		if it.err != nil || it.cursor >= len(it.locations) {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}

		loc := it.locations[it.cursor]
		it.cursor++
		it.resolve(loc)
	}
}

// Element returns the current element.
func (it *Iterator) Element() element.Element {
	return it.current
}

// Err returns the error that stopped iteration, if any. Skipped entries
// are not errors.
func (it *Iterator) Err() error {
	return it.err
}

// Remaining returns the number of index locations not yet resolved.
func (it *Iterator) Remaining() int {
	return len(it.locations) - it.cursor
}

// All adapts the iterator to a range-over-func sequence.
func (it *Iterator) All() iter.Seq[element.Element] {
	return func(yield func(element.Element) bool) {
		for it.Next() {
			if !yield(it.Element()) {
				return
			}
		}
	}
}

func (it *Iterator) resolve(loc string) {
	l, err := element.ParseLocation(loc)
	if err != nil {
		it.logger.Warn("skipping malformed index entry",
			slog.String("annotation", it.annotation),
			errors.LogAttr(errors.New(errors.ErrCodeInvalidLocation, "malformed index entry", err).
				WithDetail("location", loc)))
		return
	}

	if l.IsPackage() {
		pkg, err := it.loader.LoadPackage(it.ctx, l.Package)
		if err != nil {
			it.skip(loc, err)
			return
		}
		it.lookahead = append(it.lookahead, pkg)
		return
	}

	if _, ok := it.seen[l.Class]; ok {
		return
	}
	it.seen[l.Class] = struct{}{}

	c, err := it.loader.LoadClass(it.ctx, l.Class)
	if err != nil {
		it.skip(l.Class, err)
		return
	}

	if c.Mirrors().Has(it.annotation) {
		it.lookahead = append(it.lookahead, c)
	}
	for _, m := range c.Methods {
		it.collect(m)
	}
	for _, f := range c.Fields {
		it.collect(f)
	}
	for _, k := range c.Constructors {
		it.collect(k)
	}
}

func (it *Iterator) collect(e element.Element) {
	if e.Mirrors().Has(it.annotation) {
		it.lookahead = append(it.lookahead, e)
	}
}

// skip logs an unresolvable entry. Not-found is expected when code is
// absent from the loader and logged at debug; anything else is a warning.
// Context errors stop the iteration.
func (it *Iterator) skip(name string, err error) {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		it.err = err
		return
	}

	attrs := []any{
		slog.String("annotation", it.annotation),
		slog.String("name", name),
		slog.String("error", err.Error()),
	}

	var linkage *LinkageError
	switch {
	case stderrors.As(err, &linkage) || errors.HasCode(err, errors.ErrCodeLinkage):
		it.logger.Warn("failed to load, linkage error", attrs...)
	case IsNotFound(err):
		it.logger.Debug("failed to load, not found", attrs...)
	default:
		it.logger.Warn("failed to load", attrs...)
	}
}

// IsNotFound reports whether err means the named element does not exist.
func IsNotFound(err error) bool {
	return stderrors.Is(err, ErrNotFound) ||
		stderrors.Is(err, fs.ErrNotExist) ||
		errors.HasCode(err, errors.ErrCodeClassNotFound)
}

// Collect drains an iterator into a slice.
func Collect(it *Iterator) ([]element.Element, error) {
	var out []element.Element
	for it.Next() {
		out = append(out, it.Element())
	}
	return out, it.Err()
}
