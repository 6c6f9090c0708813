package gosrc

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/index"
)

var _ index.ClassLoader = (*Loader)(nil)

// DefaultCacheSize is the number of parsed packages a Loader keeps.
const DefaultCacheSize = 256

// Loader resolves binary names to elements by parsing package sources
// found under module roots. It is safe for concurrent use.
type Loader struct {
	mu     sync.Mutex
	roots  []Module
	parser *Parser
	prog   *Program
	cache  *lru.Cache[string, *loaded]
	deny   map[string]bool
	logger *slog.Logger
}

type loaded struct {
	pkg *Package
	err error
}

type loaderConfig struct {
	cacheSize int
	deny      []string
	logger    *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*loaderConfig)

// WithCacheSize bounds the number of parsed packages kept in memory.
func WithCacheSize(n int) LoaderOption {
	return func(c *loaderConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithDeny hides classes and packages from the loader. Denied names are
// not found; classes embedding them fail to link.
func WithDeny(names ...string) LoaderOption {
	return func(c *loaderConfig) { c.deny = append(c.deny, names...) }
}

// WithLoaderLogger sets the logger.
func WithLoaderLogger(l *slog.Logger) LoaderOption {
	return func(c *loaderConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewLoader creates a loader over the given module roots.
func NewLoader(roots []Module, opts ...LoaderOption) (*Loader, error) {
	cfg := loaderConfig{cacheSize: DefaultCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	l := &Loader{
		roots:  roots,
		parser: NewParser(),
		prog:   NewProgram(),
		deny:   make(map[string]bool, len(cfg.deny)),
		logger: cfg.logger,
	}
	for _, name := range cfg.deny {
		l.deny[name] = true
	}

	cache, err := lru.NewWithEvict[string, *loaded](cfg.cacheSize, func(path string, _ *loaded) {
		l.prog.Remove(path)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create package cache: %w", err)
	}
	l.cache = cache
	l.prog.Lookup = func(name string) (*element.Class, bool) {
		c, err := l.loadClass(context.Background(), name)
		return c, err == nil
	}
	return l, nil
}

// LoadClass resolves a binary name such as "example.com/api.Stuff".
func (l *Loader) LoadClass(ctx context.Context, name string) (*element.Class, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, err := l.loadClass(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := l.link(ctx, c, make(map[*element.Class]bool)); err != nil {
		return nil, &index.LinkageError{Name: name, Err: err}
	}
	l.prog.Inherit(c)
	return c, nil
}

// LoadPackage resolves an import path.
func (l *Loader) LoadPackage(ctx context.Context, path string) (*element.Package, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.deny[path] {
		return nil, fmt.Errorf("package %s: %w", path, index.ErrNotFound)
	}
	pkg, err := l.pkg(ctx, path)
	if err != nil {
		return nil, err
	}
	return pkg.Element, nil
}

// Forget drops cached packages so they are parsed again on next use.
// With no paths the whole cache is dropped.
func (l *Loader) Forget(paths ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(paths) == 0 {
		l.cache.Purge()
		return
	}
	for _, p := range paths {
		l.cache.Remove(p)
	}
}

// Close releases the parser.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.parser.Close()
}

func (l *Loader) loadClass(ctx context.Context, name string) (*element.Class, error) {
	if l.deny[name] {
		return nil, fmt.Errorf("class %s: %w", name, index.ErrNotFound)
	}
	pkgPath, typ, ok := element.SplitBinaryName(name)
	if !ok {
		return nil, fmt.Errorf("class %s: %w", name, index.ErrNotFound)
	}
	pkg, err := l.pkg(ctx, pkgPath)
	if err != nil {
		return nil, err
	}
	c, ok := pkg.Class(typ)
	if !ok {
		return nil, fmt.Errorf("class %s: %w", name, index.ErrNotFound)
	}
	return c, nil
}

// link checks that c parses cleanly and that every embedded type inside
// the loader's modules can be loaded.
func (l *Loader) link(ctx context.Context, c *element.Class, visiting map[*element.Class]bool) error {
	if visiting[c] {
		return nil
	}
	visiting[c] = true

	if pkg, ok := l.prog.Package(c.Package); ok {
		if f := pkg.FileOf(c); f != nil && f.HasError {
			return fmt.Errorf("%s has syntax errors", f.Path)
		}
	}

	for _, name := range c.Embeds {
		pkgPath, _, ok := element.SplitBinaryName(name)
		if !ok || !l.inRoots(pkgPath) {
			continue
		}
		base, err := l.loadClass(ctx, name)
		if err != nil {
			if index.IsNotFound(err) {
				return fmt.Errorf("embedded type %s is unavailable: %w", name, err)
			}
			return err
		}
		if err := l.link(ctx, base, visiting); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) pkg(ctx context.Context, path string) (*Package, error) {
	if e, ok := l.cache.Get(path); ok {
		return e.pkg, e.err
	}

	dir, ok := l.dirOf(path)
	if !ok {
		err := fmt.Errorf("package %s: %w", path, index.ErrNotFound)
		l.cache.Add(path, &loaded{err: err})
		return nil, err
	}

	pkg, err := ParseDir(ctx, l.parser, dir, path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, ErrNoGoFiles) {
			err = fmt.Errorf("package %s: %w", path, index.ErrNotFound)
			l.cache.Add(path, &loaded{err: err})
		}
		return nil, err
	}

	l.logger.Debug("package loaded",
		slog.String("package", path),
		slog.Int("files", len(pkg.Files)),
		slog.Int("types", len(pkg.Classes)))

	l.prog.Add(pkg)
	l.cache.Add(path, &loaded{pkg: pkg})
	return pkg, nil
}

// dirOf maps an import path to a directory in the most specific module.
func (l *Loader) dirOf(path string) (string, bool) {
	var best Module
	for _, m := range l.roots {
		if m.Contains(path) && len(m.Path) > len(best.Path) {
			best = m
		}
	}
	if best.Path == "" {
		return "", false
	}
	dir, _ := best.PackageDir(path)
	return dir, true
}

func (l *Loader) inRoots(path string) bool {
	for _, m := range l.roots {
		if m.Contains(path) {
			return true
		}
	}
	return false
}
