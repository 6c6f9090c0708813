package scanner

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ignoreCacheSize is the maximum number of .gitignore matchers to cache.
const ignoreCacheSize = 1000

// Scanner discovers Go source files in a directory tree.
type Scanner struct {
	// ignoreCache caches parsed .gitignore matchers by directory. A nil
	// entry records a directory without one.
	ignoreCache *lru.Cache[string, *Matcher]
	cacheMu     sync.RWMutex
	logger      *slog.Logger
}

// New creates a new Scanner.
func New() (*Scanner, error) {
	cache, err := lru.New[string, *Matcher](ignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ignore cache: %w", err)
	}
	return &Scanner{ignoreCache: cache, logger: slog.Default()}, nil
}

// WithLogger sets the logger used for skipped entries.
func (s *Scanner) WithLogger(l *slog.Logger) *Scanner {
	if l != nil {
		s.logger = l
	}
	return s
}

// Scan streams source files under opts.Root in lexical order. The
// channel is closed when scanning is complete.
func (s *Scanner) Scan(ctx context.Context, opts *Options) (<-chan Result, error) {
	w, err := s.newWalk(opts)
	if err != nil {
		return nil, err
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		w.run(ctx, results)
	}()
	return results, nil
}

// Collect scans and returns every file, sorted by path.
func (s *Scanner) Collect(ctx context.Context, opts *Options) ([]*File, error) {
	results, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var files []*File
	var scanErr error
	for r := range results {
		if r.Error != nil {
			scanErr = r.Error
			continue
		}
		files = append(files, r.File)
	}
	if scanErr != nil {
		return nil, scanErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(files, func(a, b *File) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

// Accept reports whether a path relative to opts.Root would be scanned,
// ignoring module boundaries and file size. Watchers use it to filter
// events.
func (s *Scanner) Accept(opts *Options, relPath string, isDir bool) bool {
	w, err := s.newWalk(opts)
	if err != nil {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	parts := strings.Split(relPath, "/")
	for i := 0; i < len(parts)-1; i++ {
		if !w.acceptDir(strings.Join(parts[:i+1], "/")) {
			return false
		}
	}
	if isDir {
		return w.acceptDir(relPath)
	}
	return w.acceptFile(relPath)
}

// InvalidateIgnoreCache drops cached .gitignore matchers. Call it when
// .gitignore files change.
func (s *Scanner) InvalidateIgnoreCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.ignoreCache.Purge()
}

// walk is the state of one scan.
type walk struct {
	s           *Scanner
	opts        Options
	root        string
	maxFileSize int64
	exclude     *Matcher
}

func (s *Scanner) newWalk(opts *Options) (*walk, error) {
	if opts == nil {
		opts = &Options{}
	}
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path is not a directory: %s", absRoot)
	}

	maxFileSize := opts.MaxFileSize
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &walk{
		s:           s,
		opts:        *opts,
		root:        absRoot,
		maxFileSize: maxFileSize,
		exclude:     NewMatcher("", opts.Exclude...),
	}, nil
}

func (w *walk) run(ctx context.Context, results chan<- Result) {
	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if p == w.root {
				return err
			}
			w.s.logger.Debug("skipping unreadable path", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}

		rel, err := filepath.Rel(w.root, p)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if !w.acceptDir(rel) {
				return filepath.SkipDir
			}
			if !w.opts.NestedModules {
				if _, err := os.Stat(filepath.Join(p, "go.mod")); err == nil {
					w.s.logger.Debug("skipping nested module", slog.String("dir", rel))
					return filepath.SkipDir
				}
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !w.opts.FollowSymlinks {
			return nil
		}
		if !w.acceptFile(rel) {
			return nil
		}

		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if info.Size() > w.maxFileSize {
			w.s.logger.Debug("skipping large file", slog.String("path", rel), slog.Int64("size", info.Size()))
			return nil
		}

		select {
		case results <- Result{File: &File{Path: rel, AbsPath: p, Size: info.Size(), ModTime: info.ModTime()}}:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})

	if err != nil && !stderrors.Is(err, context.Canceled) && !stderrors.Is(err, context.DeadlineExceeded) {
		select {
		case results <- Result{Error: err}:
		case <-ctx.Done():
		}
	}
}

func (w *walk) acceptDir(rel string) bool {
	name := path.Base(rel)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || slices.Contains(DefaultExcludeDirs, name) {
		return false
	}
	return !w.excluded(rel, true)
}

func (w *walk) acceptFile(rel string) bool {
	name := path.Base(rel)
	if !strings.HasSuffix(name, ".go") || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") {
		return false
	}
	if strings.HasSuffix(name, "_test.go") && !w.opts.IncludeTests {
		return false
	}
	return !w.excluded(rel, false)
}

func (w *walk) excluded(rel string, isDir bool) bool {
	if w.exclude.Match(rel, isDir) {
		return true
	}
	if !w.opts.RespectGitignore {
		return false
	}

	// Each .gitignore from the root down to the parent applies, deeper
	// files taking precedence.
	ignored := false
	apply := func(dir string) {
		if ig, ok := w.s.ignoreMatcher(w.root, dir).verdict(rel, isDir); ok {
			ignored = ig
		}
	}
	apply("")
	if parent := path.Dir(rel); parent != "." {
		dir := ""
		for _, part := range strings.Split(parent, "/") {
			dir = path.Join(dir, part)
			apply(dir)
		}
	}
	return ignored
}

// ignoreMatcher returns the matcher of <root>/<dir>/.gitignore, or nil.
func (s *Scanner) ignoreMatcher(root, dir string) *Matcher {
	abs := filepath.Join(root, filepath.FromSlash(dir))

	s.cacheMu.RLock()
	m, ok := s.ignoreCache.Get(abs)
	s.cacheMu.RUnlock()
	if ok {
		return m
	}

	m, err := ReadMatcher(filepath.Join(abs, ".gitignore"), dir)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("ignoring unreadable .gitignore", slog.String("dir", abs), slog.String("error", err.Error()))
		}
		m = nil
	}

	s.cacheMu.Lock()
	s.ignoreCache.Add(abs, m)
	s.cacheMu.Unlock()
	return m
}
