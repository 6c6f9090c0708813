// Package filer stores index resources under a build output directory.
//
// Every resource path is guarded by a cross-process lock file under
// <output>/.annodex-locks, held from the first read or create of the
// path until its writer is closed, so concurrent builds serialize their
// read-merge-write cycles. Writes go to a temporary file that replaces
// the resource atomically on Close. When a provenance ledger is
// attached, every written resource records which source files produced
// which of its locations.
package filer

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/provenance"
	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/indexer"
	"github.com/Aman-CERP/annodex/pkg/resource"
)

// LockDir is the directory, relative to the output root, holding lock
// files and in-flight writes.
const LockDir = ".annodex-locks"

// DefaultLockTimeout bounds how long a resource lock is waited for.
const DefaultLockTimeout = 30 * time.Second

var _ indexer.Filer = (*Filer)(nil)

// Filer reads and writes resources under an output root.
type Filer struct {
	out         string
	sourceRoot  string
	ledger      *provenance.Ledger
	lockTimeout time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	locks  map[string]*FileLock
	closed bool

	// staged invalidation
	pending      map[string][]string
	pendingFiles []string
	written      map[string]bool
}

// Option configures a Filer.
type Option func(*Filer)

// WithLedger records provenance in l. Originating source files are
// stored relative to sourceRoot.
func WithLedger(l *provenance.Ledger, sourceRoot string) Option {
	return func(f *Filer) {
		f.ledger = l
		f.sourceRoot = sourceRoot
	}
}

// WithLockTimeout sets how long a resource lock is waited for. Zero
// waits until the context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(f *Filer) { f.lockTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Filer) {
		if l != nil {
			f.logger = l
		}
	}
}

// New creates a filer over the output directory out, creating it if
// needed.
func New(out string, opts ...Option) (*Filer, error) {
	abs, err := filepath.Abs(out)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.WriteError(abs, err)
	}

	f := &Filer{
		out:         abs,
		lockTimeout: DefaultLockTimeout,
		logger:      slog.Default(),
		locks:       make(map[string]*FileLock),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute output directory.
func (f *Filer) Root() string { return f.out }

// Resource opens an existing resource, taking its lock first. A missing
// resource yields an error matching fs.ErrNotExist; the lock stays held
// for the create that usually follows, until the writer closes or
// ReleaseAll is called. Staged stale locations are left out.
func (f *Filer) Resource(ctx context.Context, p string) (io.ReadCloser, error) {
	target, err := f.target(p)
	if err != nil {
		return nil, err
	}
	if err := f.acquire(ctx, p); err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	stale := f.pending[p]
	f.mu.Unlock()
	if len(stale) == 0 {
		return file, nil
	}
	defer file.Close()

	set := resource.NewLocationSet()
	if err := resource.ReadLocations(file, set); err != nil {
		return nil, errors.ReadError(p, err)
	}
	for _, loc := range stale {
		set.Remove(loc)
	}
	return io.NopCloser(bytes.NewReader(resource.Encode(set))), nil
}

// CreateResource returns a writer replacing the resource at p when
// closed. The lock on p is released by Close or Abort.
func (f *Filer) CreateResource(ctx context.Context, p string, originating ...element.Element) (io.WriteCloser, error) {
	target, err := f.target(p)
	if err != nil {
		return nil, err
	}
	if err := f.acquire(ctx, p); err != nil {
		return nil, err
	}

	tmp, err := f.tempFile(p)
	if err != nil {
		f.release(p)
		return nil, errors.WriteError(p, err)
	}
	return &writer{
		ctx:         ctx,
		filer:       f,
		path:        p,
		target:      target,
		tmp:         tmp,
		originating: originating,
	}, nil
}

// Invalidate stages the removal of every location whose provenance
// points only at the given source files. Files are absolute or relative
// to the source root. It returns the number of staged locations.
// Staged locations disappear from reads at once; Commit applies them to
// disk and Discard drops them.
func (f *Filer) Invalidate(ctx context.Context, files []string) (int, error) {
	if f.ledger == nil || len(files) == 0 {
		return 0, nil
	}
	rel := make([]string, 0, len(files))
	for _, file := range files {
		rel = append(rel, f.relative(file))
	}

	stale, err := f.ledger.Stale(ctx, rel)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = make(map[string][]string)
		f.written = make(map[string]bool)
	}
	staged := 0
	for p, locs := range stale {
		f.pending[p] = append(f.pending[p], locs...)
		staged += len(locs)
	}
	f.pendingFiles = append(f.pendingFiles, rel...)
	return staged, nil
}

// Commit applies the staged invalidation: stale locations are removed
// from every resource not rewritten since Invalidate, and the provenance
// of the changed files is forgotten. It returns the number of locations
// removed from disk.
func (f *Filer) Commit(ctx context.Context) (int, error) {
	f.mu.Lock()
	pending, files, written := f.pending, f.pendingFiles, f.written
	f.pending, f.pendingFiles, f.written = nil, nil, nil
	f.mu.Unlock()

	paths := make([]string, 0, len(pending))
	for p := range pending {
		if !written[p] {
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)

	removed := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		n, err := f.removeLocations(ctx, p, pending[p])
		if err != nil {
			return removed, err
		}
		removed += n
	}

	if f.ledger != nil && len(files) > 0 {
		keep := make([]string, 0, len(written))
		for p := range written {
			keep = append(keep, p)
		}
		if err := f.ledger.Forget(ctx, files, keep...); err != nil {
			return removed, err
		}
	}
	if removed > 0 {
		f.logger.Debug("invalidated stale locations",
			slog.Int("files", len(files)),
			slog.Int("resources", len(paths)),
			slog.Int("locations", removed))
	}
	return removed, nil
}

// Discard drops the staged invalidation without touching disk or the
// ledger.
func (f *Filer) Discard() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending, f.pendingFiles, f.written = nil, nil, nil
}

func (f *Filer) removeLocations(ctx context.Context, p string, locs []string) (int, error) {
	target, err := f.target(p)
	if err != nil {
		return 0, err
	}
	if err := f.acquire(ctx, p); err != nil {
		return 0, err
	}
	defer f.release(p)

	data, err := os.ReadFile(target)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, errors.ReadError(p, err)
	}
	set := resource.NewLocationSet()
	if err := resource.ReadLocations(bytes.NewReader(data), set); err != nil {
		return 0, errors.ReadError(p, err)
	}

	removed := 0
	for _, loc := range locs {
		if set.Remove(loc) {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if set.Len() == 0 {
		if err := os.Remove(target); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
			return 0, errors.WriteError(p, err)
		}
		return removed, nil
	}
	if err := f.replace(p, target, resource.Encode(set)); err != nil {
		return 0, err
	}
	return removed, nil
}

// Clean removes every resource under both prefixes and resets the
// provenance ledger, for forced rebuilds.
func (f *Filer) Clean(ctx context.Context) error {
	f.Discard()
	for _, prefix := range resource.Prefixes {
		dir := filepath.Join(f.out, filepath.FromSlash(prefix))
		if err := os.RemoveAll(dir); err != nil {
			return errors.WriteError(dir, err)
		}
	}
	if f.ledger != nil {
		return f.ledger.Reset(ctx)
	}
	return nil
}

// ReleaseAll releases every lock still held, such as read locks of
// resources that were never rewritten. The filer stays usable.
func (f *Filer) ReleaseAll() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releaseAll()
}

// Close releases every lock still held.
func (f *Filer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return f.releaseAll()
}

func (f *Filer) releaseAll() error {
	var errs []error
	for p, l := range f.locks {
		if err := l.Unlock(); err != nil {
			errs = append(errs, err)
		}
		delete(f.locks, p)
	}
	return stderrors.Join(errs...)
}

// target validates a resource path and returns its file path.
func (f *Filer) target(p string) (string, error) {
	clean := path.Clean(p)
	if p == "" || path.IsAbs(p) || clean != p || clean == "." || strings.HasPrefix(clean, "../") || clean == ".." ||
		strings.HasPrefix(clean, LockDir+"/") || strings.Contains(p, `\`) {
		return "", errors.New(errors.ErrCodeInvalidPath, fmt.Sprintf("invalid resource path %q", p), nil)
	}
	return filepath.Join(f.out, filepath.FromSlash(clean)), nil
}

func (f *Filer) lockPath(p string) string {
	return filepath.Join(f.out, LockDir, filepath.FromSlash(p)+".lock")
}

func (f *Filer) acquire(ctx context.Context, p string) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errors.New(errors.ErrCodeResourceLock, "filer is closed", nil)
	}
	l, ok := f.locks[p]
	if !ok {
		l = NewFileLock(f.lockPath(p))
		f.locks[p] = l
	}
	f.mu.Unlock()

	if l.IsLocked() {
		return nil
	}
	if err := l.Lock(ctx, f.lockTimeout); err != nil {
		return err
	}
	f.logger.Debug("resource locked", slog.String("path", p))
	return nil
}

func (f *Filer) release(p string) {
	f.mu.Lock()
	l, ok := f.locks[p]
	delete(f.locks, p)
	f.mu.Unlock()

	if !ok {
		return
	}
	if err := l.Unlock(); err != nil {
		f.logger.Warn("failed to release resource lock",
			slog.String("path", p),
			errors.LogAttr(err))
	}
}

func (f *Filer) tempFile(p string) (*os.File, error) {
	lock := f.lockPath(p)
	if err := os.MkdirAll(filepath.Dir(lock), 0o755); err != nil {
		return nil, err
	}
	return os.CreateTemp(filepath.Dir(lock), filepath.Base(lock)+".*.tmp")
}

// replace atomically writes data to target.
func (f *Filer) replace(p, target string, data []byte) error {
	tmp, err := f.tempFile(p)
	if err != nil {
		return errors.WriteError(p, err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.WriteError(p, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.WriteError(p, err)
	}
	return f.commit(p, tmp.Name(), target)
}

func (f *Filer) commit(p, tmp, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		_ = os.Remove(tmp)
		return errors.WriteError(p, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return errors.WriteError(p, err)
	}
	return nil
}

// relative returns file as a slash path relative to the source root.
func (f *Filer) relative(file string) string {
	if f.sourceRoot != "" && filepath.IsAbs(file) {
		if rel, err := filepath.Rel(f.sourceRoot, file); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(file)
}

// record stores the provenance of the originating declarations of p,
// replacing the rows of staged changed files.
func (f *Filer) record(ctx context.Context, p string, originating []element.Element) error {
	if f.ledger == nil {
		return nil
	}
	f.mu.Lock()
	files := slices.Clone(f.pendingFiles)
	if f.written != nil {
		f.written[p] = true
	}
	f.mu.Unlock()

	entries := make([]provenance.Entry, 0, len(originating))
	for _, e := range originating {
		pos := e.Pos()
		if !pos.IsValid() {
			continue
		}
		loc, err := element.Location(e)
		if err != nil {
			continue
		}
		entries = append(entries, provenance.Entry{Location: loc, File: f.relative(pos.File)})
	}
	return f.ledger.Replace(ctx, p, files, entries)
}

// writer buffers a resource in a temporary file.
type writer struct {
	ctx         context.Context
	filer       *Filer
	path        string
	target      string
	tmp         *os.File
	originating []element.Element
	done        bool
}

var _ indexer.Aborter = (*writer)(nil)

func (w *writer) Write(b []byte) (int, error) {
	if w.done {
		return 0, fs.ErrClosed
	}
	return w.tmp.Write(b)
}

// Close commits the content, records provenance and releases the lock.
func (w *writer) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.filer.release(w.path)

	if err := w.tmp.Sync(); err != nil {
		_ = w.tmp.Close()
		_ = os.Remove(w.tmp.Name())
		return errors.WriteError(w.path, err)
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmp.Name())
		return errors.WriteError(w.path, err)
	}
	if err := w.filer.commit(w.path, w.tmp.Name(), w.target); err != nil {
		return err
	}
	if err := w.filer.record(w.ctx, w.path, w.originating); err != nil {
		return fmt.Errorf("failed to record provenance for %s: %w", w.path, err)
	}
	return nil
}

// Abort discards the content and releases the lock.
func (w *writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	defer w.filer.release(w.path)

	_ = w.tmp.Close()
	if err := os.Remove(w.tmp.Name()); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
