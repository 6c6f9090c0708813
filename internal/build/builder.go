// Package build drives annotation index builds over a Go module: it
// scans sources, diffs them against the provenance ledger, parses the
// affected packages in parallel, invalidates stale index entries and
// runs the indexer.
package build

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/filer"
	"github.com/Aman-CERP/annodex/internal/gosrc"
	"github.com/Aman-CERP/annodex/internal/provenance"
	"github.com/Aman-CERP/annodex/internal/scanner"
	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/indexer"
	"github.com/Aman-CERP/annodex/pkg/resource"
)

// Config configures a Builder.
type Config struct {
	// Root is the source directory to index. It must be inside a module.
	Root string

	// Output is the directory receiving index resources.
	Output string

	// Ledger is the provenance database path. Empty keeps it in memory,
	// which makes every build a full one.
	Ledger string

	// Dependencies are extra module directories used to resolve
	// annotation types and embedded types. They are never indexed.
	Dependencies []string

	// Scan controls source discovery. Root is taken from the Config.
	Scan scanner.Options

	// Workers bounds parallel parsing (defaults to GOMAXPROCS).
	Workers int

	// Prefix is the resource prefix written (defaults to
	// resource.WritePrefix).
	Prefix string

	// LockTimeout bounds resource lock waits.
	LockTimeout time.Duration

	// Validators are registered in addition to the built-in ones.
	Validators []indexer.Validator
}

// Result is the outcome of one build.
type Result struct {
	ID   string
	Mode string

	// Files is the number of source files scanned.
	Files int
	// Changed and Deleted count files differing from the last build.
	Changed int
	Deleted int
	// Packages is the number of packages processed.
	Packages int
	// Annotations is the number of indexable annotations written.
	Annotations int
	// Invalidated is the number of stale locations removed. An errored
	// build removes none.
	Invalidated int

	Errors      int
	Warnings    int
	Diagnostics []indexer.Diagnostic

	Duration time.Duration
	Stages   StageTimings
}

// OK reports whether the build raised no errors.
func (r *Result) OK() bool { return r.Errors == 0 }

// StageTimings tracks the duration of each build stage.
type StageTimings struct {
	Scan    time.Duration
	Parse   time.Duration
	Process time.Duration
}

// Stage names a build stage reported to a ProgressFunc.
type Stage string

// Build stages, in order.
const (
	StageScan    Stage = "scan"
	StageParse   Stage = "parse"
	StageProcess Stage = "process"
)

// Progress is one progress update. Total is 0 when unknown.
type Progress struct {
	Stage   Stage
	Current int
	Total   int
	// Item is the package or file just handled, if any.
	Item string
}

// ProgressFunc receives progress updates. It may be called from
// several goroutines at once.
type ProgressFunc func(Progress)

// Builder runs builds for one source root. Builds on one Builder are
// serialized; concurrent Builders over the same output serialize per
// resource through the filer's locks.
type Builder struct {
	cfg      Config
	root     string
	module   gosrc.Module
	scanner  *scanner.Scanner
	ledger   *provenance.Ledger
	filer    *filer.Filer
	loader   *gosrc.Loader
	messager indexer.Messager
	progress ProgressFunc
	logger   *slog.Logger

	mu sync.Mutex
}

// Option configures a Builder.
type Option func(*Builder)

// WithMessager forwards every diagnostic to m as well.
func WithMessager(m indexer.Messager) Option {
	return func(b *Builder) { b.messager = m }
}

// WithProgress reports stage progress of every build to fn.
func WithProgress(fn ProgressFunc) Option {
	return func(b *Builder) { b.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// New opens the ledger and output of cfg.
func New(cfg Config, opts ...Option) (*Builder, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	mod, err := gosrc.FindModule(root)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("cannot index %s: %v", root, err), err).
			WithSuggestion("Run annodex inside a Go module (a directory tree with go.mod)")
	}
	if cfg.Output == "" {
		return nil, errors.ConfigError("output directory is not set", nil)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Prefix == "" {
		cfg.Prefix = resource.WritePrefix
	}

	b := &Builder{cfg: cfg, root: root, module: mod, logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}

	roots := []gosrc.Module{mod}
	for _, dep := range cfg.Dependencies {
		m, err := gosrc.FindModule(dep)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("dependency %s: %v", dep, err), err)
		}
		roots = append(roots, m)
	}

	s, err := scanner.New()
	if err != nil {
		return nil, err
	}
	b.scanner = s.WithLogger(b.logger)

	if b.ledger, err = provenance.Open(cfg.Ledger); err != nil {
		return nil, err
	}
	b.filer, err = filer.New(cfg.Output,
		filer.WithLedger(b.ledger, root),
		filer.WithLockTimeout(cfg.LockTimeout),
		filer.WithLogger(b.logger))
	if err != nil {
		_ = b.ledger.Close()
		return nil, err
	}
	b.loader, err = gosrc.NewLoader(roots, gosrc.WithLoaderLogger(b.logger))
	if err != nil {
		_ = b.filer.Close()
		_ = b.ledger.Close()
		return nil, err
	}
	return b, nil
}

// Root returns the absolute source root.
func (b *Builder) Root() string { return b.root }

// Module returns the module containing the source root.
func (b *Builder) Module() gosrc.Module { return b.module }

// Ledger returns the provenance ledger.
func (b *Builder) Ledger() *provenance.Ledger { return b.ledger }

// Scanner returns the source scanner.
func (b *Builder) Scanner() *scanner.Scanner { return b.scanner }

// ScanOptions returns the effective scan options.
func (b *Builder) ScanOptions() *scanner.Options {
	opts := b.cfg.Scan
	opts.Root = b.root
	return &opts
}

// Close releases the output locks, the ledger and the loader.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.loader.Close()
	ferr := b.filer.Close()
	lerr := b.ledger.Close()
	if ferr != nil {
		return ferr
	}
	return lerr
}

// Build runs one build. A full build rewrites the index from scratch;
// otherwise only packages with changed, new or deleted files are
// processed. Build returns an error only when the build could not run;
// diagnostics are in the Result.
func (b *Builder) Build(ctx context.Context, force bool) (*Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	defer b.releaseLocks()

	start := time.Now()
	res := &Result{}
	diag := &collector{forward: b.messager, result: res}

	// Stage 1: scan and diff
	scanStart := time.Now()
	b.report(Progress{Stage: StageScan})
	files, err := b.scanner.Collect(ctx, b.ScanOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", b.root, err)
	}
	res.Files = len(files)
	b.report(Progress{Stage: StageScan, Current: len(files), Total: len(files)})

	previous, err := b.ledger.Files(ctx)
	if err != nil {
		return nil, err
	}

	res.Mode = provenance.ModeIncremental
	if force || len(previous) == 0 {
		res.Mode = provenance.ModeFull
		previous = nil
	}

	records, err := b.hashFiles(ctx, files)
	if err != nil {
		return nil, err
	}
	changed, deleted := diff(records, previous)
	res.Changed, res.Deleted = len(changed), len(deleted)
	res.Stages.Scan = time.Since(scanStart)

	run, err := b.ledger.BeginBuild(ctx, res.Mode)
	if err != nil {
		return nil, err
	}
	res.ID = run.ID

	finish := func(status string, cause error) (*Result, error) {
		res.Duration = time.Since(start)
		run.Status = status
		run.Files = res.Files
		run.Annotations = res.Annotations
		if cause != nil {
			run.Message = cause.Error()
		} else if res.Errors > 0 {
			run.Message = fmt.Sprintf("%d errors", res.Errors)
		}
		if err := b.ledger.FinishBuild(context.WithoutCancel(ctx), run); err != nil {
			b.logger.Warn("failed to record build", errors.LogAttr(err))
		}
		if cause != nil {
			return nil, cause
		}
		b.logger.Info("build complete",
			slog.String("id", res.ID),
			slog.String("mode", res.Mode),
			slog.Int("files", res.Files),
			slog.Int("changed", res.Changed),
			slog.Int("deleted", res.Deleted),
			slog.Int("packages", res.Packages),
			slog.Int("annotations", res.Annotations),
			slog.Int("errors", res.Errors),
			slog.Duration("duration", res.Duration))
		return res, nil
	}

	if res.Mode == provenance.ModeFull {
		if err := b.filer.Clean(ctx); err != nil {
			return finish(provenance.StatusFailed, err)
		}
	}
	if len(changed) == 0 && len(deleted) == 0 {
		return finish(provenance.StatusOK, nil)
	}

	// Stage 2: parse the affected packages
	parseStart := time.Now()
	b.loader.Forget()
	batch := b.parseBatch(ctx, files, affectedDirs(changed, deleted), diag)
	if err := ctx.Err(); err != nil {
		return finish(provenance.StatusFailed, err)
	}
	res.Packages = len(batch)
	res.Stages.Parse = time.Since(parseStart)

	// Stage 3: stage removal of locations only the changed files produced
	if res.Mode == provenance.ModeIncremental {
		stale := make([]string, 0, len(changed)+len(deleted))
		for _, r := range changed {
			stale = append(stale, r.Path)
		}
		stale = append(stale, deleted...)
		if _, err := b.filer.Invalidate(ctx, stale); err != nil {
			b.filer.Discard()
			return finish(provenance.StatusFailed, err)
		}
	}

	// Stage 4: process
	processStart := time.Now()
	b.report(Progress{Stage: StageProcess, Total: len(batch)})
	if err := b.process(ctx, batch, diag); err != nil {
		b.filer.Discard()
		return finish(provenance.StatusFailed, err)
	}
	b.report(Progress{Stage: StageProcess, Current: len(batch), Total: len(batch)})
	res.Stages.Process = time.Since(processStart)

	if res.Errors > 0 {
		// Nothing was invalidated, so the changed files are forgotten
		// and the next build retries them against the same index.
		b.filer.Discard()
		forget := make([]string, 0, len(changed))
		for _, r := range changed {
			forget = append(forget, r.Path)
		}
		if err := b.ledger.SaveFiles(ctx, nil, forget); err != nil {
			return finish(provenance.StatusFailed, err)
		}
		return finish(provenance.StatusErrors, nil)
	}
	if res.Invalidated, err = b.filer.Commit(ctx); err != nil {
		return finish(provenance.StatusFailed, err)
	}
	if err := b.ledger.SaveFiles(ctx, changed, deleted); err != nil {
		return finish(provenance.StatusFailed, err)
	}
	return finish(provenance.StatusOK, nil)
}

// releaseLocks drops resource locks left by reads that were never
// followed by a write, such as uses abandoned or skipped after errors.
func (b *Builder) releaseLocks() {
	if err := b.filer.ReleaseAll(); err != nil {
		b.logger.Warn("failed to release resource locks", errors.LogAttr(err))
	}
}

func (b *Builder) process(ctx context.Context, batch []*gosrc.Package, diag *collector) error {
	opts := []indexer.Option{indexer.WithPrefix(b.cfg.Prefix), indexer.WithLogger(b.logger)}
	for _, v := range b.cfg.Validators {
		opts = append(opts, indexer.WithValidator(v))
	}
	proc, err := indexer.NewProcessor(b.filer, diag, opts...)
	if err != nil {
		return err
	}

	prog := gosrc.NewProgram()
	prog.Lookup = func(name string) (*element.Class, bool) {
		c, err := b.loader.LoadClass(ctx, name)
		return c, err == nil
	}
	prog.Add(batch...)

	uses := indexer.Uses{}
	round := gosrc.NewRound(prog, batch, diag, diag.errorRaised)
	if err := proc.Process(ctx, round, uses); err != nil {
		return err
	}
	for _, name := range uses.Names() {
		if !uses[name].Abandoned() {
			diag.result.Annotations++
		}
	}
	return proc.Process(ctx, gosrc.FinalRound{Errors: diag.errorRaised()}, uses)
}

// parseBatch parses the packages of dirs in parallel, one parser per
// worker. Packages that fail to parse are reported and left out.
func (b *Builder) parseBatch(ctx context.Context, files []*scanner.File, dirs map[string]bool, diag *collector) []*gosrc.Package {
	byDir := make(map[string][]string)
	for _, f := range files {
		if dir := f.Dir(); dirs == nil || dirs[dir] {
			byDir[dir] = append(byDir[dir], f.AbsPath)
		}
	}
	keys := make([]string, 0, len(byDir))
	for dir := range byDir {
		keys = append(keys, dir)
	}
	slices.Sort(keys)

	parsers := make(chan *gosrc.Parser, b.cfg.Workers)
	defer func() {
		close(parsers)
		for p := range parsers {
			p.Close()
		}
	}()

	pkgs := make([]*gosrc.Package, len(keys))
	var done atomic.Int64
	b.report(Progress{Stage: StageParse, Total: len(keys)})
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, dir := range keys {
		g.Go(func() error {
			var parser *gosrc.Parser
			select {
			case parser = <-parsers:
			default:
				parser = gosrc.NewParser()
			}
			defer func() { parsers <- parser }()
			defer func() {
				b.report(Progress{Stage: StageParse, Current: int(done.Add(1)), Total: len(keys), Item: dir})
			}()

			absDir := filepath.Join(b.root, filepath.FromSlash(dir))
			importPath, err := b.module.ImportPath(absDir)
			if err != nil {
				diag.reportErr(errors.New(errors.ErrCodeSourceRead, err.Error(), err))
				return nil
			}
			pkg, err := gosrc.ParseFiles(gctx, parser, absDir, importPath, byDir[dir])
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				diag.reportErr(err)
				return nil
			}
			pkgs[i] = pkg
			return nil
		})
	}
	_ = g.Wait()

	out := pkgs[:0]
	for _, p := range pkgs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (b *Builder) report(p Progress) {
	if b.progress != nil {
		b.progress(p)
	}
}

// hashFiles computes file records in parallel.
func (b *Builder) hashFiles(ctx context.Context, files []*scanner.File) ([]provenance.FileRecord, error) {
	records := make([]provenance.FileRecord, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.Workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sum, err := hashFile(f.AbsPath)
			if err != nil {
				return errors.New(errors.ErrCodeSourceRead, fmt.Sprintf("hash %s: %v", f.Path, err), err).
					WithDetail("path", f.Path)
			}
			pkg, _ := b.module.ImportPath(filepath.Dir(f.AbsPath))
			records[i] = provenance.FileRecord{
				Path:    f.Path,
				Hash:    sum,
				Package: pkg,
				Size:    f.Size,
				ModTime: f.ModTime,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func hashFile(p string) (string, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// diff returns the records that are new or changed since previous and
// the previously recorded paths that no longer exist.
func diff(current []provenance.FileRecord, previous map[string]provenance.FileRecord) (changed []provenance.FileRecord, deleted []string) {
	seen := make(map[string]bool, len(current))
	for _, r := range current {
		seen[r.Path] = true
		if old, ok := previous[r.Path]; !ok || old.Hash != r.Hash {
			changed = append(changed, r)
		}
	}
	for p := range previous {
		if !seen[p] {
			deleted = append(deleted, p)
		}
	}
	slices.Sort(deleted)
	return changed, deleted
}

// affectedDirs returns the directories holding changed or deleted files.
func affectedDirs(changed []provenance.FileRecord, deleted []string) map[string]bool {
	dirs := make(map[string]bool)
	for _, r := range changed {
		dirs[path.Dir(r.Path)] = true
	}
	for _, p := range deleted {
		dirs[path.Dir(p)] = true
	}
	return dirs
}

// collector counts diagnostics and forwards them.
type collector struct {
	mu      sync.Mutex
	forward indexer.Messager
	result  *Result
}

func (c *collector) Report(d indexer.Diagnostic) {
	c.mu.Lock()
	switch d.Kind {
	case indexer.DiagnosticError:
		c.result.Errors++
	case indexer.DiagnosticWarning:
		c.result.Warnings++
	}
	c.result.Diagnostics = append(c.result.Diagnostics, d)
	c.mu.Unlock()

	if c.forward != nil {
		c.forward.Report(d)
	}
}

func (c *collector) reportErr(err error) {
	msg := err.Error()
	if ae, ok := errors.As(err); ok {
		msg = ae.Message
	}
	c.Report(indexer.Diagnostic{Kind: indexer.DiagnosticError, Message: msg, Err: err})
}

func (c *collector) errorRaised() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result.Errors > 0
}
