package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/annodex/internal/build"
	"github.com/Aman-CERP/annodex/internal/classpath"
	"github.com/Aman-CERP/annodex/internal/config"
	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/gosrc"
	"github.com/Aman-CERP/annodex/internal/provenance"
)

// project is the resolved project root with its effective configuration.
type project struct {
	root string
	cfg  *config.Config
}

// loadProject finds the project root above dir and loads its layered
// configuration.
func loadProject(dir string) (*project, error) {
	if dir == "" {
		dir = workDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.New(errors.ErrCodeInvalidPath, fmt.Sprintf("cannot access %s", abs), err)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, fmt.Sprintf("path is not a directory: %s", abs), nil)
	}

	root, err := config.FindProjectRoot(abs)
	if err != nil {
		root = abs
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	return &project{root: root, cfg: cfg}, nil
}

// builder creates a Builder for the project. A non-empty output
// overrides paths.output.
func (p *project) builder(output string, opts ...build.Option) (*build.Builder, error) {
	out := p.cfg.OutputDir(p.root)
	if output != "" {
		out, _ = filepath.Abs(output)
	}
	return build.New(build.Config{
		Root:         p.root,
		Output:       out,
		Ledger:       p.cfg.LedgerPath(p.root),
		Dependencies: p.cfg.DependencyDirs(p.root),
		Scan:         p.cfg.ScanOptions(p.root),
		Workers:      p.cfg.Index.Workers,
		Prefix:       p.cfg.WritePrefix(),
		LockTimeout:  p.cfg.LockTimeout(),
	}, append([]build.Option{build.WithLogger(slog.Default())}, opts...)...)
}

// query holds what the read commands need: the classpath of index
// resources and a loader resolving the locations they name.
type query struct {
	catalog *classpath.Classpath
	loader  *gosrc.Loader
}

func (q *query) Close() {
	if q.loader != nil {
		q.loader.Close()
	}
	if q.catalog != nil {
		_ = q.catalog.Close()
	}
}

// openQuery opens the configured classpath plus extra entries, and a
// loader over the project module and its dependencies.
func (p *project) openQuery(ctx context.Context, extra []string) (*query, error) {
	entries := p.cfg.ClasspathEntries(p.root)
	for _, e := range extra {
		if !isURL(e) {
			e, _ = filepath.Abs(e)
		}
		entries = append(entries, e)
	}
	entries = existingEntries(entries, p.cfg.OutputDir(p.root))
	if len(entries) == 0 {
		return nil, errors.New(errors.ErrCodeConfigNotFound, fmt.Sprintf("no index found in %s", p.root), nil).
			WithSuggestion("Run 'annodex index' to create one, or pass --classpath")
	}

	cp, err := classpath.Open(ctx, entries,
		classpath.WithBucketOptions(p.cfg.BucketOptions()),
		classpath.WithOpenLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	q := &query{catalog: cp}

	mods, err := p.modules()
	if err != nil {
		q.Close()
		return nil, err
	}
	q.loader, err = gosrc.NewLoader(mods, gosrc.WithLoaderLogger(slog.Default()))
	if err != nil {
		q.Close()
		return nil, err
	}
	return q, nil
}

// modules returns the project module followed by the dependency modules.
func (p *project) modules() ([]gosrc.Module, error) {
	mod, err := gosrc.FindModule(p.root)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("no Go module at %s", p.root), err).
			WithSuggestion("Run annodex inside a Go module (a directory tree with go.mod)")
	}
	mods := []gosrc.Module{mod}
	for _, dep := range p.cfg.DependencyDirs(p.root) {
		m, err := gosrc.FindModule(dep)
		if err != nil {
			return nil, errors.ConfigError(fmt.Sprintf("dependency %s: %v", dep, err), err)
		}
		mods = append(mods, m)
	}
	return mods, nil
}

// existingEntries drops the output directory while it has not been
// built yet, so a fresh project queries as empty instead of failing.
func existingEntries(entries []string, output string) []string {
	out := entries[:0]
	for _, e := range entries {
		if e == output {
			if _, err := os.Stat(e); err != nil {
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// openLedger opens the project ledger for reading. It fails when no
// build has created it yet.
func (p *project) openLedger() (*provenance.Ledger, error) {
	path := p.cfg.LedgerPath(p.root)
	if _, err := os.Stat(path); err != nil {
		return nil, errors.New(errors.ErrCodeConfigNotFound, fmt.Sprintf("no index found in %s", p.root), err).
			WithSuggestion("Run 'annodex index' to create one")
	}
	return provenance.Open(path)
}

func isURL(s string) bool {
	return strings.Contains(s, "://")
}
