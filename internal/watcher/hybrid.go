package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Aman-CERP/annodex/internal/scanner"
)

// Watcher reports changes to the sources of a module tree. It uses
// fsnotify and falls back to polling when fsnotify is unavailable.
type Watcher struct {
	opts      Options
	fsWatcher *fsnotify.Watcher
	poller    *poller
	debouncer *Debouncer
	filter    *filter
	logger    *slog.Logger

	events  chan []FileEvent
	errors  chan error
	stopCh  chan struct{}
	readyCh chan struct{}
	ready   sync.Once

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Uint64
}

// New creates a watcher. Nothing is watched until Start.
func New(opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()
	if opts.Scanner == nil {
		s, err := scanner.New()
		if err != nil {
			return nil, err
		}
		opts.Scanner = s.WithLogger(opts.Logger)
	}

	w := &Watcher{
		opts:      opts,
		logger:    opts.Logger,
		debouncer: NewDebouncer(opts.DebounceWindow).WithLogger(opts.Logger),
		events:    make(chan []FileEvent, opts.EventBufferSize),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
		readyCh:   make(chan struct{}),
	}

	if !opts.ForcePolling {
		fsw, err := fsnotify.NewWatcher()
		if err == nil {
			w.fsWatcher = fsw
			return w, nil
		}
		w.logger.Warn("fsnotify unavailable, falling back to polling", slog.String("error", err.Error()))
	}
	w.poller = newPoller(opts.PollInterval)
	return w, nil
}

// Start watches root recursively until ctx is cancelled or Stop is
// called. It blocks; Ready is closed once the initial watches are set.
func (w *Watcher) Start(ctx context.Context, root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolve absolute path: %w", err)
	}
	w.mu.Lock()
	w.filter = newFilter(abs, w.opts.Scanner, w.opts.Scan)
	w.mu.Unlock()

	go w.forward(ctx)

	if w.fsWatcher != nil {
		return w.runFsnotify(ctx)
	}
	return w.runPolling(ctx)
}

// Ready is closed once Start has registered its initial watches.
func (w *Watcher) Ready() <-chan struct{} { return w.readyCh }

func (w *Watcher) markReady() { w.ready.Do(func() { close(w.readyCh) }) }

func (w *Watcher) runFsnotify(ctx context.Context) error {
	if err := w.addRecursive(w.filter.root, false); err != nil {
		return fmt.Errorf("add directories to watcher: %w", err)
	}
	w.markReady()
	w.logger.Debug("watching", slog.String("root", w.filter.root), slog.String("mode", w.Mode()))

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	err := w.poller.run(ctx, w.stopCh, w.filter, func(e FileEvent) {
		w.debouncer.Add(e)
	}, w.markReady, w.emitError)
	if ctx.Err() != nil {
		_ = w.Stop()
	}
	return err
}

// handle converts an fsnotify event and queues it when relevant.
func (w *Watcher) handle(event fsnotify.Event) {
	rel, ok := w.filter.rel(event.Name)
	if !ok {
		return
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		op = OpRename
	default:
		return
	}

	isDir := false
	if op == OpCreate || op == OpModify {
		if info, err := os.Stat(event.Name); err == nil {
			isDir = info.IsDir()
		}
	}

	reported, relevant := w.filter.classify(rel, op, isDir)
	if !relevant && (op == OpDelete || op == OpRename) {
		// A removed path can no longer be stat'ed; it may have been a
		// directory holding sources.
		reported, relevant = w.filter.classify(rel, op, true)
		isDir = relevant
	}
	if !relevant {
		return
	}
	if isDir && op == OpCreate {
		if err := w.addRecursive(event.Name, true); err != nil {
			w.emitError(err)
		}
	}

	w.debouncer.Add(FileEvent{Path: rel, Operation: reported, IsDir: isDir, Timestamp: time.Now()})
}

// forward moves debounced batches to the output channel.
func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case batch, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(batch) > 0 {
				w.emit(batch)
			}
		}
	}
}

// addRecursive watches dir and every accepted directory below it. With
// announce set, accepted files already present are reported as created:
// they may have been written before the watch on their directory existed.
func (w *Watcher) addRecursive(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Debug("skipping unreadable directory", slog.String("path", p), slog.String("error", err.Error()))
			return nil
		}
		rel, ok := w.filter.rel(p)
		if !d.IsDir() {
			if announce && ok {
				if op, relevant := w.filter.classify(rel, OpCreate, false); relevant {
					w.debouncer.Add(FileEvent{Path: rel, Operation: op, Timestamp: time.Now()})
				}
			}
			return nil
		}
		if ok && !w.filter.scanner.Accept(&w.filter.opts, rel, true) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(p)
	})
}

func (w *Watcher) emit(batch []FileEvent) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.events <- batch:
	default:
		n := w.dropped.Add(1)
		w.logger.Warn("event buffer full, dropping batch",
			slog.Int("batch_size", len(batch)),
			slog.Uint64("total_dropped_batches", n))
	}
}

func (w *Watcher) emitError(err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return
	}
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops watching and closes the output channels. Safe to call
// multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	if w.fsWatcher != nil {
		_ = w.fsWatcher.Close()
	}
	close(w.events)
	close(w.errors)
	return nil
}

// Events returns debounced batches of relevant changes.
func (w *Watcher) Events() <-chan []FileEvent { return w.events }

// Errors returns non-fatal watcher errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// DroppedBatches returns the number of batches lost to a full buffer.
func (w *Watcher) DroppedBatches() uint64 { return w.dropped.Load() }

// Mode returns "fsnotify" or "polling".
func (w *Watcher) Mode() string {
	if w.fsWatcher != nil {
		return "fsnotify"
	}
	return "polling"
}
