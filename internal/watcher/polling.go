package watcher

import (
	"context"
	"os"
	"path/filepath"
	"time"
)

// snapshot is the observed state of one source file.
type snapshot struct {
	modTime time.Time
	size    int64
}

// poller detects changes by rescanning the tree with the build scanner.
type poller struct {
	interval time.Duration
	state    map[string]snapshot
}

func newPoller(interval time.Duration) *poller {
	return &poller{interval: interval}
}

// run polls until ctx is done or stop is closed.
func (p *poller) run(ctx context.Context, stop <-chan struct{}, f *filter, emit func(FileEvent), ready func(), fail func(error)) error {
	state, err := p.scan(ctx, f)
	if err != nil {
		return err
	}
	p.state = state
	ready()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-ticker.C:
			if err := p.detect(ctx, f, emit); err != nil && ctx.Err() == nil {
				fail(err)
			}
		}
	}
}

// scan records every scanned source plus the module file. .gitignore
// edits show up as files entering or leaving the scanned set.
func (p *poller) scan(ctx context.Context, f *filter) (map[string]snapshot, error) {
	f.scanner.InvalidateIgnoreCache()
	opts := f.opts
	files, err := f.scanner.Collect(ctx, &opts)
	if err != nil {
		return nil, err
	}
	state := make(map[string]snapshot, len(files)+1)
	for _, file := range files {
		state[file.Path] = snapshot{modTime: file.ModTime, size: file.Size}
	}
	if info, err := os.Stat(filepath.Join(f.root, "go.mod")); err == nil {
		state["go.mod"] = snapshot{modTime: info.ModTime(), size: info.Size()}
	}
	return state, nil
}

// detect compares the tree with the previous scan and emits the
// differences.
func (p *poller) detect(ctx context.Context, f *filter, emit func(FileEvent)) error {
	current, err := p.scan(ctx, f)
	if err != nil {
		return err
	}
	now := time.Now()
	for rel, snap := range current {
		prev, seen := p.state[rel]
		switch {
		case !seen:
			emit(pollEvent(rel, OpCreate, now))
		case !prev.modTime.Equal(snap.modTime) || prev.size != snap.size:
			emit(pollEvent(rel, OpModify, now))
		}
	}
	for rel := range p.state {
		if _, ok := current[rel]; !ok {
			emit(pollEvent(rel, OpDelete, now))
		}
	}
	p.state = current
	return nil
}

func pollEvent(rel string, op Operation, at time.Time) FileEvent {
	if rel == "go.mod" {
		op = OpModuleChange
	}
	return FileEvent{Path: rel, Operation: op, Timestamp: at}
}
