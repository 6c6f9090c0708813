package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per stage change and per finished
// stage, for CI logs and pipes.
type PlainRenderer struct {
	mu    sync.Mutex
	out   io.Writer
	stage Stage
	// started is false until the first event.
	started bool
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entered := !r.started || event.Stage != r.stage
	r.started = true
	r.stage = event.Stage

	switch {
	case event.Message != "":
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), event.Message)
	case event.Total > 0 && event.Current == event.Total:
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d\n", event.Stage.Icon(), event.Current, event.Total)
	case entered:
		_, _ = fmt.Fprintf(r.out, "[%s] %s...\n", event.Stage.Icon(), event.Stage)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = StageComplete
	_, _ = fmt.Fprintf(r.out, "[%s] %s build: %d annotation(s), %d file(s) in %s",
		StageComplete.Icon(), stats.Mode, stats.Annotations, stats.Files, stats.Duration.Round(time.Millisecond))
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if s := stats.Stages; s.Parse > 0 || s.Index > 0 {
		_, _ = fmt.Fprintf(r.out, "  scan %s, parse %s (%d packages), index %s\n",
			s.Scan.Round(time.Millisecond), s.Parse.Round(time.Millisecond), stats.Packages,
			s.Index.Round(time.Millisecond))
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
