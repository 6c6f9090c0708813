package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/annodex/internal/build"
	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/output"
	"github.com/Aman-CERP/annodex/internal/ui"
	"github.com/Aman-CERP/annodex/internal/watcher"
	"github.com/Aman-CERP/annodex/pkg/element"
)

func newIndexCmd() *cobra.Command {
	var (
		force     bool
		watch     bool
		progress  bool
		outputDir string
	)

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build the annotation index of a module",
		Long: `Scan the Go sources of a module, find every declaration carrying an
indexable annotation and write one resource per annotation under the
output directory.

Builds are incremental: only files changed since the last build are
parsed, and locations whose source vanished are dropped. The ledger
recording this lives next to the output directory.

Use --force to discard the ledger and rebuild from scratch.
Use --watch to keep rebuilding as files change.

Progress of the first build is drawn on stderr when it is a terminal.
Use --progress to print it as plain text otherwise.`,
		Example: `  # Index the module in the current directory
  annodex index

  # Rebuild everything into a custom directory
  annodex index --force --output build/annotations

  # Keep the index fresh while editing
  annodex index --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			path := workDir
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(ctx, cmd, path, outputDir, force, watch, progress)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Discard the ledger and rebuild from scratch")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Rebuild incrementally as files change")
	cmd.Flags().BoolVar(&progress, "progress", false, "Report build progress even when stderr is not a terminal")
	cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (overrides paths.output)")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path, outputDir string, force, watch, progress bool) error {
	p, err := loadProject(path)
	if err != nil {
		return err
	}
	out := output.New(cmd.OutOrStdout())

	var sink progressSink
	b, err := p.builder(outputDir, build.WithProgress(sink.report))
	if err != nil {
		return err
	}
	defer func() { _ = b.Close() }()

	if errOut := cmd.ErrOrStderr(); progress || ui.IsTTY(errOut) {
		r := ui.NewRenderer(ui.NewConfig(errOut, ui.WithProjectDir(b.Root())))
		if err := r.Start(ctx); err != nil {
			return err
		}
		sink.attach(r)
	}
	res, err := b.Build(ctx, force)
	sink.finish(res)
	if err != nil {
		return err
	}
	printResult(out, res)
	if !watch {
		if !res.OK() {
			return errors.New(errors.ErrCodeBuildFailed, fmt.Sprintf("build failed with %d error(s)", res.Errors), nil).
				WithDetail("build", res.ID).
				WithSuggestion("Fix the reported diagnostics and run 'annodex index' again")
		}
		return nil
	}

	return runWatch(ctx, out, p, b)
}

// runWatch rebuilds on every batch of source changes until interrupted.
func runWatch(ctx context.Context, out *output.Writer, p *project, b *build.Builder) error {
	ready := func(w *watcher.Watcher) {
		out.Statusf("👀", "Watching %s (%s), Ctrl+C to stop", b.Root(), w.Mode())
	}
	return watchProject(ctx, p, b, ready, watchReport(out))
}

// watchProject runs b once per debounced batch of source changes until
// ctx is done. ready is called once the watcher is observing the tree.
func watchProject(ctx context.Context, p *project, b *build.Builder, ready func(*watcher.Watcher), report watcher.ReportFunc) error {
	w, err := watcher.New(watcher.Options{
		DebounceWindow: p.cfg.DebounceWindow(),
		PollInterval:   p.cfg.PollInterval(),
		Scan:           *b.ScanOptions(),
		Scanner:        b.Scanner(),
		ForcePolling:   p.cfg.Watch.ForcePolling,
		Logger:         slog.Default(),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return w.Start(gctx, b.Root())
	})
	g.Go(func() error {
		defer func() { _ = w.Stop() }()
		select {
		case <-w.Ready():
			if ready != nil {
				ready(w)
			}
		case <-gctx.Done():
			return gctx.Err()
		}
		return watcher.Rebuild(gctx, w, b, report)
	})

	err = g.Wait()
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func watchReport(out *output.Writer) watcher.ReportFunc {
	log := watcher.LogReport(slog.Default())
	return func(batch []watcher.FileEvent, res *build.Result, err error) {
		log(batch, res, err)
		switch {
		case err != nil:
			out.Err(err)
		case res != nil:
			out.Newline()
			out.Statusf("🔄", "%d change(s) detected", len(batch))
			printResult(out, res)
		}
	}
}

// progressSink forwards builder progress to a renderer while one is
// attached. Watch rebuilds run detached.
type progressSink struct {
	mu sync.Mutex
	r  ui.Renderer
}

func (s *progressSink) attach(r ui.Renderer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.r = r
}

func (s *progressSink) report(p build.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.r == nil {
		return
	}
	s.r.UpdateProgress(ui.ProgressEvent{
		Stage:   uiStage(p.Stage),
		Current: p.Current,
		Total:   p.Total,
		Item:    p.Item,
	})
}

// finish completes and detaches the renderer. res is nil when the
// build could not run.
func (s *progressSink) finish(res *build.Result) {
	s.mu.Lock()
	r := s.r
	s.r = nil
	s.mu.Unlock()
	if r == nil {
		return
	}
	if res != nil {
		r.Complete(ui.CompletionStats{
			Mode:        res.Mode,
			Files:       res.Files,
			Packages:    res.Packages,
			Annotations: res.Annotations,
			Duration:    res.Duration,
			Errors:      res.Errors,
			Warnings:    res.Warnings,
			Stages: ui.StageTimings{
				Scan:  res.Stages.Scan,
				Parse: res.Stages.Parse,
				Index: res.Stages.Process,
			},
		})
	}
	_ = r.Stop()
}

func uiStage(s build.Stage) ui.Stage {
	switch s {
	case build.StageParse:
		return ui.StageParsing
	case build.StageProcess:
		return ui.StageIndexing
	default:
		return ui.StageScanning
	}
}

func printResult(out *output.Writer, res *build.Result) {
	for _, d := range res.Diagnostics {
		where := ""
		if d.Element != nil {
			where = d.Element.Pos().String()
			if where == "-" {
				where = element.Describe(d.Element)
			}
		}
		out.Diagnostic(d.Kind.String(), d.Code(), d.Message, where)
	}

	summary := fmt.Sprintf("%s build: %d annotation(s) from %d package(s) in %s",
		res.Mode, res.Annotations, res.Packages, res.Duration.Round(time.Millisecond))
	switch {
	case !res.OK():
		out.Errorf("%s, %d error(s)", summary, res.Errors)
	case res.Warnings > 0:
		out.Warningf("%s, %d warning(s)", summary, res.Warnings)
	default:
		out.Success(summary)
	}
	out.KeyValue(
		"Files", fmt.Sprint(res.Files),
		"Changed", fmt.Sprint(res.Changed),
		"Deleted", fmt.Sprint(res.Deleted),
		"Invalidated", fmt.Sprint(res.Invalidated),
	)
}
