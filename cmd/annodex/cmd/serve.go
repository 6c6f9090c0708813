package cmd

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/annodex/internal/build"
	"github.com/Aman-CERP/annodex/internal/logging"
	"github.com/Aman-CERP/annodex/internal/mcp"
	"github.com/Aman-CERP/annodex/internal/watcher"
)

func newServeCmd() *cobra.Command {
	var (
		extra     []string
		transport string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol server so AI clients can query the
annotation indexes of the classpath.

Tools: list_annotated, list_annotations, index_status.
Resources: annodex://status and one annodex://index/<annotation> per
indexed annotation.

Nothing is written to stdout except the protocol; logs go to
~/.annodex/logs/annodex.log. With --watch the module is indexed first
and rebuilt as files change, and the server refreshes after each build.`,
		Example: `  # Serve over stdio
  annodex serve

  # Keep the index fresh while serving
  annodex serve --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, extra, transport, watch)
		},
	}

	cmd.Flags().StringSliceVar(&extra, "classpath", nil, "Additional classpath entries")
	cmd.Flags().StringVar(&transport, "transport", "", "Transport (overrides server.transport)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Index the module and rebuild as files change")

	return cmd
}

func runServe(ctx context.Context, extra []string, transport string, watch bool) error {
	p, err := loadProject("")
	if err != nil {
		return err
	}
	if transport == "" {
		transport = p.cfg.Server.Transport
	}

	logger, cleanup, err := logging.SetupServeMode(p.cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	opts := mcp.Options{Root: p.root, Logger: logger}

	var b *build.Builder
	if watch {
		b, err = p.builder("")
		if err != nil {
			return err
		}
		defer func() { _ = b.Close() }()
		if _, err := b.Build(ctx, false); err != nil {
			return err
		}
		opts.Ledger = b.Ledger()
	} else if ledger, err := p.openLedger(); err == nil {
		defer func() { _ = ledger.Close() }()
		opts.Ledger = ledger
	} else {
		logger.Info("serving without ledger", slog.String("error", err.Error()))
	}

	q, err := p.openQuery(ctx, extra)
	if err != nil {
		return err
	}
	defer q.Close()

	srv, err := mcp.NewServer(q.catalog, q.loader, opts)
	if err != nil {
		return err
	}
	if err := srv.RegisterResources(ctx); err != nil {
		return err
	}

	if !watch {
		return srv.Serve(ctx, transport)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The client closing the session ends the watch as well.
		defer cancel()
		if err := srv.Serve(gctx, transport); err != nil && !stderrors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return watchProject(gctx, p, b, nil, invalidateReport(gctx, srv, logger))
	})
	return g.Wait()
}

// invalidateReport refreshes srv after every successful rebuild.
func invalidateReport(ctx context.Context, srv *mcp.Server, logger *slog.Logger) watcher.ReportFunc {
	log := watcher.LogReport(logger)
	return func(batch []watcher.FileEvent, res *build.Result, err error) {
		log(batch, res, err)
		if err != nil || res == nil {
			return
		}
		if err := srv.Invalidate(ctx); err != nil {
			logger.Warn("failed to refresh server", slog.String("error", err.Error()))
		}
	}
}
