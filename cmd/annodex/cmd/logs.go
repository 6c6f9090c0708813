package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/logging"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	noColor bool
	logFile string
}

func newLogsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View annodex logs",
		Long: `View and tail the annodex log file.

Logs are written to ~/.annodex/logs/annodex.log when a command runs with
--debug, and always by 'annodex serve'. By default the last 50 lines
are shown. Use -f to follow new entries (like 'tail -f').`,
		Example: `  annodex logs                    # Show last 50 lines
  annodex logs -n 100             # Show last 100 lines
  annodex logs -f                 # Follow logs in real-time
  annodex logs --level error      # Show only error logs
  annodex logs --filter "build"   # Filter by pattern`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd.Context(), cmd, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Filter by log level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Filter by keyword/pattern (regex)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Path to log file")

	return cmd
}

func runLogs(ctx context.Context, cmd *cobra.Command, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return errors.New(errors.ErrCodeConfigNotFound, err.Error(), err)
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		pattern, err = regexp.Compile(opts.filter)
		if err != nil {
			return errors.New(errors.ErrCodeValidation, "invalid filter pattern", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: opts.noColor,
	}, cmd.OutOrStdout())

	stderr := cmd.ErrOrStderr()
	fmt.Fprintf(stderr, "Log file: %s\n", path)
	if opts.follow {
		fmt.Fprintln(stderr, "Following... (Ctrl+C to stop)")
	}
	fmt.Fprintln(stderr, "---")

	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Show the tail before following, like tail -f.
	if entries, err := viewer.Tail(path, opts.lines); err == nil {
		viewer.Print(entries)
	}

	entries := make(chan logging.Entry, 100)
	errCh := make(chan error, 1)
	go func() {
		errCh <- viewer.Follow(ctx, path, entries)
	}()

	for {
		select {
		case e := <-entries:
			fmt.Fprintln(cmd.OutOrStdout(), viewer.Format(e))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			fmt.Fprintln(stderr, "\n---")
			fmt.Fprintln(stderr, "Stopped.")
			return nil
		}
	}
}
