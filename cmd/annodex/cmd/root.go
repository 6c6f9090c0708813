// Package cmd provides the CLI commands for annodex.
package cmd

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/logging"
	"github.com/Aman-CERP/annodex/internal/profiling"
	"github.com/Aman-CERP/annodex/pkg/version"
)

// Global flags.
var (
	debugMode      bool
	workDir        string
	profiles       profiling.Config
	loggingCleanup func()
	profile        *profiling.Session
)

// NewRootCmd creates the root command for the annodex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annodex",
		Short: "Build and query annotation indexes for Go modules",
		Long: `annodex records which declarations carry indexable annotations at build
time, so programs can list them later without scanning sources.

Annotations are written as doc comment directives, for example:

  // @api.Audit
  type Stuff struct{}

An annotation type opts in with @annodex.Indexed and @annodex.Retention(runtime).
'annodex index' writes one resource per annotation under the output
directory; 'annodex list' reads them back through the classpath.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetVersionTemplate("annodex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.annodex/logs/")
	cmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "Run as if annodex was started in this directory")

	cmd.PersistentFlags().StringVar(&profiles.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profiles.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profiles.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.PersistentPreRunE = startHooks
	cmd.PersistentPostRunE = stopHooks

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newAnnotationsCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startHooks installs file logging with --debug, and warnings on stderr
// otherwise, then starts any requested profiles. serve replaces the
// logger with file-only logging.
func startHooks(cmd *cobra.Command, _ []string) error {
	if err := startLogging(cmd); err != nil {
		return err
	}
	if !profiles.Enabled() {
		return nil
	}
	s, err := profiling.Start(profiles)
	if err != nil {
		return err
	}
	profile = s
	return nil
}

func startLogging(cmd *cobra.Command) error {
	if !debugMode {
		slog.SetDefault(logging.Console(cmd.ErrOrStderr(), "warn"))
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("Debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version),
		slog.String("command", cmd.CommandPath()))
	return nil
}

// stopHooks writes the profiles and closes the debug log. It runs after
// failed commands as well.
func stopHooks(_ *cobra.Command, _ []string) error {
	var err error
	if profile != nil {
		err = profile.Stop()
		profile = nil
		slog.Debug("Profiles written", slog.String("heap_in_use", profiling.HeapInUse()))
	}
	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints any error.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		printError(cmd.ErrOrStderr(), err)
	}
	_ = stopHooks(cmd, nil)
	return err
}

func printError(w io.Writer, err error) {
	_, _ = fmt.Fprint(w, errors.FormatForCLI(err, debugMode))
}
