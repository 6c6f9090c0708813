package cmd

import (
	"encoding/json"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/preflight"
)

// doctorReport is the JSON form of the doctor command.
type doctorReport struct {
	Status string                  `json:"status"`
	Checks []preflight.CheckResult `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	var (
		verbose    bool
		jsonOutput bool
		extra      []string
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the project setup and diagnose issues",
		Long: `Run diagnostics to ensure annodex can build and query the index.

Checks:
  - The project is a Go module
  - Disk space and write permissions for the output directory
  - File descriptor limits (used by watch mode)
  - The provenance ledger and its last build
  - Every classpath entry, including s3:// buckets

Use --verbose for detailed diagnostic information.
Use --json for machine-readable output.`,
		Example: `  # Run diagnostics
  annodex doctor

  # JSON output for scripting
  annodex doctor --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd, verbose, jsonOutput, extra)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed diagnostic info")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().StringSliceVar(&extra, "classpath", nil, "Additional classpath entries to check")

	return cmd
}

func runDoctor(cmd *cobra.Command, verbose, jsonOutput bool, extra []string) error {
	p, err := loadProject("")
	if err != nil {
		return err
	}

	entries := p.cfg.ClasspathEntries(p.root)
	for _, e := range extra {
		if !isURL(e) {
			e, _ = filepath.Abs(e)
		}
		entries = append(entries, e)
	}

	checker := preflight.New(
		preflight.WithVerbose(verbose),
		preflight.WithOutput(cmd.OutOrStdout()),
	)
	results := checker.RunAll(cmd.Context(), preflight.Target{
		Root:      p.root,
		Output:    p.cfg.OutputDir(p.root),
		Ledger:    p.cfg.LedgerPath(p.root),
		Classpath: entries,
		Bucket:    p.cfg.BucketOptions(),
	})

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(doctorReport{Status: checker.SummaryStatus(results), Checks: results}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return errors.New(errors.ErrCodeValidation, "system check failed", nil).
			WithSuggestion("Fix the failed checks above and run 'annodex doctor' again")
	}
	return nil
}
