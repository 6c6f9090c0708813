package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annodex/internal/output"
	"github.com/Aman-CERP/annodex/internal/provenance"
)

// statusInfo is the JSON form of the status command.
type statusInfo struct {
	Root      string       `json:"root"`
	Output    string       `json:"output"`
	Ledger    string       `json:"ledger"`
	Files     int          `json:"files"`
	Resources int          `json:"resources"`
	Locations int          `json:"locations"`
	Builds    []buildEntry `json:"builds"`
}

type buildEntry struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Files       int       `json:"files"`
	Annotations int       `json:"annotations"`
	StartedAt   time.Time `json:"started_at"`
	Duration    string    `json:"duration,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var (
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index size and recent builds",
		Long: `Display information about the index of the current project:
  - Number of tracked source files
  - Number of resources and locations written
  - The most recent builds with their mode and outcome`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd, jsonOutput, limit)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Number of builds to show")

	return cmd
}

func runStatus(ctx context.Context, cmd *cobra.Command, jsonOutput bool, limit int) error {
	p, err := loadProject("")
	if err != nil {
		return err
	}
	ledger, err := p.openLedger()
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	info, err := collectStatus(ctx, p, ledger, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	renderStatus(output.New(cmd.OutOrStdout()), info)
	return nil
}

func collectStatus(ctx context.Context, p *project, ledger *provenance.Ledger, limit int) (*statusInfo, error) {
	sum, err := ledger.Summary(ctx)
	if err != nil {
		return nil, err
	}
	builds, err := ledger.Builds(ctx, limit)
	if err != nil {
		return nil, err
	}

	info := &statusInfo{
		Root:      p.root,
		Output:    p.cfg.OutputDir(p.root),
		Ledger:    ledger.Path(),
		Files:     sum.Files,
		Resources: sum.Resources,
		Locations: sum.Locations,
		Builds:    make([]buildEntry, 0, len(builds)),
	}
	for _, b := range builds {
		e := buildEntry{
			ID:          b.ID,
			Mode:        b.Mode,
			Status:      b.Status,
			Message:     b.Message,
			Files:       b.Files,
			Annotations: b.Annotations,
			StartedAt:   b.StartedAt,
		}
		if !b.FinishedAt.IsZero() {
			e.Duration = b.FinishedAt.Sub(b.StartedAt).Round(time.Millisecond).String()
		}
		info.Builds = append(info.Builds, e)
	}
	return info, nil
}

func renderStatus(out *output.Writer, info *statusInfo) {
	out.Header("Index")
	out.KeyValue(
		"Root", info.Root,
		"Output", info.Output,
		"Ledger", info.Ledger,
		"Files", fmt.Sprint(info.Files),
		"Resources", fmt.Sprint(info.Resources),
		"Locations", fmt.Sprint(info.Locations),
	)
	out.Newline()

	if len(info.Builds) == 0 {
		out.Warning("No build recorded")
		return
	}
	out.Header("Builds")
	rows := make([][]string, 0, len(info.Builds))
	for _, b := range info.Builds {
		rows = append(rows, []string{
			b.ID,
			b.StartedAt.Format(time.DateTime),
			b.Mode,
			b.Status,
			fmt.Sprint(b.Files),
			fmt.Sprint(b.Annotations),
			b.Duration,
		})
	}
	out.Table([]string{"ID", "STARTED", "MODE", "STATUS", "FILES", "ANNOTATIONS", "DURATION"}, rows)
	if last := info.Builds[0]; last.Status != provenance.StatusOK && last.Message != "" {
		out.Newline()
		out.Errorf("Last build: %s", last.Message)
	}
}
