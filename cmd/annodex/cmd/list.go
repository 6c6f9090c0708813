package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annodex/internal/errors"
	"github.com/Aman-CERP/annodex/internal/output"
	"github.com/Aman-CERP/annodex/pkg/element"
	"github.com/Aman-CERP/annodex/pkg/index"
)

// listEntry is the JSON form of one listed element.
type listEntry struct {
	Kind        string   `json:"kind"`
	Name        string   `json:"name"`
	Location    string   `json:"location"`
	Position    string   `json:"position,omitempty"`
	Annotations []string `json:"annotations,omitempty"`
}

func newListCmd() *cobra.Command {
	var (
		kinds      []string
		extra      []string
		jsonOutput bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list <annotation>",
		Short: "List the elements annotated with an annotation",
		Long: `List every element annotated with an indexed annotation, reading the
index resources of the classpath instead of scanning sources.

The classpath is the output directory followed by classpath.entries from
the configuration and any --classpath entries: directories, .zip or .jar
archives, or s3://bucket/prefix URLs.

Entries whose element can no longer be found are skipped.`,
		Example: `  # All elements annotated with @api.Audit
  annodex list example.com/app/api.Audit

  # Only methods, as JSON
  annodex list example.com/app/api.Audit --kind method --json

  # Include an index published to a bucket
  annodex list example.com/app/api.Audit --classpath s3://indexes/app`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd, args[0], kinds, extra, jsonOutput, limit)
		},
	}

	cmd.Flags().StringSliceVarP(&kinds, "kind", "k", nil, "Element kinds: class, method, field, constructor, package")
	cmd.Flags().StringSliceVar(&extra, "classpath", nil, "Additional classpath entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of elements (0 for all)")

	return cmd
}

func runList(ctx context.Context, cmd *cobra.Command, annotation string, kindNames, extra []string, jsonOutput bool, limit int) error {
	annotation = strings.TrimPrefix(strings.TrimSpace(annotation), "@")
	if annotation == "" {
		return errors.New(errors.ErrCodeInvalidAnnotation, "annotation must not be empty", nil)
	}
	kinds, err := parseKinds(kindNames)
	if err != nil {
		return err
	}

	p, err := loadProject("")
	if err != nil {
		return err
	}
	q, err := p.openQuery(ctx, extra)
	if err != nil {
		return err
	}
	defer q.Close()

	src := index.NewSource(q.catalog, q.loader)
	it, err := index.ListKind(ctx, annotation, src, kinds, index.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	entries := []listEntry{}
	for it.Next() {
		if limit > 0 && len(entries) == limit {
			break
		}
		entries = append(entries, toListEntry(it.Element()))
	}
	if err := it.Err(); err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	out := output.New(cmd.OutOrStdout())
	if len(entries) == 0 {
		out.Warningf("No elements annotated with %s", annotation)
		return nil
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Kind, e.Location, e.Position})
	}
	out.Table([]string{"KIND", "LOCATION", "POSITION"}, rows)
	return nil
}

// parseKinds parses --kind values. No values selects every kind.
func parseKinds(names []string) ([]element.Kind, error) {
	if len(names) == 0 {
		return []element.Kind{
			element.KindClass, element.KindMethod, element.KindField,
			element.KindConstructor, element.KindPackage,
		}, nil
	}
	kinds := make([]element.Kind, 0, len(names))
	for _, n := range names {
		k, err := element.ParseKind(n)
		if err != nil {
			return nil, errors.New(errors.ErrCodeValidation, err.Error(), err).
				WithSuggestion("Use class, method, field, constructor or package")
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func toListEntry(e element.Element) listEntry {
	entry := listEntry{Kind: e.Kind().String(), Name: e.SimpleName()}
	if loc, err := element.Location(e); err == nil {
		entry.Location = loc
	} else {
		entry.Location = element.Describe(e)
	}
	if pos := e.Pos(); pos.IsValid() {
		entry.Position = pos.String()
	}
	for _, a := range e.Mirrors() {
		entry.Annotations = append(entry.Annotations, a.String())
	}
	return entry
}

// printNames prints names one per line, or as a JSON array.
func printNames(cmd *cobra.Command, names []string, jsonOutput bool) error {
	if jsonOutput {
		if names == nil {
			names = []string{}
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(names)
	}
	for _, n := range names {
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), n); err != nil {
			return err
		}
	}
	return nil
}
