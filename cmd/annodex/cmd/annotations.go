package cmd

import (
	"github.com/spf13/cobra"
)

func newAnnotationsCmd() *cobra.Command {
	var (
		extra      []string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "annotations",
		Short: "List the annotations indexed on the classpath",
		Long: `List every annotation identity with an index resource on the classpath,
under either namespace prefix, sorted and without duplicates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProject("")
			if err != nil {
				return err
			}
			q, err := p.openQuery(cmd.Context(), extra)
			if err != nil {
				return err
			}
			defer q.Close()

			names, err := q.catalog.Annotations(cmd.Context())
			if err != nil {
				return err
			}
			return printNames(cmd, names, jsonOutput)
		},
	}

	cmd.Flags().StringSliceVar(&extra, "classpath", nil, "Additional classpath entries")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
