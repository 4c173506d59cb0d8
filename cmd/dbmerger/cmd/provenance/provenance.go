// Package provenance provides the provenance command.
package provenance

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/dbmerger/cmd/application"
	"github.com/agentstation/dbmerger/internal/cmd/output"
	"github.com/agentstation/dbmerger/internal/cmd/table"
)

// NewCommand creates the provenance command with app dependencies.
func NewCommand(app application.Application) *cobra.Command {
	var fields []string

	cmd := &cobra.Command{
		Use:     "provenance <image-id>",
		GroupID: "core",
		Short:   "Show where the merged values of an image came from",
		Long: `Provenance lists, for each destination field written by the last
merge, the source image, source field and provenance label of every
contributing value.`,
		Example: `  dbmerger provenance img-1
  dbmerger provenance img-1 --fields 'Auteur-*'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			byField, err := client.Provenance(args[0])
			if err != nil {
				return err
			}
			byField = table.FilterFields(byField, fields)

			format := app.OutputFormat()
			if format.IsTable() && len(byField) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No provenance recorded for %s matching %v.\n", args[0], fields)
				return nil
			}

			tableData := table.ProvenanceToTableData(byField)
			return output.Write(cmd.OutOrStdout(), format, byField, &tableData)
		},
	}

	cmd.Flags().StringSliceVar(&fields, "fields", nil, "destination fields to show (shell patterns)")

	return cmd
}
