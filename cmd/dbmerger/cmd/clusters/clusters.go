// Package clusters provides the clusters command and its subcommands.
package clusters

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/dbmerger/cmd/application"
	"github.com/agentstation/dbmerger/internal/cmd/alerts"
	"github.com/agentstation/dbmerger/internal/cmd/output"
	"github.com/agentstation/dbmerger/internal/cmd/table"
	"github.com/agentstation/dbmerger/pkg/clusters"
)

// NewCommand creates the clusters command with app dependencies.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "clusters",
		Aliases: []string{"cluster"},
		GroupID: "core",
		Short:   "List and validate similarity clusters",
		Long: `Clusters are groups of similar images computed by the host.

Only validated clusters are merged. Validate a cluster once you have
confirmed that its members show the same work.`,
		Example: `  dbmerger clusters list                 # List clusters in merge order
  dbmerger clusters validate c-1 c-2     # Validate two clusters
  dbmerger clusters validate c-1 --revoke`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(NewListCommand(app))
	cmd.AddCommand(NewValidateCommand(app))

	return cmd
}

// NewListCommand creates the clusters list subcommand.
func NewListCommand(app application.Application) *cobra.Command {
	var validatedOnly bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List clusters in merge order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			cs, err := client.Clusters(cmd.Context())
			if err != nil {
				return err
			}

			if validatedOnly {
				cs = clusters.Validated(cs)
			}

			format := app.OutputFormat()
			if format.IsTable() && len(cs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No clusters found.")
				return nil
			}

			tableData := table.ClustersToTableData(cs, format == output.FormatWide)
			return output.Write(cmd.OutOrStdout(), format, cs, &tableData)
		},
	}

	cmd.Flags().BoolVar(&validatedOnly, "validated", false, "show only validated clusters")

	return cmd
}

// NewValidateCommand creates the clusters validate subcommand.
func NewValidateCommand(app application.Application) *cobra.Command {
	var revoke bool

	cmd := &cobra.Command{
		Use:   "validate <cluster-id>...",
		Short: "Mark clusters as validated",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			for _, id := range args {
				if err := client.ValidateCluster(cmd.Context(), id, !revoke); err != nil {
					return err
				}
				alert := alerts.New(alerts.LevelSuccess, "Cluster %s validated", id)
				if revoke {
					alert = alerts.New(alerts.LevelSkipped, "Cluster %s no longer validated", id)
				}
				if err := alerts.Write(cmd.OutOrStdout(), app.OutputFormat(), alert); err != nil {
					return err
				}
			}

			app.Logger().Debug().Int("clusters", len(args)).Bool("revoke", revoke).Msg("Updated cluster validation")
			return nil
		},
	}

	cmd.Flags().BoolVar(&revoke, "revoke", false, "remove the validation instead of setting it")

	return cmd
}
