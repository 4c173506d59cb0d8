// Package mappings provides the mappings command and its subcommands.
package mappings

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/dbmerger/cmd/application"
	"github.com/agentstation/dbmerger/internal/cmd/alerts"
	"github.com/agentstation/dbmerger/internal/cmd/output"
	"github.com/agentstation/dbmerger/internal/cmd/table"
	"github.com/agentstation/dbmerger/pkg/mappings"
)

// NewCommand creates the mappings command with app dependencies.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mappings",
		Aliases: []string{"mapping"},
		GroupID: "management",
		Short:   "Show and check field mappings",
		Long: `Field mappings say which source fields are merged into which
destination field. They are read, in decreasing precedence, from the
mappings_file, mappings_raw (a JSON array) or mappings configuration keys,
and default to the Auteur, Titre and Copyright mappings.`,
		Example: `  dbmerger mappings show
  dbmerger mappings show --raw
  dbmerger mappings check mappings.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(NewShowCommand(app))
	cmd.AddCommand(NewCheckCommand(app))

	return cmd
}

// NewShowCommand creates the mappings show subcommand.
func NewShowCommand(app application.Application) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the field mappings in effect",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			if raw {
				fmt.Fprintln(cmd.OutOrStdout(), client.Params().MappingsRaw)
				return nil
			}

			set := client.Mappings()
			tableData := table.MappingsToTableData(set)
			return output.Write(cmd.OutOrStdout(), app.OutputFormat(), set, &tableData)
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print the mappings as the merge_mappings_raw JSON parameter")

	return cmd
}

// NewCheckCommand creates the mappings check subcommand.
func NewCheckCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a mappings file or the mappings in effect",
		Long: `Check validates field mappings: every destination must be unique,
must not be a source field and must not be the provenance or validation
field. With no file, the mappings in effect are checked.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			set := client.Mappings()
			source := "configured mappings"
			if len(args) == 1 {
				source = args[0]
				set, err = mappings.LoadFile(args[0])
				if err != nil {
					_ = alerts.Write(cmd.ErrOrStderr(), app.OutputFormat(), alerts.New(alerts.LevelError, "%s", source).WithError(err))
					return err
				}
			}

			params := client.Params()
			if err := set.Validate(params.SourceField, params.ValidatedFlag); err != nil {
				_ = alerts.Write(cmd.ErrOrStderr(), app.OutputFormat(), alerts.New(alerts.LevelError, "%s", source).WithError(err))
				return err
			}

			return alerts.Write(cmd.OutOrStdout(), app.OutputFormat(),
				alerts.New(alerts.LevelSuccess, "%s: %d mappings valid", source, len(set)))
		},
	}
}
