// Package merge provides the merge command.
package merge

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/dbmerger"
	"github.com/agentstation/dbmerger/cmd/application"
	"github.com/agentstation/dbmerger/internal/cmd/emoji"
	"github.com/agentstation/dbmerger/internal/cmd/output"
	"github.com/agentstation/dbmerger/internal/cmd/table"
	"github.com/agentstation/dbmerger/pkg/constants"
	"github.com/agentstation/dbmerger/pkg/differ"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/merger"
)

// Report is the structured output of a merge.
type Report struct {
	RunID     string                  `json:"run_id" yaml:"run_id"`
	DryRun    bool                    `json:"dry_run" yaml:"dry_run"`
	Canceled  bool                    `json:"canceled,omitempty" yaml:"canceled,omitempty"`
	Scope     merger.Scope            `json:"scope" yaml:"scope"`
	Summary   string                  `json:"summary" yaml:"summary"`
	Stats     merger.ResultStatistics `json:"stats" yaml:"stats"`
	Duration  string                  `json:"duration" yaml:"duration"`
	Changeset *differ.Changeset       `json:"changeset" yaml:"changeset"`
	Warnings  []string                `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// NewReport builds the structured report of a merge result.
func NewReport(result *merger.Result, dryRun, canceled bool) Report {
	return Report{
		RunID:     result.RunID,
		DryRun:    dryRun,
		Canceled:  canceled,
		Scope:     result.Metadata.Scope,
		Summary:   result.Summary(),
		Stats:     result.Metadata.Stats,
		Duration:  result.Metadata.Duration.Round(time.Millisecond).String(),
		Changeset: result.Changeset,
		Warnings:  result.Warnings,
	}
}

// NewCommand creates the merge command with app dependencies.
func NewCommand(app application.Application) *cobra.Command {
	var (
		dryRun  bool
		scope   string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:     "merge",
		GroupID: "core",
		Short:   "Merge metadata of validated clusters",
		Long: `Merge copies the values of the mapped source fields of every
validated cluster into their destination fields, suffixed with the
provenance label of the image they come from:

  Victor Hugo [source-1];Hugo Victor [source-2]

With --scope image (the default) each image receives its own values.
With --scope cluster the values of all members are gathered and every
member receives the same merged value.

Interrupting a merge keeps the clusters already merged.`,
		Example: `  dbmerger merge --dry-run          # Preview the changes
  dbmerger merge                    # Merge and write back
  dbmerger merge --scope cluster    # Share merged values across members
  dbmerger merge -o json            # Structured report`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			opts := []dbmerger.MergeOption{
				dbmerger.WithDryRun(dryRun),
				dbmerger.WithTimeout(timeout),
			}
			if cmd.Flags().Changed("scope") {
				s, err := merger.ParseScope(scope)
				if err != nil {
					return err
				}
				opts = append(opts, dbmerger.WithMergeScope(s))
			}

			result, mergeErr := client.ExecuteMerge(cmd.Context(), opts...)
			if result == nil {
				return mergeErr
			}
			canceled := errors.IsCanceled(mergeErr)
			if mergeErr != nil && !canceled {
				return mergeErr
			}

			if err := render(cmd, app.OutputFormat(), result, dryRun, canceled); err != nil {
				return err
			}
			return mergeErr
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute the merge without writing anything")
	cmd.Flags().StringVar(&scope, "scope", "", "merge scope: image or cluster (default from config)")
	cmd.Flags().DurationVar(&timeout, "timeout", constants.CommandTimeout, "maximum merge duration")

	return cmd
}

// render prints a merge result in the requested format.
func render(cmd *cobra.Command, format output.Format, result *merger.Result, dryRun, canceled bool) error {
	if !format.IsTable() {
		return output.Write(cmd.OutOrStdout(), format, NewReport(result, dryRun, canceled), nil)
	}

	if dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%s Dry run: nothing was written.\n", emoji.Info)
	}
	if canceled {
		fmt.Fprintf(cmd.OutOrStdout(), "%s Merge interrupted; clusters merged so far were kept.\n", emoji.Warning)
	}

	if result.Changeset.HasChanges() {
		tableData := table.ChangesToTableData(result.Changeset)
		if err := output.Write(cmd.OutOrStdout(), format, result.Changeset, &tableData); err != nil {
			return err
		}
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", emoji.Warning, w)
	}

	symbol := emoji.Success
	if !result.HasUpdates() {
		symbol = emoji.Optional
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", symbol, result.Summary())
	return nil
}
