// Package importer provides the import command.
package importer

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/agentstation/dbmerger/cmd/application"
	"github.com/agentstation/dbmerger/internal/cmd/alerts"
	"github.com/agentstation/dbmerger/internal/cmd/output"
	"github.com/agentstation/dbmerger/internal/store/files"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/metadata"
)

// NewCommand creates the import command with app dependencies.
func NewCommand(app application.Application) *cobra.Command {
	var label string

	cmd := &cobra.Command{
		Use:     "import <file>...",
		GroupID: "management",
		Short:   "Import images from YAML or JSON files",
		Long: `Import adds the images of one or more project documents to the
project. Images without a provenance label receive --source, or the
missing-source placeholder when --source is not given, so every image
can later be traced back to the database it came from.`,
		Example: `  dbmerger import export-bnf.yaml --source source-1
  dbmerger import a.json b.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := app.Client()
			if err != nil {
				return err
			}

			images, err := loadFiles(cmd.Context(), app, args)
			if err != nil {
				return err
			}

			result, err := client.Import(cmd.Context(), images, label)
			if err != nil {
				return err
			}

			format := app.OutputFormat()
			if !format.IsTable() {
				return output.Write(cmd.OutOrStdout(), format, result, nil)
			}
			alert := alerts.New(alerts.LevelSuccess, "Imported %d images", result.Imported)
			if n := len(result.Labeled); n > 0 {
				alert.Message += fmt.Sprintf(" (%d labeled %q)", n, result.Label)
			}
			return alerts.Write(cmd.OutOrStdout(), format, alert)
		},
	}

	cmd.Flags().StringVarP(&label, "source", "s", "", "provenance label for images without one")

	return cmd
}

// loadFiles reads the images of every file concurrently and returns them
// in argument order.
func loadFiles(ctx context.Context, app application.Application, paths []string) (metadata.Images, error) {
	loaded := make([]metadata.Images, len(paths))

	eg, egCtx := errgroup.WithContext(ctx)
	for i, path := range paths {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			// files.Load treats a missing document as an empty project
			if _, err := os.Stat(path); err != nil {
				return errors.WrapIO("read", path, err)
			}
			project, err := files.Load(path)
			if err != nil {
				return err
			}
			loaded[i] = project.Images
			app.Logger().Debug().Str("file", path).Int("images", len(project.Images)).Msg("Read import file")
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var images metadata.Images
	for _, imgs := range loaded {
		images = append(images, imgs...)
	}
	return images, nil
}
