package app

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/agentstation/dbmerger/cmd/dbmerger/cmd/clusters"
	"github.com/agentstation/dbmerger/cmd/dbmerger/cmd/importer"
	"github.com/agentstation/dbmerger/cmd/dbmerger/cmd/mappings"
	"github.com/agentstation/dbmerger/cmd/dbmerger/cmd/merge"
	"github.com/agentstation/dbmerger/cmd/dbmerger/cmd/provenance"
)

// registerCommands registers all subcommands with the root command.
func (a *App) registerCommands(rootCmd *cobra.Command) {
	// Core commands
	rootCmd.AddCommand(clusters.NewCommand(a))
	rootCmd.AddCommand(merge.NewCommand(a))
	rootCmd.AddCommand(provenance.NewCommand(a))

	// Management commands
	rootCmd.AddCommand(mappings.NewCommand(a))
	rootCmd.AddCommand(importer.NewCommand(a))

	// Utility commands
	rootCmd.AddCommand(a.CreateVersionCommand())
}

// CreateVersionCommand creates the version command.
func (a *App) CreateVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("dbmerger %s\n", a.version)
			if a.config.Verbose {
				cmd.Printf("  commit:     %s\n", a.commit)
				cmd.Printf("  built:      %s\n", a.date)
				cmd.Printf("  go version: %s\n", runtime.Version())
				cmd.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			}
		},
	}
}
