// Package application provides the application interface for dbmerger commands.
//
// Commands accept this interface rather than the concrete App type so they
// can be tested with a fake:
//
//	func NewCommand(app application.Application) *cobra.Command {
//	    return &cobra.Command{
//	        RunE: func(cmd *cobra.Command, args []string) error {
//	            client, err := app.Client()
//	            if err != nil {
//	                return err
//	            }
//	            // ... use client
//	            return nil
//	        },
//	    }
//	}
package application

import (
	"github.com/rs/zerolog"

	"github.com/agentstation/dbmerger"
	"github.com/agentstation/dbmerger/internal/cmd/output"
)

// Application provides what commands need from the application.
//
// All methods must be safe for concurrent access.
type Application interface {
	// Client returns the dbmerger client over the configured project,
	// opening the project store on first use.
	Client() (dbmerger.Client, error)

	// Logger returns the configured logger instance.
	Logger() *zerolog.Logger

	// OutputFormat returns the configured output format (table, json, yaml, wide).
	OutputFormat() output.Format

	// Version returns the application version string.
	Version() string

	// Commit returns the git commit hash.
	Commit() string

	// Date returns the build date.
	Date() string
}
