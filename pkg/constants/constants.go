// Package constants provides shared constants used throughout dbmerger.
package constants

import "time"

// Metadata defaults mirroring the host plugin parameters.
const (
	// DefaultSourceField is the image field naming the database an image came from.
	DefaultSourceField = "merge-source"

	// DefaultValidatedFlag is the image field marking a member of a validated cluster.
	DefaultValidatedFlag = "merge-validated"

	// DefaultMissingLabel is the provenance label used when DefaultSourceField is absent.
	DefaultMissingLabel = "merge-source not provided"

	// DefaultSeparator joins formatted values in a destination field.
	DefaultSeparator = ";"
)

// Timeout constants
const (
	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 10 * time.Minute

	// ShutdownTimeout bounds graceful shutdown after a failed command.
	ShutdownTimeout = 5 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// File names
const (
	// ConfigFileName is the config file base name searched in $HOME and the working directory.
	ConfigFileName = ".dbmerger"

	// ProvenanceFileSuffix is appended to a project path to store merge provenance.
	ProvenanceFileSuffix = ".provenance.yaml"
)
