// Package emoji provides symbol constants for CLI output.
package emoji

// Symbol constants for CLI output provide a consistent visual language across commands.
const (
	// Success marks completed operations and validated clusters.
	Success = "✓"

	// Error marks failures such as invalid mappings.
	Error = "✗"

	// Warning marks non-fatal issues such as unknown cluster members.
	Warning = "!"

	// Optional marks skipped or not-yet-validated items.
	Optional = "-"

	// Info marks informational messages like dry-run notices.
	Info = "i"
)
