package table

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentstation/dbmerger/pkg/provenance"
)

// ProvenanceToTableData converts the provenance of an image's destination
// fields to table format, one row per contributing source value.
func ProvenanceToTableData(fieldProvenance map[string][]provenance.Provenance) Data {
	var rows [][]string

	fields := make([]string, 0, len(fieldProvenance))
	for field := range fieldProvenance {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		for i, entry := range fieldProvenance[field] {
			// Field name only on first row
			fieldName := ""
			if i == 0 {
				fieldName = field
			}
			value := entry.Value
			if value == "" {
				value = "<empty>"
			}
			rows = append(rows, []string{
				fieldName,
				value,
				entry.Label,
				entry.SourceImage,
				entry.SourceField,
				entry.ClusterID,
				formatTimestamp(entry.Timestamp),
			})
		}
	}

	return Data{
		Headers: []string{"Field", "Value", "Provenance", "Image", "Source Field", "Cluster", "When"},
		Rows:    rows,
		ColumnAlignment: []Align{
			AlignLeft, // Field
			AlignLeft, // Value
			AlignLeft, // Provenance
			AlignLeft, // Image
			AlignLeft, // Source Field
			AlignLeft, // Cluster
			AlignLeft, // When
		},
	}
}

// MatchField checks if a field matches any of the provided patterns.
// Supports shell wildcards (e.g., "*-merged"). Matching is case-insensitive.
func MatchField(field string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	fieldLower := strings.ToLower(field)
	for _, pattern := range patterns {
		matched, err := filepath.Match(strings.ToLower(pattern), fieldLower)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// FilterFields keeps only the fields matching patterns.
func FilterFields(fieldProvenance map[string][]provenance.Provenance, patterns []string) map[string][]provenance.Provenance {
	out := make(map[string][]provenance.Provenance, len(fieldProvenance))
	for field, entries := range fieldProvenance {
		if MatchField(field, patterns) {
			out[field] = entries
		}
	}
	return out
}
