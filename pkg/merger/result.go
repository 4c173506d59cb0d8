package merger

import (
	"fmt"
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/dbmerger/pkg/differ"
	"github.com/agentstation/dbmerger/pkg/metadata"
	"github.com/agentstation/dbmerger/pkg/provenance"
)

// Result represents the outcome of a merge.
type Result struct {
	// RunID identifies the merge execution.
	RunID string

	// Images holds copies of every input image with committed writes applied.
	Images metadata.Images

	// Updates maps image ID to the destination fields written and their values.
	Updates map[string]map[string]string

	// Changeset compares Updates with the input images.
	Changeset *differ.Changeset

	// Provenance records the contributions behind every write.
	Provenance provenance.Map

	// Warnings lists non-fatal issues such as unknown cluster members.
	Warnings []string

	Metadata ResultMetadata
}

// ResultMetadata contains metadata about the merge.
type ResultMetadata struct {
	StartTime utc.Time
	EndTime   utc.Time
	Duration  time.Duration
	Scope     Scope
	Stats     ResultStatistics
}

// ResultStatistics contains statistics about the merge.
type ResultStatistics struct {
	ClustersProcessed int
	ClustersSkipped   int
	ImagesUpdated     int
	FieldsWritten     int
	MissingMembers    int
}

// NewResult creates a new result with defaults.
func NewResult(runID string, scope Scope) *Result {
	return &Result{
		RunID:      runID,
		Updates:    make(map[string]map[string]string),
		Provenance: make(provenance.Map),
		Warnings:   []string{},
		Metadata: ResultMetadata{
			StartTime: utc.Now(),
			Scope:     scope,
		},
	}
}

// Value returns the merged value written to an image destination field.
func (r *Result) Value(imageID, destination string) (string, bool) {
	v, ok := r.Updates[imageID][destination]
	return v, ok
}

// HasUpdates reports whether the merge wrote any field.
func (r *Result) HasUpdates() bool {
	return len(r.Updates) > 0
}

// Summary returns a human-readable summary of the result.
func (r *Result) Summary() string {
	s := r.Metadata.Stats
	if s.ClustersProcessed == 0 {
		return "No validated clusters to merge."
	}
	return fmt.Sprintf("Merged %d clusters (%d skipped): %d fields written on %d images.",
		s.ClustersProcessed, s.ClustersSkipped, s.FieldsWritten, s.ImagesUpdated)
}

// Finalize calculates duration and marks completion.
func (r *Result) Finalize() {
	r.Metadata.EndTime = utc.Now()
	r.Metadata.Duration = r.Metadata.EndTime.Time.Sub(r.Metadata.StartTime.Time)
	r.Metadata.Stats.ImagesUpdated = len(r.Updates)
	r.Metadata.Stats.FieldsWritten = 0
	for _, fields := range r.Updates {
		r.Metadata.Stats.FieldsWritten += len(fields)
	}
}
