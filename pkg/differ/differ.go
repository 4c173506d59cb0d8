// Package differ compares the destination fields a merge wants to write
// against the values currently stored by the host.
package differ

import (
	"fmt"
	"slices"
	"strings"

	"github.com/agentstation/dbmerger/pkg/metadata"
)

// ChangeType represents the type of change.
type ChangeType string

const (
	// ChangeTypeAdd indicates a destination field that was not populated before.
	ChangeTypeAdd ChangeType = "add"
	// ChangeTypeUpdate indicates a destination field whose value changes.
	ChangeTypeUpdate ChangeType = "update"
)

// FieldChange represents a change to one destination field of one image.
type FieldChange struct {
	ImageID  string     `json:"image_id" yaml:"image_id"`
	Field    string     `json:"field" yaml:"field"`
	OldValue string     `json:"old_value,omitempty" yaml:"old_value,omitempty"`
	NewValue string     `json:"new_value" yaml:"new_value"`
	Type     ChangeType `json:"type" yaml:"type"`
}

// Summary provides statistics for a changeset.
type Summary struct {
	Added     int `json:"added" yaml:"added"`
	Updated   int `json:"updated" yaml:"updated"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Images    int `json:"images" yaml:"images"`
}

// Changeset lists the field changes of a merge in image order, then field order.
type Changeset struct {
	Changes []FieldChange `json:"changes" yaml:"changes"`
	Summary Summary       `json:"summary" yaml:"summary"`
}

// Fields compares updates (image ID -> field -> value) against before.
// Images absent from before are treated as having no fields.
func Fields(before metadata.Images, updates map[string]map[string]string) *Changeset {
	cs := &Changeset{Changes: []FieldChange{}}
	index := before.Index()

	order := make([]string, 0, len(updates))
	for _, id := range before.IDs() {
		if _, ok := updates[id]; ok && !slices.Contains(order, id) {
			order = append(order, id)
		}
	}
	var extra []string
	for id := range updates {
		if _, ok := index[id]; !ok {
			extra = append(extra, id)
		}
	}
	slices.Sort(extra)
	order = append(order, extra...)

	for _, id := range order {
		fields := updates[id]
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		slices.Sort(names)

		touched := false
		img := index[id]
		for _, name := range names {
			newValue := fields[name]
			oldValue, had := img.Value(name)
			switch {
			case had && oldValue == newValue:
				cs.Summary.Unchanged++
				continue
			case had:
				cs.Summary.Updated++
				cs.Changes = append(cs.Changes, FieldChange{ImageID: id, Field: name, OldValue: oldValue, NewValue: newValue, Type: ChangeTypeUpdate})
			default:
				cs.Summary.Added++
				cs.Changes = append(cs.Changes, FieldChange{ImageID: id, Field: name, NewValue: newValue, Type: ChangeTypeAdd})
			}
			touched = true
		}
		if touched {
			cs.Summary.Images++
		}
	}
	return cs
}

// HasChanges returns true if the changeset contains any changes.
func (c *Changeset) HasChanges() bool {
	return c != nil && len(c.Changes) > 0
}

// String returns a human-readable summary of the changeset.
func (c *Changeset) String() string {
	if !c.HasChanges() {
		return "No changes detected"
	}
	var parts []string
	if c.Summary.Added > 0 {
		parts = append(parts, fmt.Sprintf("%d added", c.Summary.Added))
	}
	if c.Summary.Updated > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", c.Summary.Updated))
	}
	return fmt.Sprintf("Fields: %s across %d images", strings.Join(parts, ", "), c.Summary.Images)
}
