// Package table converts dbmerger data into rows for table output.
package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/utc"

	"github.com/agentstation/dbmerger/internal/cmd/emoji"
	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/differ"
	"github.com/agentstation/dbmerger/pkg/mappings"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align // Optional: column alignment
}

// ClustersToTableData converts clusters to table format.
// Wide output lists every member instead of the member count.
func ClustersToTableData(cs []clusters.Cluster, wide bool) Data {
	headers := []string{"ID", "Validated", "Members", "Order"}
	if wide {
		headers = append(headers, "Created", "Images")
	}

	rows := make([][]string, 0, len(cs))
	for _, c := range cs {
		status := emoji.Optional
		if c.Validated {
			status = emoji.Success
		}
		row := []string{c.ID, status, strconv.Itoa(len(c.Members)), strconv.Itoa(c.Order)}
		if wide {
			row = append(row, formatTimestamp(c.CreatedAt), strings.Join(c.Members, ", "))
		}
		rows = append(rows, row)
	}

	align := []Align{AlignLeft, AlignCenter, AlignRight, AlignRight}
	if wide {
		align = append(align, AlignLeft, AlignLeft)
	}
	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// MappingsToTableData converts field mappings to table format.
func MappingsToTableData(set mappings.Set) Data {
	rows := make([][]string, 0, len(set))
	for i, m := range set {
		rows = append(rows, []string{strconv.Itoa(i + 1), m.Destination, strings.Join(m.Sources, ", ")})
	}
	return Data{
		Headers:         []string{"#", "Destination", "Sources"},
		Rows:            rows,
		ColumnAlignment: []Align{AlignRight, AlignLeft, AlignLeft},
	}
}

// ChangesToTableData converts a merge changeset to table format.
func ChangesToTableData(cs *differ.Changeset) Data {
	var rows [][]string
	if cs != nil {
		for _, c := range cs.Changes {
			old := c.OldValue
			if old == "" {
				old = "-"
			}
			rows = append(rows, []string{c.ImageID, c.Field, string(c.Type), old, c.NewValue})
		}
	}
	return Data{
		Headers: []string{"Image", "Field", "Change", "Old", "New"},
		Rows:    rows,
	}
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t utc.Time) string {
	if t.IsZero() {
		return "-"
	}

	diff := time.Since(t.Time)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%d min ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%d hr ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	}
	return t.Time.Format("2006-01-02 15:04")
}
