// Package clusters models the similarity clusters computed by the host.
//
// Cluster membership is owned by the host. This package only reads it,
// orders it deterministically and tracks the user's validation decision.
package clusters

import (
	"context"
	"slices"
	"strings"

	"github.com/agentstation/utc"
)

// Cluster is a host-detected set of images considered similar.
type Cluster struct {
	ID        string   `json:"id" yaml:"id"`
	Members   []string `json:"members" yaml:"members"`
	Validated bool     `json:"validated" yaml:"validated"`
	Order     int      `json:"order,omitempty" yaml:"order,omitempty"`
	CreatedAt utc.Time `json:"created_at,omitzero" yaml:"created_at,omitempty"`
}

// Contains reports whether the image is a member of the cluster.
func (c Cluster) Contains(imageID string) bool {
	return slices.Contains(c.Members, imageID)
}

// Clone returns a copy with an independent member slice.
func (c Cluster) Clone() Cluster {
	c.Members = slices.Clone(c.Members)
	return c
}

// Source is the read-only query interface to host clusters.
type Source interface {
	// Clusters returns every cluster known to the host.
	Clusters(ctx context.Context) ([]Cluster, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) ([]Cluster, error)

// Clusters implements Source.
func (f SourceFunc) Clusters(ctx context.Context) ([]Cluster, error) {
	return f(ctx)
}

// Sort orders clusters by creation order, then creation time, then ID.
// The sort is stable so equal clusters keep their host order.
func Sort(cs []Cluster) {
	slices.SortStableFunc(cs, Compare)
}

// Compare orders two clusters for processing.
func Compare(a, b Cluster) int {
	if a.Order != b.Order {
		if a.Order < b.Order {
			return -1
		}
		return 1
	}
	if c := a.CreatedAt.Time.Compare(b.CreatedAt.Time); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// Validated filters the clusters the user has confirmed.
func Validated(cs []Cluster) []Cluster {
	var out []Cluster
	for _, c := range cs {
		if c.Validated {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the cluster with the given ID.
func Find(cs []Cluster, id string) (Cluster, bool) {
	for _, c := range cs {
		if c.ID == id {
			return c, true
		}
	}
	return Cluster{}, false
}

// FlaggedMembers returns the members carrying a validation flag, in member order.
func (c Cluster) FlaggedMembers(flagged map[string]bool) []string {
	var out []string
	for _, m := range c.Members {
		if flagged[m] && !slices.Contains(out, m) {
			out = append(out, m)
		}
	}
	return out
}

// ApplyFlags marks as validated every cluster with a flagged member, so
// that a cluster's Validated field is its effective state.
func ApplyFlags(cs []Cluster, flagged map[string]bool) {
	if len(flagged) == 0 {
		return
	}
	for i := range cs {
		if !cs[i].Validated && len(cs[i].FlaggedMembers(flagged)) > 0 {
			cs[i].Validated = true
		}
	}
}
