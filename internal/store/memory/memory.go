// Package memory implements an in-process project store.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/metadata"
)

// Project is the full content of a store.
type Project struct {
	Images   metadata.Images    `json:"images" yaml:"images"`
	Clusters []clusters.Cluster `json:"clusters" yaml:"clusters"`
}

// Clone deep-copies the project.
func (p Project) Clone() Project {
	out := Project{Images: p.Images.Clone()}
	if p.Clusters != nil {
		out.Clusters = make([]clusters.Cluster, len(p.Clusters))
		for i, c := range p.Clusters {
			out.Clusters[i] = c.Clone()
		}
	}
	return out
}

// Store keeps images and clusters in memory. It is safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	project  Project
	readOnly bool
}

// New creates a store holding a copy of project.
func New(project Project) *Store {
	return &Store{project: project.Clone()}
}

// NewReadOnly creates a store that rejects every write with errors.ErrReadOnly.
func NewReadOnly(project Project) *Store {
	s := New(project)
	s.readOnly = true
	return s
}

// Images returns a copy of every image in insertion order.
func (s *Store) Images(ctx context.Context) (metadata.Images, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project.Images.Clone(), nil
}

// Clusters returns a copy of every cluster.
func (s *Store) Clusters(ctx context.Context) ([]clusters.Cluster, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project.Clone().Clusters, nil
}

// SetFields writes field values onto existing images.
// Nothing is written when any image ID is unknown.
func (s *Store) SetFields(ctx context.Context, updates map[string]map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return errors.ErrReadOnly
	}
	return ApplyFields(s.project.Images, updates)
}

// MarkValidated sets or clears a cluster's validated flag.
func (s *Store) MarkValidated(ctx context.Context, clusterID string, validated bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return errors.ErrReadOnly
	}
	return MarkCluster(s.project.Clusters, clusterID, validated)
}

// PutImages inserts images, replacing existing images with the same ID in place.
func (s *Store) PutImages(ctx context.Context, images metadata.Images) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return errors.ErrReadOnly
	}
	s.project.Images = UpsertImages(s.project.Images, images)
	return nil
}

// PutClusters inserts clusters, replacing existing clusters with the same ID in place.
func (s *Store) PutClusters(ctx context.Context, cs []clusters.Cluster) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readOnly {
		return errors.ErrReadOnly
	}
	for _, c := range cs {
		if i := slices.IndexFunc(s.project.Clusters, func(e clusters.Cluster) bool { return e.ID == c.ID }); i >= 0 {
			s.project.Clusters[i] = c.Clone()
			continue
		}
		s.project.Clusters = append(s.project.Clusters, c.Clone())
	}
	return nil
}

// Snapshot returns a copy of the current project.
func (s *Store) Snapshot() Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.project.Clone()
}

// Replace swaps the project content.
func (s *Store) Replace(project Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = project.Clone()
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// ApplyFields writes updates onto images in place after checking every ID exists.
func ApplyFields(images metadata.Images, updates map[string]map[string]string) error {
	index := make(map[string]int, len(images))
	for i, img := range images {
		index[img.ID] = i
	}
	for id := range updates {
		if _, ok := index[id]; !ok {
			return errors.NewNotFoundError("image", id)
		}
	}
	for id, fields := range updates {
		img := &images[index[id]]
		for name, value := range fields {
			img.Set(name, value)
		}
	}
	return nil
}

// MarkCluster sets the validated flag of the cluster with the given ID in place.
func MarkCluster(cs []clusters.Cluster, clusterID string, validated bool) error {
	for i := range cs {
		if cs[i].ID == clusterID {
			cs[i].Validated = validated
			return nil
		}
	}
	return errors.NewNotFoundError("cluster", clusterID)
}

// UpsertImages returns images with incoming merged in by ID.
func UpsertImages(images, incoming metadata.Images) metadata.Images {
	index := make(map[string]int, len(images))
	for i, img := range images {
		index[img.ID] = i
	}
	for _, img := range incoming {
		if i, ok := index[img.ID]; ok {
			images[i] = img.Clone()
			continue
		}
		index[img.ID] = len(images)
		images = append(images, img.Clone())
	}
	return images
}
