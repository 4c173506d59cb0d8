// Package store defines access to the host project: its images, their
// metadata fields and the similarity clusters computed over them.
package store

import (
	"context"
	"strings"

	"github.com/agentstation/dbmerger/internal/store/files"
	"github.com/agentstation/dbmerger/internal/store/memory"
	"github.com/agentstation/dbmerger/internal/store/sqlite"
	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/metadata"
)

// Reader provides read-only access to project data.
type Reader interface {
	// Images returns every image with its metadata fields.
	Images(ctx context.Context) (metadata.Images, error)

	// Clusters returns every cluster known to the host.
	Clusters(ctx context.Context) ([]clusters.Cluster, error)
}

// Writer provides the writes dbmerger performs on a project.
type Writer interface {
	// SetFields writes field values (image ID -> field -> value) onto
	// existing images. Either every update is stored or none is.
	SetFields(ctx context.Context, updates map[string]map[string]string) error

	// MarkValidated records the user's validation decision for a cluster.
	MarkValidated(ctx context.Context, clusterID string, validated bool) error

	// PutImages inserts or replaces images.
	PutImages(ctx context.Context, images metadata.Images) error
}

// Store is the complete interface to a host project.
type Store interface {
	Reader
	Writer

	// Close releases resources held by the store.
	Close() error
}

// ClusterWriter is implemented by stores that can also record clusters.
// The host owns clustering; this is used to seed projects and tests.
type ClusterWriter interface {
	PutClusters(ctx context.Context, cs []clusters.Cluster) error
}

// Kind identifies a store backend.
type Kind string

const (
	// KindMemory keeps the project in process memory.
	KindMemory Kind = "memory"
	// KindFiles reads and rewrites a YAML or JSON project document.
	KindFiles Kind = "files"
	// KindSQLite uses a SQLite database.
	KindSQLite Kind = "sqlite"
)

// Kinds lists every supported backend.
func Kinds() []Kind {
	return []Kind{KindMemory, KindFiles, KindSQLite}
}

// ParseKind converts a string to a Kind. An empty string selects KindFiles.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "":
		return KindFiles, nil
	case KindMemory, KindFiles, KindSQLite:
		return k, nil
	}
	return "", errors.NewValidationError("store", s, "must be memory, files or sqlite")
}

// options configure Open.
type options struct {
	readOnly bool
}

// Option is a function that configures Open.
type Option func(*options) error

// WithReadOnly opens the store in read-only mode.
func WithReadOnly(readOnly bool) Option {
	return func(o *options) error {
		o.readOnly = readOnly
		return nil
	}
}

// Open opens a store of the given kind at path. Memory stores ignore path
// and start empty.
func Open(kind Kind, path string, opts ...Option) (Store, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}

	switch kind {
	case KindMemory:
		if o.readOnly {
			return memory.NewReadOnly(memory.Project{}), nil
		}
		return memory.New(memory.Project{}), nil
	case KindFiles, "":
		return files.New(path, files.WithReadOnly(o.readOnly))
	case KindSQLite:
		return sqlite.New(path, sqlite.WithReadOnly(o.readOnly))
	}
	return nil, errors.NewValidationError("store", string(kind), "unknown store kind")
}

// NewMemory creates a memory store seeded with images and clusters.
func NewMemory(images metadata.Images, cs []clusters.Cluster) Store {
	return memory.New(memory.Project{Images: images, Clusters: cs})
}

// ClusterSource adapts a Reader to the read-only cluster query interface.
func ClusterSource(r Reader) clusters.Source {
	return clusters.SourceFunc(r.Clusters)
}
