// Package files implements a project store backed by a single YAML or JSON
// document with "images" and "clusters" sections.
package files

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/goccy/go-yaml"

	"github.com/agentstation/dbmerger/internal/store/memory"
	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/constants"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/metadata"
)

// Format is the encoding of a project document.
type Format string

const (
	// FormatYAML encodes the project as YAML.
	FormatYAML Format = "yaml"
	// FormatJSON encodes the project as JSON.
	FormatJSON Format = "json"
)

// FormatFor picks the document format from a file extension.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatYAML
}

// Store reads a project document into memory and rewrites it after every
// successful write. Rewrites go through a temporary file and a rename.
type Store struct {
	mu       sync.Mutex
	path     string
	format   Format
	readOnly bool
	mem      *memory.Store
}

// Option configures a Store.
type Option func(*Store) error

// WithReadOnly rejects every write with errors.ErrReadOnly.
func WithReadOnly(readOnly bool) Option {
	return func(s *Store) error {
		s.readOnly = readOnly
		return nil
	}
}

// WithFormat overrides the format derived from the file extension.
func WithFormat(format Format) Option {
	return func(s *Store) error {
		switch format {
		case FormatYAML, FormatJSON:
			s.format = format
			return nil
		}
		return errors.NewValidationError("format", string(format), "must be yaml or json")
	}
}

// New opens the project document at path. A missing document is an empty
// project and is created on the first write.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, &errors.ConfigError{Component: "files store", Message: "project path is required"}
	}
	s := &Store{path: path, format: FormatFor(path)}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	project, err := Load(path)
	if err != nil {
		return nil, err
	}
	if s.readOnly {
		s.mem = memory.NewReadOnly(project)
	} else {
		s.mem = memory.New(project)
	}
	return s, nil
}

// Path returns the project document path.
func (s *Store) Path() string {
	return s.path
}

// Images returns every image in document order.
func (s *Store) Images(ctx context.Context) (metadata.Images, error) {
	return s.mem.Images(ctx)
}

// Clusters returns every cluster in document order.
func (s *Store) Clusters(ctx context.Context) ([]clusters.Cluster, error) {
	return s.mem.Clusters(ctx)
}

// SetFields writes field values onto existing images and saves the document.
func (s *Store) SetFields(ctx context.Context, updates map[string]map[string]string) error {
	return s.update(func() error { return s.mem.SetFields(ctx, updates) })
}

// MarkValidated sets or clears a cluster's validated flag and saves the document.
func (s *Store) MarkValidated(ctx context.Context, clusterID string, validated bool) error {
	return s.update(func() error { return s.mem.MarkValidated(ctx, clusterID, validated) })
}

// PutImages upserts images and saves the document.
func (s *Store) PutImages(ctx context.Context, images metadata.Images) error {
	return s.update(func() error { return s.mem.PutImages(ctx, images) })
}

// PutClusters upserts clusters and saves the document.
func (s *Store) PutClusters(ctx context.Context, cs []clusters.Cluster) error {
	return s.update(func() error { return s.mem.PutClusters(ctx, cs) })
}

// Close is a no-op; every write is already on disk.
func (s *Store) Close() error {
	return nil
}

// update applies fn and saves the result, rolling memory back if saving fails.
func (s *Store) update(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := s.mem.Snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := Save(s.path, s.format, s.mem.Snapshot()); err != nil {
		s.mem.Replace(before)
		return err
	}
	return nil
}

// Load reads a project document. A missing file yields an empty project.
func Load(path string) (memory.Project, error) {
	var project memory.Project
	data, err := os.ReadFile(path) //nolint:gosec // user-provided project path
	if err != nil {
		if os.IsNotExist(err) {
			return project, nil
		}
		return project, errors.WrapIO("read", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return project, nil
	}
	if err := yaml.Unmarshal(data, &project); err != nil {
		return project, errors.WrapParse(string(FormatFor(path)), path, err)
	}
	for i, img := range project.Images {
		if img.ID == "" {
			return project, errors.NewValidationError("images", i, "image without id")
		}
	}
	return project, nil
}

// Save atomically writes a project document.
func Save(path string, format Format, project memory.Project) error {
	var opts []yaml.EncodeOption
	if format == FormatJSON {
		opts = append(opts, yaml.JSON())
	}
	data, err := yaml.MarshalWithOptions(project, opts...)
	if err != nil {
		return errors.WrapResource("encode", "project", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, constants.DirPermissions); err != nil {
		return errors.WrapIO("create", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.WrapIO("create", "temp file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.WrapIO("write", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("close", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, constants.FilePermissions); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("chmod", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.WrapIO("move", path, err)
	}
	return nil
}
