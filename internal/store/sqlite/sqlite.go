// Package sqlite implements a project store on a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/agentstation/utc"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/constants"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/metadata"
)

const schema = `
CREATE TABLE IF NOT EXISTS images (
	id TEXT PRIMARY KEY,
	position INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS image_fields (
	image_id TEXT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (image_id, name)
);
CREATE TABLE IF NOT EXISTS clusters (
	id TEXT PRIMARY KEY,
	validated INTEGER NOT NULL DEFAULT 0,
	ordinal INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS cluster_members (
	cluster_id TEXT NOT NULL REFERENCES clusters(id) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	image_id TEXT NOT NULL,
	PRIMARY KEY (cluster_id, position)
);
CREATE INDEX IF NOT EXISTS idx_cluster_members_image ON cluster_members(image_id);
`

// Store keeps a project in SQLite. Field values are stored as normalised text.
type Store struct {
	db       *sql.DB
	path     string
	readOnly bool
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

// New opens or creates the database at path and ensures the schema exists.
// The path ":memory:" opens a private in-memory database.
func New(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, &errors.ConfigError{Component: "sqlite store", Message: "database path is required"}
	}
	s := &Store{path: path}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
			return nil, errors.WrapIO("create", filepath.Dir(path), err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.WrapResource("open", "database", path, err)
	}
	// A single connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initialize() error {
	if _, err := s.db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return errors.WrapResource("configure", "database", s.path, err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return errors.WrapResource("create", "schema", s.path, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Images returns every image in insertion order.
func (s *Store) Images(ctx context.Context) (metadata.Images, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, f.name, f.value
		FROM images i
		LEFT JOIN image_fields f ON f.image_id = i.id
		ORDER BY i.position, f.name`)
	if err != nil {
		return nil, errors.WrapResource("load", "images", "", err)
	}
	defer func() { _ = rows.Close() }()

	var images metadata.Images
	index := make(map[string]int)
	for rows.Next() {
		var (
			id          string
			name, value sql.NullString
		)
		if err := rows.Scan(&id, &name, &value); err != nil {
			return nil, errors.WrapResource("scan", "image", "", err)
		}
		i, ok := index[id]
		if !ok {
			i = len(images)
			index[id] = i
			images = append(images, metadata.Image{ID: id, Fields: map[string]any{}})
		}
		if name.Valid {
			images[i].Fields[name.String] = value.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapResource("load", "images", "", err)
	}
	return images, nil
}

// Clusters returns every cluster with members in stored order.
func (s *Store) Clusters(ctx context.Context) ([]clusters.Cluster, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.validated, c.ordinal, c.created_at, m.image_id
		FROM clusters c
		LEFT JOIN cluster_members m ON m.cluster_id = c.id
		ORDER BY c.rowid, m.position`)
	if err != nil {
		return nil, errors.WrapResource("load", "clusters", "", err)
	}
	defer func() { _ = rows.Close() }()

	var out []clusters.Cluster
	index := make(map[string]int)
	for rows.Next() {
		var (
			id, created string
			validated   bool
			ordinal     int
			member      sql.NullString
		)
		if err := rows.Scan(&id, &validated, &ordinal, &created, &member); err != nil {
			return nil, errors.WrapResource("scan", "cluster", "", err)
		}
		i, ok := index[id]
		if !ok {
			c := clusters.Cluster{ID: id, Validated: validated, Order: ordinal}
			if created != "" {
				if t, err := utc.Parse(time.RFC3339Nano, created); err == nil {
					c.CreatedAt = t
				}
			}
			i = len(out)
			index[id] = i
			out = append(out, c)
		}
		if member.Valid {
			out[i].Members = append(out[i].Members, member.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapResource("load", "clusters", "", err)
	}
	return out, nil
}

// SetFields writes field values onto existing images in one transaction.
func (s *Store) SetFields(ctx context.Context, updates map[string]map[string]string) error {
	if s.readOnly {
		return errors.ErrReadOnly
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		for id, fields := range updates {
			var exists int
			err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM images WHERE id = ?`, id).Scan(&exists)
			if err != nil {
				return errors.WrapResource("load", "image", id, err)
			}
			if exists == 0 {
				return errors.NewNotFoundError("image", id)
			}
			for name, value := range fields {
				if err := upsertField(ctx, tx, id, name, value); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// MarkValidated sets or clears a cluster's validated flag.
func (s *Store) MarkValidated(ctx context.Context, clusterID string, validated bool) error {
	if s.readOnly {
		return errors.ErrReadOnly
	}
	res, err := s.db.ExecContext(ctx, `UPDATE clusters SET validated = ? WHERE id = ?`, validated, clusterID)
	if err != nil {
		return errors.WrapResource("write", "cluster", clusterID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.WrapResource("write", "cluster", clusterID, err)
	}
	if n == 0 {
		return errors.NewNotFoundError("cluster", clusterID)
	}
	return nil
}

// PutImages upserts images. An existing image's fields are replaced.
func (s *Store) PutImages(ctx context.Context, images metadata.Images) error {
	if s.readOnly {
		return errors.ErrReadOnly
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, img := range images {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO images (id, position)
				VALUES (?, (SELECT COALESCE(MAX(position), -1) + 1 FROM images))
				ON CONFLICT(id) DO NOTHING`, img.ID)
			if err != nil {
				return errors.WrapResource("write", "image", img.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM image_fields WHERE image_id = ?`, img.ID); err != nil {
				return errors.WrapResource("write", "image", img.ID, err)
			}
			for _, name := range img.FieldNames() {
				if err := upsertField(ctx, tx, img.ID, name, metadata.Normalize(img.Fields[name])); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// PutClusters upserts clusters and replaces their member lists.
func (s *Store) PutClusters(ctx context.Context, cs []clusters.Cluster) error {
	if s.readOnly {
		return errors.ErrReadOnly
	}
	return s.tx(ctx, func(tx *sql.Tx) error {
		for _, c := range cs {
			created := ""
			if !c.CreatedAt.IsZero() {
				created = c.CreatedAt.Time.UTC().Format(time.RFC3339Nano)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO clusters (id, validated, ordinal, created_at) VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET validated = excluded.validated,
					ordinal = excluded.ordinal, created_at = excluded.created_at`,
				c.ID, c.Validated, c.Order, created)
			if err != nil {
				return errors.WrapResource("write", "cluster", c.ID, err)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM cluster_members WHERE cluster_id = ?`, c.ID); err != nil {
				return errors.WrapResource("write", "cluster", c.ID, err)
			}
			for pos, member := range c.Members {
				_, err := tx.ExecContext(ctx,
					`INSERT INTO cluster_members (cluster_id, position, image_id) VALUES (?, ?, ?)`,
					c.ID, pos, member)
				if err != nil {
					return errors.WrapResource("write", "cluster", c.ID, err)
				}
			}
		}
		return nil
	})
}

func upsertField(ctx context.Context, tx *sql.Tx, imageID, name, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO image_fields (image_id, name, value) VALUES (?, ?, ?)
		ON CONFLICT(image_id, name) DO UPDATE SET value = excluded.value`,
		imageID, name, value)
	if err != nil {
		return errors.WrapResource("write", "field", imageID+"/"+name, err)
	}
	return nil
}

// tx runs fn in a transaction, committing only when fn succeeds.
func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapResource("begin", "transaction", s.path, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapResource("commit", "transaction", s.path, err)
	}
	return nil
}
