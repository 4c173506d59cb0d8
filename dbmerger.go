// Package dbmerger merges metadata imported from several image databases.
//
// Images are grouped into similarity clusters by the host. Once a user
// validates a cluster, the values of configured source fields are copied
// into destination fields, each suffixed with the database the value came
// from, e.g. "Victor Hugo [source-1];Hugo Victor [source-2]".
package dbmerger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/logging"
	"github.com/agentstation/dbmerger/pkg/mappings"
	"github.com/agentstation/dbmerger/pkg/merger"
	"github.com/agentstation/dbmerger/pkg/metadata"
	"github.com/agentstation/dbmerger/pkg/provenance"
	"github.com/agentstation/dbmerger/pkg/store"
)

// Client validates clusters and merges metadata on a host project.
type Client interface {
	// Clusters returns the host clusters in merge order.
	Clusters(ctx context.Context) ([]clusters.Cluster, error)

	// ValidateCluster records whether the user confirmed a cluster.
	ValidateCluster(ctx context.Context, clusterID string, validated bool) error

	// ExecuteMerge merges every validated cluster and writes the result back.
	ExecuteMerge(ctx context.Context, opts ...MergeOption) (*merger.Result, error)

	// Import adds images, giving each one without a provenance label the
	// given label (or the missing-label placeholder when label is empty).
	Import(ctx context.Context, images metadata.Images, label string) (*ImportResult, error)

	// Mappings returns a copy of the current field mappings.
	Mappings() mappings.Set

	// SetMappings validates and replaces the field mappings.
	SetMappings(set mappings.Set) error

	// Params returns the current plugin parameters.
	Params() Params

	// UpdateParams applies new plugin parameters. On error the previous
	// parameters, mappings included, stay in effect.
	UpdateParams(p Params) error

	// Provenance returns the provenance recorded for an image by the last merge.
	Provenance(imageID string) (map[string][]provenance.Provenance, error)

	// OnMerged registers a callback run after a merge is written back.
	OnMerged(MergedHook)

	// OnClusterValidated registers a callback run after a validation decision.
	OnClusterValidated(ClusterValidatedHook)

	// OnImported registers a callback run after images are imported.
	OnImported(ImportedHook)
}

// client is the internal implementation of the Client interface
type client struct {
	mu     sync.RWMutex
	store  store.Store
	config *config

	hooks *hooks
}

// New creates a Client over a store with the given options.
func New(s store.Store, opts ...Option) (Client, error) {
	if s == nil {
		return nil, &errors.ConfigError{Component: "client", Message: "store is required"}
	}

	c := &client{
		store:  s,
		config: defaultConfig(),
		hooks:  newHooks(),
	}
	if err := c.options(opts...); err != nil {
		return nil, err
	}
	if err := c.config.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Clusters returns the host clusters in merge order. A cluster is reported
// validated when it was confirmed or when any member carries the validated flag.
func (c *client) Clusters(ctx context.Context) ([]clusters.Cluster, error) {
	cs, err := store.ClusterSource(c.store).Clusters(ctx)
	if err != nil {
		return nil, errors.WrapResource("load", "clusters", "", err)
	}
	flagged, err := c.flagged(ctx)
	if err != nil {
		return nil, err
	}
	clusters.Sort(cs)
	clusters.ApplyFlags(cs, flagged)
	return cs, nil
}

// flagged returns the images carrying the validated flag.
func (c *client) flagged(ctx context.Context) (map[string]bool, error) {
	c.mu.RLock()
	field := c.config.validatedFlag
	c.mu.RUnlock()
	if field == "" {
		return nil, nil
	}
	images, err := c.store.Images(ctx)
	if err != nil {
		return nil, errors.WrapResource("load", "images", "", err)
	}
	return images.Flagged(field), nil
}

// ValidateCluster records whether the user confirmed a cluster.
//
// A cluster validated through a member's validated flag cannot be revoked
// here; the error names the members whose flag must be cleared first.
func (c *client) ValidateCluster(ctx context.Context, clusterID string, validated bool) error {
	logger := logging.FromContext(logging.WithCluster(ctx, clusterID))

	cs, err := c.store.Clusters(ctx)
	if err != nil {
		return errors.WrapResource("load", "clusters", "", err)
	}
	cluster, ok := clusters.Find(cs, clusterID)
	if !ok {
		return errors.NewNotFoundError("cluster", clusterID)
	}
	flagged, err := c.flagged(ctx)
	if err != nil {
		return err
	}
	members := cluster.FlaggedMembers(flagged)
	if !validated && len(members) > 0 {
		c.mu.RLock()
		field := c.config.validatedFlag
		c.mu.RUnlock()
		return errors.NewValidationError("cluster", clusterID,
			fmt.Sprintf("cluster %s stays validated while %s is set on %s", clusterID, field, strings.Join(members, ", ")))
	}

	if err := c.store.MarkValidated(ctx, clusterID, validated); err != nil {
		return errors.WrapResource("write", "cluster", clusterID, err)
	}
	cluster.Validated = validated || len(members) > 0

	logger.Info().
		Bool("validated", validated).
		Int("members", len(cluster.Members)).
		Int("flagged_members", len(members)).
		Msg("Cluster validation recorded")

	c.hooks.triggerClusterValidated(cluster)
	return nil
}

// Mappings returns a copy of the current field mappings.
func (c *client) Mappings() mappings.Set {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config.mappings.Clone()
}

// SetMappings validates and replaces the field mappings.
func (c *client) SetMappings(set mappings.Set) error {
	set = set.Trim()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := set.Validate(c.config.reserved()...); err != nil {
		return err
	}
	c.config.mappings = set
	return nil
}

// Provenance returns the provenance recorded for an image by the last merge.
func (c *client) Provenance(imageID string) (map[string][]provenance.Provenance, error) {
	c.mu.RLock()
	path := c.config.provenancePath
	c.mu.RUnlock()

	if path == "" {
		return nil, &errors.ConfigError{Component: "provenance", Message: "no provenance file configured"}
	}
	f, err := provenance.Load(path)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, errors.NewNotFoundError("provenance file", path)
	}
	entries := f.Provenance.ForImage(imageID)
	if len(entries) == 0 {
		return nil, errors.NewNotFoundError("provenance for image", imageID)
	}
	return entries, nil
}

// OnMerged registers a callback run after a merge is written back.
func (c *client) OnMerged(fn MergedHook) {
	c.hooks.OnMerged(fn)
}

// OnClusterValidated registers a callback run after a validation decision.
func (c *client) OnClusterValidated(fn ClusterValidatedHook) {
	c.hooks.OnClusterValidated(fn)
}

// OnImported registers a callback run after images are imported.
func (c *client) OnImported(fn ImportedHook) {
	c.hooks.OnImported(fn)
}
