package dbmerger

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/logging"
	"github.com/agentstation/dbmerger/pkg/merger"
	"github.com/agentstation/dbmerger/pkg/provenance"
)

// MergeOptions control a single ExecuteMerge call.
type MergeOptions struct {
	DryRun  bool          // Compute the merge without writing anything
	Scope   merger.Scope  // Overrides the client scope when set
	Timeout time.Duration // Timeout for the whole merge
}

// MergeOption is a function that configures MergeOptions.
type MergeOption func(*MergeOptions)

// WithDryRun computes the merge without writing fields or provenance.
func WithDryRun(dryRun bool) MergeOption {
	return func(o *MergeOptions) {
		o.DryRun = dryRun
	}
}

// WithMergeScope overrides the client scope for one merge.
func WithMergeScope(scope merger.Scope) MergeOption {
	return func(o *MergeOptions) {
		o.Scope = scope
	}
}

// WithTimeout bounds the merge duration.
func WithTimeout(d time.Duration) MergeOption {
	return func(o *MergeOptions) {
		o.Timeout = d
	}
}

// ExecuteMerge merges every validated cluster and writes the result back.
//
// When ctx is canceled part-way, the clusters merged so far are still
// written back and the returned error matches errors.ErrCanceled.
func (c *client) ExecuteMerge(ctx context.Context, opts ...MergeOption) (*merger.Result, error) {
	// Step 0: Set context
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logging.WithOperation(ctx, "merge")
	logger := logging.FromContext(ctx)

	// Step 1: Parse options
	options := &MergeOptions{}
	for _, opt := range opts {
		opt(options)
	}

	// Step 2: Setup context with timeout
	var cancel context.CancelFunc
	if options.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, options.Timeout)
	} else {
		cancel = func() {}
	}
	defer cancel()

	// Step 3: Snapshot configuration
	c.mu.RLock()
	set := c.config.mappings.Clone()
	mergerOpts := c.config.mergerOptions()
	provenancePath := c.config.provenancePath
	c.mu.RUnlock()
	if options.Scope != "" {
		mergerOpts = append(mergerOpts, merger.WithScope(options.Scope))
	}

	// Step 4: Load the project
	images, err := c.store.Images(ctx)
	if err != nil {
		return nil, errors.WrapResource("load", "images", "", err)
	}
	cs, err := c.store.Clusters(ctx)
	if err != nil {
		return nil, errors.WrapResource("load", "clusters", "", err)
	}

	// Step 5: Merge
	result, mergeErr := merger.Merge(ctx, cs, images, set, mergerOpts...)
	if result == nil {
		return nil, mergeErr
	}

	// Step 6: Log change summary
	if result.Changeset.HasChanges() {
		logger.Info().
			Int("added", result.Changeset.Summary.Added).
			Int("updated", result.Changeset.Summary.Updated).
			Int("images", result.Changeset.Summary.Images).
			Bool("dry_run", options.DryRun).
			Msg("Merge changes detected")
	}
	for _, w := range result.Warnings {
		logger.Warn().Msg(w)
	}

	if options.DryRun {
		return result, mergeErr
	}

	// Step 7: Write committed clusters back, even after cancellation
	writeCtx := context.WithoutCancel(ctx)
	if result.HasUpdates() {
		if err := c.store.SetFields(writeCtx, result.Updates); err != nil {
			return result, errors.Join(mergeErr, errors.NewMergeError(result.RunID, slices.Sorted(maps.Keys(result.Updates)), err))
		}
	}

	// Step 8: Persist provenance
	if provenancePath != "" && result.HasUpdates() {
		f := &provenance.File{
			RunID:      result.RunID,
			MergedAt:   result.Metadata.EndTime,
			Provenance: result.Provenance,
		}
		if err := provenance.Save(provenancePath, f); err != nil {
			logger.Warn().Err(err).Str("path", provenancePath).Msg("Failed to save provenance")
		}
	}

	c.hooks.triggerMerged(result)
	return result, mergeErr
}
