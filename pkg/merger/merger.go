// Package merger implements the metadata merge transform.
//
// For every validated cluster, in deterministic order, each mapping's
// populated source fields are formatted as "value [provenance]", joined
// and written into the mapping's destination field. Source fields and the
// provenance field are never written. Inputs are never mutated: the result
// carries copies of the images with the writes applied.
package merger

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/differ"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/logging"
	"github.com/agentstation/dbmerger/pkg/mappings"
	"github.com/agentstation/dbmerger/pkg/metadata"
	"github.com/agentstation/dbmerger/pkg/provenance"
)

// Merger merges source metadata fields into destination fields.
type Merger interface {
	// Merge runs the transform over the validated clusters.
	//
	// A mapping set that fails validation aborts the merge before any work.
	// Writes are committed one cluster at a time; when ctx is canceled the
	// returned result holds the clusters committed so far along with an
	// error matching errors.ErrCanceled.
	Merge(ctx context.Context, cs []clusters.Cluster, images metadata.Images, set mappings.Set) (*Result, error)
}

type merger struct {
	opts *options
}

// New creates a Merger with options.
func New(opts ...Option) (Merger, error) {
	o, err := newOptions(opts...)
	if err != nil {
		return nil, err
	}
	return &merger{opts: o}, nil
}

// Merge is a convenience wrapper around New(opts...).Merge.
func Merge(ctx context.Context, cs []clusters.Cluster, images metadata.Images, set mappings.Set, opts ...Option) (*Result, error) {
	m, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return m.Merge(ctx, cs, images, set)
}

// write is a staged destination field update.
type write struct {
	imageID     string
	destination string
	value       string
	entries     []provenance.Provenance
}

// mergeContext holds shared state for one merge run.
type mergeContext struct {
	result  *Result
	working metadata.Images
	index   map[string]int
	tracker provenance.Tracker
	logger  *zerolog.Logger
	set     mappings.Set
}

func (m *merger) Merge(ctx context.Context, cs []clusters.Cluster, images metadata.Images, set mappings.Set) (*Result, error) {
	if err := set.Validate(m.opts.sourceField, m.opts.validatedFlag); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRun(ctx, runID)
	mctx := m.initialize(ctx, runID, images, set)
	result := mctx.result

	ordered := make([]clusters.Cluster, len(cs))
	for i, c := range cs {
		ordered[i] = c.Clone()
	}
	clusters.Sort(ordered)
	clusters.ApplyFlags(ordered, mctx.working.Flagged(m.opts.validatedFlag))

	mctx.logger.Info().
		Int("clusters", len(ordered)).
		Int("images", len(images)).
		Int("mappings", len(set)).
		Str("scope", m.opts.scope.String()).
		Msg("Starting metadata merge")

	if len(set) == 0 {
		mctx.logger.Info().Msg("No mappings configured; nothing to merge")
		return m.finish(mctx, images), nil
	}

	for _, cluster := range ordered {
		if err := ctx.Err(); err != nil {
			mctx.logger.Warn().Err(err).Str("cluster_id", cluster.ID).Msg("Merge canceled; keeping committed clusters")
			return m.finish(mctx, images), errors.NewCanceledError("merge", err)
		}

		if !cluster.Validated {
			result.Metadata.Stats.ClustersSkipped++
			mctx.logger.Debug().Str("cluster_id", cluster.ID).Msg("Cluster not validated; skipping")
			continue
		}

		writes := m.stage(mctx, cluster)
		m.commit(mctx, writes)
		result.Metadata.Stats.ClustersProcessed++

		mctx.logger.Debug().
			Str("cluster_id", cluster.ID).
			Int("writes", len(writes)).
			Msg("Committed cluster")
	}

	result = m.finish(mctx, images)
	mctx.logger.Info().
		Int("clusters_processed", result.Metadata.Stats.ClustersProcessed).
		Int("clusters_skipped", result.Metadata.Stats.ClustersSkipped).
		Int("fields_written", result.Metadata.Stats.FieldsWritten).
		Dur("duration", result.Metadata.Duration).
		Msg("Metadata merge complete")
	return result, nil
}

// initialize sets up the working copy and tracker for a run.
func (m *merger) initialize(ctx context.Context, runID string, images metadata.Images, set mappings.Set) *mergeContext {
	working := images.Clone()
	index := make(map[string]int, len(working))
	for i, img := range working {
		index[img.ID] = i
	}
	return &mergeContext{
		result:  NewResult(runID, m.opts.scope),
		working: working,
		index:   index,
		tracker: provenance.NewTracker(m.opts.tracking),
		logger:  logging.FromContext(ctx),
		set:     set.Trim(),
	}
}

// members resolves a cluster's member IDs to working images, dropping
// repeats and recording unknown IDs as warnings.
func (m *merger) members(mctx *mergeContext, c clusters.Cluster) []metadata.Image {
	seen := make(map[string]bool, len(c.Members))
	var out []metadata.Image
	for _, id := range c.Members {
		if seen[id] {
			continue
		}
		seen[id] = true
		i, ok := mctx.index[id]
		if !ok {
			mctx.result.Metadata.Stats.MissingMembers++
			mctx.result.Warnings = append(mctx.result.Warnings,
				fmt.Sprintf("cluster %s: image %s not found", c.ID, id))
			mctx.logger.Warn().Str("cluster_id", c.ID).Str("image_id", id).Msg("Cluster member not found; skipping")
			continue
		}
		out = append(out, mctx.working[i])
	}
	return out
}

// stage computes every write for a cluster without applying any of them.
func (m *merger) stage(mctx *mergeContext, c clusters.Cluster) []write {
	members := m.members(mctx, c)
	var writes []write

	for _, mapping := range mctx.set {
		switch m.opts.scope {
		case ScopeCluster:
			var entries []provenance.Provenance
			for _, img := range members {
				entries = append(entries, m.collect(c.ID, img, mapping)...)
			}
			if len(entries) == 0 {
				continue
			}
			value := m.join(entries)
			for _, img := range members {
				writes = append(writes, write{imageID: img.ID, destination: mapping.Destination, value: value, entries: entries})
			}
		default:
			for _, img := range members {
				entries := m.collect(c.ID, img, mapping)
				if len(entries) == 0 {
					continue
				}
				writes = append(writes, write{imageID: img.ID, destination: mapping.Destination, value: m.join(entries), entries: entries})
			}
		}
	}
	return writes
}

// collect gathers the populated source fields of one image, in mapping order.
func (m *merger) collect(clusterID string, img metadata.Image, mapping mappings.FieldMapping) []provenance.Provenance {
	label := provenance.Label(img, m.opts.sourceField, m.opts.missingLabel)
	var entries []provenance.Provenance
	for _, field := range mapping.Sources {
		value, ok := img.Value(field)
		if !ok {
			continue
		}
		entries = append(entries, provenance.Provenance{
			ClusterID:   clusterID,
			SourceImage: img.ID,
			SourceField: field,
			Label:       label,
			Value:       value,
		})
	}
	return entries
}

func (m *merger) join(entries []provenance.Provenance) string {
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = provenance.Format(e.Value, e.Label)
	}
	return strings.Join(parts, m.opts.separator)
}

// commit applies a cluster's staged writes. Later writes replace earlier ones.
func (m *merger) commit(mctx *mergeContext, writes []write) {
	for _, w := range writes {
		mctx.working[mctx.index[w.imageID]].Set(w.destination, w.value)

		fields, ok := mctx.result.Updates[w.imageID]
		if !ok {
			fields = make(map[string]string)
			mctx.result.Updates[w.imageID] = fields
		}
		fields[w.destination] = w.value

		mctx.tracker.Record(w.imageID, w.destination, slices.Clone(w.entries))
	}
}

// finish builds the final result from the committed state.
func (m *merger) finish(mctx *mergeContext, input metadata.Images) *Result {
	result := mctx.result
	result.Images = mctx.working
	result.Changeset = differ.Fields(input, result.Updates)
	if p := mctx.tracker.Map(); p != nil {
		result.Provenance = p
	}
	result.Finalize()
	return result
}
