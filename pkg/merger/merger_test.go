package merger

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/differ"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/logging"
	"github.com/agentstation/dbmerger/pkg/mappings"
	"github.com/agentstation/dbmerger/pkg/metadata"
	"github.com/agentstation/dbmerger/pkg/provenance"
)

// Test helper functions
func authorMapping() mappings.Set {
	return mappings.Set{{Destination: "Auteur-merged", Sources: []string{"Author", "Auteur"}}}
}

func hugoImages() metadata.Images {
	return metadata.Images{
		metadata.New("img-1", map[string]any{"Author": "Victor Hugo", "merge-source": "source-1"}),
		metadata.New("img-2", map[string]any{"Auteur": "Hugo Victor", "merge-source": "source-2"}),
	}
}

func validated(id string, order int, members ...string) clusters.Cluster {
	return clusters.Cluster{ID: id, Members: members, Validated: true, Order: order}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	return logging.WithLogger(context.Background(), logging.NewNopLogger())
}

// cancelAfter reports a canceled context once Err has been called n times.
type cancelAfter struct {
	context.Context
	n int
}

func (c *cancelAfter) Err() error {
	if c.n <= 0 {
		return context.Canceled
	}
	c.n--
	return nil
}

func TestMergeFormatsValueWithProvenance(t *testing.T) {
	result, err := Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1", "img-2")}, hugoImages(), authorMapping())
	require.NoError(t, err)

	v, ok := result.Value("img-1", "Auteur-merged")
	require.True(t, ok)
	assert.Contains(t, v, "Victor Hugo [source-1]")

	v, ok = result.Value("img-2", "Auteur-merged")
	require.True(t, ok)
	assert.Equal(t, "Hugo Victor [source-2]", v)
}

func TestMergeMissingProvenanceUsesPlaceholder(t *testing.T) {
	images := metadata.Images{
		metadata.New("img-1", map[string]any{"Author": "Anonyme"}),
		metadata.New("img-2", map[string]any{"Author": "Anon", "merge-source": ""}),
	}
	result, err := Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1", "img-2")}, images, authorMapping())
	require.NoError(t, err)

	for _, id := range []string{"img-1", "img-2"} {
		v, ok := result.Value(id, "Auteur-merged")
		require.True(t, ok, id)
		assert.Regexp(t, `\[merge-source not provided\]$`, v)
	}

	result, err = Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1")}, images, authorMapping(),
		WithMissingLabel("unknown"))
	require.NoError(t, err)
	v, _ := result.Value("img-1", "Auteur-merged")
	assert.Equal(t, "Anonyme [unknown]", v)
}

func TestMergePreservesSourceOrder(t *testing.T) {
	t.Run("cluster scope", func(t *testing.T) {
		result, err := Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1", "img-2")}, hugoImages(), authorMapping(),
			WithScope(ScopeCluster))
		require.NoError(t, err)

		want := map[string]map[string]string{
			"img-1": {"Auteur-merged": "Victor Hugo [source-1];Hugo Victor [source-2]"},
			"img-2": {"Auteur-merged": "Victor Hugo [source-1];Hugo Victor [source-2]"},
		}
		if diff := cmp.Diff(want, result.Updates); diff != "" {
			t.Errorf("Updates mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("image scope with two sources", func(t *testing.T) {
		images := metadata.Images{
			metadata.New("img-1", map[string]any{"Auteur": "Hugo Victor", "Author": "Victor Hugo", "merge-source": "source-1"}),
		}
		result, err := Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1")}, images, authorMapping())
		require.NoError(t, err)

		v, _ := result.Value("img-1", "Auteur-merged")
		assert.Equal(t, "Victor Hugo [source-1];Hugo Victor [source-1]", v)
	})

	t.Run("custom separator", func(t *testing.T) {
		result, err := Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1", "img-2")}, hugoImages(), authorMapping(),
			WithScope(ScopeCluster), WithSeparator(" | "))
		require.NoError(t, err)

		v, _ := result.Value("img-2", "Auteur-merged")
		assert.Equal(t, "Victor Hugo [source-1] | Hugo Victor [source-2]", v)
	})
}

func TestMergeSkipsUnvalidatedClusters(t *testing.T) {
	images := hugoImages()
	cs := []clusters.Cluster{{ID: "c-1", Members: []string{"img-1", "img-2"}}}

	result, err := Merge(testContext(t), cs, images, authorMapping())
	require.NoError(t, err)

	assert.False(t, result.HasUpdates())
	assert.Equal(t, 0, result.Metadata.Stats.ClustersProcessed)
	assert.Equal(t, 1, result.Metadata.Stats.ClustersSkipped)
	assert.Equal(t, "No validated clusters to merge.", result.Summary())
	if diff := cmp.Diff(images, result.Images); diff != "" {
		t.Errorf("Images changed (-want +got):\n%s", diff)
	}
}

func TestMergeValidatedFlag(t *testing.T) {
	images := hugoImages()
	images[1].Set("merge-validated", "true")
	cs := []clusters.Cluster{{ID: "c-1", Members: []string{"img-1", "img-2"}}}

	result, err := Merge(testContext(t), cs, images, authorMapping())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metadata.Stats.ClustersProcessed)
	assert.Len(t, result.Updates, 2)

	result, err = Merge(testContext(t), cs, images, authorMapping(), WithValidatedFlag(""))
	require.NoError(t, err)
	assert.False(t, result.HasUpdates(), "flag validation disabled")
}

func TestMergeIsIdempotent(t *testing.T) {
	cs := []clusters.Cluster{
		validated("c-2", 2, "img-2", "img-1"),
		validated("c-1", 1, "img-1"),
	}

	first, err := Merge(testContext(t), cs, hugoImages(), authorMapping(), WithScope(ScopeCluster))
	require.NoError(t, err)
	second, err := Merge(testContext(t), cs, hugoImages(), authorMapping(), WithScope(ScopeCluster))
	require.NoError(t, err)

	if diff := cmp.Diff(first.Updates, second.Updates); diff != "" {
		t.Errorf("Updates differ between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Images, second.Images); diff != "" {
		t.Errorf("Images differ between runs (-first +second):\n%s", diff)
	}
	assert.NotEqual(t, first.RunID, second.RunID)

	// Re-merging the merged images rewrites the same values.
	again, err := Merge(testContext(t), cs, first.Images, authorMapping(), WithScope(ScopeCluster))
	require.NoError(t, err)
	if diff := cmp.Diff(first.Images, again.Images); diff != "" {
		t.Errorf("re-merge changed images (-want +got):\n%s", diff)
	}
	assert.False(t, again.Changeset.HasChanges())
}

func TestMergeNoPopulatedSources(t *testing.T) {
	images := metadata.Images{
		metadata.New("img-1", map[string]any{"Author": "", "Auteur": nil, "Auteur-merged": "old", "merge-source": "source-1"}),
	}
	result, err := Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1")}, images, authorMapping())
	require.NoError(t, err)

	assert.False(t, result.HasUpdates())
	assert.Equal(t, "old", result.Images[0].Fields["Auteur-merged"])
	assert.Equal(t, 1, result.Metadata.Stats.ClustersProcessed)
}

func TestMergeKeepsWhitespaceValues(t *testing.T) {
	images := metadata.Images{
		metadata.New("img-1", map[string]any{"Author": " ", "merge-source": "source-1"}),
		metadata.New("img-2", map[string]any{"Author": "Hugo", "merge-source": "  "}),
	}
	result, err := Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1", "img-2")}, images, authorMapping())
	require.NoError(t, err)

	want := map[string]map[string]string{
		"img-1": {"Auteur-merged": "  [source-1]"},
		"img-2": {"Auteur-merged": "Hugo [  ]"},
	}
	if diff := cmp.Diff(want, result.Updates); diff != "" {
		t.Errorf("updates mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeLastClusterWins(t *testing.T) {
	images := append(hugoImages(),
		metadata.New("img-3", map[string]any{"Author": "V. Hugo", "merge-source": "source-3"}))

	// Given out of order; c-1 (Order 1) must be processed before c-2.
	cs := []clusters.Cluster{
		validated("c-2", 2, "img-1", "img-3"),
		validated("c-1", 1, "img-1", "img-2"),
	}
	result, err := Merge(testContext(t), cs, images, authorMapping(), WithScope(ScopeCluster))
	require.NoError(t, err)

	want := map[string]map[string]string{
		"img-1": {"Auteur-merged": "Victor Hugo [source-1];V. Hugo [source-3]"},
		"img-2": {"Auteur-merged": "Victor Hugo [source-1];Hugo Victor [source-2]"},
		"img-3": {"Auteur-merged": "Victor Hugo [source-1];V. Hugo [source-3]"},
	}
	if diff := cmp.Diff(want, result.Updates); diff != "" {
		t.Errorf("Updates mismatch (-want +got):\n%s", diff)
	}

	entries := result.Provenance[provenance.Key("img-1", "Auteur-merged")]
	require.Len(t, entries, 2)
	assert.Equal(t, "c-2", entries[0].ClusterID)
	assert.Equal(t, "img-3", entries[1].SourceImage)
	assert.Equal(t, 2, result.Metadata.Stats.ClustersProcessed)
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	images := hugoImages()
	cs := []clusters.Cluster{validated("c-1", 1, "img-1", "img-2")}
	set := authorMapping()

	_, err := Merge(testContext(t), cs, images, set)
	require.NoError(t, err)

	if diff := cmp.Diff(hugoImages(), images); diff != "" {
		t.Errorf("input images mutated (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(authorMapping(), set); diff != "" {
		t.Errorf("input mappings mutated (-want +got):\n%s", diff)
	}
}

func TestMergeConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		set  mappings.Set
	}{
		{
			name: "duplicate destination",
			set: mappings.Set{
				{Destination: "Auteur-merged", Sources: []string{"Author"}},
				{Destination: " Auteur-merged ", Sources: []string{"Auteur"}},
			},
		},
		{
			name: "destination is the provenance field",
			set:  mappings.Set{{Destination: "merge-source", Sources: []string{"Author"}}},
		},
		{
			name: "destination is a source",
			set:  mappings.Set{{Destination: "Author", Sources: []string{"Author"}}},
		},
		{
			name: "no sources",
			set:  mappings.Set{{Destination: "Auteur-merged"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1")}, hugoImages(), tt.set)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.True(t, errors.IsValidationError(err))

			var cfgErr *errors.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "mappings", cfgErr.Component)
		})
	}
}

func TestMergeNoOp(t *testing.T) {
	images := hugoImages()

	result, err := Merge(testContext(t), []clusters.Cluster{validated("c-1", 1, "img-1")}, images, nil)
	require.NoError(t, err)
	assert.False(t, result.HasUpdates())
	assert.Equal(t, images, result.Images)

	result, err = Merge(testContext(t), nil, images, authorMapping())
	require.NoError(t, err)
	assert.False(t, result.HasUpdates())
}

func TestMergeMissingAndDuplicateMembers(t *testing.T) {
	cs := []clusters.Cluster{validated("c-1", 1, "img-1", "ghost", "img-1")}

	result, err := Merge(testContext(t), cs, hugoImages(), authorMapping(), WithScope(ScopeCluster))
	require.NoError(t, err)

	v, _ := result.Value("img-1", "Auteur-merged")
	assert.Equal(t, "Victor Hugo [source-1]", v)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "ghost")
	assert.Equal(t, 1, result.Metadata.Stats.MissingMembers)
	_, touched := result.Updates["ghost"]
	assert.False(t, touched)
}

func TestMergeCancellation(t *testing.T) {
	images := hugoImages()
	cs := []clusters.Cluster{
		validated("c-1", 1, "img-1"),
		validated("c-2", 2, "img-2"),
	}

	t.Run("before first cluster", func(t *testing.T) {
		ctx, cancel := context.WithCancel(testContext(t))
		cancel()

		result, err := Merge(ctx, cs, images, authorMapping())
		require.Error(t, err)
		assert.True(t, errors.IsCanceled(err))
		assert.ErrorIs(t, err, context.Canceled)
		require.NotNil(t, result)
		assert.False(t, result.HasUpdates())
	})

	t.Run("keeps committed clusters", func(t *testing.T) {
		ctx := &cancelAfter{Context: testContext(t), n: 1}

		result, err := Merge(ctx, cs, images, authorMapping())
		require.Error(t, err)
		assert.True(t, errors.IsCanceled(err))
		require.NotNil(t, result)

		want := map[string]map[string]string{
			"img-1": {"Auteur-merged": "Victor Hugo [source-1]"},
		}
		if diff := cmp.Diff(want, result.Updates); diff != "" {
			t.Errorf("Updates mismatch (-want +got):\n%s", diff)
		}
		assert.Equal(t, 1, result.Metadata.Stats.ClustersProcessed)
		_, has := result.Images[1].Fields["Auteur-merged"]
		assert.False(t, has)
	})
}

func TestMergeProvenanceTracking(t *testing.T) {
	cs := []clusters.Cluster{validated("c-1", 1, "img-1", "img-2")}

	result, err := Merge(testContext(t), cs, hugoImages(), authorMapping())
	require.NoError(t, err)

	entries := result.Provenance[provenance.Key("img-2", "Auteur-merged")]
	require.Len(t, entries, 1)
	assert.Equal(t, "Auteur", entries[0].SourceField)
	assert.Equal(t, "source-2", entries[0].Label)
	assert.Equal(t, "Hugo Victor", entries[0].Value)
	assert.False(t, entries[0].Timestamp.IsZero())

	result, err = Merge(testContext(t), cs, hugoImages(), authorMapping(), WithProvenance(false))
	require.NoError(t, err)
	assert.Empty(t, result.Provenance)
	assert.True(t, result.HasUpdates())
}

func TestMergeResultMetadata(t *testing.T) {
	images := hugoImages()
	images[1].Set("Auteur-merged", "stale")
	cs := []clusters.Cluster{
		validated("c-1", 1, "img-1", "img-2"),
		{ID: "c-2", Members: []string{"img-2"}, Order: 2},
	}

	result, err := Merge(testContext(t), cs, images, authorMapping())
	require.NoError(t, err)

	stats := result.Metadata.Stats
	assert.Equal(t, 1, stats.ClustersProcessed)
	assert.Equal(t, 1, stats.ClustersSkipped)
	assert.Equal(t, 2, stats.ImagesUpdated)
	assert.Equal(t, 2, stats.FieldsWritten)
	assert.Equal(t, ScopeImage, result.Metadata.Scope)
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.Metadata.EndTime.Time.Before(result.Metadata.StartTime.Time))
	assert.Equal(t, "Merged 1 clusters (1 skipped): 2 fields written on 2 images.", result.Summary())

	require.NotNil(t, result.Changeset)
	assert.Equal(t, differ.Summary{Added: 1, Updated: 1, Images: 2}, result.Changeset.Summary)
}

func TestMergeLogging(t *testing.T) {
	tl := logging.NewTestLogger(t)
	ctx := logging.WithLogger(context.Background(), tl.Logger)

	_, err := Merge(ctx, []clusters.Cluster{validated("c-1", 1, "img-1", "ghost")}, hugoImages(), authorMapping())
	require.NoError(t, err)

	tl.AssertContains(t, "Starting metadata merge")
	tl.AssertContains(t, "Metadata merge complete")
	tl.AssertContains(t, `"run_id"`)
	tl.AssertContains(t, "Cluster member not found")
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
	}{
		{"empty source field", WithSourceField("")},
		{"empty missing label", WithMissingLabel("")},
		{"empty separator", WithSeparator("")},
		{"unknown scope", WithScope("gallery")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(tt.opt)
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, errors.IsValidationError(err))
		})
	}
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in      string
		want    Scope
		wantErr bool
	}{
		{"", ScopeImage, false},
		{"image", ScopeImage, false},
		{" Cluster ", ScopeCluster, false},
		{"gallery", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
