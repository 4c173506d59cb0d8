package dbmerger

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/logging"
	"github.com/agentstation/dbmerger/pkg/mappings"
	"github.com/agentstation/dbmerger/pkg/merger"
	"github.com/agentstation/dbmerger/pkg/metadata"
	"github.com/agentstation/dbmerger/pkg/store"
)

func testImages() metadata.Images {
	return metadata.Images{
		metadata.New("img-1", map[string]any{"Author": "Victor Hugo", "Title": "Les Misérables", "merge-source": "source-1"}),
		metadata.New("img-2", map[string]any{"Auteur": "Hugo Victor", "Titre": "Les Misérables", "merge-source": "source-2"}),
		metadata.New("img-3", map[string]any{"Author": "Émile Zola"}),
	}
}

func testClusters() []clusters.Cluster {
	return []clusters.Cluster{
		{ID: "c-1", Members: []string{"img-1", "img-2"}, Order: 1},
		{ID: "c-2", Members: []string{"img-3"}, Order: 2},
	}
}

func testContext() context.Context {
	return logging.WithLogger(context.Background(), logging.NewNopLogger())
}

func newTestClient(t *testing.T, opts ...Option) (Client, store.Store) {
	t.Helper()
	s := store.NewMemory(testImages(), testClusters())
	c, err := New(s, opts...)
	require.NoError(t, err)
	return c, s
}

func storedValue(t *testing.T, s store.Store, imageID, field string) (string, bool) {
	t.Helper()
	images, err := s.Images(context.Background())
	require.NoError(t, err)
	img, ok := images.Index()[imageID]
	require.True(t, ok, imageID)
	return img.Value(field)
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewRejectsInvalidMappings(t *testing.T) {
	s := store.NewMemory(nil, nil)
	_, err := New(s, WithMappings(mappings.Set{
		{Destination: "X", Sources: []string{"A"}},
		{Destination: "X", Sources: []string{"B"}},
	}))
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))

	_, err = New(s, WithScope("gallery"))
	require.Error(t, err)
}

func TestExecuteMergeRequiresValidation(t *testing.T) {
	ctx := testContext()
	c, s := newTestClient(t)

	result, err := c.ExecuteMerge(ctx)
	require.NoError(t, err)
	assert.False(t, result.HasUpdates())
	_, ok := storedValue(t, s, "img-1", "Auteur-merged")
	assert.False(t, ok)

	require.NoError(t, c.ValidateCluster(ctx, "c-1", true))
	result, err = c.ExecuteMerge(ctx)
	require.NoError(t, err)
	assert.True(t, result.HasUpdates())

	v, ok := storedValue(t, s, "img-1", "Auteur-merged")
	require.True(t, ok)
	assert.Equal(t, "Victor Hugo [source-1]", v)
	v, _ = storedValue(t, s, "img-2", "Titre-merged")
	assert.Equal(t, "Les Misérables [source-2]", v)

	_, ok = storedValue(t, s, "img-3", "Auteur-merged")
	assert.False(t, ok, "unvalidated cluster c-2 must not be written")

	// Source fields and provenance are untouched.
	v, _ = storedValue(t, s, "img-1", "Author")
	assert.Equal(t, "Victor Hugo", v)
	v, _ = storedValue(t, s, "img-1", "merge-source")
	assert.Equal(t, "source-1", v)
}

func TestExecuteMergeClusterScope(t *testing.T) {
	ctx := testContext()
	c, s := newTestClient(t, WithScope(merger.ScopeCluster))
	require.NoError(t, c.ValidateCluster(ctx, "c-1", true))

	_, err := c.ExecuteMerge(ctx)
	require.NoError(t, err)
	for _, id := range []string{"img-1", "img-2"} {
		v, _ := storedValue(t, s, id, "Auteur-merged")
		assert.Equal(t, "Victor Hugo [source-1];Hugo Victor [source-2]", v, id)
	}

	// Per-call scope override.
	_, err = c.ExecuteMerge(ctx, WithMergeScope(merger.ScopeImage))
	require.NoError(t, err)
	v, _ := storedValue(t, s, "img-2", "Auteur-merged")
	assert.Equal(t, "Hugo Victor [source-2]", v)
}

func TestExecuteMergeDryRun(t *testing.T) {
	ctx := testContext()
	path := filepath.Join(t.TempDir(), "project.provenance.yaml")
	c, s := newTestClient(t, WithProvenanceFile(path))
	require.NoError(t, c.ValidateCluster(ctx, "c-2", true))

	var merged int
	c.OnMerged(func(*merger.Result) { merged++ })

	result, err := c.ExecuteMerge(ctx, WithDryRun(true))
	require.NoError(t, err)
	v, ok := result.Value("img-3", "Auteur-merged")
	require.True(t, ok)
	assert.Equal(t, "Émile Zola [merge-source not provided]", v)
	assert.Equal(t, 1, result.Changeset.Summary.Added)

	_, ok = storedValue(t, s, "img-3", "Auteur-merged")
	assert.False(t, ok)
	assert.Equal(t, 0, merged)
	_, err = c.Provenance("img-3")
	assert.True(t, errors.IsNotFound(err))
}

func TestExecuteMergePersistsProvenance(t *testing.T) {
	ctx := testContext()
	path := filepath.Join(t.TempDir(), "project.provenance.yaml")
	c, _ := newTestClient(t, WithProvenanceFile(path))
	require.NoError(t, c.ValidateCluster(ctx, "c-1", true))

	var got *merger.Result
	c.OnMerged(func(r *merger.Result) { got = r })

	result, err := c.ExecuteMerge(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, result.RunID, got.RunID)

	entries, err := c.Provenance("img-2")
	require.NoError(t, err)
	require.Len(t, entries["Auteur-merged"], 1)
	assert.Equal(t, "Auteur", entries["Auteur-merged"][0].SourceField)
	assert.Equal(t, "source-2", entries["Auteur-merged"][0].Label)

	_, err = c.Provenance("img-404")
	assert.True(t, errors.IsNotFound(err))
}

func TestExecuteMergeCanceled(t *testing.T) {
	c, s := newTestClient(t)
	require.NoError(t, c.ValidateCluster(testContext(), "c-1", true))

	ctx, cancel := context.WithCancel(testContext())
	cancel()
	_, err := c.ExecuteMerge(ctx)
	require.Error(t, err)
	_, ok := storedValue(t, s, "img-1", "Auteur-merged")
	assert.False(t, ok)
}

// readOnlyFields rejects field writes but accepts everything else.
type readOnlyFields struct {
	store.Store
}

func (readOnlyFields) SetFields(context.Context, map[string]map[string]string) error {
	return errors.ErrReadOnly
}

func TestExecuteMergeWriteFailure(t *testing.T) {
	ctx := testContext()
	s := readOnlyFields{store.NewMemory(testImages(), testClusters())}
	c, err := New(s)
	require.NoError(t, err)
	require.NoError(t, c.ValidateCluster(ctx, "c-1", true))

	merged := false
	c.OnMerged(func(*merger.Result) { merged = true })

	result, err := c.ExecuteMerge(ctx)
	require.Error(t, err)
	require.NotNil(t, result)
	assert.ErrorIs(t, err, errors.ErrReadOnly)

	var mergeErr *errors.MergeError
	require.True(t, errors.As(err, &mergeErr))
	assert.Equal(t, result.RunID, mergeErr.RunID)
	assert.Equal(t, []string{"img-1", "img-2"}, mergeErr.ImageIDs)
	assert.False(t, merged)
}

func TestValidateCluster(t *testing.T) {
	ctx := testContext()
	c, _ := newTestClient(t)

	var validated []clusters.Cluster
	c.OnClusterValidated(func(cl clusters.Cluster) { validated = append(validated, cl) })

	require.NoError(t, c.ValidateCluster(ctx, "c-2", true))
	require.NoError(t, c.ValidateCluster(ctx, "c-2", false))
	require.Len(t, validated, 2)
	assert.True(t, validated[0].Validated)
	assert.False(t, validated[1].Validated)

	err := c.ValidateCluster(ctx, "c-404", true)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	cs, err := c.Clusters(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c-1", "c-2"}, []string{cs[0].ID, cs[1].ID})
	assert.False(t, cs[1].Validated)
}

func TestValidatedFlagOnMember(t *testing.T) {
	ctx := testContext()
	images := testImages()
	images[0].Set("merge-validated", true)
	s := store.NewMemory(images, testClusters())
	c, err := New(s)
	require.NoError(t, err)

	cs, err := c.Clusters(ctx)
	require.NoError(t, err)
	require.Len(t, clusters.Validated(cs), 1)
	assert.Equal(t, "c-1", clusters.Validated(cs)[0].ID)

	err = c.ValidateCluster(ctx, "c-1", false)
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Contains(t, err.Error(), "merge-validated")
	assert.Contains(t, err.Error(), "img-1")

	cs, err = c.Clusters(ctx)
	require.NoError(t, err)
	assert.True(t, cs[0].Validated)

	result, err := c.ExecuteMerge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Metadata.Stats.ClustersProcessed)
	v, ok := storedValue(t, s, "img-1", "Auteur-merged")
	require.True(t, ok)
	assert.Equal(t, "Victor Hugo [source-1]", v)
}

func TestValidatedFlagDisabled(t *testing.T) {
	ctx := testContext()
	images := testImages()
	images[0].Set("merge-validated", true)
	s := store.NewMemory(images, testClusters())
	c, err := New(s, WithValidatedFlag(""))
	require.NoError(t, err)

	cs, err := c.Clusters(ctx)
	require.NoError(t, err)
	assert.Empty(t, clusters.Validated(cs))

	require.NoError(t, c.ValidateCluster(ctx, "c-1", true))
	require.NoError(t, c.ValidateCluster(ctx, "c-1", false))

	result, err := c.ExecuteMerge(ctx)
	require.NoError(t, err)
	assert.False(t, result.HasUpdates())
	_, ok := storedValue(t, s, "img-1", "Auteur-merged")
	assert.False(t, ok)
}

func TestImport(t *testing.T) {
	ctx := testContext()
	c, s := newTestClient(t)

	var imported *ImportResult
	c.OnImported(func(r *ImportResult) { imported = r })

	incoming := metadata.Images{
		metadata.New("img-10", map[string]any{"Author": "Balzac"}),
		metadata.New("img-11", map[string]any{"Author": "Sand", "merge-source": "bnf"}),
	}
	result, err := c.Import(ctx, incoming, "gallica")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, []string{"img-10"}, result.Labeled)
	assert.Same(t, result, imported)

	v, _ := storedValue(t, s, "img-10", "merge-source")
	assert.Equal(t, "gallica", v)
	v, _ = storedValue(t, s, "img-11", "merge-source")
	assert.Equal(t, "bnf", v)
	assert.False(t, incoming[0].Has("merge-source"), "input must not be mutated")

	result, err = c.Import(ctx, metadata.Images{metadata.New("img-12", nil)}, "")
	require.NoError(t, err)
	assert.Equal(t, "merge-source not provided", result.Label)

	_, err = c.Import(ctx, metadata.Images{{}}, "x")
	assert.True(t, errors.IsValidationError(err))

	_, err = c.Import(ctx, metadata.Images{metadata.New("img-20", nil), metadata.New("img-20", nil)}, "x")
	require.Error(t, err)
	assert.True(t, errors.IsAlreadyExists(err))
	images, err := s.Images(ctx)
	require.NoError(t, err)
	assert.NotContains(t, images.IDs(), "img-20")
}

func TestSetMappings(t *testing.T) {
	c, _ := newTestClient(t)
	assert.Equal(t, mappings.Defaults(), c.Mappings())

	err := c.SetMappings(mappings.Set{
		{Destination: "Auteur-merged", Sources: []string{"Author"}},
		{Destination: "Auteur-merged", Sources: []string{"Auteur"}},
	})
	require.Error(t, err)
	assert.True(t, errors.IsValidationError(err))
	assert.Equal(t, mappings.Defaults(), c.Mappings(), "previous mappings kept")

	err = c.SetMappings(mappings.Set{{Destination: "merge-source", Sources: []string{"Author"}}})
	require.Error(t, err)

	want := mappings.Set{{Destination: "Who", Sources: []string{"Author", "Auteur"}}}
	require.NoError(t, c.SetMappings(mappings.Set{{Destination: " Who ", Sources: []string{"Author", " Auteur"}}}))
	if diff := cmp.Diff(want, c.Mappings()); diff != "" {
		t.Errorf("Mappings mismatch (-want +got):\n%s", diff)
	}

	// Returned sets are copies.
	got := c.Mappings()
	got[0].Destination = "changed"
	assert.Equal(t, "Who", c.Mappings()[0].Destination)
}

func TestUpdateParams(t *testing.T) {
	c, _ := newTestClient(t)
	before := c.Params()
	assert.Equal(t, "merge-source", before.SourceField)
	assert.Equal(t, "merge-validated", before.ValidatedFlag)
	assert.Equal(t, "merge-source not provided", before.MissingLabel)
	assert.JSONEq(t, `[
		{"destination": "Auteur-merged", "sources": ["Author", "Auteur"]},
		{"destination": "Titre-merged", "sources": ["Title", "Titre"]},
		{"destination": "Copyright-merged", "sources": ["Copyright", "Copyright (fr)"]}
	]`, before.MappingsRaw)

	tests := []struct {
		name   string
		params Params
	}{
		{"malformed json", Params{MappingsRaw: `[{"destination": "X"`, MissingLabel: "changed"}},
		{"not a mapping list", Params{MappingsRaw: `[42]`}},
		{"duplicate destination", Params{MappingsRaw: `[{"destination":"X","sources":["A"]},{"destination":"X","sources":["B"]}]`}},
		{"destination is provenance field", Params{SourceField: "X", MappingsRaw: `[{"destination":"X","sources":["A"]}]`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, c.UpdateParams(tt.params))
			assert.Equal(t, before, c.Params(), "previous parameters kept")
		})
	}

	require.NoError(t, c.UpdateParams(Params{
		MappingsRaw:  `[{"sources": ["Author"], "destination": "Who"}]`,
		MissingLabel: "unknown",
	}))
	after := c.Params()
	assert.Equal(t, "unknown", after.MissingLabel)
	assert.Equal(t, "merge-source", after.SourceField)
	assert.Equal(t, mappings.Set{{Destination: "Who", Sources: []string{"Author"}}}, c.Mappings())
}

func TestConcurrentMappingUpdates(t *testing.T) {
	defer goleak.VerifyNone(t)
	ctx := testContext()
	c, _ := newTestClient(t)
	require.NoError(t, c.ValidateCluster(ctx, "c-1", true))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.SetMappings(mappings.Defaults())
		}()
		go func() {
			defer wg.Done()
			_, err := c.ExecuteMerge(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}
