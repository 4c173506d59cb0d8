package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/dbmerger/pkg/clusters"
	"github.com/agentstation/dbmerger/pkg/errors"
	"github.com/agentstation/dbmerger/pkg/metadata"
)

func testProject() Project {
	return Project{
		Images: metadata.Images{
			metadata.New("img-1", map[string]any{"Author": "Victor Hugo"}),
		},
		Clusters: []clusters.Cluster{{ID: "c-1", Members: []string{"img-1"}}},
	}
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New(testProject())

	images, err := s.Images(ctx)
	require.NoError(t, err)
	images[0].Set("Author", "changed")

	cs, err := s.Clusters(ctx)
	require.NoError(t, err)
	cs[0].Members[0] = "changed"

	snap := s.Snapshot()
	v, _ := snap.Images[0].Value("Author")
	assert.Equal(t, "Victor Hugo", v)
	assert.Equal(t, "img-1", snap.Clusters[0].Members[0])
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := New(testProject())

	_, err := s.Images(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.SetFields(ctx, nil), context.Canceled)
}

func TestReadOnlyStore(t *testing.T) {
	ctx := context.Background()
	s := NewReadOnly(testProject())

	assert.ErrorIs(t, s.SetFields(ctx, nil), errors.ErrReadOnly)
	assert.ErrorIs(t, s.MarkValidated(ctx, "c-1", true), errors.ErrReadOnly)
	assert.ErrorIs(t, s.PutImages(ctx, nil), errors.ErrReadOnly)
	assert.ErrorIs(t, s.PutClusters(ctx, nil), errors.ErrReadOnly)
}

func TestUpsertImages(t *testing.T) {
	images := metadata.Images{metadata.New("a", nil), metadata.New("b", nil)}
	out := UpsertImages(images, metadata.Images{
		metadata.New("c", nil),
		metadata.New("a", map[string]any{"x": "1"}),
		metadata.New("c", map[string]any{"y": "2"}),
	})
	assert.Equal(t, []string{"a", "b", "c"}, out.IDs())
	assert.True(t, out[0].Has("x"))
	assert.True(t, out[2].Has("y"))
}
