package graphstore

import (
	"context"
	"testing"

	"github.com/rohankatakam/graphrag/internal/graphmodel"
	apperrors "github.com/rohankatakam/graphrag/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_NodeLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	n := &graphmodel.Node{UID: "ALICE", Type: "PERSON", Description: "a researcher"}
	require.NoError(t, b.AddNode(ctx, n))

	got, err := b.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "a researcher", got.Description)

	err = b.AddNode(ctx, n)
	assert.True(t, apperrors.IsAlreadyExists(err))

	got.Description = graphmodel.MergeDescription(got.Description, "also teaches")
	require.NoError(t, b.UpdateNode(ctx, got))

	reloaded, err := b.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "a researcher\nalso teaches", reloaded.Description)

	require.NoError(t, b.RemoveNode(ctx, "ALICE"))
	_, err = b.GetNode(ctx, "ALICE")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestMemoryBackend_AddEdgeBothDirections(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.AddNode(ctx, &graphmodel.Node{UID: "A"}))
	require.NoError(t, b.AddNode(ctx, &graphmodel.Node{UID: "B"}))

	require.NoError(t, b.AddEdge(ctx, &graphmodel.Edge{Source: "A", Target: "B", Weight: 1}))
	require.NoError(t, b.AddEdge(ctx, &graphmodel.Edge{Source: "B", Target: "A", Weight: 1}))

	_, err := b.GetEdge(ctx, "A", "B")
	require.NoError(t, err)
	_, err = b.GetEdge(ctx, "B", "A")
	require.NoError(t, err)
}

func TestMemoryBackend_BuildGraphView(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	require.NoError(t, b.AddNode(ctx, &graphmodel.Node{UID: "A", EdgesTo: []string{"B"}}))
	require.NoError(t, b.AddNode(ctx, &graphmodel.Node{UID: "B", EdgesFrom: []string{"A"}}))
	require.NoError(t, b.AddEdge(ctx, &graphmodel.Edge{Source: "A", Target: "B", Weight: 2}))

	view, err := b.BuildGraphView(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Nodes, 2)
	assert.Len(t, view.Edges, 1)
	assert.ElementsMatch(t, []string{"B"}, view.Neighbors("A"))
}

func TestMemoryBackend_WithNodeLockSerializes(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.AddNode(ctx, &graphmodel.Node{UID: "A", Description: ""}))

	const iterations = 50
	done := make(chan struct{}, 2)
	increment := func() {
		for i := 0; i < iterations; i++ {
			_ = b.WithNodeLock(ctx, "A", func(ctx context.Context) error {
				n, err := b.GetNode(ctx, "A")
				if err != nil {
					return err
				}
				n.Description = graphmodel.MergeDescription(n.Description, "x")
				return b.UpdateNode(ctx, n)
			})
		}
		done <- struct{}{}
	}

	go increment()
	go increment()
	<-done
	<-done

	n, err := b.GetNode(ctx, "A")
	require.NoError(t, err)
	assert.Len(t, n.DescriptionFragments(), 1, "MergeDescription dedupes identical fragments")
}

func TestMemoryBackend_CommunityLifecycle(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	c := &graphmodel.Community{UID: "COMM-0", MemberNodeUIDs: []string{"A", "B"}, Title: "cluster"}
	require.NoError(t, b.StoreCommunity(ctx, c))

	got, err := b.GetCommunity(ctx, "COMM-0")
	require.NoError(t, err)
	assert.Equal(t, "cluster", got.Title)

	all, err := b.ListCommunities(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, b.ClearCommunities(ctx))
	all, err = b.ListCommunities(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
