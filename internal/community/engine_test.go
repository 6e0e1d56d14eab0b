package community

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/rohankatakam/graphrag/internal/graphmodel"
	"github.com/rohankatakam/graphrag/internal/graphstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedTriangleGraph(t *testing.T, store *graphstore.MemoryBackend) {
	ctx := context.Background()
	require.NoError(t, store.AddNode(ctx, &graphmodel.Node{UID: "A", EdgesTo: []string{"B"}}))
	require.NoError(t, store.AddNode(ctx, &graphmodel.Node{UID: "B", EdgesTo: []string{"C"}, EdgesFrom: []string{"A"}}))
	require.NoError(t, store.AddNode(ctx, &graphmodel.Node{UID: "C", EdgesFrom: []string{"B"}}))
	require.NoError(t, store.AddEdge(ctx, &graphmodel.Edge{Source: "A", Target: "B", Weight: 3}))
	require.NoError(t, store.AddEdge(ctx, &graphmodel.Edge{Source: "B", Target: "C", Weight: 2}))
}

func TestStabilizeIsDeterministic(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryBackend()
	seedTriangleGraph(t, store)

	view1, err := store.BuildGraphView(ctx)
	require.NoError(t, err)
	view2, err := store.BuildGraphView(ctx)
	require.NoError(t, err)

	s1 := Stabilize(view1)
	s2 := Stabilize(view2)

	uids1 := make([]string, len(s1.Nodes))
	for i, n := range s1.Nodes {
		uids1[i] = n.UID
	}
	uids2 := make([]string, len(s2.Nodes))
	for i, n := range s2.Nodes {
		uids2[i] = n.UID
	}
	assert.Equal(t, uids1, uids2)
}

func TestClusterRespectsMaxClusterSize(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryBackend()
	seedTriangleGraph(t, store)

	view, err := store.BuildGraphView(ctx)
	require.NoError(t, err)

	stabilized := Stabilize(view)
	levels := Cluster(stabilized, 2, 0xDEADBEEF)
	require.NotEmpty(t, levels)

	finest := levels[0]
	sizes := make(map[string]int)
	for _, cluster := range finest {
		sizes[cluster]++
	}
	for cluster, size := range sizes {
		assert.LessOrEqualf(t, size, 2, "cluster %s exceeded max_cluster_size", cluster)
	}
}

func TestSummarizeFallbackOnNonJSONCompletion(t *testing.T) {
	// A nil Completion client exercises the same degraded path a disabled
	// (ProviderNone) client would, without a live API call.
	s := NewSummarizer(nil, discardLogger())
	members := []*graphmodel.Node{{UID: "A"}, {UID: "B"}}
	community := s.Summarize(context.Background(), "COMM-0", 0, members, nil)

	assert.True(t, community.Degraded)
	assert.Equal(t, "{A, B}", community.Title)
	assert.Equal(t, "", community.Summary)
	assert.Equal(t, 0.0, community.Rating)
}

func TestEngineRebuildStoresCommunities(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryBackend()
	seedTriangleGraph(t, store)

	engine := NewEngine(store, NewSummarizer(nil, discardLogger()), 10, 0xDEADBEEF, discardLogger())
	count, err := engine.Rebuild(ctx)
	require.NoError(t, err)
	assert.Greater(t, count, 0)

	communities, err := store.ListCommunities(ctx)
	require.NoError(t, err)
	assert.Len(t, communities, count)
}

func TestEngineRebuildClearsStaleCommunities(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryBackend()
	seedTriangleGraph(t, store)

	engine := NewEngine(store, NewSummarizer(nil, discardLogger()), 10, 0xDEADBEEF, discardLogger())
	_, err := engine.Rebuild(ctx)
	require.NoError(t, err)

	before, err := store.ListCommunities(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, before)

	// Shrink the graph to a single isolated node: its cluster UID will never
	// match any of the triangle's, so a correct rebuild must not leave the
	// old communities behind.
	store2 := graphstore.NewMemoryBackend()
	require.NoError(t, store2.AddNode(ctx, &graphmodel.Node{UID: "LONE"}))
	for _, c := range before {
		require.NoError(t, store2.StoreCommunity(ctx, c))
	}

	engine2 := NewEngine(store2, NewSummarizer(nil, discardLogger()), 10, 0xDEADBEEF, discardLogger())
	count, err := engine2.Rebuild(ctx)
	require.NoError(t, err)

	after, err := store2.ListCommunities(ctx)
	require.NoError(t, err)
	assert.Len(t, after, count)
	for _, c := range after {
		for _, stale := range before {
			assert.NotEqual(t, stale.UID, c.UID, "stale community %q survived rebuild", stale.UID)
		}
	}
}
