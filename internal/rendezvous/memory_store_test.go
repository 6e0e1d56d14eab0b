package rendezvous

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorePutGetMergesByQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "who won x?", "COMM-L0-A", PartialAnswer{CommunityUID: "COMM-L0-A", Response: "a", Score: 8}))
	require.NoError(t, s.Put(ctx, "who won x?", "COMM-L0-B", PartialAnswer{CommunityUID: "COMM-L0-B", Response: "b", Score: 3}))

	doc, err := s.Get(ctx, "who won x?")
	require.NoError(t, err)
	assert.Len(t, doc, 2)
	assert.Equal(t, 8, doc["COMM-L0-A"].Score)
}

func TestMemoryStorePutIsIdempotentOnIdenticalWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	pa := PartialAnswer{CommunityUID: "COMM-L0-A", Response: "a", Score: 8}
	require.NoError(t, s.Put(ctx, "q", "COMM-L0-A", pa))
	require.NoError(t, s.Put(ctx, "q", "COMM-L0-A", pa))

	doc, err := s.Get(ctx, "q")
	require.NoError(t, err)
	assert.Len(t, doc, 1)
}

func TestMemoryStoreGetAbsentQueryReturnsEmptyMap(t *testing.T) {
	s := NewMemoryStore()
	doc, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, doc)
}
