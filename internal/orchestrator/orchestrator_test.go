package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/rohankatakam/graphrag/internal/graphmodel"
	"github.com/rohankatakam/graphrag/internal/graphstore"
	"github.com/rohankatakam/graphrag/internal/rendezvous"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedThreeCommunities(t *testing.T, store graphstore.Backend) {
	ctx := context.Background()
	for _, uid := range []string{"COMM-A", "COMM-B", "COMM-C"} {
		require.NoError(t, store.StoreCommunity(ctx, &graphmodel.Community{UID: uid, Title: uid}))
	}
}

// TestQueryMapReduceFinalContext directly implements scenario 5: given 3
// communities and worker responses scored [8,3,0], the final context is the
// two non-zero entries in the order [8,3].
func TestQueryMapReduceFinalContext(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryBackend()
	seedThreeCommunities(t, store)

	rstore := rendezvous.NewMemoryStore()
	require.NoError(t, rstore.Put(ctx, "Who won X?", "COMM-A", rendezvous.PartialAnswer{CommunityUID: "COMM-A", Response: "a", Score: 8}))
	require.NoError(t, rstore.Put(ctx, "Who won X?", "COMM-B", rendezvous.PartialAnswer{CommunityUID: "COMM-B", Response: "b", Score: 3}))
	require.NoError(t, rstore.Put(ctx, "Who won X?", "COMM-C", rendezvous.PartialAnswer{CommunityUID: "COMM-C", Response: "c", Score: 0}))

	cfg := DefaultConfig()
	o := New(store, nil, rstore, nil, cfg, discardLogger())

	doc, err := rstore.Get(ctx, "Who won X?")
	require.NoError(t, err)
	assert.Len(t, doc, 3)

	final := o.finalContextSet(doc)
	require.Len(t, final, 2)
	assert.Equal(t, 8, final[0].score)
	assert.Equal(t, 3, final[1].score)
}

// TestRendezvousTimeout follows scenario 6: with 10 communities and only 5
// workers ever reporting, max_attempts=3, the Orchestrator surfaces Timeout.
// Warm-up and sleep_time are shortened to 10ms so the test finishes well
// under 3s.
func TestRendezvousTimeout(t *testing.T) {
	ctx := context.Background()
	store := graphstore.NewMemoryBackend()
	for i := 0; i < 10; i++ {
		uid := "COMM-" + string(rune('A'+i))
		require.NoError(t, store.StoreCommunity(ctx, &graphmodel.Community{UID: uid, Title: uid}))
	}

	rstore := rendezvous.NewMemoryStore()
	for i := 0; i < 5; i++ {
		uid := "COMM-" + string(rune('A'+i))
		require.NoError(t, rstore.Put(ctx, "slow query", uid, rendezvous.PartialAnswer{CommunityUID: uid, Response: "x", Score: 5}))
	}

	cfg := DefaultConfig()
	cfg.WarmupSleep = 10 * time.Millisecond
	cfg.SleepTime = 10 * time.Millisecond
	cfg.MaxAttempts = 3

	o := New(store, nil, rstore, nil, cfg, discardLogger())

	start := time.Now()
	_, err := o.pollUntilQuorum(ctx, "slow query", 10)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 3*time.Second)
}

func TestFinalContextSetRespectsMaxResponses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxResponses = 1
	o := New(nil, nil, nil, nil, cfg, discardLogger())

	partials := map[string]rendezvous.PartialAnswer{
		"A": {Score: 8},
		"B": {Score: 9},
	}
	final := o.finalContextSet(partials)
	require.Len(t, final, 1)
	assert.Equal(t, 9, final[0].score)
}
