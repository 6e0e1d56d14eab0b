package graphbuilder

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

func testBuilder() (*Builder, *graphstore.MemoryBackend) {
	store := graphstore.NewMemoryBackend()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, logger), store
}

const scenario1Stream = `("entity"<|>"Alice"<|>"person"<|>"Engineer.")##("entity"<|>"Acme"<|>"organization"<|>"Co.")##("relationship"<|>"Alice"<|>"Acme"<|>"Works at."<|>7)<|COMPLETE|>`

func TestSingleRecordIngestion(t *testing.T) {
	b, store := testBuilder()
	ctx := context.Background()

	_, err := b.Ingest(ctx, scenario1Stream, "doc-1")
	require.NoError(t, err)

	alice, err := store.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "PERSON", alice.Type)
	assert.Equal(t, "Engineer.", alice.Description)
	assert.Contains(t, alice.EdgesTo, "ACME")

	acme, err := store.GetNode(ctx, "ACME")
	require.NoError(t, err)
	assert.Contains(t, acme.EdgesFrom, "ALICE")

	edge, err := store.GetEdge(ctx, "ALICE", "ACME")
	require.NoError(t, err)
	assert.Equal(t, "Works at.", edge.Description)
	assert.Equal(t, 7.0, edge.Weight)
}

func TestReingestIdempotence(t *testing.T) {
	b, store := testBuilder()
	ctx := context.Background()

	_, err := b.Ingest(ctx, scenario1Stream, "doc-1")
	require.NoError(t, err)
	before, err := store.GetNode(ctx, "ALICE")
	require.NoError(t, err)

	_, err = b.Ingest(ctx, scenario1Stream, "doc-1")
	require.NoError(t, err)
	after, err := store.GetNode(ctx, "ALICE")
	require.NoError(t, err)

	assert.Equal(t, before.Description, after.Description)
	assert.ElementsMatch(t, before.EdgesTo, after.EdgesTo)
	assert.ElementsMatch(t, before.SourceDocIDs, after.SourceDocIDs)
}

func TestDescriptionMerge(t *testing.T) {
	b, store := testBuilder()
	ctx := context.Background()

	_, err := b.Ingest(ctx, scenario1Stream, "doc-1")
	require.NoError(t, err)

	_, err = b.Ingest(ctx, `("entity"<|>"Alice"<|>"person"<|>"Works in Paris.")<|COMPLETE|>`, "doc-2")
	require.NoError(t, err)

	alice, err := store.GetNode(ctx, "ALICE")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Engineer.", "Works in Paris."}, alice.DescriptionFragments())
}

func TestParseStreamSkipsMalformedRecords(t *testing.T) {
	tuples := ParseStream(`("entity"<|>"Alice")##("entity"<|>"Bob"<|>"person"<|>"X.")<|COMPLETE|>`, DefaultDelimiters())
	require.Len(t, tuples, 1)
	assert.Equal(t, "BOB", tuples[0].Name)
}

func TestRelationshipWeightDefaultsOnParseFailure(t *testing.T) {
	tuples := ParseStream(`("relationship"<|>"A"<|>"B"<|>"desc"<|>"not-a-number")<|COMPLETE|>`, DefaultDelimiters())
	require.Len(t, tuples, 1)
	assert.Equal(t, 1.0, tuples[0].Weight)
}

func TestFieldCanonicalizationMatchesGraphmodel(t *testing.T) {
	raw := "  &amp;Alice\x01"
	stream := "(\"entity\"<|>\"" + raw + "\"<|>\"person\"<|>\"bio\")<|COMPLETE|>"

	tuples := ParseStream(stream, DefaultDelimiters())
	require.Len(t, tuples, 1)
	assert.Equal(t, graphmodel.Canonicalize(raw), tuples[0].Name)
}
