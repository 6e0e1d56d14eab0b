package graphbuilder

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/rohankatakam/graphrag/internal/errors"
	"github.com/rohankatakam/graphrag/internal/graphmodel"
	"github.com/rohankatakam/graphrag/internal/graphstore"
)

// deadLetterQueue is the subset of dlq.Queue's surface the builder needs.
// Declared locally so graphbuilder does not depend on dlq's *sql.DB-backed
// implementation when no dead letter queue is configured.
type deadLetterQueue interface {
	Enqueue(ctx context.Context, documentID, rawRecord string, cause error) error
}

// Builder consumes extractor tuples and merges them into a graphstore.Backend
// idempotently (spec.md §4.B, invariants I1/I3/I4, property P4).
type Builder struct {
	store      graphstore.Backend
	delimiters Delimiters
	logger     *slog.Logger
	deadLetter deadLetterQueue
}

// New constructs a Builder over store using the default extractor
// delimiters.
func New(store graphstore.Backend, logger *slog.Logger) *Builder {
	return &Builder{store: store, delimiters: DefaultDelimiters(), logger: logger}
}

// WithDelimiters overrides the extractor wire-format delimiters.
func (b *Builder) WithDelimiters(d Delimiters) *Builder {
	b.delimiters = d
	return b
}

// WithDeadLetterQueue records every tuple that fails to merge (as opposed to
// fails to parse, which ParseStream already drops) so it can be reviewed and
// retried without re-running the whole ingestion stream.
func (b *Builder) WithDeadLetterQueue(q deadLetterQueue) *Builder {
	b.deadLetter = q
	return b
}

// Stats summarizes one Ingest call for CLI reporting.
type Stats struct {
	TuplesParsed  int
	TuplesSkipped int
	NodesUpserted int
	EdgesUpserted int
}

// Ingest parses raw extractor output and merges every recognized tuple into
// the store. A record that fails to parse as either shape is dropped by
// ParseStream and not counted in Stats; a tuple that fails to merge is
// skipped and counted in TuplesSkipped. Neither aborts the stream (§7
// ParseError recovery policy).
func (b *Builder) Ingest(ctx context.Context, raw string, docID string) (Stats, error) {
	tuples := ParseStream(raw, b.delimiters)

	stats := Stats{TuplesParsed: len(tuples)}
	for _, t := range tuples {
		var err error
		switch t.Kind {
		case TupleEntity:
			err = b.mergeNode(ctx, t, docID)
			if err == nil {
				stats.NodesUpserted++
			}
		case TupleRelationship:
			err = b.mergeEdge(ctx, t, docID)
			if err == nil {
				stats.EdgesUpserted++
			}
		}
		if err != nil {
			b.logger.Warn("skipping tuple after merge failure",
				"kind", t.Kind, "error", err)
			stats.TuplesSkipped++
			if b.deadLetter != nil {
				if dlqErr := b.deadLetter.Enqueue(ctx, docID, fmt.Sprintf("%+v", t), err); dlqErr != nil {
					b.logger.Error("failed to record dead letter for skipped tuple", "error", dlqErr)
				}
			}
		}
	}
	return stats, nil
}

// mergeNode merges a single entity tuple under the node's per-uid critical
// section, so concurrent ingests of the same uid serialize their
// read-modify-write (spec.md §4.A concurrency contract).
func (b *Builder) mergeNode(ctx context.Context, t Tuple, docID string) error {
	return b.store.WithNodeLock(ctx, t.Name, func(ctx context.Context) error {
		existing, err := b.store.GetNode(ctx, t.Name)
		if apperrors.IsNotFound(err) {
			return b.store.AddNode(ctx, &graphmodel.Node{
				UID:          t.Name,
				Type:         t.Type,
				Description:  t.Description,
				SourceDocIDs: docIDs(docID),
			})
		}
		if err != nil {
			return err
		}

		merged := &graphmodel.Node{
			UID:          existing.UID,
			Type:         existing.Type,
			Description:  graphmodel.MergeDescription(existing.Description, t.Description),
			SourceDocIDs: mergeStringSet(existing.SourceDocIDs, docIDs(docID)),
			EdgesTo:      existing.EdgesTo,
			EdgesFrom:    existing.EdgesFrom,
			CommunityUID: existing.CommunityUID,
			Embedding:    existing.Embedding,
		}
		if merged.Type == "" {
			merged.Type = t.Type
		}
		return b.store.UpdateNode(ctx, merged)
	})
}

// mergeEdge auto-vivifies endpoint nodes that haven't been seen yet (the
// extractor may emit a relationship before one of its entities), then merges
// the edge document and repairs both endpoints' adjacency sets (invariant
// I1). Weight accumulates by summation on merge (SPEC_FULL.md §9, Open
// Question a).
func (b *Builder) mergeEdge(ctx context.Context, t Tuple, docID string) error {
	if err := b.ensureNode(ctx, t.Source); err != nil {
		return err
	}
	if err := b.ensureNode(ctx, t.Target); err != nil {
		return err
	}

	existing, err := b.store.GetEdge(ctx, t.Source, t.Target)
	switch {
	case apperrors.IsNotFound(err):
		if err := b.store.AddEdge(ctx, &graphmodel.Edge{
			Source:       t.Source,
			Target:       t.Target,
			Description:  t.Description,
			Weight:       t.Weight,
			SourceDocIDs: docIDs(docID),
		}); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		merged := &graphmodel.Edge{
			Source:       existing.Source,
			Target:       existing.Target,
			Description:  graphmodel.MergeDescription(existing.Description, t.Description),
			Weight:       existing.Weight + t.Weight,
			SourceDocIDs: mergeStringSet(existing.SourceDocIDs, docIDs(docID)),
		}
		if err := b.store.UpdateEdge(ctx, merged); err != nil {
			return err
		}
	}

	return b.repairAdjacency(ctx, t.Source, t.Target)
}

func (b *Builder) ensureNode(ctx context.Context, uid string) error {
	return b.store.WithNodeLock(ctx, uid, func(ctx context.Context) error {
		_, err := b.store.GetNode(ctx, uid)
		if apperrors.IsNotFound(err) {
			return b.store.AddNode(ctx, &graphmodel.Node{UID: uid})
		}
		return err
	})
}

// repairAdjacency ensures target ∈ source.edges_to and source ∈
// target.edges_from (invariant I1), idempotently.
func (b *Builder) repairAdjacency(ctx context.Context, source, target string) error {
	if err := b.store.WithNodeLock(ctx, source, func(ctx context.Context) error {
		n, err := b.store.GetNode(ctx, source)
		if err != nil {
			return err
		}
		n.EdgesTo = addToSet(n.EdgesTo, target)
		return b.store.UpdateNode(ctx, n)
	}); err != nil {
		return err
	}

	return b.store.WithNodeLock(ctx, target, func(ctx context.Context) error {
		n, err := b.store.GetNode(ctx, target)
		if err != nil {
			return err
		}
		n.EdgesFrom = addToSet(n.EdgesFrom, source)
		return b.store.UpdateNode(ctx, n)
	})
}

func docIDs(docID string) []string {
	if docID == "" {
		return nil
	}
	return []string{docID}
}

func addToSet(set []string, v string) []string {
	for _, s := range set {
		if s == v {
			return set
		}
	}
	return append(set, v)
}

func mergeStringSet(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
