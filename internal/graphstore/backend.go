// Package graphstore persists the knowledge graph: nodes, directed edges,
// and communities, each as a thin jsonb document keyed by a text uid
// (spec.md §4.A). A Backend capability interface decouples callers from the
// concrete engine, so a Postgres-backed deployment and an in-memory test
// double satisfy the same contract.
package graphstore

import (
	"context"

	"github.com/rohankatakam/graphrag/internal/graphmodel"
)

// Backend is the Graph Store's capability surface. Every mutating method
// takes the canonical (post-Canonicalize) uid; callers are responsible for
// canonicalization (invariant I3 lives in graphbuilder, not here).
type Backend interface {
	AddNode(ctx context.Context, node *graphmodel.Node) error
	GetNode(ctx context.Context, uid string) (*graphmodel.Node, error)
	UpdateNode(ctx context.Context, node *graphmodel.Node) error
	RemoveNode(ctx context.Context, uid string) error

	// AddEdge inserts a directed edge row. Callers that want undirected
	// storage (invariant I1) call it twice, once per direction.
	AddEdge(ctx context.Context, edge *graphmodel.Edge) error
	GetEdge(ctx context.Context, source, target string) (*graphmodel.Edge, error)
	UpdateEdge(ctx context.Context, edge *graphmodel.Edge) error
	RemoveEdge(ctx context.Context, source, target string) error

	// BuildGraphView loads every node and edge into memory for the
	// community engine's stabilization and clustering passes.
	BuildGraphView(ctx context.Context) (*graphmodel.GraphView, error)

	ListCommunities(ctx context.Context) ([]*graphmodel.Community, error)
	StoreCommunity(ctx context.Context, community *graphmodel.Community) error
	GetCommunity(ctx context.Context, uid string) (*graphmodel.Community, error)

	// ClearCommunities deletes every stored community, so a rebuild over a
	// changed graph snapshot does not leave stale documents behind whose
	// cluster UIDs no longer correspond to anything the new clustering pass
	// produced (spec.md §3: prior communities are overwritten, not merged).
	ClearCommunities(ctx context.Context) error

	// WithNodeLock runs fn while holding an exclusive per-uid critical
	// section, so concurrent builders merging into the same node
	// serialize their read-modify-write (spec.md §4.A, row-level locking).
	WithNodeLock(ctx context.Context, uid string, fn func(ctx context.Context) error) error

	Close() error
}
