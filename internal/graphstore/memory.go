package graphstore

import (
	"context"
	"sync"

	apperrors "github.com/rohankatakam/graphrag/internal/errors"
	"github.com/rohankatakam/graphrag/internal/graphmodel"
)

type edgeKey struct {
	source string
	target string
}

// MemoryBackend is an in-process, mutex-guarded Backend used by unit tests
// and by `graphrag` runs configured with store backend "memory". It
// satisfies the same contract as the Postgres backend so the builder,
// community engine, and orchestrator can be exercised without a live
// database.
type MemoryBackend struct {
	mu          sync.RWMutex
	nodes       map[string]*graphmodel.Node
	edges       map[edgeKey]*graphmodel.Edge
	communities map[string]*graphmodel.Community

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewMemoryBackend constructs an empty in-memory graph store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		nodes:       make(map[string]*graphmodel.Node),
		edges:       make(map[edgeKey]*graphmodel.Edge),
		communities: make(map[string]*graphmodel.Community),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (b *MemoryBackend) nodeLock(uid string) *sync.Mutex {
	b.locksMu.Lock()
	defer b.locksMu.Unlock()
	l, ok := b.locks[uid]
	if !ok {
		l = &sync.Mutex{}
		b.locks[uid] = l
	}
	return l
}

// WithNodeLock serializes concurrent read-modify-writes against uid.
func (b *MemoryBackend) WithNodeLock(ctx context.Context, uid string, fn func(ctx context.Context) error) error {
	l := b.nodeLock(uid)
	l.Lock()
	defer l.Unlock()
	return fn(ctx)
}

func cloneNode(n *graphmodel.Node) *graphmodel.Node {
	if n == nil {
		return nil
	}
	clone := *n
	clone.SourceDocIDs = append([]string(nil), n.SourceDocIDs...)
	clone.EdgesTo = append([]string(nil), n.EdgesTo...)
	clone.EdgesFrom = append([]string(nil), n.EdgesFrom...)
	clone.Embedding = append([]float32(nil), n.Embedding...)
	return &clone
}

func cloneEdge(e *graphmodel.Edge) *graphmodel.Edge {
	if e == nil {
		return nil
	}
	clone := *e
	clone.SourceDocIDs = append([]string(nil), e.SourceDocIDs...)
	return &clone
}

func cloneCommunity(c *graphmodel.Community) *graphmodel.Community {
	if c == nil {
		return nil
	}
	clone := *c
	clone.MemberNodeUIDs = append([]string(nil), c.MemberNodeUIDs...)
	clone.Findings = append([]graphmodel.Finding(nil), c.Findings...)
	return &clone
}

func (b *MemoryBackend) AddNode(ctx context.Context, node *graphmodel.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.nodes[node.UID]; ok {
		return apperrors.AlreadyExistsf("node %q already exists", node.UID)
	}
	b.nodes[node.UID] = cloneNode(node)
	return nil
}

func (b *MemoryBackend) GetNode(ctx context.Context, uid string) (*graphmodel.Node, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[uid]
	if !ok {
		return nil, apperrors.NotFoundf("node %q not found", uid)
	}
	return cloneNode(n), nil
}

func (b *MemoryBackend) UpdateNode(ctx context.Context, node *graphmodel.Node) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.nodes[node.UID]; !ok {
		return apperrors.NotFoundf("node %q not found", node.UID)
	}
	b.nodes[node.UID] = cloneNode(node)
	return nil
}

func (b *MemoryBackend) RemoveNode(ctx context.Context, uid string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.nodes[uid]; !ok {
		return apperrors.NotFoundf("node %q not found", uid)
	}
	delete(b.nodes, uid)
	for k := range b.edges {
		if k.source == uid || k.target == uid {
			delete(b.edges, k)
		}
	}
	return nil
}

func (b *MemoryBackend) AddEdge(ctx context.Context, edge *graphmodel.Edge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := edgeKey{edge.Source, edge.Target}
	if _, ok := b.edges[key]; ok {
		return apperrors.AlreadyExistsf("edge %s->%s already exists", edge.Source, edge.Target)
	}
	b.edges[key] = cloneEdge(edge)
	return nil
}

func (b *MemoryBackend) GetEdge(ctx context.Context, source, target string) (*graphmodel.Edge, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.edges[edgeKey{source, target}]
	if !ok {
		return nil, apperrors.NotFoundf("edge %s->%s not found", source, target)
	}
	return cloneEdge(e), nil
}

func (b *MemoryBackend) UpdateEdge(ctx context.Context, edge *graphmodel.Edge) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := edgeKey{edge.Source, edge.Target}
	if _, ok := b.edges[key]; !ok {
		return apperrors.NotFoundf("edge %s->%s not found", edge.Source, edge.Target)
	}
	b.edges[key] = cloneEdge(edge)
	return nil
}

func (b *MemoryBackend) RemoveEdge(ctx context.Context, source, target string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := edgeKey{source, target}
	if _, ok := b.edges[key]; !ok {
		return apperrors.NotFoundf("edge %s->%s not found", source, target)
	}
	delete(b.edges, key)
	return nil
}

func (b *MemoryBackend) BuildGraphView(ctx context.Context) (*graphmodel.GraphView, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	view := &graphmodel.GraphView{
		Nodes: make(map[string]*graphmodel.Node, len(b.nodes)),
		Edges: make([]*graphmodel.Edge, 0, len(b.edges)),
	}
	for uid, n := range b.nodes {
		view.Nodes[uid] = cloneNode(n)
	}
	for _, e := range b.edges {
		view.Edges = append(view.Edges, cloneEdge(e))
	}
	return view, nil
}

func (b *MemoryBackend) ListCommunities(ctx context.Context) ([]*graphmodel.Community, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*graphmodel.Community, 0, len(b.communities))
	for _, c := range b.communities {
		out = append(out, cloneCommunity(c))
	}
	return out, nil
}

func (b *MemoryBackend) StoreCommunity(ctx context.Context, community *graphmodel.Community) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.communities[community.UID] = cloneCommunity(community)
	return nil
}

func (b *MemoryBackend) GetCommunity(ctx context.Context, uid string) (*graphmodel.Community, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.communities[uid]
	if !ok {
		return nil, apperrors.NotFoundf("community %q not found", uid)
	}
	return cloneCommunity(c), nil
}

func (b *MemoryBackend) ClearCommunities(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.communities = make(map[string]*graphmodel.Community)
	return nil
}

func (b *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
