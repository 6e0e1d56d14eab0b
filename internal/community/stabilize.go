// Package community stabilizes a graph snapshot, clusters it with
// hierarchical Leiden, and summarizes each resulting cluster via the
// Completion abstraction (spec.md §4.C).
package community

import (
	"sort"

	"github.com/katalvlaran/lvlath/core"
	"github.com/rohankatakam/graphrag/internal/graphmodel"
)

// StabilizedView is the deterministic graph snapshot hierarchical Leiden
// runs over: the largest connected component, canonical ids, nodes and
// edges inserted in sorted order (spec.md §4.C Stabilization, P6).
type StabilizedView struct {
	Graph *core.Graph
	Nodes []*graphmodel.Node // sorted by uid, restricted to the largest component
	Edges []*graphmodel.Edge // sorted by "source -> target", endpoints ordered source <= target
}

// Stabilize reduces view to its largest connected component and rebuilds it
// as an undirected lvlath graph with deterministic insertion order, so two
// calls against the same logical graph produce identical iteration order
// (property P6) regardless of how the nodes/edges were originally written.
func Stabilize(view *graphmodel.GraphView) *StabilizedView {
	component := largestConnectedComponent(view)

	nodeUIDs := make([]string, 0, len(component))
	for uid := range component {
		nodeUIDs = append(nodeUIDs, uid)
	}
	sort.Strings(nodeUIDs)

	type orderedEdge struct {
		source, target string
		edge            *graphmodel.Edge
	}
	seen := make(map[string]struct{})
	var orderedEdges []orderedEdge
	for _, e := range view.Edges {
		if _, ok := component[e.Source]; !ok {
			continue
		}
		if _, ok := component[e.Target]; !ok {
			continue
		}
		s, t := e.Source, e.Target
		if s > t {
			s, t = t, s
		}
		key := s + " -> " + t
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		orderedEdges = append(orderedEdges, orderedEdge{source: s, target: t, edge: e})
	}
	sort.Slice(orderedEdges, func(i, j int) bool {
		return orderedEdges[i].source+" -> "+orderedEdges[i].target <
			orderedEdges[j].source+" -> "+orderedEdges[j].target
	})

	g := core.NewGraph(core.WithWeighted())
	result := &StabilizedView{Graph: g}
	for _, uid := range nodeUIDs {
		_ = g.AddVertex(uid)
		result.Nodes = append(result.Nodes, view.Nodes[uid])
	}
	for _, oe := range orderedEdges {
		if _, err := g.AddEdge(oe.source, oe.target, int64(oe.edge.Weight)); err != nil {
			continue
		}
		result.Edges = append(result.Edges, oe.edge)
	}
	return result
}

// largestConnectedComponent treats adjacency as undirected (SPEC_FULL.md §9,
// Open Question b) and returns the uid set of the largest component via
// plain BFS over graphmodel.GraphView.Neighbors.
func largestConnectedComponent(view *graphmodel.GraphView) map[string]struct{} {
	visited := make(map[string]struct{}, len(view.Nodes))
	var best map[string]struct{}

	uids := make([]string, 0, len(view.Nodes))
	for uid := range view.Nodes {
		uids = append(uids, uid)
	}
	sort.Strings(uids)

	for _, start := range uids {
		if _, ok := visited[start]; ok {
			continue
		}
		component := bfsComponent(view, start, visited)
		if best == nil || len(component) > len(best) {
			best = component
		}
	}
	if best == nil {
		return map[string]struct{}{}
	}
	return best
}

func bfsComponent(view *graphmodel.GraphView, start string, visited map[string]struct{}) map[string]struct{} {
	component := map[string]struct{}{start: {}}
	visited[start] = struct{}{}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range view.Neighbors(cur) {
			if _, ok := visited[n]; ok {
				continue
			}
			if _, ok := view.Nodes[n]; !ok {
				continue
			}
			visited[n] = struct{}{}
			component[n] = struct{}{}
			queue = append(queue, n)
		}
	}
	return component
}
