// Package graphmodel defines the node, edge, and community shapes shared by
// the graph store, builder, community engine, orchestrator, and map worker.
package graphmodel

import "strings"

// Node is a single entity in the knowledge graph: a canonical uid, a type
// tag, and a description built by merging text fragments from every source
// document that mentioned it.
type Node struct {
	UID           string   `json:"uid"`
	Type          string   `json:"type"`
	Description   string   `json:"description"`
	SourceDocIDs  []string `json:"source_doc_ids"`
	EdgesTo       []string `json:"edges_to"`
	EdgesFrom     []string `json:"edges_from"`
	CommunityUID  string   `json:"community_uid,omitempty"`
	Embedding     []float32 `json:"embedding,omitempty"`
}

// Degree returns the node's undirected degree: the size of the union of its
// outgoing and incoming adjacency.
func (n *Node) Degree() int {
	seen := make(map[string]struct{}, len(n.EdgesTo)+len(n.EdgesFrom))
	for _, t := range n.EdgesTo {
		seen[t] = struct{}{}
	}
	for _, f := range n.EdgesFrom {
		seen[f] = struct{}{}
	}
	return len(seen)
}

// DescriptionFragments splits a merged description back into its
// newline-delimited source fragments (invariant I4).
func (n *Node) DescriptionFragments() []string {
	if n.Description == "" {
		return nil
	}
	return strings.Split(n.Description, "\n")
}

// Edge is a relationship between two canonical node uids. Weight accumulates
// by summation across merges (SPEC_FULL.md §9, Open Question a).
type Edge struct {
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	Description string   `json:"description"`
	Weight      float64  `json:"weight"`
	SourceDocIDs []string `json:"source_doc_ids"`
}

// UID returns the edge's storage key. Edges are stored directed, one row per
// (source, target) pair; a caller that wants undirected adjacency inserts
// the mirrored pair (invariant I1).
func (e *Edge) UID() string {
	return e.Source + "_to_" + e.Target
}

func (e *Edge) DescriptionFragments() []string {
	if e.Description == "" {
		return nil
	}
	return strings.Split(e.Description, "\n")
}

// Finding is one bullet of a community's LLM-generated report.
type Finding struct {
	Summary     string `json:"summary"`
	Explanation string `json:"explanation"`
}

// Community is a hierarchical cluster of nodes plus its generated report.
// Degraded is set when summarization fell back after a Completion failure
// (spec.md §4.C, scenario 4): the community is still stored and queryable,
// just with an empty report body.
type Community struct {
	UID               string    `json:"uid"`
	Level             int       `json:"level"`
	ParentUID         string    `json:"parent_uid,omitempty"`
	MemberNodeUIDs    []string  `json:"member_node_uids"`
	Title             string    `json:"title"`
	Summary           string    `json:"summary"`
	Rating            float64   `json:"rating"`
	RatingExplanation string    `json:"rating_explanation"`
	Findings          []Finding `json:"findings"`
	Degraded          bool      `json:"degraded"`
}

// GraphView is a read-only, in-memory snapshot of the whole graph, built by
// Backend.BuildGraphView for the community engine's stabilization and
// clustering passes.
type GraphView struct {
	Nodes map[string]*Node
	Edges []*Edge
}

// Neighbors returns the canonical uids adjacent to uid, directed or not.
func (v *GraphView) Neighbors(uid string) []string {
	n, ok := v.Nodes[uid]
	if !ok {
		return nil
	}
	seen := make(map[string]struct{}, len(n.EdgesTo)+len(n.EdgesFrom))
	out := make([]string, 0, len(n.EdgesTo)+len(n.EdgesFrom))
	for _, t := range n.EdgesTo {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, f := range n.EdgesFrom {
		if _, ok := seen[f]; !ok {
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
