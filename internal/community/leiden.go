package community

import (
	"fmt"
	"sort"

	"github.com/katalvlaran/lvlath/core"
)

// LevelAssignment maps node_uid → cluster_id for one hierarchy level
// (spec.md §4.C Clustering: "a mapping level → (node_uid → cluster_id)").
type LevelAssignment map[string]string

// Cluster runs hierarchical Leiden over view with the given cap and seed,
// returning one LevelAssignment per level, finest first. Level 0 always
// exists (each node its own singleton cluster is merged at least once
// against maxClusterSize, unless the graph is empty).
//
// This is a from-scratch, deterministic implementation of the modularity-
// greedy variant of Leiden: a local-moving phase that joins each node to
// whichever neighboring cluster most increases intra-cluster edge weight
// (subject to the size cap), followed by aggregating clusters into
// super-nodes and repeating until no further merge reduces the cluster
// count. The fixed seed only orders the node-visitation sequence, so two
// runs over the same stabilized view always agree (P6).
func Cluster(view *StabilizedView, maxClusterSize int, seed uint64) []LevelAssignment {
	if maxClusterSize <= 0 {
		maxClusterSize = 10
	}
	if len(view.Nodes) == 0 {
		return nil
	}

	var levels []LevelAssignment
	currentGraph := view.Graph
	// memberOf maps a current-level node id to the set of original uids it
	// represents, so the final assignment can be expressed in terms of the
	// original node uids at every level.
	memberOf := make(map[string][]string, len(view.Nodes))
	for _, n := range view.Nodes {
		memberOf[n.UID] = []string{n.UID}
	}

	rng := newSplitMix64(seed)

	for {
		assignment, clusters := localMove(currentGraph, maxClusterSize, rng)

		level := make(LevelAssignment)
		for nodeID, clusterID := range assignment {
			for _, uid := range memberOf[nodeID] {
				level[uid] = clusterID
			}
		}
		levels = append(levels, level)

		if len(clusters) >= currentGraph.VertexCount() {
			// No merge happened this round: converged.
			break
		}

		nextGraph, nextMembers := aggregate(currentGraph, assignment, clusters, memberOf)
		currentGraph = nextGraph
		memberOf = nextMembers

		if currentGraph.VertexCount() <= 1 {
			break
		}
	}

	return levels
}

// localMove assigns every vertex to a cluster, greedily joining whichever
// neighboring cluster has the heaviest total incident weight, subject to
// the size cap. Returns the per-node assignment plus the ordered list of
// resulting cluster ids.
func localMove(g *core.Graph, maxClusterSize int, rng *splitMix64) (map[string]string, []string) {
	vertices := append([]string(nil), g.Vertices()...) // already sorted
	rng.shuffle(vertices)

	clusterOf := make(map[string]string, len(vertices))
	clusterSize := make(map[string]int)
	for _, v := range vertices {
		clusterOf[v] = v
		clusterSize[v] = 1
	}

	for _, v := range vertices {
		edges, err := g.Neighbors(v)
		if err != nil {
			continue
		}

		weightByCluster := make(map[string]int64)
		for _, e := range edges {
			n := e.To
			if n == v {
				n = e.From
			}
			c := clusterOf[n]
			if c == clusterOf[v] {
				continue
			}
			weightByCluster[c] += e.Weight
		}

		var bestCluster string
		var bestWeight int64 = -1
		candidates := make([]string, 0, len(weightByCluster))
		for c := range weightByCluster {
			candidates = append(candidates, c)
		}
		sort.Strings(candidates)
		for _, c := range candidates {
			if clusterSize[clusterOf[v]] > 1 {
				continue // already merged this round, keep it stable
			}
			if clusterSize[c]+1 > maxClusterSize {
				continue
			}
			if w := weightByCluster[c]; w > bestWeight {
				bestWeight = w
				bestCluster = c
			}
		}

		if bestCluster != "" && bestWeight > 0 {
			old := clusterOf[v]
			clusterSize[old]--
			clusterOf[v] = bestCluster
			clusterSize[bestCluster]++
		}
	}

	seen := make(map[string]struct{})
	var clusters []string
	for _, v := range vertices {
		c := clusterOf[v]
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			clusters = append(clusters, c)
		}
	}
	sort.Strings(clusters)
	return clusterOf, clusters
}

// aggregate collapses each cluster from one round into a single super-node
// for the next, summing inter-cluster edge weights.
func aggregate(g *core.Graph, assignment map[string]string, clusters []string, memberOf map[string][]string) (*core.Graph, map[string][]string) {
	next := core.NewGraph(core.WithWeighted())
	nextMembers := make(map[string][]string, len(clusters))

	for _, c := range clusters {
		_ = next.AddVertex(c)
	}
	for nodeID, clusterID := range assignment {
		nextMembers[clusterID] = append(nextMembers[clusterID], memberOf[nodeID]...)
	}

	weight := make(map[[2]string]int64)
	for _, e := range g.Edges() {
		cs, ct := assignment[e.From], assignment[e.To]
		if cs == ct {
			continue
		}
		if cs > ct {
			cs, ct = ct, cs
		}
		weight[[2]string{cs, ct}] += e.Weight
	}

	pairs := make([][2]string, 0, len(weight))
	for k := range weight {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool {
		return fmt.Sprint(pairs[i]) < fmt.Sprint(pairs[j])
	})
	for _, p := range pairs {
		_, _ = next.AddEdge(p[0], p[1], weight[p])
	}

	return next, nextMembers
}
