package community

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rohankatakam/graphrag/internal/graphmodel"
	"github.com/rohankatakam/graphrag/internal/graphstore"
)

// Engine runs the full community pipeline: stabilize, cluster, summarize,
// store (spec.md §4.C).
type Engine struct {
	store          graphstore.Backend
	summarizer     *Summarizer
	maxClusterSize int
	seed           uint64
	logger         *slog.Logger
}

// NewEngine constructs an Engine. maxClusterSize and seed default to
// spec.md's documented defaults (10 and 0xDEADBEEF) when zero.
func NewEngine(store graphstore.Backend, summarizer *Summarizer, maxClusterSize int, seed uint64, logger *slog.Logger) *Engine {
	if maxClusterSize <= 0 {
		maxClusterSize = 10
	}
	if seed == 0 {
		seed = 0xDEADBEEF
	}
	return &Engine{store: store, summarizer: summarizer, maxClusterSize: maxClusterSize, seed: seed, logger: logger}
}

// Rebuild recomputes every community wholesale for the current graph
// snapshot, overwriting prior communities (§3 Lifecycles: "recomputed
// wholesale ... on demand; prior communities for the same graph snapshot are
// overwritten").
func (e *Engine) Rebuild(ctx context.Context) (int, error) {
	view, err := e.store.BuildGraphView(ctx)
	if err != nil {
		return 0, err
	}

	stabilized := Stabilize(view)
	levels := Cluster(stabilized, e.maxClusterSize, e.seed)

	nodeByUID := make(map[string]*graphmodel.Node, len(stabilized.Nodes))
	for _, n := range stabilized.Nodes {
		nodeByUID[n.UID] = n
	}

	if err := e.store.ClearCommunities(ctx); err != nil {
		return 0, fmt.Errorf("clear prior communities: %w", err)
	}

	count := 0
	for level, assignment := range levels {
		membersByCluster := make(map[string][]string)
		for uid, cluster := range assignment {
			membersByCluster[cluster] = append(membersByCluster[cluster], uid)
		}

		for cluster, uids := range membersByCluster {
			members := make([]*graphmodel.Node, 0, len(uids))
			memberSet := make(map[string]struct{}, len(uids))
			for _, uid := range uids {
				memberSet[uid] = struct{}{}
				if n, ok := nodeByUID[uid]; ok {
					members = append(members, n)
				}
			}

			var incident []*graphmodel.Edge
			for _, ed := range stabilized.Edges {
				_, sourceIn := memberSet[ed.Source]
				_, targetIn := memberSet[ed.Target]
				if sourceIn || targetIn {
					incident = append(incident, ed)
				}
			}

			communityUID := fmt.Sprintf("COMM-L%d-%s", level, cluster)
			report := e.summarizer.Summarize(ctx, communityUID, level, members, incident)

			if err := e.store.StoreCommunity(ctx, report); err != nil {
				e.logger.Error("failed to store community", "community_uid", communityUID, "error", err)
				continue
			}
			count++
		}
	}

	return count, nil
}
