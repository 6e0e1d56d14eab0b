// Package orchestrator implements the Query Orchestrator (spec.md §4.D):
// it fans a user query out to every community via the message bus, polls
// the Rendezvous Store for a quorum of partial answers, and reduces the
// surviving context set into one final answer.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rohankatakam/graphrag/internal/bus"
	apperrors "github.com/rohankatakam/graphrag/internal/errors"
	"github.com/rohankatakam/graphrag/internal/graphmodel"
	"github.com/rohankatakam/graphrag/internal/graphstore"
	"github.com/rohankatakam/graphrag/internal/llm"
	"github.com/rohankatakam/graphrag/internal/rendezvous"
)

// maxConcurrentDispatch bounds how many WorkItems are published to the bus
// at once, mirroring the teacher's ingestion orchestrator's errgroup fan-out.
const maxConcurrentDispatch = 8

// Config controls rendezvous polling and final context-set selection
// (spec.md §4.D steps 3-4, defaults per config.QueryConfig).
type Config struct {
	Topic               string
	SleepTime           time.Duration
	WarmupSleep         time.Duration
	MaxAttempts         int
	CompletionThreshold float64
	ScoreThreshold      int
	MaxResponses        int
}

// DefaultConfig mirrors config.Default().Query.
func DefaultConfig() Config {
	return Config{
		Topic:               "graphrag.community-query",
		SleepTime:           10 * time.Second,
		WarmupSleep:         5 * time.Second,
		MaxAttempts:         6,
		CompletionThreshold: 0.9,
		ScoreThreshold:      0,
		MaxResponses:        10,
	}
}

// Orchestrator answers a user query by mapping it over every known
// community and reducing the surviving partial answers.
type Orchestrator struct {
	store      graphstore.Backend
	bus        bus.MessageBus
	rendezvous rendezvous.Store
	completion *llm.Client
	cfg        Config
	logger     *slog.Logger
}

func New(store graphstore.Backend, b bus.MessageBus, r rendezvous.Store, completion *llm.Client, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{store: store, bus: b, rendezvous: r, completion: completion, cfg: cfg, logger: logger}
}

// scoredCommunity pairs a rendezvous partial answer with its originating
// community uid, for sorting into the final context set.
type scoredCommunity struct {
	uid      string
	response string
	score    int
}

// Answer implements spec.md §4.D's 7-step procedure.
func (o *Orchestrator) Answer(ctx context.Context, userQuery string) (string, error) {
	communities, err := o.store.ListCommunities(ctx)
	if err != nil {
		return "", err
	}
	if len(communities) == 0 {
		return "", apperrors.NotFoundf("no communities available to answer query")
	}

	if err := o.dispatch(ctx, userQuery, communities); err != nil {
		return "", err
	}

	partials, err := o.pollUntilQuorum(ctx, userQuery, len(communities))
	if err != nil {
		return "", err
	}

	final := o.finalContextSet(partials)
	if len(final) == 0 {
		return "", apperrors.NotFoundf("no community scored above threshold for query %q", userQuery)
	}

	materialized, err := o.materialize(ctx, final)
	if err != nil {
		return "", err
	}

	return o.reduce(ctx, userQuery, materialized)
}

// dispatch enqueues one WorkItem per community, fire-and-forget (spec.md
// §4.D step 2). Publishes run concurrently, bounded by maxConcurrentDispatch,
// since each is an independent bus round trip.
func (o *Orchestrator) dispatch(ctx context.Context, userQuery string, communities []*graphmodel.Community) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentDispatch)

	for _, c := range communities {
		c := c
		g.Go(func() error {
			payload, err := json.Marshal(c)
			if err != nil {
				o.logger.Warn("failed to marshal community for dispatch, skipping", "community_uid", c.UID, "error", err)
				return nil
			}

			item := bus.WorkItem{CommunityReport: payload, UserQuery: userQuery}
			body, err := json.Marshal(item)
			if err != nil {
				o.logger.Warn("failed to marshal work item, skipping", "community_uid", c.UID, "error", err)
				return nil
			}

			if _, err := o.bus.Publish(gctx, o.cfg.Topic, body); err != nil {
				return apperrors.TransientUpstreamErrf(err, "failed to publish work item for community %s", c.UID)
			}
			return nil
		})
	}

	return g.Wait()
}

// pollUntilQuorum polls the Rendezvous Store until the partial-answer map
// reaches ceil(completion_threshold * total), or fails with Timeout after
// max_attempts (spec.md §4.D step 3).
func (o *Orchestrator) pollUntilQuorum(ctx context.Context, userQuery string, total int) (map[string]rendezvous.PartialAnswer, error) {
	quorum := int(math.Ceil(o.cfg.CompletionThreshold * float64(total)))

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(o.cfg.WarmupSleep):
	}

	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		doc, err := o.rendezvous.Get(ctx, userQuery)
		if err != nil {
			return nil, err
		}
		if len(doc) >= quorum {
			return doc, nil
		}

		o.logger.Debug("rendezvous poll below quorum", "query", userQuery, "have", len(doc), "need", quorum, "attempt", attempt)

		if attempt == o.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(o.cfg.SleepTime):
		}
	}

	return nil, apperrors.TimeoutErrf("rendezvous did not reach quorum (%d/%d) for query %q within %d attempts", quorum, total, userQuery, o.cfg.MaxAttempts)
}

// finalContextSet filters by score > threshold, sorts descending by score,
// and truncates to max_responses (spec.md §4.D step 4, property P8).
func (o *Orchestrator) finalContextSet(partials map[string]rendezvous.PartialAnswer) []scoredCommunity {
	filtered := make([]scoredCommunity, 0, len(partials))
	for uid, pa := range partials {
		if pa.Score <= o.cfg.ScoreThreshold {
			continue
		}
		filtered = append(filtered, scoredCommunity{uid: uid, response: pa.Response, score: pa.Score})
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].score != filtered[j].score {
			return filtered[i].score > filtered[j].score
		}
		return filtered[i].uid < filtered[j].uid
	})

	if len(filtered) > o.cfg.MaxResponses {
		filtered = filtered[:o.cfg.MaxResponses]
	}
	return filtered
}

// materialize loads the full Community record for each item in F (spec.md
// §4.D step 5), preserving F's score order.
func (o *Orchestrator) materialize(ctx context.Context, final []scoredCommunity) ([]*graphmodel.Community, error) {
	out := make([]*graphmodel.Community, 0, len(final))
	for _, sc := range final {
		c, err := o.store.GetCommunity(ctx, sc.uid)
		if err != nil {
			o.logger.Warn("community disappeared between scoring and materialization, skipping", "community_uid", sc.uid, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

const reduceSystemPrompt = `You synthesize a final answer to a user's question from a set of scored community reports retrieved from a knowledge graph. Write an academic-style, multi-paragraph answer grounded only in the provided reports.`

// reduce submits the final reduce completion (spec.md §4.D steps 6-7).
func (o *Orchestrator) reduce(ctx context.Context, userQuery string, communities []*graphmodel.Community) (string, error) {
	prompt := buildReducePrompt(userQuery, communities)

	if o.completion == nil || !o.completion.IsEnabled() {
		return "", apperrors.TransientUpstreamErrf(fmt.Errorf("completion client disabled"), "cannot reduce final answer for query %q", userQuery)
	}

	resp, err := o.completion.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: reduceSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    1500,
		Temperature:  0.1,
	})
	if err != nil {
		return "", apperrors.TransientUpstreamErrf(err, "reduce completion failed for query %q", userQuery)
	}
	return resp.Content, nil
}

func buildReducePrompt(userQuery string, communities []*graphmodel.Community) string {
	s := fmt.Sprintf("Question: %s\n\nCommunity reports, most relevant first:\n", userQuery)
	for i, c := range communities {
		s += fmt.Sprintf("%d. %s: %s\n", i+1, c.Title, c.Summary)
	}
	return s
}
