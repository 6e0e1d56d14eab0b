package community

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rohankatakam/graphrag/internal/graphmodel"
	"github.com/rohankatakam/graphrag/internal/llm"
)

// reportSchema is the strictly-typed JSON shape requested from the
// Completion interface (spec.md §4.C Summarization).
type reportSchema struct {
	Title             string          `json:"title"`
	Summary           string          `json:"summary"`
	Rating            float64         `json:"rating"`
	RatingExplanation string          `json:"rating_explanation"`
	Findings          []findingSchema `json:"findings"`
}

type findingSchema struct {
	Summary     string `json:"summary"`
	Explanation string `json:"explanation"`
}

// Summarizer generates a Community report from its member nodes and
// incident edges via the Completion abstraction.
type Summarizer struct {
	completion *llm.Client
	cache      *SummaryCache
	logger     *slog.Logger
}

func NewSummarizer(completion *llm.Client, logger *slog.Logger) *Summarizer {
	return &Summarizer{completion: completion, logger: logger}
}

// WithCache attaches a SummaryCache so Rebuild can skip a completion call
// for clusters that are unchanged since the previous run.
func (s *Summarizer) WithCache(cache *SummaryCache) *Summarizer {
	s.cache = cache
	return s
}

// Summarize builds the map-worker-style prompt described in spec.md §4.C and
// submits it to the Completion interface. A response that fails to parse as
// reportSchema yields a degraded Community record per scenario 4: title is
// the stringified member set, summary is empty, rating is 0 — the community
// is still persisted, never dropped.
func (s *Summarizer) Summarize(ctx context.Context, uid string, level int, members []*graphmodel.Node, edges []*graphmodel.Edge) *graphmodel.Community {
	memberUIDs := make([]string, 0, len(members))
	for _, m := range members {
		memberUIDs = append(memberUIDs, m.UID)
	}
	sort.Strings(memberUIDs)

	degraded := &graphmodel.Community{
		UID:            uid,
		Level:          level,
		MemberNodeUIDs: memberUIDs,
		Title:          memberSetString(memberUIDs),
		Summary:        "",
		Rating:         0,
		Degraded:       true,
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(memberUIDs, edges); ok {
			s.logger.Debug("community summary cache hit, skipping completion call", "community_uid", uid)
			cached.UID = uid
			cached.Level = level
			return cached
		}
	}

	if s.completion == nil || !s.completion.IsEnabled() {
		s.logger.Warn("completion client disabled, storing degraded community", "community_uid", uid)
		return degraded
	}

	prompt := buildSummaryPrompt(memberUIDs, members, edges)

	resp, err := s.completion.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: summarySystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    1024,
		Temperature:  0.3,
	})
	if err != nil {
		s.logger.Warn("community summarization completion failed, storing degraded community",
			"community_uid", uid, "error", err)
		return degraded
	}

	var parsed reportSchema
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		s.logger.Warn("community summarization response failed to parse, storing degraded community",
			"community_uid", uid, "error", err)
		return degraded
	}

	findings := make([]graphmodel.Finding, 0, len(parsed.Findings))
	for _, f := range parsed.Findings {
		findings = append(findings, graphmodel.Finding{Summary: f.Summary, Explanation: f.Explanation})
	}

	report := &graphmodel.Community{
		UID:               uid,
		Level:             level,
		MemberNodeUIDs:    memberUIDs,
		Title:             parsed.Title,
		Summary:           parsed.Summary,
		Rating:            parsed.Rating,
		RatingExplanation: parsed.RatingExplanation,
		Findings:          findings,
		Degraded:          false,
	}

	if s.cache != nil {
		if err := s.cache.Put(memberUIDs, edges, report); err != nil {
			s.logger.Warn("failed to write community summary cache entry", "community_uid", uid, "error", err)
		}
	}

	return report
}

const summarySystemPrompt = `You summarize a cluster of related entities from a knowledge graph.
Respond with strict JSON only, matching:
{"title": string, "summary": string, "rating": integer 0-10, "rating_explanation": string, "findings": [{"summary": string, "explanation": string}]}`

func buildSummaryPrompt(memberUIDs []string, members []*graphmodel.Node, edges []*graphmodel.Edge) string {
	byUID := make(map[string]*graphmodel.Node, len(members))
	for _, m := range members {
		byUID[m.UID] = m
	}

	var b strings.Builder
	b.WriteString("Entities:\n")
	for _, uid := range memberUIDs {
		n := byUID[uid]
		if n == nil {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", n.UID, n.Type, n.Description)
	}

	b.WriteString("\nRelationships:\n")
	for _, e := range edges {
		fmt.Fprintf(&b, "- %s -> %s: %s\n", e.Source, e.Target, e.Description)
	}

	return b.String()
}

func memberSetString(uids []string) string {
	return "{" + strings.Join(uids, ", ") + "}"
}

// extractJSON trims any prose the Completion response wrapped its JSON in,
// taking the first balanced `{...}` span. Plain non-JSON text (the scenario
// 4 fallback trigger) yields the whole string unchanged, which then fails
// to unmarshal as intended.
func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start == -1 || end == -1 || end < start {
		return content
	}
	return content[start : end+1]
}
