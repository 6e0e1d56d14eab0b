// Package worker implements the Map Worker (spec.md §4.E): a stateless HTTP
// handler that scores a single community against a user query and writes
// the result into the Rendezvous Store.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rohankatakam/graphrag/internal/graphmodel"
	"github.com/rohankatakam/graphrag/internal/llm"
	"github.com/rohankatakam/graphrag/internal/rendezvous"
)

// ReceiveCommunityRequest is the map-worker wire protocol request body
// (spec.md §6: `{community_record, user_query}`).
type ReceiveCommunityRequest struct {
	CommunityRecord string `json:"community_record"`
	UserQuery       string `json:"user_query"`
}

// ReceiveCommunityResponse is the wire protocol response body.
type ReceiveCommunityResponse struct {
	Message string `json:"message"`
}

type scoreSchema struct {
	Response string `json:"response"`
	Score    int    `json:"score"`
}

// Handlers is the stateless Map Worker. It carries no per-query state and
// may be replicated to any count (spec.md §4.E).
type Handlers struct {
	completion  *llm.Client
	store       rendezvous.Store
	rateLimiter *llm.RateLimiter
	logger      *slog.Logger
}

func NewHandlers(completion *llm.Client, store rendezvous.Store, logger *slog.Logger) *Handlers {
	return &Handlers{completion: completion, store: store, logger: logger}
}

// WithRateLimiter attaches a shared, Redis-coordinated quota guard. Map
// Workers are stateless and "may be replicated to any count" (spec.md
// §4.E); an in-process limiter alone cannot see what sibling replicas have
// already spent against the same Completion provider quota, so this check
// runs before every completion call in addition to the Client's own
// per-process limiter.
func (h *Handlers) WithRateLimiter(rl *llm.RateLimiter) *Handlers {
	h.rateLimiter = rl
	return h
}

// Register wires the worker's routes onto engine, grounded on the teacher
// corpus's gin handler-registration style.
func (h *Handlers) Register(engine *gin.Engine) {
	engine.GET("/helloworld", h.HandleHelloWorld)
	engine.POST("/receive_community_request", h.HandleReceiveCommunityRequest)
}

// HandleHelloWorld is the health endpoint (spec.md §6: "A GET /helloworld
// health endpoint returns 200 {"message":"Hello World"}").
func (h *Handlers) HandleHelloWorld(c *gin.Context) {
	c.JSON(http.StatusOK, ReceiveCommunityResponse{Message: "Hello World"})
}

// HandleReceiveCommunityRequest implements spec.md §4.E steps 1-6.
func (h *Handlers) HandleReceiveCommunityRequest(c *gin.Context) {
	var req ReceiveCommunityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid map worker request body", "error", err)
		c.JSON(http.StatusBadRequest, ReceiveCommunityResponse{Message: "invalid request body"})
		return
	}

	if err := h.process(c.Request.Context(), req.CommunityRecord, req.UserQuery); err != nil {
		if _, malformed := err.(malformedRecordError); malformed {
			c.JSON(http.StatusBadRequest, ReceiveCommunityResponse{Message: err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, ReceiveCommunityResponse{Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, ReceiveCommunityResponse{Message: "ok"})
}

// HandleWorkItem processes a bus-delivered WorkItem the same way the HTTP
// handler does, for query fan-out delivered over the message bus rather
// than a direct HTTP call. It scores one community against a query; it
// does not summarize communities.
func (h *Handlers) HandleWorkItem(ctx context.Context, communityRecord string, userQuery string) error {
	return h.process(ctx, communityRecord, userQuery)
}

type malformedRecordError struct{ msg string }

func (e malformedRecordError) Error() string { return e.msg }

// process implements spec.md §4.E steps 1-5, shared by the HTTP and
// bus-consumer entry points.
func (h *Handlers) process(ctx context.Context, communityRecord, userQuery string) error {
	var community graphmodel.Community
	if err := json.Unmarshal([]byte(communityRecord), &community); err != nil {
		h.logger.Warn("community record failed to parse", "error", err)
		return malformedRecordError{msg: "malformed community record"}
	}

	result := h.score(ctx, &community, userQuery)

	subKey := community.UID
	if subKey == "" {
		subKey = community.Title
	}

	if err := h.store.Put(ctx, userQuery, subKey, result); err != nil {
		h.logger.Error("failed to write partial answer to rendezvous store", "community_uid", subKey, "error", err)
		return fmt.Errorf("rendezvous write failed: %w", err)
	}
	return nil
}

// score builds the map prompt and calls the Completion interface. A parse
// failure yields the spec.md §4.E step 4 zero-score fallback rather than an
// error (property P7: every partial answer has score in [0,10]).
func (h *Handlers) score(ctx context.Context, community *graphmodel.Community, userQuery string) rendezvous.PartialAnswer {
	fallback := rendezvous.PartialAnswer{
		CommunityUID: community.UID,
		Response:     "Answer cannot be provided based on context",
		Score:        0,
	}

	if h.completion == nil || !h.completion.IsEnabled() {
		return fallback
	}

	prompt := buildMapPrompt(community, userQuery)

	if h.rateLimiter != nil {
		estimatedTokens := int64(len(prompt))/4 + 512
		if err := h.rateLimiter.CheckAndIncrement(ctx, estimatedTokens); err != nil {
			h.logger.Warn("shared completion quota exhausted, falling back", "community_uid", community.UID, "error", err)
			return fallback
		}
	}

	resp, err := h.completion.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: mapSystemPrompt,
		UserPrompt:   prompt,
		MaxTokens:    512,
		Temperature:  0.0,
	})
	if err != nil {
		h.logger.Warn("map worker completion failed, falling back", "community_uid", community.UID, "error", err)
		return fallback
	}

	var parsed scoreSchema
	if err := json.Unmarshal([]byte(extractJSON(resp.Content)), &parsed); err != nil {
		h.logger.Warn("map worker response failed to parse, falling back", "community_uid", community.UID, "error", err)
		return fallback
	}

	if parsed.Score < 0 {
		parsed.Score = 0
	}
	if parsed.Score > 10 {
		parsed.Score = 10
	}

	return rendezvous.PartialAnswer{
		CommunityUID: community.UID,
		Response:     parsed.Response,
		Score:        parsed.Score,
	}
}

const mapSystemPrompt = `You answer a user's question using only the context of one knowledge-graph community. Respond with strict JSON only, matching: {"response": string, "score": integer 0-10}, where score is how relevant and well-supported the response is.`

func buildMapPrompt(community *graphmodel.Community, userQuery string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\n", userQuery)
	fmt.Fprintf(&b, "Community: %s\n", community.Title)
	fmt.Fprintf(&b, "Summary: %s\n", community.Summary)
	for _, f := range community.Findings {
		fmt.Fprintf(&b, "- %s: %s\n", f.Summary, f.Explanation)
	}
	fmt.Fprintf(&b, "\nMembers: %s\n", strings.Join(community.MemberNodeUIDs, ", "))
	return b.String()
}

func extractJSON(content string) string {
	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start == -1 || end == -1 || end < start {
		return content
	}
	return content[start : end+1]
}
