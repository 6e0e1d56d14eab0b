package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/rohankatakam/graphrag/internal/bus"
	"github.com/rohankatakam/graphrag/internal/llm"
	"github.com/rohankatakam/graphrag/internal/rendezvous"
	"github.com/rohankatakam/graphrag/internal/worker"
	"github.com/spf13/cobra"
)

var serveWorkerCmd = &cobra.Command{
	Use:   "serve-worker",
	Short: "Run a Map Worker: HTTP handler plus bus-consumer loop",
	Long: `Starts a stateless Map Worker (spec.md §4.E): POST /receive_community_request
scores one community against a user query and writes the result into the
Rendezvous Store; GET /helloworld is a liveness probe.

Also subscribes to the message bus topic the Orchestrator publishes
WorkItems on, so query fan-out reaches the worker pool without a direct
HTTP caller. Community summarization does not go through the bus or this
worker; 'graphrag community' summarizes in-process.`,
	RunE: runServeWorker,
}

func init() {
	serveWorkerCmd.Flags().String("addr", ":8080", "HTTP listen address")
}

func runServeWorker(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	addr, _ := cmd.Flags().GetString("addr")

	rstore, err := rendezvous.NewRedisStore(ctx, cfg.Query.DBID, "", slogger)
	if err != nil {
		return fmt.Errorf("failed to connect to rendezvous store: %w", err)
	}
	defer rstore.Close()

	completion := llm.NewClient(llm.Provider(cfg.Completion.Provider), cfg.CompletionAPIKey(), cfg.Embedding.ModelName)
	handlers := worker.NewHandlers(completion, rstore, slogger)

	if rl, err := llm.NewRateLimiter(cfg.Bus.Addr); err != nil {
		slogger.Warn("failed to connect shared completion rate limiter, continuing with only the per-process limiter", "error", err)
	} else {
		handlers = handlers.WithRateLimiter(rl)
		defer rl.Close()
	}

	messageBus, err := bus.NewRedisBus(ctx, cfg.Bus.Addr, "", slogger)
	if err != nil {
		return fmt.Errorf("failed to connect to message bus: %w", err)
	}
	defer messageBus.Close()

	go func() {
		if err := messageBus.Subscribe(ctx, cfg.Bus.TopicID, func(ctx context.Context, payload []byte) error {
			var item bus.WorkItem
			if err := json.Unmarshal(payload, &item); err != nil {
				slogger.Warn("failed to unmarshal work item from bus, dropping", "error", err)
				return nil
			}
			return handlers.HandleWorkItem(ctx, string(item.CommunityReport), item.UserQuery)
		}); err != nil {
			slogger.Error("bus subscription ended", "error", err)
		}
	}()

	engine := gin.Default()
	handlers.Register(engine)

	slogger.Info("map worker listening", "addr", addr)
	return engine.Run(addr)
}
