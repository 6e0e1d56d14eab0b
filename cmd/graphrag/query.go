package main

import (
	"context"
	"fmt"

	"github.com/rohankatakam/graphrag/internal/bus"
	"github.com/rohankatakam/graphrag/internal/graphstore"
	"github.com/rohankatakam/graphrag/internal/llm"
	"github.com/rohankatakam/graphrag/internal/orchestrator"
	"github.com/rohankatakam/graphrag/internal/rendezvous"
	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a natural-language question via community map-reduce",
	Long: `Fans the question out to every stored community over the message
bus, polls the Rendezvous Store until a quorum of Map Workers respond,
and reduces the scored responses into one final answer (spec.md §4.D).

Requires a running Map Worker pool (see 'graphrag serve-worker')
subscribed to the same bus topic.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	question := args[0]

	store, err := graphstore.Open(ctx, cfg.GraphStore.Backend, cfg.GraphStore.DBID, logger)
	if err != nil {
		return fmt.Errorf("failed to open graph store: %w", err)
	}
	defer store.Close()

	messageBus, err := bus.NewRedisBus(ctx, cfg.Bus.Addr, "", slogger)
	if err != nil {
		return fmt.Errorf("failed to connect to message bus: %w", err)
	}
	defer messageBus.Close()

	rstore, err := rendezvous.NewRedisStore(ctx, cfg.Query.DBID, "", slogger)
	if err != nil {
		return fmt.Errorf("failed to connect to rendezvous store: %w", err)
	}
	defer rstore.Close()

	completion := llm.NewClient(llm.Provider(cfg.Completion.Provider), cfg.CompletionAPIKey(), cfg.Embedding.ModelName)

	orchCfg := orchestrator.Config{
		Topic:               cfg.Bus.TopicID,
		SleepTime:           cfg.Query.SleepTime,
		WarmupSleep:         cfg.Query.WarmupSleep,
		MaxAttempts:         cfg.Query.MaxAttempts,
		CompletionThreshold: cfg.Query.CompletionThreshold,
		ScoreThreshold:      cfg.Query.ScoreThreshold,
		MaxResponses:        cfg.Query.MaxResponses,
	}

	orch := orchestrator.New(store, messageBus, rstore, completion, orchCfg, slogger)
	answer, err := orch.Answer(ctx, question)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	fmt.Println(answer)
	return nil
}
