package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rohankatakam/graphrag/internal/community"
	"github.com/rohankatakam/graphrag/internal/graphstore"
	"github.com/rohankatakam/graphrag/internal/llm"
	"github.com/spf13/cobra"
)

var communityCmd = &cobra.Command{
	Use:   "community",
	Short: "Rebuild community clusters and summaries from the current graph",
	Long: `Stabilizes the current graph into its largest connected component,
clusters it hierarchically with Leiden, and summarizes each resulting
cluster via the configured Completion provider (spec.md §4.C).

Communities that fail to summarize (Completion disabled, call failure, or
unparseable response) are still stored, with a degraded report.`,
	RunE: runCommunity,
}

func runCommunity(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	store, err := graphstore.Open(ctx, cfg.GraphStore.Backend, cfg.GraphStore.DBID, logger)
	if err != nil {
		return fmt.Errorf("failed to open graph store: %w", err)
	}
	defer store.Close()

	completion := llm.NewClient(llm.Provider(cfg.Completion.Provider), cfg.CompletionAPIKey(), cfg.Embedding.ModelName)
	summarizer := community.NewSummarizer(completion, slogger)

	cacheDir := filepath.Dir(cfg.GraphStore.DBID)
	if cacheDir == "" || cacheDir == "." {
		cacheDir, _ = os.UserHomeDir()
	}
	if cache, err := community.NewSummaryCache(filepath.Join(cacheDir, "community-summaries.db")); err != nil {
		slogger.Warn("failed to open community summary cache, continuing without it", "error", err)
	} else {
		defer cache.Close()
		summarizer = summarizer.WithCache(cache)
	}

	engine := community.NewEngine(store, summarizer, cfg.Community.MaxClusterSize, cfg.Community.RandomSeed, slogger)

	count, err := engine.Rebuild(ctx)
	if err != nil {
		return fmt.Errorf("community rebuild failed: %w", err)
	}

	fmt.Printf("rebuilt %d communities\n", count)
	return nil
}
