package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/rohankatakam/graphrag/internal/dlq"
	"github.com/rohankatakam/graphrag/internal/graphbuilder"
	"github.com/rohankatakam/graphrag/internal/graphstore"
	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <extractor-output-file>",
	Short: "Merge extractor tuple output into the graph store",
	Long: `Parses an extractor tuple stream (entity and relationship records,
spec.md §4.B wire format) and idempotently merges it into the configured
graph store.

Usage:
  graphrag ingest chunk-001.txt --doc-id chunk-001`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("doc-id", "", "source document id recorded against every merged node/edge")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	docID, _ := cmd.Flags().GetString("doc-id")
	if docID == "" {
		docID = uuid.NewString()
	}

	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read extractor output: %w", err)
	}

	store, err := graphstore.Open(ctx, cfg.GraphStore.Backend, cfg.GraphStore.DBID, logger)
	if err != nil {
		return fmt.Errorf("failed to open graph store: %w", err)
	}
	defer store.Close()

	builder := graphbuilder.New(store, slogger)

	if cfg.GraphStore.Backend == "postgres" {
		db, err := sql.Open("postgres", cfg.GraphStore.DBID)
		if err != nil {
			slogger.Warn("failed to open dead letter queue database, continuing without it", "error", err)
		} else {
			defer db.Close()
			if _, err := db.ExecContext(ctx, dlq.Schema); err != nil {
				slogger.Warn("failed to migrate dead letter queue schema, continuing without it", "error", err)
			} else {
				builder = builder.WithDeadLetterQueue(dlq.NewQueue(db))
			}
		}
	}

	stats, err := builder.Ingest(ctx, string(raw), docID)
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	fmt.Printf("parsed %d tuples: %d nodes upserted, %d edges upserted, %d skipped\n",
		stats.TuplesParsed, stats.NodesUpserted, stats.EdgesUpserted, stats.TuplesSkipped)
	return nil
}
