package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/rohankatakam/graphrag/internal/config"
	"github.com/rohankatakam/graphrag/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile string
	verbose bool
	logFile string
	logger  *logrus.Logger // used by graphstore, which is grounded on the teacher's logrus-based storage layer
	slogger *slog.Logger   // used by graphbuilder/community/orchestrator/worker
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "graphrag",
	Short: "GraphRAG - graph-backed retrieval and map-reduce query answering",
	Long: `graphrag builds a knowledge graph from extractor output, clusters it into
hierarchical communities, and answers natural-language queries by fanning
them out across those communities and reducing the scored responses.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logrus.New()
		if verbose {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}

		logCfg := logging.DefaultConfig(verbose)
		logCfg.OutputFile = logFile
		logOut, err := logging.NewLogger(logCfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize logger, falling back to stderr: %v\n", err)
			slogger = slog.New(slog.NewTextHandler(os.Stderr, nil))
		} else {
			slogger = logOut.Slog()
		}

		cfg, err = config.Load(cfgFile)
		if err != nil {
			logger.WithError(err).Warn("failed to load config, using defaults")
			cfg = config.Default()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .graphrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file, rotating at 10MB (default: stdout only)")

	rootCmd.SetVersionTemplate(`graphrag {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(communityCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(serveWorkerCmd)
}
