package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds all configuration for a graphrag process. Field names mirror
// the flat key set named in spec.md §6 (project_id, credential_path,
// graph_store_db_id, nodes_coll, edges_coll, comm_coll, query_db_id,
// intermediate_coll, bus_topic_id, completion_model_name,
// embedding_model_name, telemetry_endpoint), grouped into sub-structs the way
// the teacher groups GitHub/Cache/API settings.
type Config struct {
	ProjectID      string `yaml:"project_id"`
	CredentialPath string `yaml:"credential_path"`

	GraphStore GraphStoreConfig `yaml:"graph_store"`
	Query      QueryConfig      `yaml:"query"`
	Bus        BusConfig        `yaml:"bus"`
	Completion CompletionConfig `yaml:"completion"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Community  CommunityConfig  `yaml:"community"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`

	completionAPIKey string // resolved at Load time, never marshaled back out
}

// GraphStoreConfig names the document-store backend and its three collections.
type GraphStoreConfig struct {
	DBID      string `yaml:"db_id"` // graph_store_db_id: DSN or file path, backend-dependent
	Backend   string `yaml:"backend"` // "postgres", "sqlite", or "memory"
	NodesColl string `yaml:"nodes_coll"`
	EdgesColl string `yaml:"edges_coll"`
	CommColl  string `yaml:"comm_coll"`
}

// QueryConfig configures the orchestrator's rendezvous polling and the
// intermediate_answers collection (the Rendezvous Store).
type QueryConfig struct {
	DBID                string        `yaml:"query_db_id"` // rendezvous backend address
	IntermediateColl    string        `yaml:"intermediate_coll"`
	SleepTime           time.Duration `yaml:"sleep_time"`           // poll interval, default 10s
	WarmupSleep         time.Duration `yaml:"warmup_sleep"`         // initial sleep before first poll, default 5s
	MaxAttempts         int           `yaml:"max_attempts"`         // default 6
	CompletionThreshold float64       `yaml:"completion_threshold"` // fraction of communities required, default 0.9
	ScoreThreshold      int           `yaml:"score_threshold"`      // default 0 (exclusive)
	MaxResponses        int           `yaml:"max_responses"`        // default 10
}

// BusConfig names the message bus topic (spec.md: bus_topic_id) and its
// transport address.
type BusConfig struct {
	TopicID string `yaml:"bus_topic_id"`
	Addr    string `yaml:"addr"` // Redis address backing the bus
}

// CompletionConfig names the Completion provider and model (spec.md:
// completion_model_name); the API key is resolved via the credential chain
// in credentials.go, never stored here in plaintext by default.
type CompletionConfig struct {
	Provider    string  `yaml:"provider"` // "openai" or "anthropic"
	ModelName   string  `yaml:"completion_model_name"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// EmbeddingConfig names the Embedding provider and model (spec.md:
// embedding_model_name).
type EmbeddingConfig struct {
	ModelName string `yaml:"embedding_model_name"`
	Dimension int    `yaml:"dimension"`
}

// CommunityConfig configures hierarchical Leiden clustering.
type CommunityConfig struct {
	MaxClusterSize int    `yaml:"max_cluster_size"` // default 10
	RandomSeed     uint64 `yaml:"random_seed"`      // default 0xDEADBEEF
}

// TelemetryConfig names the out-of-scope telemetry endpoint. No telemetry
// client is implemented (spec.md §1 Non-goals); the field is retained purely
// so the flat config-key contract in spec.md §6 round-trips unchanged.
type TelemetryConfig struct {
	Endpoint string `yaml:"telemetry_endpoint"`
}

// Default returns the default configuration.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		ProjectID:      "default",
		CredentialPath: filepath.Join(homeDir, ".graphrag", "credentials.yaml"),
		GraphStore: GraphStoreConfig{
			Backend:   "sqlite",
			DBID:      filepath.Join(homeDir, ".graphrag", "graph.db"),
			NodesColl: "nodes",
			EdgesColl: "edges",
			CommColl:  "communities",
		},
		Query: QueryConfig{
			DBID:                "localhost:6379",
			IntermediateColl:    "intermediate_answers",
			SleepTime:           10 * time.Second,
			WarmupSleep:         5 * time.Second,
			MaxAttempts:         6,
			CompletionThreshold: 0.9,
			ScoreThreshold:      0,
			MaxResponses:        10,
		},
		Bus: BusConfig{
			TopicID: "graphrag.community-query",
			Addr:    "localhost:6379",
		},
		Completion: CompletionConfig{
			Provider:    "openai",
			ModelName:   "gpt-4o-mini",
			MaxTokens:   1200,
			Temperature: 0.0,
		},
		Embedding: EmbeddingConfig{
			ModelName: "text-embedding-3-small",
			Dimension: 1536,
		},
		Community: CommunityConfig{
			MaxClusterSize: 10,
			RandomSeed:     0xDEADBEEF,
		},
	}
}

// Load loads configuration from defaults, the config file, and the
// environment, in that order of increasing precedence, mirroring the
// teacher's viper-based Load. .env files only fill in variables that are not
// already set in the environment.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	cfg := Default()
	v.SetDefault("project_id", cfg.ProjectID)
	v.SetDefault("graph_store", cfg.GraphStore)
	v.SetDefault("query", cfg.Query)
	v.SetDefault("bus", cfg.Bus)
	v.SetDefault("completion", cfg.Completion)
	v.SetDefault("embedding", cfg.Embedding)
	v.SetDefault("community", cfg.Community)

	v.SetEnvPrefix("GRAPHRAG")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".graphrag")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".graphrag"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Fields are tagged with the yaml keys Save writes, not mapstructure tags.
	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence. godotenv never
// overwrites a variable that is already set, so the first file to define a
// variable wins: .env.local over .env over .env.example over ~/.graphrag/.env.
func loadEnvFiles() {
	envFiles := []string{".env.local", ".env", ".env.example"}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".graphrag", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		_ = godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides, highest precedence.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAPHRAG_STORE_BACKEND"); v != "" {
		cfg.GraphStore.Backend = v
	}
	if v := os.Getenv("GRAPHRAG_STORE_DSN"); v != "" {
		cfg.GraphStore.DBID = expandPath(v)
	}
	if v := os.Getenv("GRAPHRAG_BUS_ADDR"); v != "" {
		cfg.Bus.Addr = v
	}
	if v := os.Getenv("GRAPHRAG_RENDEZVOUS_ADDR"); v != "" {
		cfg.Query.DBID = v
	}
	if v := os.Getenv("GRAPHRAG_COMPLETION_PROVIDER"); v != "" {
		cfg.Completion.Provider = v
	}
	if v := os.Getenv("GRAPHRAG_COMPLETION_MODEL"); v != "" {
		cfg.Completion.ModelName = v
	}
	if v := os.Getenv("GRAPHRAG_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Query.MaxAttempts = n
		}
	}
	if v := os.Getenv("GRAPHRAG_COMPLETION_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Query.CompletionThreshold = f
		}
	}

	// API key resolution precedence: env var > keychain > config file.
	cm := NewCredentialManager()
	if key, err := cm.GetCompletionAPIKey(cfg.Completion.Provider); err == nil && key != "" {
		cfg.completionAPIKey = key
	}
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, path[1:])
}

// Save writes configuration to a YAML file. The resolved completion API key
// is never written back out; Save only persists shape, not secrets.
func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("project_id", c.ProjectID)
	v.Set("graph_store", c.GraphStore)
	v.Set("query", c.Query)
	v.Set("bus", c.Bus)
	v.Set("completion", c.Completion)
	v.Set("embedding", c.Embedding)
	v.Set("community", c.Community)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// CompletionAPIKey returns the resolved Completion-provider API key.
func (c *Config) CompletionAPIKey() string {
	return c.completionAPIKey
}
