package config

import (
	"fmt"
	"strings"

	"github.com/rohankatakam/graphrag/internal/errors"
)

// ValidationContext specifies what configuration is required, one per CLI
// subcommand.
type ValidationContext string

const (
	// ValidationContextIngest - graphrag ingest requires a writable graph store
	ValidationContextIngest ValidationContext = "ingest"
	// ValidationContextCommunity - graphrag community requires the graph store and a Completion provider
	ValidationContextCommunity ValidationContext = "community"
	// ValidationContextQuery - graphrag query requires the bus, rendezvous store, and a Completion provider
	ValidationContextQuery ValidationContext = "query"
	// ValidationContextServeWorker - graphrag serve-worker requires the bus and rendezvous store
	ValidationContextServeWorker ValidationContext = "serve-worker"
	// ValidationContextAll - validate all configuration
	ValidationContextAll ValidationContext = "all"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString("  - " + err + "\n")
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nwarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString("  - " + warn + "\n")
		}
	}

	return sb.String()
}

// Validate validates configuration for the given context with auto-detected mode
func (c *Config) Validate(ctx ValidationContext) *ValidationResult {
	mode := DetectMode()
	return c.ValidateWithMode(ctx, mode)
}

// ValidateWithMode validates configuration for the given context and deployment mode
func (c *Config) ValidateWithMode(ctx ValidationContext, mode DeploymentMode) *ValidationResult {
	result := &ValidationResult{Valid: true}

	switch ctx {
	case ValidationContextIngest:
		c.validateGraphStore(result, true, mode)
	case ValidationContextCommunity:
		c.validateGraphStore(result, true, mode)
		c.validateCompletion(result, true)
		c.validateCommunityParams(result)
	case ValidationContextQuery:
		c.validateBus(result, true, mode)
		c.validateRendezvous(result, true, mode)
		c.validateCompletion(result, true)
		c.validateQueryParams(result)
	case ValidationContextServeWorker:
		c.validateBus(result, true, mode)
		c.validateRendezvous(result, true, mode)
		c.validateCompletion(result, false)
	case ValidationContextAll:
		c.validateGraphStore(result, true, mode)
		c.validateBus(result, true, mode)
		c.validateRendezvous(result, true, mode)
		c.validateCompletion(result, true)
		c.validateCommunityParams(result)
		c.validateQueryParams(result)
	}

	return result
}

// ValidateOrFatal validates configuration and exits if invalid (auto-detects mode)
func (c *Config) ValidateOrFatal(ctx ValidationContext) {
	mode := DetectMode()
	c.ValidateOrFatalWithMode(ctx, mode)
}

// ValidateOrFatalWithMode validates configuration with explicit mode and exits if invalid
func (c *Config) ValidateOrFatalWithMode(ctx ValidationContext, mode DeploymentMode) {
	result := c.ValidateWithMode(ctx, mode)
	if result.HasErrors() {
		panic(errors.ConfigError(result.Error()))
	}
}

func (c *Config) validateGraphStore(result *ValidationResult, required bool, mode DeploymentMode) {
	switch c.GraphStore.Backend {
	case "postgres":
		if c.GraphStore.DBID == "" {
			result.AddError("graph_store.db_id is required for backend %q", c.GraphStore.Backend)
		} else if !strings.HasPrefix(c.GraphStore.DBID, "postgres://") && !strings.HasPrefix(c.GraphStore.DBID, "postgresql://") {
			result.AddError("graph_store.db_id must start with postgres:// or postgresql:// for backend %q", c.GraphStore.Backend)
		}
		if mode.RequiresSecureCredentials() && strings.Contains(c.GraphStore.DBID, "sslmode=disable") {
			result.AddError("graph_store.db_id has sslmode=disable, not allowed in %s mode", mode)
		}
	case "sqlite":
		if c.GraphStore.DBID == "" {
			result.AddError("graph_store.db_id is required for backend %q", c.GraphStore.Backend)
		}
	case "memory":
		// no connection info needed
	default:
		if required {
			result.AddError("graph_store.backend %q is not one of postgres, sqlite, memory", c.GraphStore.Backend)
		}
	}

	if c.GraphStore.NodesColl == "" || c.GraphStore.EdgesColl == "" || c.GraphStore.CommColl == "" {
		result.AddWarning("one or more graph_store collection names is empty, defaults will be used")
	}
}

func (c *Config) validateBus(result *ValidationResult, required bool, mode DeploymentMode) {
	if c.Bus.Addr == "" {
		if required {
			result.AddError("bus.addr is required but not set")
		} else {
			result.AddWarning("bus.addr is not set")
		}
	} else if mode.RequiresSecureCredentials() && strings.Contains(c.Bus.Addr, "localhost") {
		result.AddError("bus.addr uses localhost, not allowed in %s mode (%s)", mode, mode.Description())
	}

	if c.Bus.TopicID == "" {
		result.AddWarning("bus.bus_topic_id is not set, will use default")
	}
}

func (c *Config) validateRendezvous(result *ValidationResult, required bool, mode DeploymentMode) {
	if c.Query.DBID == "" {
		if required {
			result.AddError("query.query_db_id (rendezvous address) is required but not set")
		} else {
			result.AddWarning("query.query_db_id is not set")
		}
	} else if mode.RequiresSecureCredentials() && strings.Contains(c.Query.DBID, "localhost") {
		result.AddError("query.query_db_id uses localhost, not allowed in %s mode (%s)", mode, mode.Description())
	}
}

func (c *Config) validateCompletion(result *ValidationResult, required bool) {
	switch c.Completion.Provider {
	case "openai", "anthropic":
	default:
		result.AddError("completion.provider %q must be one of openai, anthropic", c.Completion.Provider)
		return
	}

	if key, err := NewCredentialManager().GetCompletionAPIKey(c.Completion.Provider); err != nil || key == "" {
		if required {
			result.AddError("no API key resolved for completion provider %q", c.Completion.Provider)
		} else {
			result.AddWarning("no API key resolved for completion provider %q, completion-dependent steps will be skipped", c.Completion.Provider)
		}
	}

	if c.Completion.ModelName == "" {
		result.AddWarning("completion.completion_model_name is not set, will use default model")
	}
}

func (c *Config) validateCommunityParams(result *ValidationResult) {
	if c.Community.MaxClusterSize <= 0 {
		result.AddError("community.max_cluster_size must be positive, got %d", c.Community.MaxClusterSize)
	}
}

func (c *Config) validateQueryParams(result *ValidationResult) {
	if c.Query.CompletionThreshold <= 0 || c.Query.CompletionThreshold > 1 {
		result.AddError("query.completion_threshold must be in (0,1], got %.2f", c.Query.CompletionThreshold)
	}
	if c.Query.MaxAttempts <= 0 {
		result.AddError("query.max_attempts must be positive, got %d", c.Query.MaxAttempts)
	}
	if c.Query.MaxResponses <= 0 {
		result.AddWarning("query.max_responses must be positive, will use default")
	}
}

// RequireGraphStore checks the graph store configuration and returns an error if invalid
func (c *Config) RequireGraphStore() error {
	result := &ValidationResult{Valid: true}
	mode := DetectMode()
	c.validateGraphStore(result, true, mode)

	if result.HasErrors() {
		return errors.ConfigError(result.Error())
	}
	return nil
}

// RequireCompletion checks the Completion provider configuration and returns an error if invalid
func (c *Config) RequireCompletion() error {
	result := &ValidationResult{Valid: true}
	c.validateCompletion(result, true)

	if result.HasErrors() {
		return errors.ConfigError(result.Error())
	}
	return nil
}
