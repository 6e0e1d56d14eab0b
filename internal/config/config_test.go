package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "sqlite", cfg.GraphStore.Backend)
	assert.Equal(t, "nodes", cfg.GraphStore.NodesColl)
	assert.Equal(t, "edges", cfg.GraphStore.EdgesColl)
	assert.Equal(t, "communities", cfg.GraphStore.CommColl)
	assert.Equal(t, 10, cfg.Community.MaxClusterSize)
	assert.Equal(t, uint64(0xDEADBEEF), cfg.Community.RandomSeed)
	assert.InDelta(t, 0.9, cfg.Query.CompletionThreshold, 0.0001)
	assert.Equal(t, 6, cfg.Query.MaxAttempts)
}

func TestApplyEnvOverridesStoreBackend(t *testing.T) {
	os.Setenv("GRAPHRAG_STORE_BACKEND", "postgres")
	os.Setenv("GRAPHRAG_STORE_DSN", "postgres://localhost/graphrag")
	defer os.Unsetenv("GRAPHRAG_STORE_BACKEND")
	defer os.Unsetenv("GRAPHRAG_STORE_DSN")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, "postgres", cfg.GraphStore.Backend)
	assert.Equal(t, "postgres://localhost/graphrag", cfg.GraphStore.DBID)
}

func TestApplyEnvOverridesCompletionThreshold(t *testing.T) {
	os.Setenv("GRAPHRAG_COMPLETION_THRESHOLD", "0.75")
	defer os.Unsetenv("GRAPHRAG_COMPLETION_THRESHOLD")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.InDelta(t, 0.75, cfg.Query.CompletionThreshold, 0.0001)
}

func TestApplyEnvOverridesIgnoresMalformedMaxAttempts(t *testing.T) {
	os.Setenv("GRAPHRAG_MAX_ATTEMPTS", "not-a-number")
	defer os.Unsetenv("GRAPHRAG_MAX_ATTEMPTS")

	cfg := Default()
	applyEnvOverrides(cfg)

	assert.Equal(t, 6, cfg.Query.MaxAttempts)
}

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/x", expandPath("/tmp/x"))
	assert.Equal(t, homeDir+"/.graphrag/graph.db", expandPath("~/.graphrag/graph.db"))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"

	cfg := Default()
	cfg.ProjectID = "acme-corp"
	cfg.Community.MaxClusterSize = 20

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "acme-corp", loaded.ProjectID)
	assert.Equal(t, 20, loaded.Community.MaxClusterSize)
}
