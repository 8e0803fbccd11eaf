package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"surveychat/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	logger = zap.NewNop()

	cfg := config.DefaultConfig()
	cfg.LLM.APIKey = "test-key"
	cfg.Retrieval.DatabasePath = filepath.Join(t.TempDir(), "codebook.db")
	return cfg
}

func TestBuildApp_RequiresAPIKey(t *testing.T) {
	logger = zap.NewNop()
	cfg := config.DefaultConfig()

	_, err := buildApp(cfg)
	assert.ErrorContains(t, err, "api_key")
}

func TestBuildApp_WiresWithoutBackend(t *testing.T) {
	cfg := testConfig(t)

	a, err := buildApp(cfg)
	require.NoError(t, err)
	defer a.close()

	// No backend configured: the pipeline still stands up; execution
	// reports its absence per request.
	require.NotNil(t, a.orchestrator)
	assert.Equal(t, []string{"execute_sql", "retrieve_context", "synthesize_sql"}, a.orchestrator.Tools().Names())
}

func TestBuildApp_SurvivesMissingCodebook(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Provider = "unknown-provider"

	a, err := buildApp(cfg)
	require.NoError(t, err)
	defer a.close()

	assert.Nil(t, a.store)
	require.NotNil(t, a.orchestrator)
}
