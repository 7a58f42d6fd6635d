package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no config file discoverable

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 30, cfg.Newsense.ChunkSpanDays)
	assert.Equal(t, 5, cfg.Newsense.MaxInFlight)
	assert.Equal(t, 3, cfg.Newsense.MaxRetries)
	assert.Equal(t, 200*time.Millisecond, cfg.Newsense.InitialBackoff)
	assert.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	assert.Equal(t, 1024, cfg.AI.MaxTokens)
	assert.Equal(t, 7, cfg.Resolver.RecencyWindowDays)
	assert.Equal(t, "knowledge_graph.csv", cfg.KnowledgeGraphPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Nil(t, cfg.Units)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  addr: ":9090"
newsense:
  base_url: "https://data.newsense.example"
  username: "reader"
  chunk_span_days: 14
ai:
  model: "gpt-4o"
  temperature: 0.3
resolver:
  recency_window_days: 3
log_level: debug
units:
  kw:
    to: w
    factor: 1000
  gwh:
    to: wh
    factor: 1e9
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "https://data.newsense.example", cfg.Newsense.BaseURL)
	assert.Equal(t, "reader", cfg.Newsense.Username)
	assert.Equal(t, 14, cfg.Newsense.ChunkSpanDays)
	assert.Equal(t, "gpt-4o", cfg.AI.Model)
	assert.Equal(t, 0.3, cfg.AI.Temperature)
	assert.Equal(t, 3, cfg.Resolver.RecencyWindowDays)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Untouched keys keep their defaults.
	assert.Equal(t, 5, cfg.Newsense.MaxInFlight)
	assert.Equal(t, 1024, cfg.AI.MaxTokens)

	require.Contains(t, cfg.Units, "gwh")
	assert.Equal(t, UnitRule{To: "wh", Factor: 1e9}, cfg.Units["gwh"])
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("NEWSENSE_LOG_LEVEL", "debug")
	t.Setenv("NEWSENSE_SERVER_ADDR", ":7070")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":7070", cfg.Server.Addr)
}
