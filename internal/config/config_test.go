package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 24*time.Hour, cfg.Redis.DefaultTTL)
	assert.Equal(t, "jina-embeddings-v3", cfg.Jina.EmbedModel)
	assert.Equal(t, "jina-reranker-v2-base-multilingual", cfg.Rerank.Model)
	assert.InDelta(t, 0.3, cfg.Rerank.VectorWeight, 1e-9)
	assert.InDelta(t, 0.7, cfg.Rerank.RerankWeight, 1e-9)
	assert.Equal(t, 20, cfg.Search.TopK)
	assert.Equal(t, 86400, cfg.Search.ExpansionTTLSecs)
	assert.Equal(t, 2*time.Minute, cfg.Jobs.AITimeout)
	assert.Equal(t, 15, cfg.Jobs.MaxGroups)
	assert.Equal(t, 30*time.Minute, cfg.Grouping.Rules.EventWindow)
	assert.Equal(t, 60, cfg.RateLimit.RequestsPerMinute)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_FileOverrides(t *testing.T) {
	dir := chdirTemp(t)

	yaml := []byte(`
store:
  driver: postgres
  database_url: postgres://localhost/contacts
server:
  port: 9999
jobs:
  ai_timeout: 45s
rerank:
  vector_weight: 0.5
  rerank_weight: 0.5
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/contacts", cfg.Store.DatabaseURL)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 45*time.Second, cfg.Jobs.AITimeout)
	assert.InDelta(t, 0.5, cfg.Rerank.VectorWeight, 1e-9)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("CONTACTS_JINA_KEY", "env-key")
	t.Setenv("CONTACTS_LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Jina.Key)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_BadFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("{{nope"), 0o644))

	_, err := Load()
	require.Error(t, err)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	require.NoError(t, InitLogger(LogConfig{Level: "warn", Format: "json"}))
	require.Error(t, InitLogger(LogConfig{Level: "not-a-level"}))
}
