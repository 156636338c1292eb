package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cogmesh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000, cfg.Bus.HistoryCap)
	assert.Equal(t, "reject", cfg.Dispatcher.OverflowPolicy)
	assert.Equal(t, time.Hour, cfg.Consolidation.Interval.Std())
	assert.Equal(t, "hash", cfg.Embedding.Provider)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
dispatcher:
  queue_capacity: 64
  overflow_policy: drop_oldest
consolidation:
  interval: 15m
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Dispatcher.QueueCapacity)
	assert.Equal(t, "drop_oldest", cfg.Dispatcher.OverflowPolicy)
	assert.Equal(t, 15*time.Minute, cfg.Consolidation.Interval.Std())

	// Untouched sections keep their defaults.
	assert.Equal(t, 1000, cfg.Bus.HistoryCap)
	assert.Equal(t, 1024, cfg.Memory.CacheSize)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
bus:
  history_cap: 500
  source: edge
storage:
  backend: sqlite
  path: /tmp/cogmesh.db
redis:
  enabled: true
  addr: redis:6379
  prefix: mesh
embedding:
  provider: openai
  model: text-embedding-3-small
  dims: 1536
logging:
  level: debug
  format: json
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Bus.HistoryCap)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "mesh", cfg.Redis.Prefix)
	assert.Equal(t, 1536, cfg.Embedding.Dims)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "bus: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}

func TestDuration_Forms(t *testing.T) {
	path := writeConfig(t, `
consolidation:
  interval: 30s
  age_threshold: 3600000000000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.Consolidation.Interval.Std())
	assert.Equal(t, time.Hour, cfg.Consolidation.AgeThreshold.Std())

	path = writeConfig(t, "consolidation:\n  interval: soon\n")
	_, err = Load(path)
	require.Error(t, err)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero history cap", func(c *Config) { c.Bus.HistoryCap = 0 }},
		{"zero queue", func(c *Config) { c.Dispatcher.QueueCapacity = 0 }},
		{"bad overflow policy", func(c *Config) { c.Dispatcher.OverflowPolicy = "panic" }},
		{"zero cache", func(c *Config) { c.Memory.CacheSize = 0 }},
		{"importance out of range", func(c *Config) { c.Consolidation.ImportanceThreshold = 1.5 }},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "tarot" }},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "papyrus" }},
		{"sqlite without path", func(c *Config) { c.Storage.Backend = "sqlite"; c.Storage.Path = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
