package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, BackendBadger, cfg.Storage.IceBackend)
	assert.Equal(t, BackendMemory, cfg.Storage.WaterBackend)
	assert.Equal(t, "./data", cfg.Storage.DataDir)
	assert.Equal(t, ExtractorNone, cfg.Pipeline.Extractor.Provider)
	assert.Equal(t, 3, cfg.Pipeline.SummarySentences)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Zero(t, cfg.Retention.GasRetention, "gas is kept forever by default")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "codex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  iceBackend: memory
  waterBackend: memory
pipeline:
  version: "42"
  itemTtl: 24h
  extractor:
    provider: openai
    model: gpt-4o
retention:
  gasRetention: 168h
ontology:
  axes:
    - name: Science
      band: crown
logging:
  level: debug
  development: true
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.IceBackend)
	assert.Equal(t, "42", cfg.Pipeline.Version)
	assert.Equal(t, 24*time.Hour, cfg.Pipeline.ItemTTL.Std())
	assert.Equal(t, ExtractorOpenAI, cfg.Pipeline.Extractor.Provider)
	assert.Equal(t, "gpt-4o", cfg.Pipeline.Extractor.Model)
	assert.Equal(t, 7*24*time.Hour, cfg.Retention.GasRetention.Std())
	require.Len(t, cfg.Ontology.Axes, 1)
	assert.Equal(t, "Science", cfg.Ontology.Axes[0].Name)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Unset sections keep their defaults.
	assert.Equal(t, 3, cfg.Pipeline.SummarySentences)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CODEX_DATA_DIR", "/var/lib/codex")
	t.Setenv("CODEX_ICE_BACKEND", "memory")
	t.Setenv("CODEX_LOG_LEVEL", "warn")
	t.Setenv("CODEX_EXTRACTOR", "openai")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/codex", cfg.Storage.DataDir)
	assert.Equal(t, BackendMemory, cfg.Storage.IceBackend)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ExtractorOpenAI, cfg.Pipeline.Extractor.Provider)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown ice backend", func(c *Config) { c.Storage.IceBackend = "sqlite" }},
		{"unknown water backend", func(c *Config) { c.Storage.WaterBackend = "redis" }},
		{"badger without dataDir", func(c *Config) { c.Storage.DataDir = "" }},
		{"unknown extractor", func(c *Config) { c.Pipeline.Extractor.Provider = "llama" }},
		{"negative gas retention", func(c *Config) { c.Retention.GasRetention = Duration(-time.Hour) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestDurationYAML(t *testing.T) {
	var d Duration
	require.NoError(t, yaml.Unmarshal([]byte(`90m`), &d))
	assert.Equal(t, 90*time.Minute, d.Std())

	require.Error(t, yaml.Unmarshal([]byte(`soon`), &d))

	out, err := yaml.Marshal(Duration(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "1h0m0s\n", string(out))
}

func TestAPIKeyFromEnv(t *testing.T) {
	t.Setenv("CODEX_TEST_KEY", "sk-test")
	e := ExtractorConfig{APIKeyEnv: "CODEX_TEST_KEY"}
	assert.Equal(t, "sk-test", e.APIKey())
}
