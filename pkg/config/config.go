// Package config loads codexd configuration from a YAML file with
// environment variable overrides.
//
// Configuration is organized into sections mirroring the components they
// drive: Storage (backend per tier), Pipeline (version, extractor,
// source registrations), Retention (gas policy), Ontology (axis seeds)
// and Logging.
//
// Example:
//
//	cfg, err := config.Load("codex.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
//
// Environment overrides (applied after the file):
//
//	CODEX_DATA_DIR       - storage.dataDir
//	CODEX_ICE_BACKEND    - storage.iceBackend ("badger" or "memory")
//	CODEX_WATER_BACKEND  - storage.waterBackend
//	CODEX_LOG_LEVEL      - logging.level
//	CODEX_EXTRACTOR      - pipeline.extractor.provider ("openai" or "none")
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/codexkg/codex/pkg/pipeline"
)

// Backend names accepted for either storage tier.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Extractor provider names.
const (
	ExtractorNone   = "none"
	ExtractorOpenAI = "openai"
)

// Duration wraps time.Duration with YAML support for strings like "24h".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config holds all codexd settings.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Retention RetentionConfig `yaml:"retention"`
	Ontology  OntologyConfig  `yaml:"ontology"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig selects the backend for each persistence tier.
type StorageConfig struct {
	// IceBackend is the durable canonical tier: "badger" or "memory".
	IceBackend string `yaml:"iceBackend"`
	// WaterBackend is the working-set tier: "badger" or "memory".
	WaterBackend string `yaml:"waterBackend"`
	// DataDir is the parent directory for on-disk tiers; each tier
	// gets its own subdirectory.
	DataDir string `yaml:"dataDir"`
	// SyncWrites forces fsync on every badger write.
	SyncWrites bool `yaml:"syncWrites"`
}

// PipelineConfig drives the ingestion pipeline.
type PipelineConfig struct {
	// Version is stamped on every processed item.
	Version string `yaml:"version"`
	// ItemTTL expires ingested working-set nodes; 0 keeps them.
	ItemTTL Duration `yaml:"itemTtl"`
	// SummarySentences caps the extractive summary length.
	SummarySentences int `yaml:"summarySentences"`
	// Extractor configures the external AI collaborator.
	Extractor ExtractorConfig `yaml:"extractor"`
	// Sources maps source ids to the display names the external
	// source registry would resolve.
	Sources map[string]string `yaml:"sources"`
}

// ExtractorConfig selects and tunes the concept extractor.
type ExtractorConfig struct {
	// Provider is "openai" or "none".
	Provider string `yaml:"provider"`
	// Model is the provider model name; empty uses the provider default.
	Model string `yaml:"model"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"apiKeyEnv"`
	// Timeout bounds one extraction call.
	Timeout Duration `yaml:"timeout"`
}

// RetentionConfig resolves the gas-node retention policy: zero keeps
// logically deleted nodes forever for audit; a positive duration lets
// cleanup physically purge them once they are older than that.
type RetentionConfig struct {
	GasRetention Duration `yaml:"gasRetention"`
}

// OntologyConfig seeds extra axes beyond the canonical band axes.
type OntologyConfig struct {
	Axes []pipeline.AxisSeed `yaml:"axes"`
}

// LoggingConfig tunes the zap logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Development switches to the human-readable console encoder.
	Development bool `yaml:"development"`
}

// Default returns the configuration used when no file is given: durable
// Ice, volatile Water, no extractor, gas kept forever.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			IceBackend:   BackendBadger,
			WaterBackend: BackendMemory,
			DataDir:      "./data",
		},
		Pipeline: PipelineConfig{
			Version:          "1",
			SummarySentences: 3,
			Extractor: ExtractorConfig{
				Provider:  ExtractorNone,
				APIKeyEnv: "OPENAI_API_KEY",
				Timeout:   Duration(30 * time.Second),
			},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers CODEX_* environment variables over the file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("CODEX_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("CODEX_ICE_BACKEND"); v != "" {
		c.Storage.IceBackend = v
	}
	if v := os.Getenv("CODEX_WATER_BACKEND"); v != "" {
		c.Storage.WaterBackend = v
	}
	if v := os.Getenv("CODEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CODEX_EXTRACTOR"); v != "" {
		c.Pipeline.Extractor.Provider = v
	}
}

// Validate rejects configurations no component could run with.
func (c *Config) Validate() error {
	for tier, backend := range map[string]string{
		"iceBackend":   c.Storage.IceBackend,
		"waterBackend": c.Storage.WaterBackend,
	} {
		if backend != BackendMemory && backend != BackendBadger {
			return fmt.Errorf("config: storage.%s: unknown backend %q", tier, backend)
		}
		if backend == BackendBadger && c.Storage.DataDir == "" {
			return fmt.Errorf("config: storage.%s is badger but dataDir is empty", tier)
		}
	}

	switch c.Pipeline.Extractor.Provider {
	case ExtractorNone, ExtractorOpenAI:
	default:
		return fmt.Errorf("config: pipeline.extractor.provider: unknown provider %q",
			c.Pipeline.Extractor.Provider)
	}

	if c.Retention.GasRetention < 0 {
		return fmt.Errorf("config: retention.gasRetention must not be negative")
	}
	return nil
}

// APIKey resolves the extractor API key from the configured environment
// variable.
func (e ExtractorConfig) APIKey() string {
	return os.Getenv(e.APIKeyEnv)
}
