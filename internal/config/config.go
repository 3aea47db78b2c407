// Package config holds all holograph configuration: performance budgets,
// feature flags, ingest limits, and backend settings. Configuration is
// loaded once at startup from defaults, an optional YAML file, and
// environment overrides, then validated. It is immutable afterwards.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	Retrieval RetrievalConfig `yaml:"retrieval"`
	Graph     GraphConfig     `yaml:"graph"`
	Compare   CompareConfig   `yaml:"compare"`
	Reviewer  ReviewerConfig  `yaml:"reviewer"`
	Fallback  FallbackConfig  `yaml:"fallback"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`

	warnings []string
}

// RetrievalConfig budgets the dual selector.
type RetrievalConfig struct {
	Parallel  bool `yaml:"parallel"`
	TimeoutMs int  `yaml:"timeout_ms"`
}

// GraphConfig budgets graph expansion.
type GraphConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

// CompareConfig budgets the optional comparison pass.
type CompareConfig struct {
	TimeoutMs int `yaml:"timeout_ms"`
}

// ReviewerConfig gates and budgets the answer reviewer.
type ReviewerConfig struct {
	Enabled  bool `yaml:"enabled"`
	BudgetMs int  `yaml:"budget_ms"`
}

// FallbackConfig controls the secondary SQL-vector backend. PgVector is the
// master toggle for the secondary store; Enabled is the master toggle for
// any fallback at all.
type FallbackConfig struct {
	Enabled  bool   `yaml:"enabled"`
	PgVector bool   `yaml:"pgvector"`
	Path     string `yaml:"path"` // secondary store location
}

// IngestConfig holds ingest-analysis flags and per-chunk limits.
type IngestConfig struct {
	AnalysisEnabled       bool `yaml:"analysis_enabled"`
	ContradictionsEnabled bool `yaml:"contradictions_enabled"`
	RefreshEnabled        bool `yaml:"implicate_refresh_enabled"`

	MaxMsPerChunk int `yaml:"max_ms_per_chunk"`
	MaxVerbs      int `yaml:"max_verbs"`
	MaxFrames     int `yaml:"max_frames"`
	MaxConcepts   int `yaml:"max_concepts"`
}

// StoreConfig locates the persistent store.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig selects the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama, genai, deterministic
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	Dimensions     int    `yaml:"dimensions"`
}

// ServerConfig configures the debug HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures the logging core.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "holograph",
		Version: "1.0.0",
		Retrieval: RetrievalConfig{
			Parallel:  true,
			TimeoutMs: 450,
		},
		Graph:    GraphConfig{TimeoutMs: 150},
		Compare:  CompareConfig{TimeoutMs: 400},
		Reviewer: ReviewerConfig{Enabled: true, BudgetMs: 500},
		Fallback: FallbackConfig{
			Enabled:  true,
			PgVector: true,
			Path:     ".holograph/fallback.db",
		},
		Ingest: IngestConfig{
			AnalysisEnabled:       false,
			ContradictionsEnabled: false,
			RefreshEnabled:        false,
			MaxMsPerChunk:         40,
			MaxVerbs:              20,
			MaxFrames:             10,
			MaxConcepts:           10,
		},
		Store: StoreConfig{Path: ".holograph/holograph.db"},
		Embedding: EmbeddingConfig{
			Provider:       "deterministic",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			Dimensions:     64,
		},
		Server:  ServerConfig{Addr: ":8091"},
		Logging: LoggingConfig{Level: "info", JSONFormat: true},
	}
}

// Load reads configuration from an optional YAML file, applies environment
// overrides, and validates. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps HOLOGRAPH_* environment variables onto the typed
// config. Unset variables leave the current value in place.
func (c *Config) applyEnvOverrides() {
	envBool("HOLOGRAPH_RETRIEVAL_PARALLEL", &c.Retrieval.Parallel)
	envInt("HOLOGRAPH_RETRIEVAL_TIMEOUT_MS", &c.Retrieval.TimeoutMs)
	envInt("HOLOGRAPH_GRAPH_TIMEOUT_MS", &c.Graph.TimeoutMs)
	envInt("HOLOGRAPH_COMPARE_TIMEOUT_MS", &c.Compare.TimeoutMs)
	envBool("HOLOGRAPH_REVIEWER_ENABLED", &c.Reviewer.Enabled)
	envInt("HOLOGRAPH_REVIEWER_BUDGET_MS", &c.Reviewer.BudgetMs)
	envBool("HOLOGRAPH_PGVECTOR_ENABLED", &c.Fallback.PgVector)
	envBool("HOLOGRAPH_FALLBACKS_ENABLED", &c.Fallback.Enabled)

	envBool("HOLOGRAPH_INGEST_ANALYSIS_ENABLED", &c.Ingest.AnalysisEnabled)
	envBool("HOLOGRAPH_INGEST_CONTRADICTIONS_ENABLED", &c.Ingest.ContradictionsEnabled)
	envBool("HOLOGRAPH_INGEST_IMPLICATE_REFRESH_ENABLED", &c.Ingest.RefreshEnabled)

	envStr("HOLOGRAPH_STORE_PATH", &c.Store.Path)
	envStr("HOLOGRAPH_FALLBACK_PATH", &c.Fallback.Path)
	envStr("HOLOGRAPH_SERVER_ADDR", &c.Server.Addr)
	envStr("HOLOGRAPH_LOG_LEVEL", &c.Logging.Level)

	envStr("HOLOGRAPH_EMBEDDING_PROVIDER", &c.Embedding.Provider)
	envStr("HOLOGRAPH_GENAI_API_KEY", &c.Embedding.GenAIAPIKey)
	envStr("HOLOGRAPH_OLLAMA_ENDPOINT", &c.Embedding.OllamaEndpoint)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// excessiveTimeoutMs is the point past which a budget draws a warning.
const excessiveTimeoutMs = 60000

// Validate checks every budget and flag. Invalid values fail startup with a
// message naming the key; merely excessive values only produce warnings.
func (c *Config) Validate() error {
	timeouts := []struct {
		key   string
		value int
	}{
		{"retrieval.timeout_ms", c.Retrieval.TimeoutMs},
		{"graph.timeout_ms", c.Graph.TimeoutMs},
		{"compare.timeout_ms", c.Compare.TimeoutMs},
		{"reviewer.budget_ms", c.Reviewer.BudgetMs},
	}
	for _, t := range timeouts {
		if t.value <= 0 {
			return fmt.Errorf("config key %s: must be a positive integer, got %d", t.key, t.value)
		}
		if t.value > excessiveTimeoutMs {
			c.warnings = append(c.warnings,
				fmt.Sprintf("config key %s: %dms is excessive", t.key, t.value))
		}
	}

	if c.Retrieval.Parallel && !c.Fallback.PgVector {
		return fmt.Errorf("config key retrieval.parallel: parallel retrieval requires pgvector.enabled")
	}

	limits := []struct {
		key   string
		value int
	}{
		{"ingest.max_ms_per_chunk", c.Ingest.MaxMsPerChunk},
		{"ingest.max_verbs", c.Ingest.MaxVerbs},
		{"ingest.max_frames", c.Ingest.MaxFrames},
		{"ingest.max_concepts", c.Ingest.MaxConcepts},
	}
	for _, l := range limits {
		if l.value <= 0 {
			return fmt.Errorf("config key %s: must be a positive integer, got %d", l.key, l.value)
		}
	}

	switch strings.ToLower(c.Embedding.Provider) {
	case "ollama", "genai", "deterministic":
	default:
		return fmt.Errorf("config key embedding.provider: unknown provider %q", c.Embedding.Provider)
	}

	return nil
}

// Warnings returns non-fatal validation warnings collected during Validate.
func (c *Config) Warnings() []string { return c.warnings }
