package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.Retrieval.TimeoutMs != 450 {
		t.Fatalf("retrieval timeout: got %d", cfg.Retrieval.TimeoutMs)
	}
	if cfg.Reviewer.BudgetMs != 500 {
		t.Fatalf("reviewer budget: got %d", cfg.Reviewer.BudgetMs)
	}
	if cfg.Ingest.MaxMsPerChunk != 40 {
		t.Fatalf("ingest chunk budget: got %d", cfg.Ingest.MaxMsPerChunk)
	}
}

func TestValidateNamesOffendingKey(t *testing.T) {
	cases := []struct {
		key    string
		mutate func(*Config)
	}{
		{"retrieval.timeout_ms", func(c *Config) { c.Retrieval.TimeoutMs = 0 }},
		{"graph.timeout_ms", func(c *Config) { c.Graph.TimeoutMs = -5 }},
		{"compare.timeout_ms", func(c *Config) { c.Compare.TimeoutMs = 0 }},
		{"reviewer.budget_ms", func(c *Config) { c.Reviewer.BudgetMs = -1 }},
		{"ingest.max_verbs", func(c *Config) { c.Ingest.MaxVerbs = 0 }},
		{"embedding.provider", func(c *Config) { c.Embedding.Provider = "punchcards" }},
	}

	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation failure", tc.key)
		}
		if !strings.Contains(err.Error(), tc.key) {
			t.Errorf("%s: error does not name the key: %v", tc.key, err)
		}
	}
}

func TestParallelRequiresPgVector(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retrieval.Parallel = true
	cfg.Fallback.PgVector = false
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "retrieval.parallel") {
		t.Fatalf("expected retrieval.parallel failure, got %v", err)
	}

	cfg.Retrieval.Parallel = false
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sequential retrieval without pgvector must validate: %v", err)
	}
}

func TestExcessiveTimeoutWarnsOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Graph.TimeoutMs = 120000
	if err := cfg.Validate(); err != nil {
		t.Fatalf("excessive value must not fail validation: %v", err)
	}
	warnings := cfg.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "graph.timeout_ms") {
		t.Fatalf("expected one warning naming graph.timeout_ms, got %v", warnings)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "holograph.yaml")
	data := `
retrieval:
  parallel: false
  timeout_ms: 300
reviewer:
  enabled: false
  budget_ms: 250
store:
  path: /tmp/custom.db
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retrieval.Parallel || cfg.Retrieval.TimeoutMs != 300 {
		t.Fatalf("retrieval: %+v", cfg.Retrieval)
	}
	if cfg.Reviewer.Enabled || cfg.Reviewer.BudgetMs != 250 {
		t.Fatalf("reviewer: %+v", cfg.Reviewer)
	}
	if cfg.Store.Path != "/tmp/custom.db" {
		t.Fatalf("store path: %q", cfg.Store.Path)
	}
	// Unspecified keys keep defaults.
	if cfg.Graph.TimeoutMs != 150 {
		t.Fatalf("graph timeout default lost: %d", cfg.Graph.TimeoutMs)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file must not fail: %v", err)
	}
	if cfg.Retrieval.TimeoutMs != 450 {
		t.Fatalf("expected defaults, got %+v", cfg.Retrieval)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HOLOGRAPH_RETRIEVAL_TIMEOUT_MS", "275")
	t.Setenv("HOLOGRAPH_REVIEWER_ENABLED", "false")
	t.Setenv("HOLOGRAPH_STORE_PATH", "/tmp/env.db")
	t.Setenv("HOLOGRAPH_RETRIEVAL_PARALLEL", "not-a-bool")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retrieval.TimeoutMs != 275 {
		t.Fatalf("env int override: %d", cfg.Retrieval.TimeoutMs)
	}
	if cfg.Reviewer.Enabled {
		t.Fatal("env bool override lost")
	}
	if cfg.Store.Path != "/tmp/env.db" {
		t.Fatalf("env string override: %q", cfg.Store.Path)
	}
	// Malformed values are ignored, not fatal.
	if !cfg.Retrieval.Parallel {
		t.Fatal("malformed env bool should leave the default in place")
	}
}

func TestSnapshotRedactsCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.GenAIAPIKey = "sk-live-abc123"

	snap := cfg.DebugSnapshot()
	if got := snap.Raw["embedding.genai_api_key"]; got != Redacted {
		t.Fatalf("credential leaked into snapshot: %v", got)
	}
	if snap.Raw["store.path"] == Redacted {
		t.Fatal("non-credential key must not be redacted")
	}
	if !snap.Flags["retrieval.parallel"] {
		t.Fatal("flags missing from snapshot")
	}
	if snap.Budgets["reviewer.budget_ms"] != 500 {
		t.Fatalf("budgets: %+v", snap.Budgets)
	}
}

func TestResourceLimits(t *testing.T) {
	limits := DefaultConfig().ResourceLimits()
	want := map[string]int{
		"max_ms_per_chunk": 40,
		"max_verbs":        20,
		"max_frames":       10,
		"max_concepts":     10,
	}
	for k, v := range want {
		if limits[k] != v {
			t.Errorf("%s: got %d, want %d", k, limits[k], v)
		}
	}
}
