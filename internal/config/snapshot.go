package config

import (
	"regexp"
)

// credentialKey matches configuration keys whose values must never leave the
// process unredacted.
var credentialKey = regexp.MustCompile(`(?i)(KEY|SECRET|TOKEN|PASSWORD)`)

// Redacted replaces credential-like values in debug output.
const Redacted = "***REDACTED***"

// Snapshot is the debug view of the loaded configuration, grouped into
// feature flags, performance budgets, and the raw key/value map.
type Snapshot struct {
	Flags   map[string]bool `json:"flags"`
	Budgets map[string]int  `json:"budgets"`
	Raw     map[string]any  `json:"raw"`
}

// DebugSnapshot renders the config for the debug endpoint. Every key
// matching the credential pattern is redacted.
func (c *Config) DebugSnapshot() Snapshot {
	flags := map[string]bool{
		"retrieval.parallel":               c.Retrieval.Parallel,
		"reviewer.enabled":                 c.Reviewer.Enabled,
		"pgvector.enabled":                 c.Fallback.PgVector,
		"fallbacks.enabled":                c.Fallback.Enabled,
		"ingest.analysis.enabled":          c.Ingest.AnalysisEnabled,
		"ingest.contradictions.enabled":    c.Ingest.ContradictionsEnabled,
		"ingest.implicate.refresh_enabled": c.Ingest.RefreshEnabled,
	}

	budgets := map[string]int{
		"retrieval.timeout_ms":    c.Retrieval.TimeoutMs,
		"graph.timeout_ms":        c.Graph.TimeoutMs,
		"compare.timeout_ms":      c.Compare.TimeoutMs,
		"reviewer.budget_ms":      c.Reviewer.BudgetMs,
		"ingest.max_ms_per_chunk": c.Ingest.MaxMsPerChunk,
		"ingest.max_verbs":        c.Ingest.MaxVerbs,
		"ingest.max_frames":       c.Ingest.MaxFrames,
		"ingest.max_concepts":     c.Ingest.MaxConcepts,
	}

	raw := map[string]any{
		"name":                    c.Name,
		"version":                 c.Version,
		"store.path":              c.Store.Path,
		"fallback.path":           c.Fallback.Path,
		"server.addr":             c.Server.Addr,
		"logging.level":           c.Logging.Level,
		"embedding.provider":      c.Embedding.Provider,
		"embedding.ollama_model":  c.Embedding.OllamaModel,
		"embedding.genai_model":   c.Embedding.GenAIModel,
		"embedding.genai_api_key": c.Embedding.GenAIAPIKey,
		"embedding.dimensions":    c.Embedding.Dimensions,
	}
	for k := range raw {
		if credentialKey.MatchString(k) {
			raw[k] = Redacted
		}
	}

	return Snapshot{Flags: flags, Budgets: budgets, Raw: raw}
}

// ResourceLimits returns the per-chunk analysis caps as a flat map for the
// debug endpoint.
func (c *Config) ResourceLimits() map[string]int {
	return map[string]int{
		"max_ms_per_chunk": c.Ingest.MaxMsPerChunk,
		"max_verbs":        c.Ingest.MaxVerbs,
		"max_frames":       c.Ingest.MaxFrames,
		"max_concepts":     c.Ingest.MaxConcepts,
	}
}
