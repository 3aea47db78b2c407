package server

import (
	"net/http"
	"time"
)

// errorRateThreshold marks the service degraded on the health endpoint.
const errorRateThreshold = 0.10

// handleDebugConfig returns the redacted configuration snapshot.
func (s *Server) handleDebugConfig(w http.ResponseWriter, r *http.Request) {
	snap := s.cfg.DebugSnapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"performance": map[string]any{
			"flags":      snap.Flags,
			"budgets":    snap.Budgets,
			"raw_config": snap.Raw,
		},
		"resource_limits": s.cfg.ResourceLimits(),
		"feature_flags":   snap.Flags,
		"config":          snap.Raw,
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
	})
}

// handleDebugMetrics returns percentile stats for the budgeted operations
// plus raw counters and derived rates.
func (s *Server) handleDebugMetrics(w http.ResponseWriter, r *http.Request) {
	performance := make(map[string]any)
	for label, name := range map[string]string{
		"retrieval":    "retrieval_ms",
		"graph_expand": "graph_expand_ms",
		"packing":      "packing_ms",
		"reviewer":     "reviewer_ms",
		"chat_total":   "chat_total_ms",
	} {
		if stats, ok := s.metrics.GetHistogramStats(name, nil); ok {
			performance[label] = stats
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"performance": performance,
		"counters":    s.metrics.Counters(),
		"rates": map[string]float64{
			"retrieval_error_rate":   s.metrics.Rate("retrieval_error", "retrieval_total"),
			"pgvector_fallback_rate": s.metrics.Rate("pgvector_fallback", "retrieval_total"),
		},
	})
}

// handleDebugHealth reports healthy or degraded with the reasons.
func (s *Server) handleDebugHealth(w http.ResponseWriter, r *http.Request) {
	var warnings []string

	if s.breakers != nil {
		for name, state := range s.breakers.States() {
			if state == "open" {
				warnings = append(warnings, "breaker open: "+name)
			}
		}
	}
	if rate := s.metrics.Rate("retrieval_error", "retrieval_total"); rate > errorRateThreshold {
		warnings = append(warnings, "retrieval error rate above threshold")
	}

	status := "healthy"
	if len(warnings) > 0 {
		status = "degraded"
	}
	if warnings == nil {
		warnings = []string{}
	}

	summary := make(map[string]any)
	if stats, ok := s.metrics.GetHistogramStats("chat_total_ms", nil); ok {
		summary["chat_total_ms"] = stats
	}
	if stats, ok := s.metrics.GetHistogramStats("retrieval_ms", nil); ok {
		summary["retrieval_ms"] = stats
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          status,
		"uptime_seconds":  time.Since(s.startedAt).Seconds(),
		"warnings":        warnings,
		"metrics_summary": summary,
	})
}
