package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"holograph/internal/guard"
	"holograph/internal/ingest"
	"holograph/internal/logging"
	"holograph/internal/rbac"
	"holograph/internal/redact"
	"holograph/internal/retrieval"
	"holograph/internal/types"
)

// queryRequest is the query endpoint's body.
type queryRequest struct {
	Query         string `json:"query"`
	ExplicateK    int    `json:"explicate_k,omitempty"`
	ImplicateK    int    `json:"implicate_k,omitempty"`
	ForceFallback bool   `json:"force_fallback,omitempty"`
}

// handleQuery runs the full read path: select, expand, pack, answer, review,
// redact. The envelope always comes back shaped the same way; trouble along
// the way lands in warnings, not in error responses.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	roles := callerRoles(r)
	if !rbac.AnyHasCapability(roles, rbac.CapReadPublic) {
		logging.Audit(logging.AuditRoleDenied, logging.SeverityMedium, "/query",
			"capability denied",
			map[string]any{"roles": roles, "capability": string(rbac.CapReadPublic)})
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "missing capability: READ_PUBLIC"})
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "query text required"})
		return
	}

	totalTimer := s.metrics.StartTimer("chat_total_ms", nil)
	defer totalTimer.Stop()
	totalStart := time.Now()

	var trace []any
	step := func(name string, start time.Time, status string) {
		trace = append(trace, map[string]any{
			"step":        name,
			"duration_ms": float64(time.Since(start)) / float64(time.Millisecond),
			"status":      status,
		})
	}

	embedStart := time.Now()
	queryVec, err := s.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		step("embed_query", embedStart, "error")
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "embedding unavailable"})
		return
	}
	step("embed_query", embedStart, "ok")

	selStart := time.Now()
	selection, err := s.selector.Select(r.Context(), queryVec, retrieval.SelectOptions{
		Roles:         roles,
		ExplicateK:    req.ExplicateK,
		ImplicateK:    req.ImplicateK,
		ForceFallback: req.ForceFallback,
	})
	if err != nil {
		if errors.Is(err, types.ErrInvalidArgument) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		logging.L(logging.CategoryServer).Error("selection failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "selection failed"})
		return
	}
	step("dual_select", selStart, "ok")

	graphStart := time.Now()
	selection = s.expander.Expand(r.Context(), selection, roles)
	graphMs := float64(time.Since(graphStart)) / float64(time.Millisecond)
	step("graph_expand", graphStart, "ok")

	packStart := time.Now()
	packed := s.packer.Pack(selection.Evidence)
	packingMs := float64(time.Since(packStart)) / float64(time.Millisecond)
	step("pack_context", packStart, "ok")

	answerStart := time.Now()
	answer, err := s.answer(r.Context(), req.Query, packed)
	if err != nil {
		answer = ""
		selection.Warnings = append(selection.Warnings, "answer generation failed: "+err.Error())
		step("generate_answer", answerStart, "error")
	} else {
		step("generate_answer", answerStart, "ok")
	}

	var reviewResult types.ReviewResult
	if s.reviewer != nil {
		reviewStart := time.Now()
		reviewResult = s.reviewer.ReviewAnswer(r.Context(), answer, req.Query, packed.Items)
		status := "ok"
		if reviewResult.Skipped {
			status = "skipped"
		}
		step("review_answer", reviewStart, status)
	} else {
		reviewResult = types.ReviewResult{Skipped: true, SkipReason: "reviewer_disabled"}
	}

	payload := map[string]any{
		"answer":                answer,
		"context":               contextItems(packed.Items),
		"contradictions":        contradictionItems(selection.Contradictions),
		"process_trace_summary": trace,
		"fallback": map[string]any{
			"used":   selection.Fallback.Used,
			"reason": selection.Fallback.Reason,
			"reduced_k": map[string]any{
				"explicate": selection.Fallback.ReducedK.Explicate,
				"implicate": selection.Fallback.ReducedK.Implicate,
			},
		},
		"timings": map[string]any{
			"retrieval_ms": selection.Timings.TotalWallTimeMs,
			"graph_ms":     graphMs,
			"packing_ms":   packingMs,
			"reviewer_ms":  reviewResult.LatencyMs,
			"total_ms":     float64(time.Since(totalStart)) / float64(time.Millisecond),
		},
		"warnings": warningItems(selection.Warnings),
		"review":   reviewItem(reviewResult),
		"metadata": map[string]any{
			"strategy":       selection.Metadata.Strategy,
			"filtered_count": selection.Metadata.FilteredCount,
			"order_key":      packed.OrderKey,
		},
	}

	writeJSON(w, http.StatusOK, redact.Response(payload, roles))
}

// contextItems renders evidence as the generic tree the redactor walks.
func contextItems(items []types.Evidence) []any {
	out := make([]any, 0, len(items))
	for _, ev := range items {
		out = append(out, map[string]any{
			"id":              ev.ID,
			"text":            ev.Text,
			"score":           ev.Score,
			"source_layer":    ev.SourceLayer,
			"role_view_level": ev.RoleViewLevel,
			"via_graph":       ev.ViaGraph,
			"provenance": map[string]any{
				"origin":    ev.Provenance.Origin,
				"author_id": ev.Provenance.AuthorID,
				"upload_id": ev.Provenance.UploadID,
			},
		})
	}
	return out
}

func contradictionItems(cs []types.Contradiction) []any {
	out := make([]any, 0, len(cs))
	for _, c := range cs {
		out = append(out, map[string]any{
			"subject":        c.Subject,
			"claim_a_source": c.ClaimASource,
			"claim_b_source": c.ClaimBSource,
		})
	}
	return out
}

func warningItems(ws []string) []any {
	out := make([]any, 0, len(ws))
	for _, w := range ws {
		out = append(out, w)
	}
	return out
}

// reviewItem serializes the review result, omitting score fields on skip.
func reviewItem(r types.ReviewResult) map[string]any {
	out := map[string]any{
		"skipped":    r.Skipped,
		"latency_ms": r.LatencyMs,
	}
	if r.SkipReason != "" {
		out["skip_reason"] = r.SkipReason
	}
	if r.Score != nil {
		out["score"] = *r.Score
	}
	if r.Confidence != nil {
		out["confidence"] = *r.Confidence
	}
	if len(r.Flags) > 0 {
		flags := make([]any, 0, len(r.Flags))
		for _, f := range r.Flags {
			flags = append(flags, f)
		}
		out["flags"] = flags
	}
	return out
}

// ingestRequest is the ingest endpoint's body.
type ingestRequest struct {
	FileID string `json:"file_id"`
	Chunks []struct {
		Text          string `json:"text"`
		Title         string `json:"title,omitempty"`
		RoleViewLevel int    `json:"role_view_level,omitempty"`
		Origin        string `json:"origin,omitempty"`
		AuthorID      string `json:"author_id,omitempty"`
		URL           string `json:"url,omitempty"`
	} `json:"chunks"`
}

// handleIngest runs the ingest pipeline over a chunk batch.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	roles := callerRoles(r)
	if !rbac.AnyHasCapability(roles, rbac.CapWriteGraph) {
		logging.Audit(logging.AuditRoleDenied, logging.SeverityMedium, "/ingest",
			"capability denied",
			map[string]any{"roles": roles, "capability": string(rbac.CapWriteGraph)})
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "missing capability: WRITE_GRAPH"})
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Chunks) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "chunks required"})
		return
	}

	inputs := make([]ingest.ChunkInput, 0, len(req.Chunks))
	for i, c := range req.Chunks {
		inputs = append(inputs, ingest.ChunkInput{
			Text:          c.Text,
			Title:         c.Title,
			FileID:        req.FileID,
			ChunkIdx:      i,
			RoleViewLevel: c.RoleViewLevel,
			Provenance: types.Provenance{
				Origin:   c.Origin,
				AuthorID: c.AuthorID,
				UploadID: req.FileID,
				URL:      c.URL,
			},
		})
	}

	outcomes, err := s.pipeline.IngestBatch(r.Context(), inputs)
	if err != nil {
		var extErr *guard.ExternalPersistenceError
		if errors.As(err, &extErr) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": err.Error()})
			return
		}
		logging.L(logging.CategoryServer).Error("ingest failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "ingest failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chunks": outcomes})
}
