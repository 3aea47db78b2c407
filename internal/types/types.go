// Package types defines the shared domain types for holograph: persistent
// entities (memories, concept/frame entities, edges, jobs) and the transient
// request-scoped results exchanged between the retrieval and ingest cores.
package types

import "time"

// =============================================================================
// PERSISTENT ENTITIES
// =============================================================================

// Provenance records where a memory came from.
type Provenance struct {
	Origin   string `json:"origin,omitempty"`
	AuthorID string `json:"author_id,omitempty"`
	UploadID string `json:"upload_id,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Contradiction is a {subject, claim A, claim B} triple discovered during
// analysis or graph expansion. Identity is the full triple.
type Contradiction struct {
	Subject      string `json:"subject"`
	ClaimASource string `json:"claim_a_source"`
	ClaimBSource string `json:"claim_b_source"`
}

// Memory is one ingested chunk in the explicate layer.
type Memory struct {
	ID             string          `json:"id"`
	Text           string          `json:"text"`
	Title          string          `json:"title,omitempty"`
	Type           string          `json:"type"`
	RoleViewLevel  int             `json:"role_view_level"`
	Provenance     Provenance      `json:"provenance"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
	Embedding      []float32       `json:"-"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Entity type tags.
const (
	EntityTypeConcept  = "concept"
	EntityTypeArtifact = "artifact"
)

// Entity is an implicate-layer node: a concept or a frame artifact.
type Entity struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Type          string         `json:"type"`
	RoleViewLevel int            `json:"role_view_level"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Edge relations between entities.
const (
	RelationEvidenceOf     = "evidence_of"
	RelationSupports       = "supports"
	RelationContradicts    = "contradicts"
	RelationMentions       = "mentions"
	RelationReferences     = "references"
	RelationAffiliatedWith = "affiliated_with"
)

// Edge is a typed directed relation between two entities.
// Unique by (FromID, ToID, Relation).
type Edge struct {
	ID       string         `json:"id"`
	FromID   string         `json:"from_id"`
	ToID     string         `json:"to_id"`
	Relation string         `json:"relation"`
	Weight   float64        `json:"weight,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Job statuses.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// JobKindImplicateRefresh recomputes implicate-layer artifacts for the
// entities named in the payload.
const JobKindImplicateRefresh = "implicate_refresh"

// Job is a unit of deferred work created by the commit engine.
type Job struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Payload    []string  `json:"payload"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// =============================================================================
// RETRIEVAL RESULTS (transient, owned by the process)
// =============================================================================

// Evidence layers.
const (
	LayerExplicate = "explicate"
	LayerImplicate = "implicate"
)

// Evidence is one item in a selection result.
type Evidence struct {
	ID            string     `json:"id"`
	Text          string     `json:"text"`
	Score         float64    `json:"score"`
	SourceLayer   string     `json:"source_layer"`
	Provenance    Provenance `json:"provenance"`
	RoleViewLevel int        `json:"role_view_level"`
	EntityID      string     `json:"entity_id,omitempty"`
	ViaGraph      bool       `json:"via_graph,omitempty"`
}

// ReducedK records the per-layer caps applied in fallback mode.
type ReducedK struct {
	Explicate int `json:"explicate"`
	Implicate int `json:"implicate"`
}

// FallbackInfo describes whether and why the secondary backend served the
// query.
type FallbackInfo struct {
	Used     bool     `json:"used"`
	Reason   string   `json:"reason,omitempty"`
	ReducedK ReducedK `json:"reduced_k"`
}

// LegTiming records one selector leg's outcome.
type LegTiming struct {
	LatencyMs float64 `json:"latency_ms"`
	TimedOut  bool    `json:"timed_out"`
	Err       string  `json:"error,omitempty"`
}

// SelectionTimings aggregates per-leg and wall-clock timings.
type SelectionTimings struct {
	Explicate       LegTiming `json:"explicate"`
	Implicate       LegTiming `json:"implicate"`
	FallbackMs      float64   `json:"fallback_ms,omitempty"`
	TotalWallTimeMs float64   `json:"total_wall_time_ms"`
}

// SelectionMetadata carries strategy and filtering details.
type SelectionMetadata struct {
	Strategy      string `json:"strategy"`
	FilteredCount int    `json:"filtered_count"`
}

// SelectionResult is the dual selector's structured output. The selector
// never fails on backend trouble; it annotates warnings instead.
type SelectionResult struct {
	Evidence       []Evidence        `json:"evidence"`
	Contradictions []Contradiction   `json:"contradictions,omitempty"`
	Timings        SelectionTimings  `json:"timings"`
	Warnings       []string          `json:"warnings,omitempty"`
	Fallback       FallbackInfo      `json:"fallback"`
	Metadata       SelectionMetadata `json:"metadata"`
}

// =============================================================================
// INGEST RESULTS
// =============================================================================

// Predicate polarity values.
const (
	PolarityPositive = 1
	PolarityNegative = -1
)

// Predicate is a verb with argument roles extracted from a chunk.
type Predicate struct {
	Verb     string `json:"verb"`
	Subject  string `json:"subject,omitempty"`
	Object   string `json:"object,omitempty"`
	Polarity int    `json:"polarity"`
}

// Frame kinds.
const (
	FrameKindClaim       = "claim"
	FrameKindEvidence    = "evidence"
	FrameKindMeasurement = "measurement"
	FrameKindHypothesis  = "hypothesis"
)

// Frame is a predicate/event structure bound to a chunk.
type Frame struct {
	LocalID  string   `json:"local_id"`
	Kind     string   `json:"kind"`
	Subject  string   `json:"subject,omitempty"`
	Verb     string   `json:"verb"`
	Object   string   `json:"object,omitempty"`
	Polarity int      `json:"polarity"`
	Concepts []string `json:"concepts,omitempty"`
}

// AnalysisResult is the analyzer's per-chunk output. Truncated means the
// per-chunk budget expired and the caller must not commit this chunk.
type AnalysisResult struct {
	Predicates     []Predicate     `json:"predicates"`
	Frames         []Frame         `json:"frames"`
	Concepts       []string        `json:"concepts"`
	Contradictions []Contradiction `json:"contradictions,omitempty"`
	TokensConsumed int             `json:"tokens_consumed"`
	Truncated      bool            `json:"truncated"`
}

// CommitResult reports what an idempotent commit touched.
type CommitResult struct {
	ConceptEntityIDs []string `json:"concept_entity_ids"`
	FrameEntityIDs   []string `json:"frame_entity_ids"`
	EdgeIDs          []string `json:"edge_ids"`
	JobsEnqueued     int      `json:"jobs_enqueued"`
	Errors           []string `json:"errors,omitempty"`
}

// =============================================================================
// REVIEW
// =============================================================================

// ReviewResult is the reviewer's output. Score fields are omitted when the
// review was skipped; Skipped and LatencyMs are always present.
type ReviewResult struct {
	Skipped    bool           `json:"skipped"`
	SkipReason string         `json:"skip_reason,omitempty"`
	Score      *float64       `json:"score,omitempty"`
	Confidence *float64       `json:"confidence,omitempty"`
	Flags      []string       `json:"flags,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	LatencyMs  float64        `json:"latency_ms"`
}
