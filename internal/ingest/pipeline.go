package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"holograph/internal/embedding"
	"holograph/internal/guard"
	"holograph/internal/logging"
	"holograph/internal/metrics"
	"holograph/internal/store"
	"holograph/internal/types"
	"holograph/internal/vector"
)

// ChunkInput is one chunk handed to the pipeline.
type ChunkInput struct {
	Text          string
	Title         string
	FileID        string
	ChunkIdx      int
	RoleViewLevel int
	Provenance    types.Provenance
}

// ChunkOutcome reports what happened to one chunk.
type ChunkOutcome struct {
	MemoryID  string              `json:"memory_id"`
	Truncated bool                `json:"truncated"`
	Commit    *types.CommitResult `json:"commit,omitempty"`
	Err       string              `json:"error,omitempty"`
}

// Pipeline is the full ingest path for a chunk: store the memory, embed it,
// analyze it, commit the extracted structure.
type Pipeline struct {
	store     *store.Store
	analyzer  *Analyzer
	committer *Committer
	embedder  embedding.Engine
	fallback  *vector.FallbackBackend
	metrics   *metrics.Registry

	analysisEnabled bool
}

// NewPipeline wires the ingest path.
func NewPipeline(s *store.Store, analyzer *Analyzer, committer *Committer,
	embedder embedding.Engine, fallback *vector.FallbackBackend,
	reg *metrics.Registry, analysisEnabled bool) *Pipeline {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Pipeline{
		store:           s,
		analyzer:        analyzer,
		committer:       committer,
		embedder:        embedder,
		fallback:        fallback,
		metrics:         reg,
		analysisEnabled: analysisEnabled,
	}
}

// IngestChunk processes one chunk end to end. External content fails the
// whole chunk before any write. A truncated analysis stores the memory but
// skips the commit.
func (p *Pipeline) IngestChunk(ctx context.Context, in ChunkInput) (ChunkOutcome, error) {
	log := logging.L(logging.CategoryIngest)
	timer := p.metrics.StartTimer("ingest_chunk_ms", nil)
	defer timer.Stop()

	item := guard.Item{ProvenanceURL: in.Provenance.URL}
	if _, err := guard.ForbidExternalPersistence([]guard.Item{item}, "chunk", true); err != nil {
		return ChunkOutcome{}, err
	}

	memory := &types.Memory{
		Text:          in.Text,
		Title:         in.Title,
		RoleViewLevel: in.RoleViewLevel,
		Provenance:    in.Provenance,
	}
	if p.embedder != nil {
		vec, err := p.embedder.Embed(ctx, in.Text)
		if err != nil {
			log.Warn("chunk embedding failed", zap.Error(err))
		} else {
			memory.Embedding = vec
		}
	}

	memoryID, err := p.store.UpsertMemory(memory)
	if err != nil {
		return ChunkOutcome{}, fmt.Errorf("store chunk: %w", err)
	}
	if p.fallback != nil {
		p.fallback.MirrorMemory(ctx, memory)
	}

	outcome := ChunkOutcome{MemoryID: memoryID}
	if !p.analysisEnabled || p.analyzer == nil || p.committer == nil {
		return outcome, nil
	}

	analysis, err := p.analyzer.AnalyzeChunk(ctx, in.Text)
	if err != nil {
		outcome.Err = err.Error()
		return outcome, nil
	}
	if analysis.Truncated {
		// The budget expired mid-analysis: keep the memory, skip the graph.
		outcome.Truncated = true
		return outcome, nil
	}

	commit, err := p.committer.CommitAnalysis(ctx, analysis, memoryID, in.FileID, in.ChunkIdx, []guard.Item{item})
	if err != nil {
		return outcome, fmt.Errorf("commit chunk: %w", err)
	}
	outcome.Commit = commit
	return outcome, nil
}

// IngestBatch runs chunks in order, collecting per-chunk outcomes. The guard
// scans the whole batch up front: one external item fails the batch before
// any chunk is written. Other per-chunk trouble is recorded and the batch
// continues.
func (p *Pipeline) IngestBatch(ctx context.Context, chunks []ChunkInput) ([]ChunkOutcome, error) {
	items := make([]guard.Item, len(chunks))
	for i, in := range chunks {
		items[i] = guard.Item{ProvenanceURL: in.Provenance.URL}
	}
	if _, err := guard.ForbidExternalPersistence(items, "ingest_batch", true); err != nil {
		return nil, err
	}

	outcomes := make([]ChunkOutcome, 0, len(chunks))
	for _, in := range chunks {
		out, err := p.IngestChunk(ctx, in)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
