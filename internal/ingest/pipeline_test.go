package ingest

import (
	"context"
	"errors"
	"testing"

	"holograph/internal/embedding"
	"holograph/internal/guard"
	"holograph/internal/store"
	"holograph/internal/types"
)

func pipelineFixture(t *testing.T, analysisEnabled bool) (*store.Store, *Pipeline) {
	t.Helper()
	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })

	embedder := embedding.NewDeterministic(64)
	analyzer := NewAnalyzer(NewHeuristicNLP(), nil, DefaultLimits(), true)
	committer := NewCommitter(s, nil, CommitterOptions{Embedder: embedder})
	p := NewPipeline(s, analyzer, committer, embedder, nil, nil, analysisEnabled)
	return s, p
}

func TestIngestChunkEndToEnd(t *testing.T) {
	s, p := pipelineFixture(t, true)

	outcome, err := p.IngestChunk(context.Background(), ChunkInput{
		Text:       "Thermal Drift increases calibration error in long deployments.",
		Title:      "drift note",
		FileID:     "file-1",
		Provenance: types.Provenance{Origin: "upload:report.pdf"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.MemoryID == "" || outcome.Truncated {
		t.Fatalf("outcome: %+v", outcome)
	}
	if outcome.Commit == nil || len(outcome.Commit.ConceptEntityIDs) == 0 {
		t.Fatalf("commit: %+v", outcome.Commit)
	}

	m, err := s.GetMemory(outcome.MemoryID)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Embedding) == 0 {
		t.Fatal("chunk must be embedded on ingest")
	}
}

func TestIngestChunkAnalysisDisabled(t *testing.T) {
	s, p := pipelineFixture(t, false)

	outcome, err := p.IngestChunk(context.Background(), ChunkInput{Text: "Drift increases error."})
	if err != nil {
		t.Fatal(err)
	}
	if outcome.Commit != nil {
		t.Fatal("analysis disabled must skip the commit")
	}
	stats, _ := s.Stats()
	if stats["memories"] != 1 || stats["entities"] != 0 {
		t.Fatalf("stats: %v", stats)
	}
}

func TestIngestChunkBlocksExternal(t *testing.T) {
	s, p := pipelineFixture(t, true)

	_, err := p.IngestChunk(context.Background(), ChunkInput{
		Text:       "fetched content",
		Provenance: types.Provenance{URL: "https://evil.example/doc"},
	})
	var perr *guard.ExternalPersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ExternalPersistenceError, got %v", err)
	}
	stats, _ := s.Stats()
	if stats["memories"] != 0 {
		t.Fatal("blocked chunk must not be stored")
	}
}

func TestIngestBatchBlocksBeforeAnyWrite(t *testing.T) {
	s, p := pipelineFixture(t, true)

	chunks := []ChunkInput{
		{Text: "a clean internal chunk"},
		{Text: "an external chunk", Provenance: types.Provenance{URL: "https://evil.example/doc"}},
	}
	outcomes, err := p.IngestBatch(context.Background(), chunks)
	var perr *guard.ExternalPersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ExternalPersistenceError, got %v", err)
	}
	if len(outcomes) != 0 {
		t.Fatalf("outcomes: %+v", outcomes)
	}

	// The clean chunk earlier in the batch is also withheld.
	stats, _ := s.Stats()
	if stats["memories"] != 0 || stats["entities"] != 0 || stats["entity_edges"] != 0 {
		t.Fatalf("batch guard must run before any write: %v", stats)
	}
}

func TestIngestBatchAllClean(t *testing.T) {
	s, p := pipelineFixture(t, true)

	outcomes, err := p.IngestBatch(context.Background(), []ChunkInput{
		{Text: "Drift increases error.", FileID: "f", ChunkIdx: 0},
		{Text: "Shielding reduces noise.", FileID: "f", ChunkIdx: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("outcomes: %+v", outcomes)
	}
	stats, _ := s.Stats()
	if stats["memories"] != 2 {
		t.Fatalf("stats: %v", stats)
	}
}
