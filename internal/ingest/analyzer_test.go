package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"holograph/internal/metrics"
	"holograph/internal/types"
)

// stallNLP blocks in the configured stage until the chunk budget expires.
type stallNLP struct {
	HeuristicNLP
	stallAt string
}

func (s *stallNLP) Tokenize(ctx context.Context, text string) ([]string, error) {
	if s.stallAt == "tokenize" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.HeuristicNLP.Tokenize(ctx, text)
}

func (s *stallNLP) ExtractPredicates(ctx context.Context, tokens []string, maxVerbs int) ([]types.Predicate, error) {
	if s.stallAt == "predicates" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.HeuristicNLP.ExtractPredicates(ctx, tokens, maxVerbs)
}

func (s *stallNLP) SuggestConcepts(ctx context.Context, tokens []string, maxConcepts int) ([]string, error) {
	if s.stallAt == "concepts" {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.HeuristicNLP.SuggestConcepts(ctx, tokens, maxConcepts)
}

func TestAnalyzeChunk(t *testing.T) {
	a := NewAnalyzer(NewHeuristicNLP(), nil, DefaultLimits(), true)

	result, err := a.AnalyzeChunk(context.Background(),
		"Thermal Drift increases calibration error. Shielding shows reduced noise.")
	if err != nil {
		t.Fatal(err)
	}
	if result.Truncated {
		t.Fatal("unexpected truncation")
	}
	if result.TokensConsumed == 0 {
		t.Fatal("token count missing")
	}
	if len(result.Predicates) == 0 || len(result.Frames) == 0 {
		t.Fatalf("extraction empty: %+v", result)
	}
	if len(result.Frames) != len(result.Predicates) {
		t.Fatalf("one frame per predicate: %d vs %d", len(result.Frames), len(result.Predicates))
	}
	for _, f := range result.Frames {
		if f.LocalID == "" || f.Kind == "" {
			t.Fatalf("frame: %+v", f)
		}
		if len(f.Concepts) != len(result.Concepts) {
			t.Fatalf("frames must reference the chunk concepts: %+v", f)
		}
	}
}

func TestAnalyzeChunkEmptyText(t *testing.T) {
	a := NewAnalyzer(NewHeuristicNLP(), nil, DefaultLimits(), false)
	if _, err := a.AnalyzeChunk(context.Background(), "   \n  "); !errors.Is(err, types.ErrInvalidArgument) {
		t.Fatalf("empty chunk: %v", err)
	}
}

func TestAnalyzeChunkBudgetTruncates(t *testing.T) {
	reg := metrics.NewRegistry()
	limits := DefaultLimits()
	limits.MaxPerChunk = 10 * time.Millisecond
	a := NewAnalyzer(&stallNLP{stallAt: "concepts"}, reg, limits, false)

	start := time.Now()
	result, err := a.AnalyzeChunk(context.Background(), "Drift increases error")
	if err != nil {
		t.Fatalf("truncation is not an error: %v", err)
	}
	if !result.Truncated {
		t.Fatal("expected truncated result")
	}
	// The partial work done before the stall survives.
	if len(result.Predicates) == 0 {
		t.Fatalf("partial predicates lost: %+v", result)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Fatal("analysis ran far past its budget")
	}
	if reg.GetCounter("ingest_truncated", map[string]string{"stage": "concepts"}) != 1 {
		t.Fatal("truncation counter missing")
	}
}

func TestAnalyzeChunkTruncatesAtFirstStage(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxPerChunk = 10 * time.Millisecond
	a := NewAnalyzer(&stallNLP{stallAt: "tokenize"}, nil, limits, false)

	result, err := a.AnalyzeChunk(context.Background(), "Drift increases error")
	if err != nil {
		t.Fatal(err)
	}
	if !result.Truncated || result.TokensConsumed != 0 {
		t.Fatalf("result: %+v", result)
	}
}

func TestAnalyzeChunkFrameCap(t *testing.T) {
	limits := DefaultLimits()
	limits.MaxFrames = 2
	a := NewAnalyzer(NewHeuristicNLP(), nil, limits, false)

	result, err := a.AnalyzeChunk(context.Background(),
		"a shows b. c shows d. e shows f. g shows h.")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Frames) != 2 {
		t.Fatalf("frame cap: %d frames", len(result.Frames))
	}
}

func TestFrameKinds(t *testing.T) {
	cases := []struct {
		verb string
		text string
		want string
	}{
		{"measure", "we measured it", types.FrameKindMeasurement},
		{"increase", "drift increased", types.FrameKindMeasurement},
		{"show", "data shows drift", types.FrameKindEvidence},
		{"prove", "this proves it", types.FrameKindEvidence},
		{"suggest", "this suggests drift", types.FrameKindHypothesis},
		{"cause", "drift might cause failure", types.FrameKindHypothesis},
		{"cause", "drift causes failure", types.FrameKindClaim},
	}
	for _, tc := range cases {
		got := frameKind(types.Predicate{Verb: tc.verb}, tc.text)
		if got != tc.want {
			t.Errorf("frameKind(%q, %q) = %q, want %q", tc.verb, tc.text, got, tc.want)
		}
	}
}

func TestDetectContradictions(t *testing.T) {
	a := NewAnalyzer(NewHeuristicNLP(), nil, DefaultLimits(), true)

	result, err := a.AnalyzeChunk(context.Background(),
		"Shielding increases stability. Shielding never increases stability.")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Contradictions) != 1 {
		t.Fatalf("contradictions: %+v", result.Contradictions)
	}
	c := result.Contradictions[0]
	if c.Subject != "Shielding" || c.ClaimASource == c.ClaimBSource {
		t.Fatalf("triple: %+v", c)
	}
}

func TestContradictionsDisabled(t *testing.T) {
	a := NewAnalyzer(NewHeuristicNLP(), nil, DefaultLimits(), false)

	result, err := a.AnalyzeChunk(context.Background(),
		"Shielding increases stability. Shielding never increases stability.")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Contradictions) != 0 {
		t.Fatalf("detection must be off: %+v", result.Contradictions)
	}
}
