package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"holograph/internal/logging"
	"holograph/internal/metrics"
	"holograph/internal/types"
)

// Limits caps the analyzer's per-chunk work.
type Limits struct {
	MaxPerChunk time.Duration
	MaxVerbs    int
	MaxFrames   int
	MaxConcepts int
}

// DefaultLimits returns the standard per-chunk caps.
func DefaultLimits() Limits {
	return Limits{
		MaxPerChunk: 40 * time.Millisecond,
		MaxVerbs:    20,
		MaxFrames:   10,
		MaxConcepts: 10,
	}
}

// Analyzer extracts semantic structure from chunks. Each chunk runs under its
// own cancellable deadline; on expiry the analyzer returns whatever it has,
// tagged truncated, and the caller must not commit that chunk.
type Analyzer struct {
	nlp           Capabilities
	metrics       *metrics.Registry
	limits        Limits
	contradiction bool
}

// NewAnalyzer creates an analyzer. contradictions toggles the detection
// stage.
func NewAnalyzer(nlp Capabilities, reg *metrics.Registry, limits Limits, contradictions bool) *Analyzer {
	if limits.MaxPerChunk <= 0 {
		limits.MaxPerChunk = 40 * time.Millisecond
	}
	if limits.MaxVerbs <= 0 {
		limits.MaxVerbs = 20
	}
	if limits.MaxFrames <= 0 {
		limits.MaxFrames = 10
	}
	if limits.MaxConcepts <= 0 {
		limits.MaxConcepts = 10
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Analyzer{nlp: nlp, metrics: reg, limits: limits, contradiction: contradictions}
}

// AnalyzeChunk runs the pipeline: tokenize, extract predicates, assemble
// frames, suggest concepts, detect contradictions. Only an empty text is an
// error; budget expiry yields a truncated partial result.
func (a *Analyzer) AnalyzeChunk(ctx context.Context, text string) (*types.AnalysisResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty chunk", types.ErrInvalidArgument)
	}

	timer := a.metrics.StartTimer("ingest_analyze_ms", nil)
	defer timer.Stop()

	chunkCtx, cancel := context.WithTimeout(ctx, a.limits.MaxPerChunk)
	defer cancel()

	result := &types.AnalysisResult{}
	truncate := func(stage string) (*types.AnalysisResult, error) {
		logging.L(logging.CategoryIngest).Debug("chunk analysis truncated",
			zap.String("stage", stage),
			zap.Duration("budget", a.limits.MaxPerChunk))
		a.metrics.IncrementCounter("ingest_truncated", map[string]string{"stage": stage})
		result.Truncated = true
		return result, nil
	}

	tokens, err := a.nlp.Tokenize(chunkCtx, text)
	if err != nil {
		return truncate("tokenize")
	}
	result.TokensConsumed = len(tokens)

	predicates, err := a.nlp.ExtractPredicates(chunkCtx, tokens, a.limits.MaxVerbs)
	result.Predicates = predicates
	if err != nil {
		return truncate("predicates")
	}

	result.Frames = a.assembleFrames(predicates, text)
	if chunkCtx.Err() != nil {
		return truncate("frames")
	}

	concepts, err := a.nlp.SuggestConcepts(chunkCtx, tokens, a.limits.MaxConcepts)
	result.Concepts = concepts
	if err != nil {
		return truncate("concepts")
	}

	// Frames reference the concepts found in the same chunk.
	for i := range result.Frames {
		result.Frames[i].Concepts = concepts
	}

	if a.contradiction {
		result.Contradictions = a.detectContradictions(result.Frames)
		if chunkCtx.Err() != nil {
			return truncate("contradictions")
		}
	}

	return result, nil
}

// assembleFrames lifts predicates into frames, capped at MaxFrames. The
// frame kind comes from surface cues: measurements carry digits, hypotheses
// hedge, evidence verbs demonstrate.
func (a *Analyzer) assembleFrames(predicates []types.Predicate, text string) []types.Frame {
	lower := strings.ToLower(text)
	var frames []types.Frame
	for i, p := range predicates {
		if len(frames) >= a.limits.MaxFrames {
			break
		}
		frames = append(frames, types.Frame{
			LocalID:  fmt.Sprintf("frame-%d", i+1),
			Kind:     frameKind(p, lower),
			Subject:  p.Subject,
			Verb:     p.Verb,
			Object:   p.Object,
			Polarity: p.Polarity,
		})
	}
	return frames
}

func frameKind(p types.Predicate, lowerText string) string {
	switch p.Verb {
	case "measure", "increase", "decrease", "reduce":
		return types.FrameKindMeasurement
	case "show", "demonstrate", "prove", "support":
		return types.FrameKindEvidence
	case "suggest":
		return types.FrameKindHypothesis
	}
	for _, hedge := range []string{"might ", "may ", "could ", "possibly"} {
		if strings.Contains(lowerText, hedge) {
			return types.FrameKindHypothesis
		}
	}
	return types.FrameKindClaim
}

// detectContradictions pairs frames through the NLP capability and emits one
// triple per conflicting pair, keyed by the frames' local ids.
func (a *Analyzer) detectContradictions(frames []types.Frame) []types.Contradiction {
	var out []types.Contradiction
	for i := 0; i < len(frames); i++ {
		for j := i + 1; j < len(frames); j++ {
			subject, conflict := a.nlp.ContradictionSubject(frames[i], frames[j])
			if !conflict {
				continue
			}
			out = append(out, types.Contradiction{
				Subject:      subject,
				ClaimASource: frames[i].LocalID,
				ClaimBSource: frames[j].LocalID,
			})
		}
	}
	return out
}
