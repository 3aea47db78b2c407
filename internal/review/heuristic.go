package review

import (
	"context"
	"strings"

	"holograph/internal/types"
)

// HeuristicJudge scores answers by lexical grounding: the fraction of answer
// terms that appear in the packed evidence. It is the offline default; model
// backed judges plug in behind the same interface.
type HeuristicJudge struct{}

// NewHeuristicJudge returns the lexical judge.
func NewHeuristicJudge() *HeuristicJudge { return &HeuristicJudge{} }

// Review computes term overlap between answer and evidence.
func (h *HeuristicJudge) Review(ctx context.Context, answer, query string, evidence []types.Evidence) (Judgment, error) {
	if err := ctx.Err(); err != nil {
		return Judgment{}, err
	}

	answerTerms := significantTerms(answer)
	if len(answerTerms) == 0 {
		return Judgment{
			Score:      0,
			Confidence: 0,
			Flags:      []string{"empty_answer"},
		}, nil
	}

	corpus := make(map[string]bool)
	for _, ev := range evidence {
		for _, t := range significantTerms(ev.Text) {
			corpus[t] = true
		}
	}

	grounded := 0
	for _, t := range answerTerms {
		if corpus[t] {
			grounded++
		}
	}
	score := float64(grounded) / float64(len(answerTerms))

	var flags []string
	if score < 0.3 {
		flags = append(flags, "weakly_grounded")
	}
	if len(evidence) == 0 {
		flags = append(flags, "no_context")
	}

	// Confidence grows with the amount of evidence the score was computed
	// against, saturating at 8 items.
	confidence := float64(len(evidence)) / 8
	if confidence > 1 {
		confidence = 1
	}

	return Judgment{
		Score:      score,
		Confidence: confidence,
		Flags:      flags,
		Details: map[string]any{
			"grounded_terms": grounded,
			"answer_terms":   len(answerTerms),
			"evidence_items": len(evidence),
		},
	}, nil
}

// significantTerms lowercases and keeps tokens of four or more letters.
func significantTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 4 {
			out = append(out, f)
		}
	}
	return out
}
