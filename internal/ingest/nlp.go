// Package ingest is the write-side core: per-chunk semantic analysis under a
// hard time budget and the idempotent commit of the extracted structure into
// the entity graph.
package ingest

import (
	"context"
	"strings"
	"unicode"

	"holograph/internal/types"
)

// Capabilities is the NLP surface the analyzer depends on. The heuristic
// engine below is the offline default; model-backed engines implement the
// same interface.
type Capabilities interface {
	// Tokenize splits text into word tokens.
	Tokenize(ctx context.Context, text string) ([]string, error)

	// ExtractPredicates finds verbs with argument roles, at most maxVerbs.
	ExtractPredicates(ctx context.Context, tokens []string, maxVerbs int) ([]types.Predicate, error)

	// SuggestConcepts proposes canonical concept names, at most maxConcepts.
	SuggestConcepts(ctx context.Context, tokens []string, maxConcepts int) ([]string, error)

	// ContradictionSubject derives the subject term for a contradiction
	// between two frames, and whether they genuinely conflict.
	ContradictionSubject(a, b types.Frame) (string, bool)
}

// HeuristicNLP is a deterministic lexicon-driven engine. It keeps ingest
// functional with no model in the loop; precision is deliberately modest.
type HeuristicNLP struct{}

// NewHeuristicNLP returns the lexicon engine.
func NewHeuristicNLP() *HeuristicNLP { return &HeuristicNLP{} }

// verbLexicon is the closed verb set the heuristic engine recognizes,
// normalized to base form.
var verbLexicon = map[string]string{
	"is": "be", "are": "be", "was": "be", "were": "be", "be": "be",
	"has": "have", "have": "have", "had": "have",
	"shows": "show", "show": "show", "showed": "show", "shown": "show",
	"demonstrates": "demonstrate", "demonstrate": "demonstrate",
	"causes": "cause", "cause": "cause", "caused": "cause",
	"increases": "increase", "increase": "increase", "increased": "increase",
	"decreases": "decrease", "decrease": "decrease", "decreased": "decrease",
	"supports": "support", "support": "support", "supported": "support",
	"contradicts": "contradict", "contradict": "contradict",
	"requires": "require", "require": "require", "required": "require",
	"contains": "contain", "contain": "contain", "contained": "contain",
	"measures": "measure", "measure": "measure", "measured": "measure",
	"suggests": "suggest", "suggest": "suggest", "suggested": "suggest",
	"proves": "prove", "prove": "prove", "proved": "prove",
	"improves": "improve", "improve": "improve", "improved": "improve",
	"reduces": "reduce", "reduce": "reduce", "reduced": "reduce",
	"produces": "produce", "produce": "produce", "produced": "produce",
	"enables": "enable", "enable": "enable", "enabled": "enable",
	"prevents": "prevent", "prevent": "prevent", "prevented": "prevent",
}

// negators flip predicate polarity when found immediately before a verb.
var negators = map[string]bool{
	"not": true, "never": true, "no": true, "cannot": true,
	"isn't": true, "aren't": true, "wasn't": true, "weren't": true,
	"doesn't": true, "don't": true, "didn't": true, "won't": true,
}

// stopwords are excluded from concept suggestion.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
	"of": true, "in": true, "on": true, "to": true, "for": true, "with": true,
	"by": true, "at": true, "from": true, "as": true, "that": true,
	"this": true, "these": true, "those": true, "it": true, "its": true,
}

// Tokenize splits on non-alphanumerics, preserving case for concept
// detection.
func (h *HeuristicNLP) Tokenize(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}), nil
}

// ExtractPredicates scans for lexicon verbs. The nearest non-stopword before
// the verb becomes the subject, the nearest after becomes the object, and a
// negator directly before the verb flips polarity.
func (h *HeuristicNLP) ExtractPredicates(ctx context.Context, tokens []string, maxVerbs int) ([]types.Predicate, error) {
	var out []types.Predicate
	for i, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		base, ok := verbLexicon[strings.ToLower(tok)]
		if !ok {
			continue
		}
		p := types.Predicate{Verb: base, Polarity: types.PolarityPositive}
		if i > 0 && negators[strings.ToLower(tokens[i-1])] {
			p.Polarity = types.PolarityNegative
		}
		p.Subject = nearestTerm(tokens, i, -1)
		p.Object = nearestTerm(tokens, i, +1)
		out = append(out, p)
		if len(out) >= maxVerbs {
			break
		}
	}
	return out, nil
}

// SuggestConcepts collects capitalized runs (multi-word proper terms first)
// and falls back to frequent long tokens.
func (h *HeuristicNLP) SuggestConcepts(ctx context.Context, tokens []string, maxConcepts int) ([]string, error) {
	var concepts []string
	seen := make(map[string]bool)
	add := func(name string) bool {
		key := strings.ToLower(name)
		if seen[key] {
			return len(concepts) < maxConcepts
		}
		seen[key] = true
		concepts = append(concepts, name)
		return len(concepts) < maxConcepts
	}

	// Capitalized runs: "Machine Learning" beats "Machine" and "Learning".
	for i := 0; i < len(tokens); i++ {
		if err := ctx.Err(); err != nil {
			return concepts, err
		}
		// Mid-sentence capitals only; a bare sentence-initial capital is too
		// noisy to treat as a term.
		if !isCapitalizedTerm(tokens[i]) || i == 0 {
			continue
		}
		run := []string{tokens[i]}
		for i+1 < len(tokens) && isCapitalizedTerm(tokens[i+1]) {
			i++
			run = append(run, tokens[i])
		}
		if !add(strings.Join(run, " ")) {
			return concepts, nil
		}
	}

	// Frequency fallback for lowercase corpora.
	if len(concepts) < maxConcepts {
		counts := make(map[string]int)
		for _, tok := range tokens {
			lower := strings.ToLower(tok)
			if len(lower) >= 5 && !stopwords[lower] {
				if _, isVerb := verbLexicon[lower]; !isVerb {
					counts[lower]++
				}
			}
		}
		for _, tok := range tokens {
			lower := strings.ToLower(tok)
			if counts[lower] >= 2 {
				counts[lower] = 0
				if !add(lower) {
					break
				}
			}
		}
	}
	return concepts, nil
}

// ContradictionSubject pairs frames about the same subject and verb with
// opposite polarity. The shared subject names the contradiction.
func (h *HeuristicNLP) ContradictionSubject(a, b types.Frame) (string, bool) {
	if a.Subject == "" || !strings.EqualFold(a.Subject, b.Subject) {
		return "", false
	}
	if a.Verb != b.Verb {
		return "", false
	}
	if a.Polarity == b.Polarity {
		return "", false
	}
	return a.Subject, true
}

func nearestTerm(tokens []string, from, step int) string {
	for i := from + step; i >= 0 && i < len(tokens); i += step {
		lower := strings.ToLower(tokens[i])
		if stopwords[lower] || negators[lower] {
			continue
		}
		if _, isVerb := verbLexicon[lower]; isVerb {
			continue
		}
		return tokens[i]
	}
	return ""
}

func isCapitalizedTerm(tok string) bool {
	if len(tok) < 2 {
		return false
	}
	r := []rune(tok)
	return unicode.IsUpper(r[0]) && unicode.IsLower(r[1])
}
