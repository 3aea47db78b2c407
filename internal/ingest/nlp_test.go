package ingest

import (
	"context"
	"testing"

	"holograph/internal/types"
)

func TestExtractPredicates(t *testing.T) {
	nlp := NewHeuristicNLP()
	ctx := context.Background()

	tokens, err := nlp.Tokenize(ctx, "Thermal drift degrades accuracy and increases error rates")
	if err != nil {
		t.Fatal(err)
	}
	preds, err := nlp.ExtractPredicates(ctx, tokens, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 1 {
		t.Fatalf("predicates: %+v", preds)
	}
	p := preds[0]
	if p.Verb != "increase" || p.Polarity != types.PolarityPositive {
		t.Fatalf("predicate: %+v", p)
	}
	if p.Subject != "accuracy" || p.Object != "error" {
		t.Fatalf("arguments: %+v", p)
	}
}

func TestExtractPredicatesNegation(t *testing.T) {
	nlp := NewHeuristicNLP()
	ctx := context.Background()

	tokens, _ := nlp.Tokenize(ctx, "shielding does not increase drift")
	preds, err := nlp.ExtractPredicates(ctx, tokens, 20)
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 1 || preds[0].Polarity != types.PolarityNegative {
		t.Fatalf("negated predicate: %+v", preds)
	}
}

func TestExtractPredicatesCap(t *testing.T) {
	nlp := NewHeuristicNLP()
	ctx := context.Background()

	tokens, _ := nlp.Tokenize(ctx, "a shows b shows c shows d shows e")
	preds, err := nlp.ExtractPredicates(ctx, tokens, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(preds) != 2 {
		t.Fatalf("cap not applied: %d predicates", len(preds))
	}
}

func TestSuggestConceptsCapitalizedRuns(t *testing.T) {
	nlp := NewHeuristicNLP()
	ctx := context.Background()

	tokens, _ := nlp.Tokenize(ctx, "We applied Kalman Filtering to the sensor stream near Lake Tahoe")
	concepts, err := nlp.SuggestConcepts(ctx, tokens, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"Kalman Filtering": true, "Lake Tahoe": true}
	for _, c := range concepts {
		delete(want, c)
	}
	if len(want) != 0 {
		t.Fatalf("missing runs %v in %v", want, concepts)
	}
}

func TestSuggestConceptsFrequencyFallback(t *testing.T) {
	nlp := NewHeuristicNLP()
	ctx := context.Background()

	tokens, _ := nlp.Tokenize(ctx, "calibration affects output and calibration drifts while output varies")
	concepts, err := nlp.SuggestConcepts(ctx, tokens, 10)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, c := range concepts {
		if c == "calibration" {
			found = true
		}
	}
	if !found {
		t.Fatalf("repeated long token missing: %v", concepts)
	}
}

func TestSuggestConceptsCap(t *testing.T) {
	nlp := NewHeuristicNLP()
	ctx := context.Background()

	tokens, _ := nlp.Tokenize(ctx, "from Alpha then Bravo then Charlie then Delta")
	concepts, err := nlp.SuggestConcepts(ctx, tokens, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(concepts) != 2 {
		t.Fatalf("cap not applied: %v", concepts)
	}
}

func TestContradictionSubject(t *testing.T) {
	nlp := NewHeuristicNLP()
	frame := func(subject, verb string, polarity int) types.Frame {
		return types.Frame{Subject: subject, Verb: verb, Polarity: polarity}
	}

	subject, ok := nlp.ContradictionSubject(
		frame("drift", "increase", types.PolarityPositive),
		frame("Drift", "increase", types.PolarityNegative),
	)
	if !ok || subject != "drift" {
		t.Fatalf("opposite polarity same subject: %q %v", subject, ok)
	}

	if _, ok := nlp.ContradictionSubject(
		frame("drift", "increase", types.PolarityPositive),
		frame("drift", "increase", types.PolarityPositive),
	); ok {
		t.Fatal("same polarity must not conflict")
	}
	if _, ok := nlp.ContradictionSubject(
		frame("drift", "increase", types.PolarityPositive),
		frame("noise", "increase", types.PolarityNegative),
	); ok {
		t.Fatal("different subjects must not conflict")
	}
	if _, ok := nlp.ContradictionSubject(
		frame("drift", "increase", types.PolarityPositive),
		frame("drift", "decrease", types.PolarityNegative),
	); ok {
		t.Fatal("different verbs must not conflict")
	}
}
