package retrieval

import (
	"strings"
	"testing"

	"holograph/internal/types"
)

func evidence(id string, score float64, words int) types.Evidence {
	return types.Evidence{
		ID:    id,
		Score: score,
		Text:  strings.Repeat("word ", words),
	}
}

func TestPackDeterministic(t *testing.T) {
	input := []types.Evidence{
		evidence("c", 0.7, 10),
		evidence("a", 0.9, 10),
		evidence("b", 0.8, 10),
	}
	p := NewPacker(DefaultPackerConfig(), nil)

	first := p.Pack(input)
	second := p.Pack(input)
	if first.OrderKey != second.OrderKey {
		t.Fatalf("order key not stable: %s vs %s", first.OrderKey, second.OrderKey)
	}
	if len(first.Items) != 3 {
		t.Fatalf("items: %+v", first.Items)
	}
	for i, want := range []string{"a", "b", "c"} {
		if first.Items[i].ID != want {
			t.Fatalf("score order: %+v", first.Items)
		}
	}
}

func TestPackTiebreakOnID(t *testing.T) {
	input := []types.Evidence{
		evidence("z", 0.5, 5),
		evidence("a", 0.5, 5),
	}
	packed := NewPacker(DefaultPackerConfig(), nil).Pack(input)
	if packed.Items[0].ID != "a" {
		t.Fatalf("equal scores must order by id: %+v", packed.Items)
	}
}

func TestPackStopsAtBudget(t *testing.T) {
	// ~12 tokens each against a 30-token budget: two fit, the third breaks.
	input := []types.Evidence{
		evidence("a", 0.9, 10),
		evidence("b", 0.8, 10),
		evidence("c", 0.7, 10),
		// A tiny later item must not be backfilled after the break.
		evidence("d", 0.1, 1),
	}
	p := NewPacker(PackerConfig{TokenBudget: 30, SlackTokens: 0}, nil)
	packed := p.Pack(input)

	if len(packed.Items) != 2 {
		t.Fatalf("expected greedy cut at 2 items, got %+v", packed.Items)
	}
	if packed.TokensUsed > 30 {
		t.Fatalf("budget exceeded: %d", packed.TokensUsed)
	}
}

func TestPackExactBudgetBoundary(t *testing.T) {
	// One item whose cost equals the whole budget must be admitted.
	text := strings.Repeat("x", 400) // 100 tokens
	p := NewPacker(PackerConfig{TokenBudget: 100}, nil)
	packed := p.Pack([]types.Evidence{{ID: "a", Score: 1, Text: text}})
	if len(packed.Items) != 1 || packed.TokensUsed != 100 {
		t.Fatalf("boundary item: %+v used=%d", packed.Items, packed.TokensUsed)
	}
}

func TestPackDiversitySkip(t *testing.T) {
	same := func(id string, score float64) types.Evidence {
		ev := evidence(id, score, 10)
		ev.Provenance.UploadID = "u-1"
		return ev
	}
	input := []types.Evidence{
		same("a", 0.9), same("b", 0.8), same("c", 0.7),
		same("d", 0.6), same("e", 0.5),
	}
	p := NewPacker(PackerConfig{TokenBudget: 10000, SlackTokens: 0}, nil)
	packed := p.Pack(input)

	// After the third admission one same-source item is passed over.
	if len(packed.Items) != 4 {
		t.Fatalf("expected one diversity skip, got %+v", packed.Items)
	}
	for _, it := range packed.Items {
		if it.ID == "d" {
			t.Fatal("the skipped item must be d")
		}
	}
}

func TestPackDiversitySkipWaivedNearBudget(t *testing.T) {
	same := func(id string, score float64) types.Evidence {
		ev := evidence(id, score, 10)
		ev.Provenance.UploadID = "u-1"
		return ev
	}
	input := []types.Evidence{
		same("a", 0.9), same("b", 0.8), same("c", 0.7), same("d", 0.6),
	}
	// Budget fits all four with almost nothing to spare; the skip would waste
	// budget, so it is waived.
	p := NewPacker(PackerConfig{TokenBudget: 50, SlackTokens: 40}, nil)
	packed := p.Pack(input)
	if len(packed.Items) != 4 {
		t.Fatalf("skip should be waived near budget: %+v", packed.Items)
	}
}

func TestPackEmptyInput(t *testing.T) {
	packed := NewPacker(DefaultPackerConfig(), nil).Pack(nil)
	if len(packed.Items) != 0 || packed.TokensUsed != 0 {
		t.Fatalf("empty input: %+v", packed)
	}
	if packed.OrderKey == "" {
		t.Fatal("order key must be present even when empty")
	}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 1 {
		t.Fatal("minimum is one token")
	}
	if EstimateTokens(strings.Repeat("x", 8)) != 2 {
		t.Fatal("four characters per token")
	}
}
