package retrieval

import (
	"fmt"
	"hash/fnv"
	"sort"

	"holograph/internal/metrics"
	"holograph/internal/types"
)

// DefaultTokenBudget bounds the packed context when the caller does not set
// one.
const DefaultTokenBudget = 2048

// PackerConfig tunes the context packer.
type PackerConfig struct {
	TokenBudget int
	// SlackTokens is how far under budget a diversity skip may leave the
	// result before the skip is waived.
	SlackTokens int
}

// DefaultPackerConfig returns the standard packing parameters.
func DefaultPackerConfig() PackerConfig {
	return PackerConfig{
		TokenBudget: DefaultTokenBudget,
		SlackTokens: 128,
	}
}

// PackedContext is the packer's output: a budget-fitting ordered subset with
// a deterministic order key.
type PackedContext struct {
	Items      []types.Evidence `json:"items"`
	OrderKey   string           `json:"order_key"`
	TokensUsed int              `json:"tokens_used"`
}

// Packer assembles the final evidence set under a token budget with a
// diversity pass.
type Packer struct {
	cfg     PackerConfig
	metrics *metrics.Registry
}

// NewPacker creates a packer.
func NewPacker(cfg PackerConfig, reg *metrics.Registry) *Packer {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Packer{cfg: cfg, metrics: reg}
}

// Pack selects and orders evidence. Identical inputs always produce the
// identical output: sorting breaks score ties on id, and the diversity skip
// is a pure function of admission order.
func (p *Packer) Pack(evidence []types.Evidence) PackedContext {
	timer := p.metrics.StartTimer("packing_ms", nil)
	defer timer.Stop()

	sorted := make([]types.Evidence, len(evidence))
	copy(sorted, evidence)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})

	var packed PackedContext
	remaining := p.cfg.TokenBudget
	admitted := 0
	lastSource := ""
	lastSkipAt := -1

	for i := 0; i < len(sorted); i++ {
		item := sorted[i]
		cost := EstimateTokens(item.Text)
		if cost > remaining {
			// Greedy: stop at the first item that does not fit. Smaller
			// later items are not backfilled, keeping the order stable.
			break
		}

		// Diversity: after every third admission, pass over one same-source
		// item, unless doing so would leave too much budget unused.
		if admitted > 0 && admitted%3 == 0 && lastSkipAt != admitted &&
			sourceOf(item) == lastSource &&
			remaining-cost > p.cfg.SlackTokens {
			lastSkipAt = admitted
			continue
		}

		packed.Items = append(packed.Items, item)
		packed.TokensUsed += cost
		remaining -= cost
		admitted++
		lastSource = sourceOf(item)
	}

	packed.OrderKey = orderKey(packed.Items)
	return packed
}

// EstimateTokens approximates the token count of a text at four characters
// per token, minimum one.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// sourceOf identifies an item's origin for the diversity pass.
func sourceOf(ev types.Evidence) string {
	if ev.Provenance.UploadID != "" {
		return ev.Provenance.UploadID
	}
	if ev.Provenance.Origin != "" {
		return ev.Provenance.Origin
	}
	return ev.SourceLayer
}

// orderKey hashes the admitted id sequence so replays can assert identical
// ordering.
func orderKey(items []types.Evidence) string {
	h := fnv.New64a()
	for _, it := range items {
		h.Write([]byte(it.ID))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
