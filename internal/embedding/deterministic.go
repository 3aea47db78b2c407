package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Deterministic is a seedless hash-projection engine: each token bumps a
// bucket chosen by its FNV hash, and the result is L2-normalized. The same
// text always produces the same vector, which makes retrieval tests
// reproducible and lets the service run without a model backend.
type Deterministic struct {
	dims int
}

// NewDeterministic creates a deterministic engine with the given
// dimensionality.
func NewDeterministic(dims int) *Deterministic {
	if dims <= 0 {
		dims = 64
	}
	return &Deterministic{dims: dims}
}

// Embed produces a normalized bag-of-hashed-tokens vector.
func (d *Deterministic) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, d.dims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(token))
		idx := int(h.Sum32()) % d.dims
		if idx < 0 {
			idx += d.dims
		}
		vec[idx]++
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag > 0 {
		norm := float32(math.Sqrt(mag))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (d *Deterministic) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := d.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// Dimensions returns the configured dimensionality.
func (d *Deterministic) Dimensions() int { return d.dims }

// Name returns the engine name.
func (d *Deterministic) Name() string { return "deterministic" }

// HealthCheck always succeeds.
func (d *Deterministic) HealthCheck(context.Context) error { return nil }
