package vector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"holograph/internal/embedding"
	"holograph/internal/store"
	"holograph/internal/types"
)

// PrimaryBackend searches the canonical store. Without the vec0 extension it
// scans stored embeddings and ranks by cosine similarity, which is exact and
// fine at the corpus sizes the store holds; tagged builds get ANN via vec0.
type PrimaryBackend struct {
	store *store.Store
}

// NewPrimary wraps the store as the primary backend.
func NewPrimary(s *store.Store) *PrimaryBackend {
	return &PrimaryBackend{store: s}
}

func (p *PrimaryBackend) Name() string { return "primary" }

// Query runs brute-force cosine ranking over the layer's table.
func (p *PrimaryBackend) Query(ctx context.Context, layer string, query []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", types.ErrInvalidArgument)
	}

	switch layer {
	case types.LayerExplicate:
		return p.queryMemories(ctx, query, topK)
	case types.LayerImplicate:
		return p.queryEntities(ctx, query, topK)
	default:
		return nil, fmt.Errorf("%w: unknown layer %q", types.ErrInvalidArgument, layer)
	}
}

func (p *PrimaryBackend) queryMemories(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	rows, err := p.store.DB().QueryContext(ctx,
		"SELECT id, text, role_view_level, provenance, embedding FROM memories WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var h Hit
		var provJSON, embJSON string
		if err := rows.Scan(&h.ID, &h.Text, &h.RoleViewLevel, &provJSON, &embJSON); err != nil {
			continue
		}
		score, ok := scoreAgainst(query, embJSON)
		if !ok {
			continue
		}
		h.Score = score
		_ = json.Unmarshal([]byte(provJSON), &h.Provenance)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topHits(hits, topK), nil
}

func (p *PrimaryBackend) queryEntities(ctx context.Context, query []float32, topK int) ([]Hit, error) {
	rows, err := p.store.DB().QueryContext(ctx,
		"SELECT id, name, role_view_level, embedding FROM entities WHERE embedding IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var h Hit
		var embJSON string
		if err := rows.Scan(&h.ID, &h.Text, &h.RoleViewLevel, &embJSON); err != nil {
			continue
		}
		score, ok := scoreAgainst(query, embJSON)
		if !ok {
			continue
		}
		h.Score = score
		h.EntityID = h.ID
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return topHits(hits, topK), nil
}

// DescribeStats reports index readiness: row counts and how many rows carry
// embeddings.
func (p *PrimaryBackend) DescribeStats(ctx context.Context) (map[string]any, error) {
	stats, err := p.store.Stats()
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"backend": "primary",
		"tables":  stats,
	}
	for table, key := range map[string]string{"memories": "memories_indexed", "entities": "entities_indexed"} {
		var n int64
		err := p.store.DB().QueryRowContext(ctx,
			"SELECT COUNT(*) FROM "+table+" WHERE embedding IS NOT NULL").Scan(&n)
		if err != nil && err != sql.ErrNoRows {
			return nil, err
		}
		out[key] = n
	}
	return out, nil
}

// Ping verifies the backing database answers; used by the health cache.
func (p *PrimaryBackend) Ping(ctx context.Context) error {
	return p.store.DB().PingContext(ctx)
}

func scoreAgainst(query []float32, embJSON string) (float64, bool) {
	var emb []float32
	if err := json.Unmarshal([]byte(embJSON), &emb); err != nil {
		return 0, false
	}
	score, err := embedding.CosineSimilarity(query, emb)
	if err != nil {
		return 0, false
	}
	return score, true
}

// topHits sorts by score descending with id ascending as the stable
// tiebreaker, then truncates to k.
func topHits(hits []Hit, k int) []Hit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}
