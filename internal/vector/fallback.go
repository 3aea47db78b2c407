package vector

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/liliang-cn/cortexdb/v2/pkg/core"
	sqvect "github.com/liliang-cn/cortexdb/v2/pkg/cortexdb"
	"go.uber.org/zap"

	"holograph/internal/logging"
	"holograph/internal/types"
)

// Fallback-mode constants. Reduced result caps and a hard per-query timeout
// keep degraded operation cheap and bounded.
const (
	FallbackExplicateK = 8
	FallbackImplicateK = 4
	FallbackTimeout    = 350 * time.Millisecond
)

// FallbackBackend is a standalone sqvect index mirroring the store's
// embeddings. It answers queries when the primary is down, with reduced K
// and its own timeout regardless of the caller's budget.
type FallbackBackend struct {
	db    *sqvect.DB
	store core.Store
}

// NewFallback opens (or creates) the fallback index at path.
func NewFallback(path string, dimensions int) (*FallbackBackend, error) {
	db, err := sqvect.Open(sqvect.Config{
		Path:         path,
		Dimensions:   dimensions,
		SimilarityFn: core.CosineSimilarity,
	})
	if err != nil {
		return nil, fmt.Errorf("open fallback index: %w", err)
	}
	logging.L(logging.CategoryVector).Info("fallback index ready",
		zap.String("path", path), zap.Int("dimensions", dimensions))
	return &FallbackBackend{db: db, store: db.Vector()}, nil
}

func (f *FallbackBackend) Name() string { return "fallback" }

// Close releases the index.
func (f *FallbackBackend) Close() error { return f.db.Close() }

// ReducedK returns the per-layer cap applied in fallback mode.
func ReducedK(layer string) int {
	if layer == types.LayerImplicate {
		return FallbackImplicateK
	}
	return FallbackExplicateK
}

// Overfetch factor for role-constrained queries. The index cannot express a
// level bound in SQL, so visible hits are selected from a wider candidate
// window before truncating to the reduced k.
const fallbackOverfetch = 4

// Query searches the layer's collection with no visibility constraint. The
// requested topK is clamped to the fallback cap for the layer, and the query
// runs under the fallback timeout even if the caller allows more.
func (f *FallbackBackend) Query(ctx context.Context, layer string, query []float32, topK int) ([]Hit, error) {
	if err := validLayer(layer); err != nil {
		return nil, err
	}
	topK = clampK(layer, topK)
	return f.search(ctx, layer, query, topK, topK)
}

// QueryVisible searches the layer's collection keeping only hits at or below
// maxLevel. Candidates are over-fetched so a restricted caller still fills
// its reduced k when higher-level items rank above the visible ones.
func (f *FallbackBackend) QueryVisible(ctx context.Context, layer string, query []float32, topK, maxLevel int) ([]Hit, error) {
	if err := validLayer(layer); err != nil {
		return nil, err
	}
	topK = clampK(layer, topK)
	hits, err := f.search(ctx, layer, query, topK*fallbackOverfetch, topK)
	if err != nil {
		return nil, err
	}
	visible := hits[:0]
	for _, h := range hits {
		if h.RoleViewLevel <= maxLevel {
			visible = append(visible, h)
		}
		if len(visible) == topK {
			break
		}
	}
	return visible, nil
}

func validLayer(layer string) error {
	if layer != types.LayerExplicate && layer != types.LayerImplicate {
		return fmt.Errorf("%w: unknown layer %q", types.ErrInvalidArgument, layer)
	}
	return nil
}

func clampK(layer string, topK int) int {
	if limit := ReducedK(layer); topK <= 0 || topK > limit {
		return limit
	}
	return topK
}

func (f *FallbackBackend) search(ctx context.Context, layer string, query []float32, fetchK, keepK int) ([]Hit, error) {
	ctx, cancel := context.WithTimeout(ctx, FallbackTimeout)
	defer cancel()

	scored, err := f.store.Search(ctx, query, core.SearchOptions{
		Collection: layer,
		TopK:       fetchK,
	})
	if err != nil {
		return nil, fmt.Errorf("fallback search %s: %w", layer, err)
	}

	hits := make([]Hit, 0, keepK)
	for _, s := range scored {
		h := Hit{
			ID:    s.Embedding.ID,
			Text:  s.Embedding.Content,
			Score: s.Score,
		}
		if lvl, ok := s.Embedding.Metadata["role_view_level"]; ok {
			h.RoleViewLevel, _ = strconv.Atoi(lvl)
		}
		if origin, ok := s.Embedding.Metadata["origin"]; ok {
			h.Provenance.Origin = origin
		}
		if layer == types.LayerImplicate {
			h.EntityID = h.ID
		}
		hits = append(hits, h)
	}
	return hits, nil
}

// MirrorMemory dual-writes a memory embedding into the explicate collection.
// Mirror failures are logged, never fatal: the fallback index is best-effort.
func (f *FallbackBackend) MirrorMemory(ctx context.Context, m *types.Memory) {
	if m == nil || len(m.Embedding) == 0 {
		return
	}
	f.mirror(ctx, types.LayerExplicate, m.ID, m.Text, m.Embedding, map[string]string{
		"role_view_level": strconv.Itoa(m.RoleViewLevel),
		"origin":          m.Provenance.Origin,
	})
}

// MirrorEntity dual-writes an entity embedding into the implicate collection.
func (f *FallbackBackend) MirrorEntity(ctx context.Context, e *types.Entity, embedding []float32) {
	if e == nil || len(embedding) == 0 {
		return
	}
	f.mirror(ctx, types.LayerImplicate, e.ID, e.Name, embedding, map[string]string{
		"role_view_level": strconv.Itoa(e.RoleViewLevel),
	})
}

func (f *FallbackBackend) mirror(ctx context.Context, collection, id, content string, vec []float32, meta map[string]string) {
	err := f.store.Upsert(ctx, &core.Embedding{
		ID:         id,
		Collection: collection,
		Vector:     vec,
		Content:    content,
		Metadata:   meta,
	})
	if err != nil {
		logging.L(logging.CategoryVector).Warn("fallback mirror failed",
			zap.String("collection", collection), zap.String("id", id), zap.Error(err))
	}
}

// DescribeStats reports the fallback index stats.
func (f *FallbackBackend) DescribeStats(ctx context.Context) (map[string]any, error) {
	stats, err := f.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"backend":    "fallback",
		"count":      stats.Count,
		"dimensions": stats.Dimensions,
	}, nil
}

// Ping verifies the index answers; used by the health cache.
func (f *FallbackBackend) Ping(ctx context.Context) error {
	_, err := f.store.Stats(ctx)
	return err
}
