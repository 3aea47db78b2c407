package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"holograph/internal/logging"
)

// Embedder is the slice of the embedding engine the store needs for refresh
// work.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EntitiesMissingEmbedding lists ids of entities without a stored embedding,
// up to limit.
func (s *Store) EntitiesMissingEmbedding(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id FROM entities WHERE embedding IS NULL LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetEntityEmbedding stores a computed embedding on an existing entity.
func (s *Store) SetEntityEmbedding(id string, embedding []float32) error {
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec("UPDATE entities SET embedding = ? WHERE id = ?", string(embJSON), id)
	return err
}

// ReembedMissing computes embeddings for memories and entities that lack one,
// in batches, until done or the context expires. Returns the number of rows
// updated. Individual batch failures stop the pass with a partial count, and
// a batch that updates nothing stops the pass rather than refetching the same
// stuck rows forever.
func (s *Store) ReembedMissing(ctx context.Context, engine Embedder, batchSize int) (int, error) {
	if engine == nil {
		return 0, fmt.Errorf("nil embedder")
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	log := logging.L(logging.CategoryStore)

	updated := 0

	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		ids, err := s.MemoriesMissingEmbedding(batchSize)
		if err != nil {
			return updated, err
		}
		if len(ids) == 0 {
			break
		}

		texts := make([]string, 0, len(ids))
		kept := make([]string, 0, len(ids))
		for _, id := range ids {
			m, err := s.GetMemory(id)
			if err != nil {
				continue
			}
			texts = append(texts, m.Text)
			kept = append(kept, id)
		}
		vectors, err := engine.EmbedBatch(ctx, texts)
		if err != nil {
			return updated, fmt.Errorf("embed memories: %w", err)
		}
		before := updated
		for i, id := range kept {
			if i >= len(vectors) {
				break
			}
			if err := s.SetMemoryEmbedding(id, vectors[i]); err != nil {
				log.Warn("store memory embedding failed", zap.String("id", id), zap.Error(err))
				continue
			}
			updated++
		}
		if updated == before {
			return updated, fmt.Errorf("reembed stalled on %d memories", len(ids))
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		ids, err := s.EntitiesMissingEmbedding(batchSize)
		if err != nil {
			return updated, err
		}
		if len(ids) == 0 {
			break
		}

		texts := make([]string, 0, len(ids))
		kept := make([]string, 0, len(ids))
		for _, id := range ids {
			e, err := s.GetEntity(id)
			if err != nil {
				continue
			}
			texts = append(texts, e.Name)
			kept = append(kept, id)
		}
		vectors, err := engine.EmbedBatch(ctx, texts)
		if err != nil {
			return updated, fmt.Errorf("embed entities: %w", err)
		}
		before := updated
		for i, id := range kept {
			if i >= len(vectors) {
				break
			}
			if err := s.SetEntityEmbedding(id, vectors[i]); err != nil {
				log.Warn("store entity embedding failed", zap.String("id", id), zap.Error(err))
				continue
			}
			updated++
		}
		if updated == before {
			return updated, fmt.Errorf("reembed stalled on %d entities", len(ids))
		}
	}

	return updated, nil
}
