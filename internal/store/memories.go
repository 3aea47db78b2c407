package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"holograph/internal/guard"
	"holograph/internal/types"
)

// ErrNotFound marks lookups for rows that do not exist.
var ErrNotFound = errors.New("not found")

// UpsertMemory stores a memory chunk. The external-persist guard runs first:
// a memory carrying any external marker is rejected before touching the
// database. An empty ID gets a fresh UUID; the stored ID is returned.
func (s *Store) UpsertMemory(m *types.Memory) (string, error) {
	if m == nil || m.Text == "" {
		return "", fmt.Errorf("%w: memory text required", types.ErrInvalidArgument)
	}

	if _, err := guard.ForbidExternalPersistence([]guard.Item{{
		ProvenanceURL: m.Provenance.URL,
	}}, "memory", true); err != nil {
		return "", err
	}

	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Type == "" {
		m.Type = "chunk"
	}

	provJSON, err := json.Marshal(m.Provenance)
	if err != nil {
		return "", fmt.Errorf("marshal provenance: %w", err)
	}
	contraJSON, err := json.Marshal(m.Contradictions)
	if err != nil {
		return "", fmt.Errorf("marshal contradictions: %w", err)
	}
	var embJSON []byte
	if m.Embedding != nil {
		embJSON, _ = json.Marshal(m.Embedding)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO memories (id, text, title, type, role_view_level, provenance, contradictions, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			title = excluded.title,
			role_view_level = excluded.role_view_level,
			embedding = COALESCE(excluded.embedding, memories.embedding)`,
		m.ID, m.Text, m.Title, m.Type, m.RoleViewLevel,
		string(provJSON), string(contraJSON), nullableString(embJSON),
	)
	if err != nil {
		return "", fmt.Errorf("upsert memory: %w", err)
	}
	return m.ID, nil
}

// GetMemory loads one memory by id.
func (s *Store) GetMemory(id string) (*types.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMemoryLocked(id)
}

func (s *Store) getMemoryLocked(id string) (*types.Memory, error) {
	var m types.Memory
	var provJSON, contraJSON string
	var embJSON sql.NullString
	var created time.Time

	err := s.db.QueryRow(
		`SELECT id, text, title, type, role_view_level, provenance, contradictions, embedding, created_at
		 FROM memories WHERE id = ?`, id,
	).Scan(&m.ID, &m.Text, &m.Title, &m.Type, &m.RoleViewLevel, &provJSON, &contraJSON, &embJSON, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	m.CreatedAt = created
	_ = json.Unmarshal([]byte(provJSON), &m.Provenance)
	_ = json.Unmarshal([]byte(contraJSON), &m.Contradictions)
	if embJSON.Valid {
		_ = json.Unmarshal([]byte(embJSON.String), &m.Embedding)
	}
	return &m, nil
}

// AppendContradictions merges triples into the memory's contradictions
// annotation with set-union semantics: the read-merge-write runs inside one
// transaction so concurrent appenders cannot drop each other's triples, and
// duplicate triples collapse.
func (s *Store) AppendContradictions(memoryID string, triples []types.Contradiction) error {
	if len(triples) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingJSON string
	err = tx.QueryRow("SELECT contradictions FROM memories WHERE id = ?", memoryID).Scan(&existingJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("memory %s: %w", memoryID, ErrNotFound)
	}
	if err != nil {
		return err
	}

	var existing []types.Contradiction
	_ = json.Unmarshal([]byte(existingJSON), &existing)

	seen := make(map[types.Contradiction]bool, len(existing))
	for _, c := range existing {
		seen[c] = true
	}
	for _, c := range triples {
		if !seen[c] {
			existing = append(existing, c)
			seen[c] = true
		}
	}

	merged, err := json.Marshal(existing)
	if err != nil {
		return err
	}
	if _, err := tx.Exec("UPDATE memories SET contradictions = ? WHERE id = ?", string(merged), memoryID); err != nil {
		return err
	}
	return tx.Commit()
}

// MemoriesMissingEmbedding lists ids of memories without a stored embedding,
// up to limit.
func (s *Store) MemoriesMissingEmbedding(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id FROM memories WHERE embedding IS NULL LIMIT ?", limit)
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

// SetMemoryEmbedding stores a computed embedding on an existing memory.
func (s *Store) SetMemoryEmbedding(id string, embedding []float32) error {
	embJSON, err := json.Marshal(embedding)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.Exec("UPDATE memories SET embedding = ? WHERE id = ?", string(embJSON), id)
	return err
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
