package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"holograph/internal/types"
)

// ErrDanglingEdge rejects edges whose endpoints are not stored entities.
var ErrDanglingEdge = errors.New("edge endpoint does not exist")

// UpsertEntity stores an entity, idempotent on (name, type): re-upserting the
// same pair keeps the original row and id, merging only metadata and view
// level. The stored id is returned either way.
func (s *Store) UpsertEntity(e *types.Entity) (string, error) {
	if e == nil || e.Name == "" || e.Type == "" {
		return "", fmt.Errorf("%w: entity name and type required", types.ErrInvalidArgument)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if e.Metadata == nil {
		metaJSON = []byte("{}")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO entities (id, name, type, role_view_level, metadata)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name, type) DO UPDATE SET
			role_view_level = excluded.role_view_level,
			metadata = excluded.metadata`,
		e.ID, e.Name, e.Type, e.RoleViewLevel, string(metaJSON),
	)
	if err != nil {
		return "", fmt.Errorf("upsert entity: %w", err)
	}

	// The conflict path keeps the existing id; read it back so callers always
	// hold the canonical one.
	var storedID string
	err = s.db.QueryRow(
		"SELECT id FROM entities WHERE name = ? AND type = ?", e.Name, e.Type,
	).Scan(&storedID)
	if err != nil {
		return "", fmt.Errorf("read back entity id: %w", err)
	}
	e.ID = storedID
	return storedID, nil
}

// GetEntity loads one entity by id.
func (s *Store) GetEntity(id string) (*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e types.Entity
	var metaJSON string
	err := s.db.QueryRow(
		"SELECT id, name, type, role_view_level, metadata FROM entities WHERE id = ?", id,
	).Scan(&e.ID, &e.Name, &e.Type, &e.RoleViewLevel, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(metaJSON), &e.Metadata)
	return &e, nil
}

// GetEntityByName loads one entity by its (name, type) pair.
func (s *Store) GetEntityByName(name, entityType string) (*types.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var e types.Entity
	var metaJSON string
	err := s.db.QueryRow(
		"SELECT id, name, type, role_view_level, metadata FROM entities WHERE name = ? AND type = ?",
		name, entityType,
	).Scan(&e.ID, &e.Name, &e.Type, &e.RoleViewLevel, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %s/%s: %w", entityType, name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(metaJSON), &e.Metadata)
	return &e, nil
}

// UpsertEdge stores a typed edge, idempotent on (from, to, relation).
// Both endpoints must already exist; a dangling edge is rejected with
// ErrDanglingEdge so the graph never holds references to missing nodes.
func (s *Store) UpsertEdge(e *types.Edge) (string, error) {
	if e == nil || e.FromID == "" || e.ToID == "" || e.Relation == "" {
		return "", fmt.Errorf("%w: edge endpoints and relation required", types.ErrInvalidArgument)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	if e.Metadata == nil {
		metaJSON = []byte("{}")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, endpoint := range []string{e.FromID, e.ToID} {
		var one int
		err := s.db.QueryRow("SELECT 1 FROM entities WHERE id = ?", endpoint).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrDanglingEdge, endpoint)
		}
		if err != nil {
			return "", err
		}
	}

	_, err = s.db.Exec(
		`INSERT INTO entity_edges (id, from_id, to_id, relation, weight, metadata)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(from_id, to_id, relation) DO UPDATE SET
			weight = excluded.weight,
			metadata = excluded.metadata`,
		e.ID, e.FromID, e.ToID, e.Relation, e.Weight, string(metaJSON),
	)
	if err != nil {
		return "", fmt.Errorf("upsert edge: %w", err)
	}

	var storedID string
	err = s.db.QueryRow(
		"SELECT id FROM entity_edges WHERE from_id = ? AND to_id = ? AND relation = ?",
		e.FromID, e.ToID, e.Relation,
	).Scan(&storedID)
	if err != nil {
		return "", fmt.Errorf("read back edge id: %w", err)
	}
	e.ID = storedID
	return storedID, nil
}

// OutgoingEdges lists edges leaving fromID, optionally restricted to a
// relation set. An empty relation slice means all relations.
func (s *Store) OutgoingEdges(fromID string, relations []string) ([]types.Edge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT id, from_id, to_id, relation, weight, metadata FROM entity_edges WHERE from_id = ?"
	args := []any{fromID}
	if len(relations) > 0 {
		query += " AND relation IN (?" + repeatPlaceholder(len(relations)-1) + ")"
		for _, r := range relations {
			args = append(args, r)
		}
	}
	query += " ORDER BY weight DESC, id ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []types.Edge
	for rows.Next() {
		var e types.Edge
		var metaJSON string
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.Relation, &e.Weight, &metaJSON); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(metaJSON), &e.Metadata)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
