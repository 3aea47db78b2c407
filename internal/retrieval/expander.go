package retrieval

import (
	"context"
	"time"

	"go.uber.org/zap"

	"holograph/internal/logging"
	"holograph/internal/metrics"
	"holograph/internal/rbac"
	"holograph/internal/store"
	"holograph/internal/types"
)

// graphScoreDecay discounts evidence reached through an edge relative to the
// hit it was expanded from.
const graphScoreDecay = 0.8

// expandRelations are the edge types the expander follows.
var expandRelations = []string{
	types.RelationEvidenceOf,
	types.RelationSupports,
	types.RelationContradicts,
}

// Expander grows a selection result by one hop over the entity graph,
// bounded by a wall-clock budget.
type Expander struct {
	store   *store.Store
	metrics *metrics.Registry
	budget  time.Duration
}

// NewExpander creates an expander with the given time budget.
func NewExpander(s *store.Store, reg *metrics.Registry, budget time.Duration) *Expander {
	if budget <= 0 {
		budget = 150 * time.Millisecond
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Expander{store: s, metrics: reg, budget: budget}
}

// Expand walks one hop out from each implicate-layer hit, appending visible
// neighbors as via-graph evidence and collecting contradiction triples.
// Expansion stops silently when the budget runs out; dangling edges are
// skipped. The result is mutated in place and also returned.
func (e *Expander) Expand(ctx context.Context, result *types.SelectionResult, roles []string) *types.SelectionResult {
	timer := e.metrics.StartTimer("graph_expand_ms", nil)
	defer timer.Stop()

	deadline := time.Now().Add(e.budget)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	maxLevel := rbac.MaxLevel(roles)
	log := logging.L(logging.CategoryRetrieval)

	seen := make(map[string]bool, len(result.Evidence))
	for _, ev := range result.Evidence {
		seen[ev.ID] = true
	}
	seenTriple := make(map[types.Contradiction]bool)

	// One hop only: iterate the snapshot of implicate hits present at entry,
	// never the evidence appended during expansion.
	frontier := make([]types.Evidence, 0, len(result.Evidence))
	for _, ev := range result.Evidence {
		if ev.SourceLayer == types.LayerImplicate && ev.EntityID != "" {
			frontier = append(frontier, ev)
		}
	}

	for _, origin := range frontier {
		if time.Now().After(deadline) || ctx.Err() != nil {
			break
		}
		edges, err := e.store.OutgoingEdges(origin.EntityID, expandRelations)
		if err != nil {
			log.Debug("edge enumeration failed", zap.String("entity", origin.EntityID), zap.Error(err))
			continue
		}

		for _, edge := range edges {
			if time.Now().After(deadline) || ctx.Err() != nil {
				break
			}
			neighbor, err := e.store.GetEntity(edge.ToID)
			if err != nil {
				// Dangling endpoint: skip, never fail.
				continue
			}
			if neighbor.RoleViewLevel > maxLevel {
				continue
			}

			if edge.Relation == types.RelationContradicts {
				triple := types.Contradiction{
					Subject:      neighbor.Name,
					ClaimASource: edge.FromID,
					ClaimBSource: edge.ToID,
				}
				if subj, ok := edge.Metadata["subject"].(string); ok && subj != "" {
					triple.Subject = subj
				}
				if !seenTriple[triple] {
					seenTriple[triple] = true
					result.Contradictions = append(result.Contradictions, triple)
				}
			}

			if seen[neighbor.ID] {
				continue
			}
			seen[neighbor.ID] = true

			text, level := e.resolveText(neighbor)
			if level > maxLevel {
				continue
			}
			weight := edge.Weight
			if weight <= 0 || weight > 1 {
				weight = 1
			}
			result.Evidence = append(result.Evidence, types.Evidence{
				ID:            neighbor.ID,
				Text:          text,
				Score:         origin.Score * graphScoreDecay * weight,
				SourceLayer:   types.LayerImplicate,
				RoleViewLevel: neighbor.RoleViewLevel,
				EntityID:      neighbor.ID,
				ViaGraph:      true,
			})
		}
	}
	return result
}

// resolveText prefers the memory text a frame entity is bound to; concepts
// and unbound frames fall back to the entity name.
func (e *Expander) resolveText(entity *types.Entity) (string, int) {
	if memID, ok := entity.Metadata["memory_id"].(string); ok && memID != "" {
		if m, err := e.store.GetMemory(memID); err == nil {
			return m.Text, m.RoleViewLevel
		}
	}
	return entity.Name, entity.RoleViewLevel
}
