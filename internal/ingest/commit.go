package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"holograph/internal/embedding"
	"holograph/internal/guard"
	"holograph/internal/logging"
	"holograph/internal/metrics"
	"holograph/internal/store"
	"holograph/internal/types"
	"holograph/internal/vector"
)

// Committer persists analysis results. Every write is idempotent: concept
// slugs, frame names, and edge triples all carry stable identity, so
// replaying a chunk changes nothing after the first commit.
type Committer struct {
	store    *store.Store
	metrics  *metrics.Registry
	embedder embedding.Engine        // optional: entities get embeddings at commit
	fallback *vector.FallbackBackend // optional: dual-write mirror

	contradictionsEnabled bool
	refreshEnabled        bool
}

// CommitterOptions wires the committer's collaborators and toggles.
type CommitterOptions struct {
	Embedder              embedding.Engine
	Fallback              *vector.FallbackBackend
	ContradictionsEnabled bool
	RefreshEnabled        bool
}

// NewCommitter creates a committer.
func NewCommitter(s *store.Store, reg *metrics.Registry, opts CommitterOptions) *Committer {
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Committer{
		store:                 s,
		metrics:               reg,
		embedder:              opts.Embedder,
		fallback:              opts.Fallback,
		contradictionsEnabled: opts.ContradictionsEnabled,
		refreshEnabled:        opts.RefreshEnabled,
	}
}

// ConceptSlug derives the stable id for a concept name.
func ConceptSlug(name string) string {
	return "concept:" + Slug(name)
}

// FrameName derives the stable name for a frame discovered in a chunk.
func FrameName(fileID string, chunkIdx int, frameLocalID string) string {
	return fmt.Sprintf("frame:%s:%d:%s", fileID, chunkIdx, frameLocalID)
}

// Slug lowercases and joins word runs with hyphens.
func Slug(name string) string {
	fields := strings.FieldsFunc(strings.ToLower(name), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	return strings.Join(fields, "-")
}

// CommitAnalysis writes one chunk's analysis into the graph. The external
// guard runs before anything touches the store; a truncated analysis is
// rejected. Partial trouble (a failed edge, a failed job) is collected into
// result.Errors rather than aborting the commit.
func (c *Committer) CommitAnalysis(ctx context.Context, analysis *types.AnalysisResult,
	memoryID, fileID string, chunkIdx int, sourceItems []guard.Item) (*types.CommitResult, error) {

	if analysis == nil {
		return nil, fmt.Errorf("%w: nil analysis", types.ErrInvalidArgument)
	}
	if analysis.Truncated {
		return nil, fmt.Errorf("%w: truncated analysis must not be committed", types.ErrInvalidArgument)
	}
	if _, err := guard.ForbidExternalPersistence(sourceItems, "ingest_chunk", true); err != nil {
		return nil, err
	}

	log := logging.L(logging.CategoryIngest)
	result := &types.CommitResult{}
	touched := make(map[string]bool)

	conceptIDs := make(map[string]string, len(analysis.Concepts))
	for _, name := range analysis.Concepts {
		entity := &types.Entity{
			ID:   ConceptSlug(name),
			Name: name,
			Type: types.EntityTypeConcept,
		}
		id, err := c.store.UpsertEntity(entity)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("concept %q: %v", name, err))
			continue
		}
		conceptIDs[name] = id
		result.ConceptEntityIDs = append(result.ConceptEntityIDs, id)
		touched[id] = true
		c.mirrorEntity(ctx, entity)
	}

	frameIDs := make(map[string]string, len(analysis.Frames))
	for _, f := range analysis.Frames {
		name := FrameName(fileID, chunkIdx, f.LocalID)
		entity := &types.Entity{
			ID:   name,
			Name: name,
			Type: types.EntityTypeArtifact,
			Metadata: map[string]any{
				"memory_id": memoryID,
				"kind":      f.Kind,
				"verb":      f.Verb,
			},
		}
		id, err := c.store.UpsertEntity(entity)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("frame %q: %v", name, err))
			continue
		}
		frameIDs[f.LocalID] = id
		result.FrameEntityIDs = append(result.FrameEntityIDs, id)
		touched[id] = true
		c.mirrorEntity(ctx, entity)
	}

	for _, f := range analysis.Frames {
		fromID, ok := frameIDs[f.LocalID]
		if !ok {
			continue
		}
		for _, concept := range f.Concepts {
			toID, ok := conceptIDs[concept]
			if !ok {
				continue
			}
			relation, linked := frameRelation(f, concept)
			if !linked {
				continue
			}
			edgeID, err := c.store.UpsertEdge(&types.Edge{
				FromID:   fromID,
				ToID:     toID,
				Relation: relation,
				Weight:   1,
				Metadata: map[string]any{"source_verb": f.Verb, "subject": f.Subject},
			})
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("edge %s->%s: %v", fromID, toID, err))
				continue
			}
			result.EdgeIDs = append(result.EdgeIDs, edgeID)
		}
	}

	if c.contradictionsEnabled && len(analysis.Contradictions) > 0 && memoryID != "" {
		if err := c.store.AppendContradictions(memoryID, analysis.Contradictions); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("contradictions: %v", err))
		}
	}

	if c.refreshEnabled {
		for id := range touched {
			if _, err := c.store.EnqueueJob(types.JobKindImplicateRefresh, []string{id}); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("enqueue refresh %s: %v", id, err))
				continue
			}
			result.JobsEnqueued++
		}
	}

	c.metrics.IncrementCounter("ingest_commit", nil)
	log.Debug("analysis committed",
		zap.String("memory_id", memoryID),
		zap.Int("concepts", len(result.ConceptEntityIDs)),
		zap.Int("frames", len(result.FrameEntityIDs)),
		zap.Int("edges", len(result.EdgeIDs)),
		zap.Int("jobs", result.JobsEnqueued))
	return result, nil
}

// frameRelation decides how a frame links to a concept it references.
// Evidence frames evidence the concept; otherwise the frame must actually
// mention the concept as subject or object, and its polarity picks supports
// or contradicts.
func frameRelation(f types.Frame, concept string) (string, bool) {
	if f.Kind == types.FrameKindEvidence {
		return types.RelationEvidenceOf, true
	}
	if !mentionsConcept(f, concept) {
		return "", false
	}
	if f.Polarity == types.PolarityNegative {
		return types.RelationContradicts, true
	}
	return types.RelationSupports, true
}

func mentionsConcept(f types.Frame, concept string) bool {
	lc := strings.ToLower(concept)
	for _, arg := range []string{f.Subject, f.Object} {
		if arg == "" {
			continue
		}
		la := strings.ToLower(arg)
		if strings.Contains(lc, la) || strings.Contains(la, lc) {
			return true
		}
	}
	return false
}

// mirrorEntity embeds the entity name and dual-writes it to the store and
// the fallback index. Best-effort: a missing embedder or a failed mirror
// never blocks the commit.
func (c *Committer) mirrorEntity(ctx context.Context, entity *types.Entity) {
	if c.embedder == nil {
		return
	}
	vec, err := c.embedder.Embed(ctx, entity.Name)
	if err != nil {
		logging.L(logging.CategoryIngest).Debug("entity embedding failed",
			zap.String("entity", entity.ID), zap.Error(err))
		return
	}
	if err := c.store.SetEntityEmbedding(entity.ID, vec); err != nil {
		logging.L(logging.CategoryIngest).Debug("entity embedding store failed",
			zap.String("entity", entity.ID), zap.Error(err))
	}
	if c.fallback != nil {
		c.fallback.MirrorEntity(ctx, entity, vec)
	}
}
