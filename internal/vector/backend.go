// Package vector provides similarity search over the two indexed layers:
// explicate (memory chunks) and implicate (concept/frame entities). The
// primary backend reads the canonical store; the fallback backend is a
// separate sqvect index kept alive for degraded operation when the primary
// is unhealthy.
package vector

import (
	"context"

	"holograph/internal/types"
)

// Hit is one scored result from a backend query.
type Hit struct {
	ID            string           `json:"id"`
	Text          string           `json:"text"`
	Score         float64          `json:"score"`
	RoleViewLevel int              `json:"role_view_level"`
	Provenance    types.Provenance `json:"provenance"`
	EntityID      string           `json:"entity_id,omitempty"`
}

// Backend answers nearest-neighbor queries against one of the layers.
type Backend interface {
	// Query returns up to topK hits for the layer, best score first.
	Query(ctx context.Context, layer string, query []float32, topK int) ([]Hit, error)

	// Name identifies the backend in timings and warnings.
	Name() string
}

// VisibilityQuerier is implemented by backends that can constrain results to
// a caller's role view level before truncating to topK, so restricted callers
// are not crowded out of a small result window by items they cannot see.
type VisibilityQuerier interface {
	QueryVisible(ctx context.Context, layer string, query []float32, topK, maxLevel int) ([]Hit, error)
}

// StatsProvider is implemented by backends that can describe their index.
type StatsProvider interface {
	DescribeStats(ctx context.Context) (map[string]any, error)
}
