// Package embedding generates dense vectors for explicate and implicate
// indexing. Engines are injected wherever vectors are needed; the retrieval
// and ingest cores hold no model specifics. Backends: Ollama (local),
// Google GenAI (cloud), and a deterministic hash projection for tests and
// offline runs.
package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"holograph/internal/logging"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of produced embeddings.
	Dimensions() int

	// Name returns the engine name.
	Name() string
}

// HealthChecker is implemented by engines that can verify reachability
// before batch operations.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Config selects and configures an engine.
type Config struct {
	Provider       string // "ollama", "genai", "deterministic"
	OllamaEndpoint string
	OllamaModel    string
	GenAIAPIKey    string
	GenAIModel     string
	Dimensions     int // deterministic engine only
}

// NewEngine creates an engine from configuration.
func NewEngine(cfg Config) (Engine, error) {
	log := logging.L(logging.CategoryVector)
	switch strings.ToLower(cfg.Provider) {
	case "ollama":
		log.Info("creating ollama embedding engine",
			zap.String("endpoint", cfg.OllamaEndpoint), zap.String("model", cfg.OllamaModel))
		return NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		log.Info("creating genai embedding engine", zap.String("model", cfg.GenAIModel))
		return NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel)
	case "deterministic", "":
		dims := cfg.Dimensions
		if dims <= 0 {
			dims = 64
		}
		return NewDeterministic(dims), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}
}

// CosineSimilarity returns the cosine of the angle between two vectors:
// 1 identical, 0 orthogonal. Zero-magnitude vectors yield 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
