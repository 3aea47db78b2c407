package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"holograph/internal/embedding"
	"holograph/internal/ingest"
	"holograph/internal/logging"
	"holograph/internal/metrics"
	"holograph/internal/resilience"
	"holograph/internal/retrieval"
	"holograph/internal/review"
	"holograph/internal/server"
	"holograph/internal/store"
	"holograph/internal/vector"
	"holograph/internal/worker"
)

// serveCmd runs the query and ingest service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the holograph service",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

// application holds the wired service for serve and for tests.
type application struct {
	store    *store.Store
	fallback *vector.FallbackBackend
	server   *server.Server
	worker   *worker.RefreshWorker
}

func (a *application) close() {
	if a.fallback != nil {
		_ = a.fallback.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

// buildApplication wires every component from the loaded config.
func buildApplication() (*application, error) {
	log := logging.L(logging.CategoryBoot)

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		Dimensions:     cfg.Embedding.Dimensions,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create embedding engine: %w", err)
	}

	reg := metrics.NewRegistry()
	breakers := resilience.NewBreakerRegistry(resilience.DefaultBreakerConfig(), reg)
	health := resilience.NewHealthCache(resilience.DefaultHealthTTL)

	primary := vector.NewPrimary(st)
	health.Register(retrieval.PrimaryBackendName, primary.Ping)

	var fb *vector.FallbackBackend
	if cfg.Fallback.PgVector && cfg.Fallback.Path != "" {
		fb, err = vector.NewFallback(cfg.Fallback.Path, engine.Dimensions())
		if err != nil {
			log.Warn("fallback index unavailable", zap.Error(err))
			fb = nil
		} else {
			health.Register("fallback-vector", fb.Ping)
		}
	}

	// A typed-nil *FallbackBackend must not become a non-nil Backend.
	var fallbackBackend vector.Backend
	if fb != nil {
		fallbackBackend = fb
	}

	selector := retrieval.NewSelector(primary, fallbackBackend,
		breakers.Get(retrieval.PrimaryBackendName), health, reg,
		retrieval.SelectorConfig{
			Parallel:         cfg.Retrieval.Parallel,
			LegTimeout:       time.Duration(cfg.Retrieval.TimeoutMs) * time.Millisecond,
			FallbacksEnabled: cfg.Fallback.Enabled,
			SecondaryEnabled: cfg.Fallback.PgVector,
		})
	expander := retrieval.NewExpander(st, reg, time.Duration(cfg.Graph.TimeoutMs)*time.Millisecond)
	packer := retrieval.NewPacker(retrieval.DefaultPackerConfig(), reg)
	reviewer := review.New(review.NewHeuristicJudge(), breakers.Get(review.BreakerName), reg,
		review.Config{
			Enabled: cfg.Reviewer.Enabled,
			Budget:  time.Duration(cfg.Reviewer.BudgetMs) * time.Millisecond,
		})

	analyzer := ingest.NewAnalyzer(ingest.NewHeuristicNLP(), reg, ingest.Limits{
		MaxPerChunk: time.Duration(cfg.Ingest.MaxMsPerChunk) * time.Millisecond,
		MaxVerbs:    cfg.Ingest.MaxVerbs,
		MaxFrames:   cfg.Ingest.MaxFrames,
		MaxConcepts: cfg.Ingest.MaxConcepts,
	}, cfg.Ingest.ContradictionsEnabled)
	committer := ingest.NewCommitter(st, reg, ingest.CommitterOptions{
		Embedder:              engine,
		Fallback:              fb,
		ContradictionsEnabled: cfg.Ingest.ContradictionsEnabled,
		RefreshEnabled:        cfg.Ingest.RefreshEnabled,
	})
	pipeline := ingest.NewPipeline(st, analyzer, committer, engine, fb, reg,
		cfg.Ingest.AnalysisEnabled)

	srv := server.New(server.Options{
		Config:   cfg,
		Store:    st,
		Selector: selector,
		Expander: expander,
		Packer:   packer,
		Reviewer: reviewer,
		Pipeline: pipeline,
		Embedder: engine,
		Metrics:  reg,
		Breakers: breakers,
		Health:   health,
	})

	app := &application{store: st, fallback: fb, server: srv}
	if cfg.Ingest.RefreshEnabled {
		app.worker = worker.NewRefreshWorker(st, engine, fb, reg, time.Second)
	}
	return app, nil
}

func runServe(ctx context.Context) error {
	app, err := buildApplication()
	if err != nil {
		return err
	}
	defer app.close()

	if app.worker != nil {
		go app.worker.Run(ctx)
	}
	return app.server.ListenAndServe(ctx)
}
