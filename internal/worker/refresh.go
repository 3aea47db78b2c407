// Package worker runs the background refresh loop that recomputes
// implicate-layer artifacts for entities the commit engine touched.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"holograph/internal/embedding"
	"holograph/internal/logging"
	"holograph/internal/metrics"
	"holograph/internal/store"
	"holograph/internal/types"
	"holograph/internal/vector"
)

// RefreshWorker consumes implicate_refresh jobs. Claim and completion are
// atomic in the store, so a job is never processed twice; the refresh itself
// is idempotent, which gives at-least-once semantics overall.
type RefreshWorker struct {
	store    *store.Store
	embedder embedding.Engine
	fallback *vector.FallbackBackend // optional mirror target
	metrics  *metrics.Registry

	pollInterval time.Duration
	maxInterval  time.Duration
}

// NewRefreshWorker creates a worker polling at the given base interval.
func NewRefreshWorker(s *store.Store, embedder embedding.Engine,
	fallback *vector.FallbackBackend, reg *metrics.Registry, pollInterval time.Duration) *RefreshWorker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &RefreshWorker{
		store:        s,
		embedder:     embedder,
		fallback:     fallback,
		metrics:      reg,
		pollInterval: pollInterval,
		maxInterval:  30 * time.Second,
	}
}

// Run polls until the context is cancelled. An empty queue backs the poll
// interval off exponentially; finding work resets it.
func (w *RefreshWorker) Run(ctx context.Context) {
	log := logging.L(logging.CategoryWorker)
	log.Info("refresh worker started", zap.Duration("poll", w.pollInterval))

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = w.pollInterval
	policy.MaxInterval = w.maxInterval
	policy.MaxElapsedTime = 0 // poll forever

	for {
		worked, err := w.Tick(ctx)
		if err != nil && ctx.Err() == nil {
			log.Warn("refresh tick failed", zap.Error(err))
		}

		var wait time.Duration
		if worked {
			policy.Reset()
			wait = 0
		} else {
			wait = policy.NextBackOff()
		}

		select {
		case <-ctx.Done():
			log.Info("refresh worker stopped")
			return
		case <-time.After(wait):
		}
	}
}

// Tick claims and processes at most one job. Returns whether a job was
// found.
func (w *RefreshWorker) Tick(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimJob(types.JobKindImplicateRefresh)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	timer := w.metrics.StartTimer("refresh_job_ms", nil)
	err = w.process(ctx, job)
	timer.Stop()

	if err != nil {
		w.metrics.IncrementCounter("refresh_failed", nil)
		if failErr := w.store.FailJob(job.ID, err); failErr != nil {
			return true, failErr
		}
		return true, err
	}
	w.metrics.IncrementCounter("refresh_done", nil)
	return true, w.store.CompleteJob(job.ID)
}

// process recomputes embeddings for the job's entities and re-mirrors them
// into the fallback index. Re-running on an already-fresh entity is a no-op
// write.
func (w *RefreshWorker) process(ctx context.Context, job *types.Job) error {
	if w.embedder == nil {
		return fmt.Errorf("no embedder configured")
	}
	for _, entityID := range job.Payload {
		entity, err := w.store.GetEntity(entityID)
		if err != nil {
			// The entity may have been removed since enqueue; not an error.
			logging.L(logging.CategoryWorker).Debug("refresh target missing",
				zap.String("entity", entityID))
			continue
		}
		vec, err := w.embedder.Embed(ctx, entity.Name)
		if err != nil {
			return fmt.Errorf("embed entity %s: %w", entityID, err)
		}
		if err := w.store.SetEntityEmbedding(entityID, vec); err != nil {
			return fmt.Errorf("store embedding %s: %w", entityID, err)
		}
		if w.fallback != nil {
			w.fallback.MirrorEntity(ctx, entity, vec)
		}
	}
	return nil
}
