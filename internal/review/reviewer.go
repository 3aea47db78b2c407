// Package review runs the optional answer-quality pass. The reviewer is
// strictly bounded: a configured wall-clock budget, its own circuit breaker,
// and skip-don't-fail semantics on every obstacle.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"holograph/internal/metrics"
	"holograph/internal/resilience"
	"holograph/internal/types"
)

// BreakerName keys the reviewer's circuit breaker.
const BreakerName = "reviewer"

// Judge scores an answer against its supporting context. Implementations
// may call out to a model; the reviewer holds no model specifics.
type Judge interface {
	Review(ctx context.Context, answer, query string, evidence []types.Evidence) (Judgment, error)
}

// Judgment is a judge's raw verdict.
type Judgment struct {
	Score      float64
	Confidence float64
	Flags      []string
	Details    map[string]any
}

// Config holds the reviewer toggles.
type Config struct {
	Enabled bool
	Budget  time.Duration
}

// Reviewer wraps a judge with budget and breaker enforcement.
type Reviewer struct {
	judge   Judge
	breaker *resilience.Breaker
	metrics *metrics.Registry
	cfg     Config
}

// New creates a reviewer.
func New(judge Judge, breaker *resilience.Breaker, reg *metrics.Registry, cfg Config) *Reviewer {
	if cfg.Budget <= 0 {
		cfg.Budget = 500 * time.Millisecond
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Reviewer{judge: judge, breaker: breaker, metrics: reg, cfg: cfg}
}

// ReviewAnswer runs the quality pass. It always returns a result: skips are
// annotated with a reason, never raised as errors, and the wall time never
// materially exceeds the budget even when the judge hangs.
func (r *Reviewer) ReviewAnswer(ctx context.Context, answer, query string, evidence []types.Evidence) types.ReviewResult {
	start := time.Now()
	timer := r.metrics.StartTimer("reviewer_ms", nil)
	defer timer.Stop()

	finish := func(res types.ReviewResult) types.ReviewResult {
		res.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)
		return res
	}

	if !r.cfg.Enabled || r.judge == nil {
		return finish(types.ReviewResult{Skipped: true, SkipReason: "reviewer_disabled"})
	}
	if r.breaker != nil && !r.breaker.CanExecute() {
		return finish(types.ReviewResult{Skipped: true, SkipReason: "circuit_breaker_open"})
	}

	judgeCtx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	type outcome struct {
		judgment Judgment
		err      error
	}
	done := make(chan outcome, 1)
	go func() {
		j, err := r.judge.Review(judgeCtx, answer, query, evidence)
		done <- outcome{judgment: j, err: err}
	}()

	select {
	case <-judgeCtx.Done():
		// A runaway judge is abandoned: the goroutine drains into the
		// buffered channel and the response path moves on.
		if r.breaker != nil {
			r.breaker.RecordFailure()
		}
		return finish(types.ReviewResult{
			Skipped:    true,
			SkipReason: fmt.Sprintf("timeout_exceeded: %dms", r.cfg.Budget.Milliseconds()),
		})
	case out := <-done:
		if out.err != nil {
			if r.breaker != nil {
				r.breaker.RecordFailure()
			}
			return finish(types.ReviewResult{
				Skipped:    true,
				SkipReason: "error: " + errKind(out.err),
			})
		}
		if r.breaker != nil {
			r.breaker.RecordSuccess()
		}
		score := out.judgment.Score
		confidence := out.judgment.Confidence
		return finish(types.ReviewResult{
			Score:      &score,
			Confidence: &confidence,
			Flags:      out.judgment.Flags,
			Details:    out.judgment.Details,
		})
	}
}

// errKind names the failure mode without leaking backend detail into the
// skip reason.
func errKind(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline_exceeded"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return fmt.Sprintf("%T", err)
	}
}
