// Package retrieval is the query-side core: the dual selector over the
// explicate and implicate indices, the graph expander, and the context
// packer. Every stage runs under its own budget and degrades instead of
// failing.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"holograph/internal/metrics"
	"holograph/internal/rbac"
	"holograph/internal/resilience"
	"holograph/internal/types"
	"holograph/internal/vector"
)

// Default per-layer fan-out in primary mode.
const (
	DefaultExplicateK = 16
	DefaultImplicateK = 8
)

// PrimaryBackendName keys the breaker and the health probe for the primary
// vector backend.
const PrimaryBackendName = "primary-vector"

// SelectorConfig holds the selector's budgets and toggles, resolved from
// configuration at startup.
type SelectorConfig struct {
	Parallel         bool
	LegTimeout       time.Duration
	FallbackBudget   time.Duration
	FallbacksEnabled bool
	SecondaryEnabled bool
}

// Selector queries both layers and merges the results. It never fails on
// backend trouble: trouble becomes warnings, timeouts become empty legs, and
// a tripped breaker reroutes both legs to the fallback backend.
type Selector struct {
	primary  vector.Backend
	fallback vector.Backend
	breaker  *resilience.Breaker
	health   *resilience.HealthCache
	metrics  *metrics.Registry
	cfg      SelectorConfig
}

// NewSelector wires the selector. fallback may be nil when no secondary
// backend is configured; fallback routing is then disabled regardless of
// toggles.
func NewSelector(primary, fallback vector.Backend, breaker *resilience.Breaker,
	health *resilience.HealthCache, reg *metrics.Registry, cfg SelectorConfig) *Selector {
	if cfg.LegTimeout <= 0 {
		cfg.LegTimeout = 450 * time.Millisecond
	}
	if cfg.FallbackBudget <= 0 {
		cfg.FallbackBudget = vector.FallbackTimeout
	}
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	return &Selector{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		health:   health,
		metrics:  reg,
		cfg:      cfg,
	}
}

// SelectOptions parameterizes one selection.
type SelectOptions struct {
	Roles         []string
	ExplicateK    int
	ImplicateK    int
	ForceFallback bool // debug: route to fallback unconditionally
}

// legOutcome is one leg's raw result before merging.
type legOutcome struct {
	layer  string
	hits   []vector.Hit
	timing types.LegTiming
	err    error
}

// Select runs the dual query and returns the merged, role-filtered result.
// Only invalid arguments produce an error; everything else is annotated on
// the result.
func (s *Selector) Select(ctx context.Context, embedding []float32, opts SelectOptions) (*types.SelectionResult, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("%w: nil embedding", types.ErrInvalidArgument)
	}
	if opts.ExplicateK < 0 || opts.ImplicateK < 0 {
		return nil, fmt.Errorf("%w: negative k", types.ErrInvalidArgument)
	}
	if opts.ExplicateK == 0 {
		opts.ExplicateK = DefaultExplicateK
	}
	if opts.ImplicateK == 0 {
		opts.ImplicateK = DefaultImplicateK
	}

	timer := s.metrics.StartTimer("retrieval_ms", nil)
	defer timer.Stop()
	s.metrics.IncrementCounter("retrieval_total", nil)

	result := &types.SelectionResult{
		Metadata: types.SelectionMetadata{Strategy: "primary"},
	}

	maxLevel := rbac.MaxLevel(opts.Roles)

	useFallback, reason := s.shouldUseFallback(ctx, opts.ForceFallback)
	var explicate, implicate legOutcome
	if useFallback {
		explicate, implicate = s.fallbackLegs(ctx, embedding, maxLevel, result, reason)
	} else {
		explicate, implicate = s.primaryLegs(ctx, embedding, opts, result)

		// A tripped breaker reroutes both legs for consistency, but only when
		// the fallback exists and the toggles allow it; otherwise the open
		// breaker degrades to empty legs with warnings. Timeouts and plain
		// errors never reroute: those legs just come back empty.
		if (errors.Is(explicate.err, resilience.ErrBreakerOpen) ||
			errors.Is(implicate.err, resilience.ErrBreakerOpen)) && s.fallbackAvailable() {
			openReason := "circuit_breaker_open: " + PrimaryBackendName
			explicate, implicate = s.fallbackLegs(ctx, embedding, maxLevel, result, openReason)
		}
	}

	result.Timings.Explicate = explicate.timing
	result.Timings.Implicate = implicate.timing
	if s.cfg.Parallel && !result.Fallback.Used {
		result.Timings.TotalWallTimeMs = maxF(explicate.timing.LatencyMs, implicate.timing.LatencyMs)
	} else {
		result.Timings.TotalWallTimeMs = explicate.timing.LatencyMs + implicate.timing.LatencyMs
	}
	if result.Fallback.Used {
		result.Timings.TotalWallTimeMs = result.Timings.FallbackMs
	}

	s.annotateLeg(result, "Explicate", explicate)
	s.annotateLeg(result, "Implicate", implicate)
	if len(explicate.hits) == 0 && len(implicate.hits) == 0 &&
		(explicate.timing.Err != "" || explicate.timing.TimedOut) &&
		(implicate.timing.Err != "" || implicate.timing.TimedOut) {
		s.metrics.IncrementCounter("retrieval_error", nil)
	}

	merged := mergeHits(explicate, implicate)
	for _, h := range merged {
		if h.hit.RoleViewLevel > maxLevel {
			result.Metadata.FilteredCount++
			continue
		}
		result.Evidence = append(result.Evidence, types.Evidence{
			ID:            h.hit.ID,
			Text:          h.hit.Text,
			Score:         h.hit.Score,
			SourceLayer:   h.layer,
			Provenance:    h.hit.Provenance,
			RoleViewLevel: h.hit.RoleViewLevel,
			EntityID:      h.hit.EntityID,
		})
	}
	return result, nil
}

// shouldUseFallback applies the routing policy: fallback only when enabled,
// the secondary backend is configured, and the primary's health probe fails.
// Timeouts alone never route here.
func (s *Selector) shouldUseFallback(ctx context.Context, force bool) (bool, string) {
	if !s.fallbackAvailable() {
		return false, ""
	}
	if force {
		return true, "forced"
	}
	if s.health == nil {
		return false, ""
	}
	healthy, reason := s.health.Healthy(ctx, PrimaryBackendName)
	if healthy {
		return false, ""
	}
	return true, "primary_unhealthy: " + reason
}

// fallbackAvailable is the single predicate gating every fallback route.
func (s *Selector) fallbackAvailable() bool {
	return s.fallback != nil && s.cfg.FallbacksEnabled && s.cfg.SecondaryEnabled
}

func (s *Selector) primaryLegs(ctx context.Context, embedding []float32, opts SelectOptions, result *types.SelectionResult) (legOutcome, legOutcome) {
	runExplicate := func() legOutcome {
		return s.primaryLeg(ctx, types.LayerExplicate, embedding, opts.ExplicateK)
	}
	runImplicate := func() legOutcome {
		return s.primaryLeg(ctx, types.LayerImplicate, embedding, opts.ImplicateK)
	}

	if !s.cfg.Parallel {
		return runExplicate(), runImplicate()
	}

	var explicate, implicate legOutcome
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { explicate = runExplicate(); return nil })
	g.Go(func() error { implicate = runImplicate(); return nil })
	_ = g.Wait()
	return explicate, implicate
}

// primaryLeg runs one layer's query through the breaker under the per-leg
// timeout.
func (s *Selector) primaryLeg(ctx context.Context, layer string, embedding []float32, topK int) legOutcome {
	out := legOutcome{layer: layer}
	legCtx, cancel := context.WithTimeout(ctx, s.cfg.LegTimeout)
	defer cancel()

	start := time.Now()
	err := s.breaker.Call(func() error {
		hits, err := s.primary.Query(legCtx, layer, embedding, topK)
		if err != nil {
			return err
		}
		out.hits = hits
		return nil
	})
	out.timing.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(legCtx.Err(), context.DeadlineExceeded) {
			out.timing.TimedOut = true
		}
		out.timing.Err = err.Error()
		out.err = err
		out.hits = nil
	}
	return out
}

// fallbackLegs serves both layers from the secondary backend with reduced
// fan-out. Both legs run concurrently under one shared budget, so degraded
// retrieval is bounded by a single fallback timeout, not one per leg.
func (s *Selector) fallbackLegs(ctx context.Context, embedding []float32, maxLevel int, result *types.SelectionResult, reason string) (legOutcome, legOutcome) {
	result.Fallback = types.FallbackInfo{
		Used:   true,
		Reason: reason,
		ReducedK: types.ReducedK{
			Explicate: vector.FallbackExplicateK,
			Implicate: vector.FallbackImplicateK,
		},
	}
	result.Metadata.Strategy = "fallback"
	s.metrics.IncrementCounter("pgvector_fallback", nil)

	fbCtx, cancel := context.WithTimeout(ctx, s.cfg.FallbackBudget)
	defer cancel()

	start := time.Now()
	var explicate, implicate legOutcome
	g, _ := errgroup.WithContext(fbCtx)
	g.Go(func() error {
		explicate = s.fallbackLeg(fbCtx, types.LayerExplicate, embedding, vector.FallbackExplicateK, maxLevel)
		return nil
	})
	g.Go(func() error {
		implicate = s.fallbackLeg(fbCtx, types.LayerImplicate, embedding, vector.FallbackImplicateK, maxLevel)
		return nil
	})
	_ = g.Wait()
	result.Timings.FallbackMs = float64(time.Since(start)) / float64(time.Millisecond)
	return explicate, implicate
}

func (s *Selector) fallbackLeg(ctx context.Context, layer string, embedding []float32, topK, maxLevel int) legOutcome {
	out := legOutcome{layer: layer}
	start := time.Now()

	var hits []vector.Hit
	var err error
	if vq, ok := s.fallback.(vector.VisibilityQuerier); ok {
		hits, err = vq.QueryVisible(ctx, layer, embedding, topK, maxLevel)
	} else {
		hits, err = s.fallback.Query(ctx, layer, embedding, topK)
	}
	out.timing.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			out.timing.TimedOut = true
		}
		out.timing.Err = err.Error()
		return out
	}
	out.hits = hits
	return out
}

func (s *Selector) annotateLeg(result *types.SelectionResult, label string, leg legOutcome) {
	switch {
	case leg.timing.TimedOut:
		result.Warnings = append(result.Warnings, label+" query timed out")
	case leg.timing.Err != "":
		result.Warnings = append(result.Warnings, label+" query failed: "+leg.timing.Err)
	}
}

type layeredHit struct {
	layer string
	hit   vector.Hit
}

// mergeHits concatenates explicate first, implicate second, de-duplicating
// by id with first occurrence winning.
func mergeHits(explicate, implicate legOutcome) []layeredHit {
	seen := make(map[string]bool, len(explicate.hits)+len(implicate.hits))
	var merged []layeredHit
	for _, leg := range []legOutcome{explicate, implicate} {
		for _, h := range leg.hits {
			if seen[h.ID] {
				continue
			}
			seen[h.ID] = true
			merged = append(merged, layeredHit{layer: leg.layer, hit: h})
		}
	}
	return merged
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
