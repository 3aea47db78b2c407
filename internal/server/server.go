// Package server exposes the query, ingest, and debug HTTP surface. Handlers
// are thin: they gate on capabilities, call the cores, and shape the
// response envelope through the redactor.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"holograph/internal/config"
	"holograph/internal/embedding"
	"holograph/internal/ingest"
	"holograph/internal/logging"
	"holograph/internal/metrics"
	"holograph/internal/rbac"
	"holograph/internal/resilience"
	"holograph/internal/retrieval"
	"holograph/internal/review"
	"holograph/internal/store"
)

// AnswerFunc generates the answer text from the query and packed context.
// Answer generation is an external collaborator; the default extractive
// implementation lives in answer.go.
type AnswerFunc func(ctx context.Context, query string, packed retrieval.PackedContext) (string, error)

// Server wires the cores behind HTTP handlers.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	selector *retrieval.Selector
	expander *retrieval.Expander
	packer   *retrieval.Packer
	reviewer *review.Reviewer
	pipeline *ingest.Pipeline
	embedder embedding.Engine
	answer   AnswerFunc
	metrics  *metrics.Registry
	breakers *resilience.BreakerRegistry
	health   *resilience.HealthCache

	startedAt time.Time
	httpSrv   *http.Server
}

// Options carries the server's collaborators.
type Options struct {
	Config   *config.Config
	Store    *store.Store
	Selector *retrieval.Selector
	Expander *retrieval.Expander
	Packer   *retrieval.Packer
	Reviewer *review.Reviewer
	Pipeline *ingest.Pipeline
	Embedder embedding.Engine
	Answer   AnswerFunc
	Metrics  *metrics.Registry
	Breakers *resilience.BreakerRegistry
	Health   *resilience.HealthCache
}

// New creates a server.
func New(opts Options) *Server {
	s := &Server{
		cfg:       opts.Config,
		store:     opts.Store,
		selector:  opts.Selector,
		expander:  opts.Expander,
		packer:    opts.Packer,
		reviewer:  opts.Reviewer,
		pipeline:  opts.Pipeline,
		embedder:  opts.Embedder,
		answer:    opts.Answer,
		metrics:   opts.Metrics,
		breakers:  opts.Breakers,
		health:    opts.Health,
		startedAt: time.Now(),
	}
	if s.metrics == nil {
		s.metrics = metrics.NewRegistry()
	}
	if s.answer == nil {
		s.answer = ExtractiveAnswer
	}
	return s
}

// Pipeline exposes the ingest pipeline for the CLI front end.
func (s *Server) Pipeline() *ingest.Pipeline { return s.pipeline }

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/query", s.handleQuery)
	r.Post("/ingest", s.handleIngest)

	r.Route("/debug", func(r chi.Router) {
		r.Get("/config", s.requireCapability(rbac.CapViewDebug, s.handleDebugConfig))
		r.Get("/metrics", s.requireCapability(rbac.CapViewDebug, s.handleDebugMetrics))
		r.Get("/health", s.handleDebugHealth)
	})
	return r
}

// ListenAndServe runs the server until the context is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.Server.Addr
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	logging.L(logging.CategoryServer).Info("listening", zap.String("addr", addr))

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

// callerRoles parses the X-Roles header, a comma-separated role list.
// Absent header means anonymous: the general role.
func callerRoles(r *http.Request) []string {
	raw := r.Header.Get("X-Roles")
	if raw == "" {
		return []string{rbac.RoleGeneral}
	}
	parts := strings.Split(raw, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if n := rbac.Normalize(p); n != "" {
			roles = append(roles, n)
		}
	}
	if len(roles) == 0 {
		return []string{rbac.RoleGeneral}
	}
	return roles
}

// requireCapability denies and audits callers lacking the capability.
func (s *Server) requireCapability(capability rbac.Capability, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roles := callerRoles(r)
		if !rbac.AnyHasCapability(roles, capability) {
			logging.Audit(logging.AuditRoleDenied, logging.SeverityMedium, r.URL.Path,
				"capability denied",
				map[string]any{"roles": roles, "capability": string(capability)})
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error": "missing capability: " + string(capability),
			})
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
